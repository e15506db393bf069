package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"halfmonth/internal/store"
)

type TemplateEnsurer interface {
	EnsureTemplates(ctx context.Context, userID string, year int) error
}

// TemplateKeeper makes sure every known user has the January template
// periods of the current year.
type TemplateKeeper struct {
	users    store.UserLister
	ensurer  TemplateEnsurer
	interval time.Duration
	now      func() time.Time
}

func NewTemplateKeeper(users store.UserLister, ensurer TemplateEnsurer, interval time.Duration) *TemplateKeeper {
	return &TemplateKeeper{users: users, ensurer: ensurer, interval: interval, now: time.Now}
}

// EnsureAll creates missing templates for now's year. It keeps going past
// per-user failures and reports how many users failed.
func (k *TemplateKeeper) EnsureAll(ctx context.Context, now time.Time) (int, error) {
	users, err := k.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	failed := 0
	for _, userID := range users {
		if err := k.ensurer.EnsureTemplates(ctx, userID, now.Year()); err != nil {
			slog.ErrorContext(ctx, "Failed to ensure templates", "user_id", userID, "year", now.Year(), "error", err)
			failed++
		}
	}
	if failed > 0 {
		return len(users), fmt.Errorf("ensure templates: %d of %d users failed", failed, len(users))
	}
	return len(users), nil
}

// Run calls EnsureAll immediately and then on every tick until ctx ends.
func (k *TemplateKeeper) Run(ctx context.Context) {
	slog.InfoContext(ctx, "Running initial template check")
	k.runOnce(ctx, k.now())

	if k.interval <= 0 {
		return
	}
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			k.runOnce(ctx, now)
		}
	}
}

func (k *TemplateKeeper) runOnce(ctx context.Context, now time.Time) {
	n, err := k.EnsureAll(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "Template check failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "Template check complete",
		"users", n,
		"next_check", now.Add(k.interval).Format("15:04:05"))
}
