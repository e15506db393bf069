// Package worker runs the background jobs of halfmonth-worker: mirroring
// period changes to Sheets and keeping January templates in place.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"halfmonth/internal/amqp"
	"halfmonth/internal/sheets"
	"halfmonth/internal/store"
)

type PeriodSource interface {
	store.PeriodReader
	store.UserLister
}

// MirrorWorker copies period documents to the outbound mirror in response
// to change events.
type MirrorWorker struct {
	store  PeriodSource
	mirror sheets.PeriodMirror
}

func NewMirrorWorker(st PeriodSource, mirror sheets.PeriodMirror) *MirrorWorker {
	return &MirrorWorker{store: st, mirror: mirror}
}

// HandlePeriodEvent re-reads the period named by the event and mirrors it.
// A period deleted after the event was published is removed instead.
func (w *MirrorWorker) HandlePeriodEvent(ctx context.Context, msg *amqp.PeriodEvent) error {
	slog.InfoContext(ctx, "Processing period event",
		"type", msg.Type,
		"user_id", msg.UserID,
		"period_key", msg.Key.String())

	if msg.Type == amqp.PeriodDeleted {
		if err := w.mirror.RemovePeriod(ctx, msg.UserID, msg.Key); err != nil {
			return fmt.Errorf("remove mirrored period: %w", err)
		}
		return nil
	}

	p, err := w.store.GetPeriod(ctx, msg.UserID, msg.Key)
	if errors.Is(err, store.ErrNotFound) {
		if err := w.mirror.RemovePeriod(ctx, msg.UserID, msg.Key); err != nil {
			return fmt.Errorf("remove mirrored period: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("get period from storage: %w", err)
	}
	if err := w.mirror.MirrorPeriod(ctx, msg.UserID, p); err != nil {
		return fmt.Errorf("mirror period: %w", err)
	}
	return nil
}

// StartupSync mirrors every stored period so tabs missed while the worker
// was down catch up. Individual failures are logged and counted.
func (w *MirrorWorker) StartupSync(ctx context.Context) (synced, failed int, err error) {
	users, err := w.store.ListUserIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list users: %w", err)
	}
	for _, userID := range users {
		periods, err := w.store.ListPeriods(ctx, userID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to list periods for startup sync", "user_id", userID, "error", err)
			failed++
			continue
		}
		for _, p := range periods {
			if err := ctx.Err(); err != nil {
				return synced, failed, err
			}
			if err := w.mirror.MirrorPeriod(ctx, userID, p); err != nil {
				slog.ErrorContext(ctx, "Failed to mirror period during startup",
					"user_id", userID, "period_key", p.Key.String(), "error", err)
				failed++
				continue
			}
			synced++
		}
	}
	slog.InfoContext(ctx, "Startup sync completed", "users", len(users), "synced", synced, "errors", failed)
	return synced, failed, nil
}
