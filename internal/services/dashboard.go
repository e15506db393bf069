package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"halfmonth/internal/core"
	"halfmonth/internal/events"
	"halfmonth/internal/store"
)

// DashboardView is what the user chose to look at within a period.
type DashboardView struct {
	Filter core.CategoryFilter
	Sort   core.SortState
}

// Dashboard is the computed view of one period.
type Dashboard struct {
	Period        core.Period
	Label         string
	Expenses      []core.Expense
	Total         decimal.Decimal
	SpendingTotal decimal.Decimal
	Remaining     decimal.Decimal
	Breakdown     []core.CategoryAmount
	PreviousTotal *decimal.Decimal
	Difference    *decimal.Decimal
	View          DashboardView
}

// Dashboard opens the period and loads the previous period's total
// concurrently. Difference is nil when the previous period does not exist.
func (s *PeriodService) Dashboard(ctx context.Context, userID string, key core.PeriodKey, view DashboardView) (d Dashboard, err error) {
	defer func() { s.record("dashboard", err) }()
	if !key.Valid() {
		return Dashboard{}, core.ErrInvalidPeriodKey
	}

	var (
		period  core.Period
		prevTot *decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.Open(gctx, userID, key)
		if err != nil {
			return err
		}
		period = p
		return nil
	})
	g.Go(func() error {
		prev, err := s.get(gctx, userID, key.Previous())
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read previous period: %w", err)
		}
		t := core.Total(prev.Expenses)
		prevTot = &t
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d = Dashboard{
		Period:        period,
		Label:         core.DisplayLabel(period.Key),
		Expenses:      core.SortBy(core.FilterByCategory(period.Expenses, view.Filter), view.Sort),
		Total:         core.Total(period.Expenses),
		SpendingTotal: core.SpendingTotal(period.Expenses),
		Remaining:     core.Remaining(period),
		Breakdown:     core.Breakdown(period.Expenses, core.Savings),
		PreviousTotal: prevTot,
		View:          view,
	}
	if prevTot != nil {
		diff := d.Total.Sub(*prevTot)
		d.Difference = &diff
	}
	return d, nil
}

// Analytics summarises the user's periods inside the window.
func (s *PeriodService) Analytics(ctx context.Context, userID string, w core.Window) (sum core.Summary, err error) {
	defer func() { s.record("analytics", err) }()
	periods, err := s.store.ListPeriods(ctx, userID)
	if err != nil {
		return core.Summary{}, fmt.Errorf("list periods: %w", err)
	}
	return core.Summarize(core.StatsFor(periods), w, s.now()), nil
}

// CopyPeriods copies every period of fromUser into toUser, overwriting
// periods with the same key. It returns the number copied.
func (s *PeriodService) CopyPeriods(ctx context.Context, fromUser, toUser string) (int, error) {
	if fromUser == toUser {
		return 0, errors.New("copy periods: source and destination are the same user")
	}
	periods, err := s.store.ListPeriods(ctx, fromUser)
	if err != nil {
		return 0, fmt.Errorf("list periods: %w", err)
	}
	return s.putAll(ctx, "copy_periods", toUser, periods)
}

// Import loads a JSON dump into the user's partition. Entries with a
// malformed key are skipped and reported.
func (s *PeriodService) Import(ctx context.Context, userID string, r io.Reader) (imported int, skipped []string, err error) {
	periods, skipped, err := store.DecodeDump(r)
	if err != nil {
		return 0, nil, err
	}
	imported, err = s.putAll(ctx, "import", userID, periods)
	return imported, skipped, err
}

// Export writes the user's periods as a JSON dump.
func (s *PeriodService) Export(ctx context.Context, userID string, w io.Writer) (int, error) {
	periods, err := s.store.ListPeriods(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list periods: %w", err)
	}
	if err := store.EncodeDump(w, periods); err != nil {
		return 0, err
	}
	return len(periods), nil
}

func (s *PeriodService) putAll(ctx context.Context, op, userID string, periods []core.Period) (n int, err error) {
	defer func() { s.record(op, err) }()
	for _, p := range periods {
		unlock := s.locks.lock(cacheKey(userID, p.Key))
		err := s.saveLocked(ctx, userID, p)
		unlock()
		if err != nil {
			return n, fmt.Errorf("write %s: %w", p.Key, err)
		}
		s.changed(ctx, userID, p.Key, events.PeriodChanged)
		n++
	}
	return n, nil
}
