package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"halfmonth/internal/cache"
	"halfmonth/internal/core"
	"halfmonth/internal/events"
	"halfmonth/internal/store"
)

var (
	ErrPeriodExists    = errors.New("period already exists")
	ErrExpenseNotFound = errors.New("expense not found")
)

// Publisher announces period writes to out-of-process consumers.
type Publisher interface {
	PublishPeriodChanged(ctx context.Context, userID string, key core.PeriodKey) error
	PublishPeriodDeleted(ctx context.Context, userID string, key core.PeriodKey) error
}

// Notifier fans events out to live subscribers in this process.
type Notifier interface {
	Publish(e events.Event) int
}

// Recorder receives operation outcomes; *metrics.Metrics implements it.
type Recorder interface {
	PeriodOperation(op string, err error)
	EventPublished(err error)
}

// PeriodService owns every read and write of period documents. Writes to a
// single (user, period) are serialised; reads go through an LRU cache.
type PeriodService struct {
	store     store.PeriodStore
	cache     cache.Cache[core.Period]
	group     singleflight.Group
	locks     *keyedMutex
	publisher Publisher
	notifier  Notifier
	recorder  Recorder
	now       func() time.Time
}

type Option func(*PeriodService)

func WithCache(c cache.Cache[core.Period]) Option {
	return func(s *PeriodService) { s.cache = c }
}

func WithPublisher(p Publisher) Option {
	return func(s *PeriodService) { s.publisher = p }
}

func WithNotifier(n Notifier) Option {
	return func(s *PeriodService) { s.notifier = n }
}

func WithRecorder(r Recorder) Option {
	return func(s *PeriodService) { s.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *PeriodService) { s.now = now }
}

func NewPeriodService(st store.PeriodStore, opts ...Option) *PeriodService {
	s := &PeriodService{
		store: st,
		locks: newKeyedMutex(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.NewLRUCache[core.Period](0, 0)
	}
	return s
}

func cacheKey(userID string, key core.PeriodKey) string {
	return userID + "/" + key.String()
}

// Now is the service clock.
func (s *PeriodService) Now() time.Time {
	return s.now()
}

func (s *PeriodService) record(op string, err error) {
	if s.recorder != nil {
		s.recorder.PeriodOperation(op, err)
	}
}

// get reads a period through the cache. Concurrent misses for the same key
// share one store read.
func (s *PeriodService) get(ctx context.Context, userID string, key core.PeriodKey) (core.Period, error) {
	ck := cacheKey(userID, key)
	if p, ok := s.cache.Get(ck); ok {
		return p.Clone(), nil
	}
	v, err, _ := s.group.Do(ck, func() (any, error) {
		unlock := s.locks.lock(ck)
		defer unlock()
		return s.loadLocked(ctx, userID, key)
	})
	if err != nil {
		return core.Period{}, err
	}
	return v.(core.Period).Clone(), nil
}

// loadLocked must be called with the key's lock held, so a fill can never
// overwrite a newer write.
func (s *PeriodService) loadLocked(ctx context.Context, userID string, key core.PeriodKey) (core.Period, error) {
	ck := cacheKey(userID, key)
	if p, ok := s.cache.Get(ck); ok {
		return p, nil
	}
	p, err := s.store.GetPeriod(ctx, userID, key)
	if err != nil {
		return core.Period{}, err
	}
	s.cache.Set(ck, p)
	return p, nil
}

func (s *PeriodService) saveLocked(ctx context.Context, userID string, p core.Period) error {
	if err := s.store.PutPeriod(ctx, userID, p); err != nil {
		s.cache.Delete(cacheKey(userID, p.Key))
		return fmt.Errorf("put period: %w", err)
	}
	s.cache.Set(cacheKey(userID, p.Key), p.Clone())
	return nil
}

// changed runs the best-effort side effects of a write. Failures are
// logged and never surface to the caller.
func (s *PeriodService) changed(ctx context.Context, userID string, key core.PeriodKey, kind events.Kind) {
	if s.notifier != nil {
		s.notifier.Publish(events.Event{Kind: kind, UserID: userID, Key: key, At: s.now()})
	}
	if s.publisher == nil {
		return
	}
	var err error
	if kind == events.PeriodDeleted {
		err = s.publisher.PublishPeriodDeleted(ctx, userID, key)
	} else {
		err = s.publisher.PublishPeriodChanged(ctx, userID, key)
	}
	if s.recorder != nil {
		s.recorder.EventPublished(err)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish period event",
			"user_id", userID, "period_key", key.String(), "kind", kind, "error", err)
	}
}

// mutate applies fn to the stored period under the key's lock and saves
// the result.
func (s *PeriodService) mutate(ctx context.Context, op, userID string, key core.PeriodKey, fn func(p *core.Period) error) (p core.Period, err error) {
	defer func() { s.record(op, err) }()
	if !key.Valid() {
		return core.Period{}, core.ErrInvalidPeriodKey
	}

	unlock := s.locks.lock(cacheKey(userID, key))
	p, err = s.loadLocked(ctx, userID, key)
	if err == nil {
		p = p.Clone()
		err = fn(&p)
	}
	if err == nil {
		err = s.saveLocked(ctx, userID, p)
	}
	unlock()
	if err != nil {
		return core.Period{}, err
	}

	slog.InfoContext(ctx, "Period updated", "operation", op, "user_id", userID, "period_key", key.String())
	s.changed(ctx, userID, key, events.PeriodChanged)
	return p, nil
}

// Open returns the period, creating an empty one on first access.
func (s *PeriodService) Open(ctx context.Context, userID string, key core.PeriodKey) (core.Period, error) {
	if !key.Valid() {
		return core.Period{}, core.ErrInvalidPeriodKey
	}
	p, err := s.get(ctx, userID, key)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return p, err
	}

	created := false
	unlock := s.locks.lock(cacheKey(userID, key))
	p, err = s.loadLocked(ctx, userID, key)
	if errors.Is(err, store.ErrNotFound) {
		p = core.NewPeriod(key)
		err = s.saveLocked(ctx, userID, p)
		created = err == nil
	}
	unlock()
	if err != nil {
		return core.Period{}, fmt.Errorf("open period: %w", err)
	}
	if created {
		s.record("open", nil)
		slog.InfoContext(ctx, "Period created on first access", "user_id", userID, "period_key", key.String())
		s.changed(ctx, userID, key, events.PeriodChanged)
	}
	return p.Clone(), nil
}

// Current opens the period containing the service clock's date.
func (s *PeriodService) Current(ctx context.Context, userID string) (core.Period, error) {
	return s.Open(ctx, userID, core.PeriodIDFor(s.now()))
}

// CreateNext creates the period after from, seeded with the expenses of its
// January template under fresh IDs and a zero bank balance. A missing
// template yields an empty period.
func (s *PeriodService) CreateNext(ctx context.Context, userID string, from core.PeriodKey) (p core.Period, err error) {
	defer func() { s.record("create_next", err) }()
	if !from.Valid() {
		return core.Period{}, core.ErrInvalidPeriodKey
	}
	next := from.Next()

	var template []core.Expense
	if tk := next.Template(); tk != next {
		tp, err := s.get(ctx, userID, tk)
		switch {
		case err == nil:
			template = tp.Expenses
		case !errors.Is(err, store.ErrNotFound):
			return core.Period{}, fmt.Errorf("read template: %w", err)
		}
	}

	unlock := s.locks.lock(cacheKey(userID, next))
	_, err = s.loadLocked(ctx, userID, next)
	switch {
	case err == nil:
		err = ErrPeriodExists
	case errors.Is(err, store.ErrNotFound):
		p = core.NewPeriod(next)
		now := s.now()
		for _, e := range template {
			e.ID = p.NextExpenseID(now)
			p.Expenses = append(p.Expenses, e)
		}
		err = s.saveLocked(ctx, userID, p)
	}
	unlock()
	if err != nil {
		return core.Period{}, err
	}

	slog.InfoContext(ctx, "Next period created",
		"user_id", userID, "period_key", next.String(), "template_expenses", len(template))
	s.changed(ctx, userID, next, events.PeriodChanged)
	return p, nil
}

// DeletePeriod removes a period and returns the key to show next: the most
// recent remaining period, or the current-date period when none remain.
func (s *PeriodService) DeletePeriod(ctx context.Context, userID string, key core.PeriodKey) (next core.PeriodKey, err error) {
	defer func() { s.record("delete_period", err) }()
	if !key.Valid() {
		return core.PeriodKey{}, core.ErrInvalidPeriodKey
	}

	ck := cacheKey(userID, key)
	unlock := s.locks.lock(ck)
	err = s.store.DeletePeriod(ctx, userID, key)
	s.cache.Delete(ck)
	unlock()
	if err != nil {
		return core.PeriodKey{}, err
	}
	slog.InfoContext(ctx, "Period deleted", "user_id", userID, "period_key", key.String())
	s.changed(ctx, userID, key, events.PeriodDeleted)

	keys, err := s.ListKeys(ctx, userID)
	if err != nil {
		return core.PeriodKey{}, err
	}
	if len(keys) > 0 {
		return keys[0], nil
	}
	return core.PeriodIDFor(s.now()), nil
}

// AddExpense appends a validated expense with a time-based ID.
func (s *PeriodService) AddExpense(ctx context.Context, userID string, key core.PeriodKey, in core.ExpenseInput) (core.Expense, error) {
	if err := in.Validate(); err != nil {
		s.record("add_expense", err)
		return core.Expense{}, err
	}
	var added core.Expense
	_, err := s.mutate(ctx, "add_expense", userID, key, func(p *core.Period) error {
		added = in.Expense(p.NextExpenseID(s.now()))
		p.Expenses = append(p.Expenses, added)
		return nil
	})
	return added, err
}

// UpdateExpense replaces an expense's fields in place, keeping its ID and
// position.
func (s *PeriodService) UpdateExpense(ctx context.Context, userID string, key core.PeriodKey, id int64, in core.ExpenseInput) (core.Expense, error) {
	if err := in.Validate(); err != nil {
		s.record("update_expense", err)
		return core.Expense{}, err
	}
	var updated core.Expense
	_, err := s.mutate(ctx, "update_expense", userID, key, func(p *core.Period) error {
		i := p.IndexOf(id)
		if i < 0 {
			return ErrExpenseNotFound
		}
		updated = in.Expense(id)
		p.Expenses[i] = updated
		return nil
	})
	return updated, err
}

func (s *PeriodService) DeleteExpense(ctx context.Context, userID string, key core.PeriodKey, id int64) error {
	_, err := s.mutate(ctx, "delete_expense", userID, key, func(p *core.Period) error {
		i := p.IndexOf(id)
		if i < 0 {
			return ErrExpenseNotFound
		}
		p.Expenses = append(p.Expenses[:i], p.Expenses[i+1:]...)
		return nil
	})
	return err
}

// SetBalance records the bank balance at the start of the period.
func (s *PeriodService) SetBalance(ctx context.Context, userID string, key core.PeriodKey, balance decimal.Decimal) error {
	if err := core.ValidateBalance(balance); err != nil {
		s.record("set_balance", err)
		return err
	}
	_, err := s.mutate(ctx, "set_balance", userID, key, func(p *core.Period) error {
		p.BankBalance = balance.Round(2)
		return nil
	})
	return err
}

// ListKeys returns the user's period keys, most recent first.
func (s *PeriodService) ListKeys(ctx context.Context, userID string) ([]core.PeriodKey, error) {
	periods, err := s.store.ListPeriods(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	keys := make([]core.PeriodKey, len(periods))
	for i, p := range periods {
		keys[i] = p.Key
	}
	core.SortKeys(keys, true)
	return keys, nil
}

// EnsureTemplates creates the January periods of year when missing.
func (s *PeriodService) EnsureTemplates(ctx context.Context, userID string, year int) error {
	for _, half := range []core.Half{core.FirstHalf, core.SecondHalf} {
		key := core.NewPeriodKey(year, 1, half)
		if _, err := s.Open(ctx, userID, key); err != nil {
			return fmt.Errorf("ensure template %s: %w", key, err)
		}
	}
	return nil
}
