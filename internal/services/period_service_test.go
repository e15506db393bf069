package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"halfmonth/internal/cache"
	"halfmonth/internal/core"
	"halfmonth/internal/events"
	"halfmonth/internal/store"
	"halfmonth/internal/store/memory"
)

type publishedEvent struct {
	kind string
	user string
	key  core.PeriodKey
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (f *fakePublisher) PublishPeriodChanged(_ context.Context, userID string, key core.PeriodKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{"changed", userID, key})
	return f.err
}

func (f *fakePublisher) PublishPeriodDeleted(_ context.Context, userID string, key core.PeriodKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{"deleted", userID, key})
	return f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeRecorder struct {
	mu  sync.Mutex
	ops map[string]int
}

func (f *fakeRecorder) PeriodOperation(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		op += ":error"
	}
	f.ops[op]++
}

func (f *fakeRecorder) EventPublished(error) {}

// countingStore counts GetPeriod calls to observe the cache.
type countingStore struct {
	*memory.Store
	mu   sync.Mutex
	gets int
}

func (c *countingStore) GetPeriod(ctx context.Context, userID string, key core.PeriodKey) (core.Period, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.Store.GetPeriod(ctx, userID, key)
}

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *PeriodService
	store    *countingStore
	pub      *fakePublisher
	hub      *events.Hub
	recorder *fakeRecorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := &countingStore{Store: memory.New()}
	pub := &fakePublisher{}
	hub := events.NewHub()
	rec := &fakeRecorder{ops: map[string]int{}}
	svc := NewPeriodService(st,
		WithCache(cache.NewLRUCache[core.Period](64, time.Minute)),
		WithPublisher(pub),
		WithNotifier(hub),
		WithRecorder(rec),
		WithClock(func() time.Time { return testNow }),
	)
	return fixture{svc: svc, store: st, pub: pub, hub: hub, recorder: rec}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func key(s string) core.PeriodKey { return core.MustParsePeriodKey(s) }

func input(desc, amount string, c core.Category) core.ExpenseInput {
	return core.ExpenseInput{Description: desc, Amount: dec(amount), Category: c}
}

func TestOpenCreatesOnFirstAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub, cancel := f.hub.Subscribe("alice")
	defer cancel()

	p, err := f.svc.Open(ctx, "alice", key("2024-5-1"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(p.Expenses) != 0 || !p.BankBalance.IsZero() {
		t.Fatalf("new period should be empty, got %+v", p)
	}
	if _, err := f.store.Store.GetPeriod(ctx, "alice", key("2024-5-1")); err != nil {
		t.Fatalf("period should be persisted: %v", err)
	}
	if f.pub.count() != 1 {
		t.Fatalf("expected one change event, got %d", f.pub.count())
	}
	if e := <-sub; e.Kind != events.PeriodChanged || e.Key != key("2024-5-1") {
		t.Fatalf("live event = %+v", e)
	}

	if _, err := f.svc.Open(ctx, "alice", key("2024-5-1")); err != nil {
		t.Fatal(err)
	}
	if f.pub.count() != 1 {
		t.Fatal("reopening must not publish")
	}
}

func TestOpenRejectsInvalidKey(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Open(context.Background(), "alice", core.PeriodKey{Year: 2024, Month: 13, Half: 1}); !errors.Is(err, core.ErrInvalidPeriodKey) {
		t.Fatalf("expected ErrInvalidPeriodKey, got %v", err)
	}
}

func TestCurrentUsesClock(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Current(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.Key != key("2024-5-1") {
		t.Fatalf("Current() key = %s", p.Key)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	k := key("2024-5-1")
	if _, err := f.svc.Open(ctx, "alice", k); err != nil {
		t.Fatal(err)
	}

	rent, err := f.svc.AddExpense(ctx, "alice", k, input("  Rent ", "1500", core.Housing))
	if err != nil {
		t.Fatalf("AddExpense() error = %v", err)
	}
	if rent.ID != testNow.UnixMilli() || rent.Description != "Rent" {
		t.Fatalf("added = %+v", rent)
	}
	food, err := f.svc.AddExpense(ctx, "alice", k, input("Groceries", "200", core.Food))
	if err != nil {
		t.Fatal(err)
	}
	if food.ID <= rent.ID {
		t.Fatalf("IDs must increase: %d then %d", rent.ID, food.ID)
	}

	updated, err := f.svc.UpdateExpense(ctx, "alice", k, rent.ID, input("Rent May", "1550.5", core.Housing))
	if err != nil {
		t.Fatalf("UpdateExpense() error = %v", err)
	}
	if updated.ID != rent.ID || !updated.Amount.Equal(dec("1550.50")) {
		t.Fatalf("updated = %+v", updated)
	}

	if err := f.svc.SetBalance(ctx, "alice", k, dec("3000")); err != nil {
		t.Fatalf("SetBalance() error = %v", err)
	}
	if err := f.svc.DeleteExpense(ctx, "alice", k, food.ID); err != nil {
		t.Fatalf("DeleteExpense() error = %v", err)
	}

	p, _ := f.svc.Open(ctx, "alice", k)
	if len(p.Expenses) != 1 || p.Expenses[0].Description != "Rent May" || !p.BankBalance.Equal(dec("3000")) {
		t.Fatalf("period = %+v", p)
	}
	stored, _ := f.store.Store.GetPeriod(ctx, "alice", k)
	if len(stored.Expenses) != 1 {
		t.Fatalf("store not written through: %+v", stored)
	}
}

func TestMutationErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	k := key("2024-5-1")
	_, _ = f.svc.Open(ctx, "alice", k)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"empty description", func() error {
			_, err := f.svc.AddExpense(ctx, "alice", k, input("  ", "1", core.Food))
			return err
		}, core.ErrEmptyDescription},
		{"amount too large", func() error {
			_, err := f.svc.AddExpense(ctx, "alice", k, input("x", "1000000", core.Food))
			return err
		}, core.ErrAmountOutOfRange},
		{"unknown category", func() error {
			_, err := f.svc.AddExpense(ctx, "alice", k, input("x", "1", core.Category("Pets")))
			return err
		}, core.ErrUnknownCategory},
		{"update missing expense", func() error {
			_, err := f.svc.UpdateExpense(ctx, "alice", k, 42, input("x", "1", core.Food))
			return err
		}, ErrExpenseNotFound},
		{"delete missing expense", func() error {
			return f.svc.DeleteExpense(ctx, "alice", k, 42)
		}, ErrExpenseNotFound},
		{"negative balance", func() error {
			return f.svc.SetBalance(ctx, "alice", k, dec("-1"))
		}, core.ErrBalanceOutOfRange},
		{"missing period", func() error {
			_, err := f.svc.AddExpense(ctx, "alice", key("2020-1-1"), input("x", "1", core.Food))
			return err
		}, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
	if f.recorder.ops["add_expense:error"] != 4 {
		t.Fatalf("recorded ops = %v", f.recorder.ops)
	}
}

func TestCreateNextCopiesTemplate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tmpl := core.NewPeriod(key("2024-1-2"))
	tmpl.BankBalance = dec("999")
	tmpl.Expenses = []core.Expense{
		{ID: 1, Description: "Rent", Amount: dec("1500"), Category: core.Housing},
		{ID: 2, Description: "Gym", Amount: dec("40"), Category: core.Health},
	}
	f.store.Seed("alice", tmpl, core.NewPeriod(key("2024-5-1")))

	p, err := f.svc.CreateNext(ctx, "alice", key("2024-5-1"))
	if err != nil {
		t.Fatalf("CreateNext() error = %v", err)
	}
	if p.Key != key("2024-5-2") || !p.BankBalance.IsZero() || len(p.Expenses) != 2 {
		t.Fatalf("next period = %+v", p)
	}
	if p.Expenses[0].ID == 1 || p.Expenses[1].ID <= p.Expenses[0].ID {
		t.Fatalf("template copies need fresh increasing IDs: %+v", p.Expenses)
	}
	if p.Expenses[0].Description != "Rent" || p.Expenses[1].Description != "Gym" {
		t.Fatalf("template order not kept: %+v", p.Expenses)
	}

	if _, err := f.svc.CreateNext(ctx, "alice", key("2024-5-1")); !errors.Is(err, ErrPeriodExists) {
		t.Fatalf("second CreateNext() = %v, want ErrPeriodExists", err)
	}
}

func TestCreateNextWithoutTemplateIsEmpty(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.CreateNext(context.Background(), "alice", key("2024-12-2"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Key != key("2025-1-1") || len(p.Expenses) != 0 {
		t.Fatalf("p = %+v", p)
	}
}

func TestDeletePeriodReturnsNextKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.Seed("alice",
		core.NewPeriod(key("2024-9-2")),
		core.NewPeriod(key("2024-12-1")),
		core.NewPeriod(key("2024-10-1")),
	)

	next, err := f.svc.DeletePeriod(ctx, "alice", key("2024-12-1"))
	if err != nil {
		t.Fatalf("DeletePeriod() error = %v", err)
	}
	if next != key("2024-10-1") {
		t.Fatalf("next = %s, want most recent remaining (chronological, not lexicographic)", next)
	}
	if _, err := f.svc.DeletePeriod(ctx, "alice", key("2024-12-1")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleting twice = %v", err)
	}

	_, _ = f.svc.DeletePeriod(ctx, "alice", key("2024-9-2"))
	next, err = f.svc.DeletePeriod(ctx, "alice", key("2024-10-1"))
	if err != nil || next != key("2024-5-1") {
		t.Fatalf("last delete = %s, %v; want current period", next, err)
	}
	if f.pub.events[len(f.pub.events)-1].kind != "deleted" {
		t.Fatal("delete should publish a deleted event")
	}
}

func TestDeleteInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	k := key("2024-5-1")
	_, _ = f.svc.Open(ctx, "alice", k)
	if _, err := f.svc.DeletePeriod(ctx, "alice", k); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.get(ctx, "alice", k); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleted period still served: %v", err)
	}
}

func TestReadsAreCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.Seed("alice", core.NewPeriod(key("2024-5-1")))

	for i := 0; i < 5; i++ {
		if _, err := f.svc.Open(ctx, "alice", key("2024-5-1")); err != nil {
			t.Fatal(err)
		}
	}
	if f.store.gets != 1 {
		t.Fatalf("expected one store read, got %d", f.store.gets)
	}
}

func TestConcurrentAddsAreSerialised(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	k := key("2024-5-1")
	_, _ = f.svc.Open(ctx, "alice", k)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.AddExpense(ctx, "alice", k, input("x", "1", core.Other)); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	p, _ := f.store.Store.GetPeriod(ctx, "alice", k)
	if len(p.Expenses) != 20 {
		t.Fatalf("lost updates: %d expenses", len(p.Expenses))
	}
	seen := map[int64]bool{}
	for _, e := range p.Expenses {
		if seen[e.ID] {
			t.Fatalf("duplicate id %d", e.ID)
		}
		seen[e.ID] = true
	}
	if f.svc.locks.size() != 0 {
		t.Fatal("locks should be released")
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	if _, err := f.svc.Open(ctx, "alice", key("2024-5-1")); err != nil {
		t.Fatalf("Open() should succeed despite publish failure: %v", err)
	}
}

func TestListKeysDescending(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("alice",
		core.NewPeriod(key("2024-2-1")),
		core.NewPeriod(key("2024-10-2")),
		core.NewPeriod(key("2023-12-2")),
	)
	keys, err := f.svc.ListKeys(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2024-10-2", "2024-2-1", "2023-12-2"}
	for i, k := range keys {
		if k.String() != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

func TestEnsureTemplates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	existing := core.NewPeriod(key("2024-1-1"))
	existing.BankBalance = dec("10")
	f.store.Seed("alice", existing)

	if err := f.svc.EnsureTemplates(ctx, "alice", 2024); err != nil {
		t.Fatal(err)
	}
	got, _ := f.store.Store.GetPeriod(ctx, "alice", key("2024-1-1"))
	if !got.BankBalance.Equal(dec("10")) {
		t.Fatal("existing template must not be overwritten")
	}
	if _, err := f.store.Store.GetPeriod(ctx, "alice", key("2024-1-2")); err != nil {
		t.Fatalf("second-half template missing: %v", err)
	}
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	prev := core.NewPeriod(key("2024-4-2"))
	prev.Expenses = []core.Expense{{ID: 1, Description: "Old", Amount: dec("1000"), Category: core.Food}}
	cur := core.NewPeriod(key("2024-5-1"))
	cur.BankBalance = dec("3000")
	cur.Expenses = []core.Expense{
		{ID: 1, Description: "rent", Amount: dec("1500"), Category: core.Housing},
		{ID: 2, Description: "Fund", Amount: dec("200"), Category: core.Savings},
		{ID: 3, Description: "Apples", Amount: dec("50"), Category: core.Food},
	}
	f.store.Seed("alice", prev, cur)

	d, err := f.svc.Dashboard(ctx, "alice", cur.Key, DashboardView{
		Filter: core.AllCategories,
		Sort:   core.SortState{Field: core.SortDescription, Direction: core.Ascending},
	})
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if !d.Total.Equal(dec("1750")) || !d.SpendingTotal.Equal(dec("1550")) || !d.Remaining.Equal(dec("1250")) {
		t.Fatalf("totals = %s %s %s", d.Total, d.SpendingTotal, d.Remaining)
	}
	if d.Difference == nil || !d.Difference.Equal(dec("750")) {
		t.Fatalf("difference = %v", d.Difference)
	}
	if d.Expenses[0].Description != "Apples" || d.Expenses[2].Description != "rent" {
		t.Fatalf("sorted = %+v", d.Expenses)
	}
	for _, b := range d.Breakdown {
		if b.Category == core.Savings {
			t.Fatal("breakdown must exclude Savings")
		}
	}
	if d.Label != "May 1st" {
		t.Fatalf("label = %q", d.Label)
	}

	d, err = f.svc.Dashboard(ctx, "alice", key("2024-4-1"), DashboardView{Filter: core.OnlyCategory(core.Food)})
	if err != nil {
		t.Fatal(err)
	}
	if d.Difference != nil || d.PreviousTotal != nil {
		t.Fatal("missing previous period must give no difference")
	}
}

func TestAnalytics(t *testing.T) {
	f := newFixture(t)
	a := core.NewPeriod(key("2024-4-1"))
	a.Expenses = []core.Expense{{ID: 1, Description: "x", Amount: dec("100"), Category: core.Food}}
	b := core.NewPeriod(key("2023-1-1"))
	b.Expenses = []core.Expense{{ID: 1, Description: "y", Amount: dec("500"), Category: core.Food}}
	f.store.Seed("alice", a, b)

	w, _ := core.ParseWindow("year", 2024, 0)
	sum, err := f.svc.Analytics(context.Background(), "alice", w)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 1 || !sum.TotalSpending.Equal(dec("100")) {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestCopyImportExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := core.NewPeriod(key("2024-5-1"))
	p.Expenses = []core.Expense{{ID: 7, Description: "Rent", Amount: dec("1500"), Category: core.Housing}}
	f.store.Seed("old", p)

	n, err := f.svc.CopyPeriods(ctx, "old", "new")
	if err != nil || n != 1 {
		t.Fatalf("CopyPeriods() = %d, %v", n, err)
	}
	if _, err := f.svc.CopyPeriods(ctx, "new", "new"); err == nil {
		t.Fatal("copying onto itself should fail")
	}

	var buf bytes.Buffer
	if n, err := f.svc.Export(ctx, "new", &buf); err != nil || n != 1 {
		t.Fatalf("Export() = %d, %v", n, err)
	}
	if !strings.Contains(buf.String(), `"2024-5-1"`) {
		t.Fatalf("dump = %s", buf.String())
	}

	dump := `{"2024-6-2": {"bankBalance": 10, "expenses": []}, "garbage": {"bankBalance": 0, "expenses": []}}`
	imported, skipped, err := f.svc.Import(ctx, "new", strings.NewReader(dump))
	if err != nil || imported != 1 || len(skipped) != 1 || skipped[0] != "garbage" {
		t.Fatalf("Import() = %d, %v, %v", imported, skipped, err)
	}
	keys, _ := f.svc.ListKeys(ctx, "new")
	if len(keys) != 2 {
		t.Fatalf("keys after import = %v", keys)
	}
}

func TestImportRejectsInvalidExpenses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	dump := `{"2024-5-1": {"bankBalance": 0, "expenses": [{"id": 1, "desc": "", "amount": -5, "category": "Groceries"}]}}`
	imported, skipped, err := f.svc.Import(ctx, "u1", strings.NewReader(dump))
	if err != nil || imported != 1 || len(skipped) != 1 || skipped[0] != "2024-5-1#1" {
		t.Fatalf("Import() = %d, %v, %v", imported, skipped, err)
	}
	p, err := f.svc.Open(ctx, "u1", core.MustParsePeriodKey("2024-5-1"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(p.Expenses) != 0 {
		t.Fatalf("invalid expense was stored: %+v", p.Expenses)
	}
	if by := core.ByCategory(p.Expenses); len(by) != 0 {
		t.Fatalf("ByCategory() = %v", by)
	}
}
