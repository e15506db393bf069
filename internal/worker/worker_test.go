package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"halfmonth/internal/amqp"
	"halfmonth/internal/core"
	sheetsmem "halfmonth/internal/sheets/memory"
	"halfmonth/internal/store/memory"
)

func TestHandlePeriodEvent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	mirror := sheetsmem.New()
	w := NewMirrorWorker(st, mirror)

	key := core.MustParsePeriodKey("2024-5-1")
	p := core.NewPeriod(key)
	p.BankBalance = decimal.RequireFromString("100")
	st.Seed("alice", p)

	t.Run("changed mirrors the stored period", func(t *testing.T) {
		if err := w.HandlePeriodEvent(ctx, amqp.NewPeriodEvent(amqp.PeriodChanged, "alice", key)); err != nil {
			t.Fatalf("HandlePeriodEvent() error = %v", err)
		}
		got, ok := mirror.Tab("alice", key)
		if !ok || !got.BankBalance.Equal(p.BankBalance) {
			t.Fatalf("tab = %+v, %v", got, ok)
		}
	})

	t.Run("changed but gone removes the tab", func(t *testing.T) {
		if err := st.DeletePeriod(ctx, "alice", key); err != nil {
			t.Fatal(err)
		}
		if err := w.HandlePeriodEvent(ctx, amqp.NewPeriodEvent(amqp.PeriodChanged, "alice", key)); err != nil {
			t.Fatal(err)
		}
		if _, ok := mirror.Tab("alice", key); ok {
			t.Fatal("tab should be removed")
		}
	})

	t.Run("deleted removes the tab", func(t *testing.T) {
		_ = mirror.MirrorPeriod(ctx, "alice", p)
		if err := w.HandlePeriodEvent(ctx, amqp.NewPeriodEvent(amqp.PeriodDeleted, "alice", key)); err != nil {
			t.Fatal(err)
		}
		if _, ok := mirror.Tab("alice", key); ok {
			t.Fatal("tab should be removed")
		}
	})

	t.Run("mirror failure is returned for requeue", func(t *testing.T) {
		st.Seed("alice", p)
		mirror.FailWith(errors.New("quota"))
		defer mirror.FailWith(nil)
		if err := w.HandlePeriodEvent(ctx, amqp.NewPeriodEvent(amqp.PeriodChanged, "alice", key)); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestStartupSync(t *testing.T) {
	st := memory.New()
	mirror := sheetsmem.New()
	st.Seed("alice", core.NewPeriod(core.MustParsePeriodKey("2024-5-1")), core.NewPeriod(core.MustParsePeriodKey("2024-5-2")))
	st.Seed("bob", core.NewPeriod(core.MustParsePeriodKey("2024-1-1")))

	synced, failed, err := NewMirrorWorker(st, mirror).StartupSync(context.Background())
	if err != nil || synced != 3 || failed != 0 {
		t.Fatalf("StartupSync() = %d, %d, %v", synced, failed, err)
	}
	if len(mirror.Keys("alice")) != 2 {
		t.Fatalf("alice tabs = %v", mirror.Keys("alice"))
	}
}

type fakeEnsurer struct {
	calls map[string]int
	fail  string
}

func (f *fakeEnsurer) EnsureTemplates(_ context.Context, userID string, year int) error {
	if userID == f.fail {
		return errors.New("store down")
	}
	f.calls[userID] = year
	return nil
}

func TestTemplateKeeperEnsureAll(t *testing.T) {
	st := memory.New()
	st.Seed("alice")
	st.Seed("bob", core.NewPeriod(core.MustParsePeriodKey("2023-6-1")))
	ens := &fakeEnsurer{calls: map[string]int{}}
	k := NewTemplateKeeper(st, ens, time.Hour)

	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	n, err := k.EnsureAll(context.Background(), now)
	if err != nil || n != 1 {
		t.Fatalf("EnsureAll() = %d, %v", n, err)
	}
	if ens.calls["bob"] != 2024 {
		t.Fatalf("calls = %v", ens.calls)
	}

	ens.fail = "bob"
	if _, err := k.EnsureAll(context.Background(), now); err == nil {
		t.Fatal("expected aggregated failure")
	}
}

func TestTemplateKeeperRunStopsOnCancel(t *testing.T) {
	st := memory.New()
	ens := &fakeEnsurer{calls: map[string]int{}}
	k := NewTemplateKeeper(st, ens, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		k.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
