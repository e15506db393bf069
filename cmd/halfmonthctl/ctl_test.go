package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"halfmonth/internal/core"
	"halfmonth/internal/store"
	"halfmonth/internal/store/memory"
)

func TestRenderSummary(t *testing.T) {
	stats := []core.PeriodStat{
		{Key: core.MustParsePeriodKey("2024-5-1"), Label: "May 1st", Total: decimal.NewFromInt(800),
			ByCategory: map[core.Category]decimal.Decimal{core.Housing: decimal.NewFromInt(700), core.Food: decimal.NewFromInt(100)}},
		{Key: core.MustParsePeriodKey("2024-5-2"), Label: "May 2nd", Total: decimal.NewFromInt(200),
			ByCategory: map[core.Category]decimal.Decimal{core.Food: decimal.NewFromInt(200)}},
	}
	sum := core.Summarize(stats, core.Window{Mode: core.WindowAll}, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	out := renderSummary(sum)
	for _, want := range []string{"all periods", "Highest", "May 1st", "Lowest", "May 2nd", "Housing", "Food"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	empty := renderSummary(core.Summarize(nil, core.Window{Mode: core.WindowAll}, time.Now()))
	if !strings.Contains(empty, "No periods") {
		t.Errorf("empty summary = %q", empty)
	}
}

func TestResolveUser(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	if err := st.CreateUser(ctx, store.User{ID: "u-1", Email: "ada@example.com"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		ref     string
		want    string
		wantErr error
	}{
		{"u-1", "u-1", nil},
		{"ADA@example.com", "u-1", nil},
		{"bob@example.com", "", store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := resolveUser(ctx, st, tt.ref)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("resolveUser = %q, %v", got, err)
			}
		})
	}
	if _, err := resolveUser(ctx, st, " "); err == nil {
		t.Error("blank user accepted")
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), Version) {
		t.Errorf("version output = %q", out.String())
	}
}
