package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PeriodStat is the per-period input to the analytics reducer. Total
// excludes Savings; ByCategory keeps every category, Savings included.
type PeriodStat struct {
	Key        PeriodKey                    `json:"key"`
	Label      string                       `json:"label"`
	Total      decimal.Decimal              `json:"total"`
	ByCategory map[Category]decimal.Decimal `json:"byCategory"`
}

// NewPeriodStat reduces one period.
func NewPeriodStat(p Period) PeriodStat {
	return PeriodStat{
		Key:        p.Key,
		Label:      DisplayLabel(p.Key),
		Total:      SpendingTotal(p.Expenses),
		ByCategory: ByCategory(p.Expenses),
	}
}

// StatsFor reduces every period and orders the result chronologically.
// Labels carry a year suffix when the periods span several years.
func StatsFor(periods []Period) []PeriodStat {
	stats := make([]PeriodStat, 0, len(periods))
	keys := make([]PeriodKey, 0, len(periods))
	for _, p := range periods {
		stats = append(stats, NewPeriodStat(p))
		keys = append(keys, p.Key)
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Key.Before(stats[j].Key) })
	label := Labeler(keys)
	for i := range stats {
		stats[i].Label = label(stats[i].Key)
	}
	return stats
}

type WindowMode string

const (
	WindowAll        WindowMode = "all"
	WindowYear       WindowMode = "year"
	WindowLastMonths WindowMode = "last"

	DefaultWindowMonths = 6
)

var ErrInvalidWindow = errors.New("invalid analytics window")

// Window restricts the periods considered by the analytics view.
type Window struct {
	Mode   WindowMode `json:"mode"`
	Year   int        `json:"year,omitempty"`
	Months int        `json:"months,omitempty"`
}

// ParseWindow validates query-form window parameters. An empty mode means
// every period; a last-months window without a count uses
// DefaultWindowMonths.
func ParseWindow(mode string, year, months int) (Window, error) {
	switch WindowMode(strings.ToLower(strings.TrimSpace(mode))) {
	case "", WindowAll:
		return Window{Mode: WindowAll}, nil
	case WindowYear:
		if year < 1 {
			return Window{}, fmt.Errorf("%w: year %d", ErrInvalidWindow, year)
		}
		return Window{Mode: WindowYear, Year: year}, nil
	case WindowLastMonths:
		if months == 0 {
			months = DefaultWindowMonths
		}
		if months < 0 {
			return Window{}, fmt.Errorf("%w: months %d", ErrInvalidWindow, months)
		}
		return Window{Mode: WindowLastMonths, Months: months}, nil
	default:
		return Window{}, fmt.Errorf("%w: mode %q", ErrInvalidWindow, mode)
	}
}

// Contains reports whether a period falls inside the window relative to
// now. For last-N-months the period start must be on or after
// now.AddDate(0, -N, 0).
func (w Window) Contains(k PeriodKey, now time.Time) bool {
	switch w.Mode {
	case WindowYear:
		return k.Year == w.Year
	case WindowLastMonths:
		cutoff := now.AddDate(0, -w.Months, 0)
		return !k.Start(now.Location()).Before(cutoff)
	default:
		return true
	}
}

func (w Window) String() string {
	switch w.Mode {
	case WindowYear:
		return fmt.Sprintf("year %d", w.Year)
	case WindowLastMonths:
		return fmt.Sprintf("last %d months", w.Months)
	default:
		return "all periods"
	}
}

// FilterWindow keeps the stats inside w, preserving order.
func FilterWindow(stats []PeriodStat, w Window, now time.Time) []PeriodStat {
	out := make([]PeriodStat, 0, len(stats))
	for _, s := range stats {
		if w.Contains(s.Key, now) {
			out = append(out, s)
		}
	}
	return out
}

// SplitHalves partitions stats by half, preserving order.
func SplitHalves(stats []PeriodStat) (first, second []PeriodStat) {
	for _, s := range stats {
		if s.Key.Half == FirstHalf {
			first = append(first, s)
		} else {
			second = append(second, s)
		}
	}
	return first, second
}

// HalfAverages is the mean non-Savings total of first-half and second-half
// periods. An empty subset averages to zero.
func HalfAverages(stats []PeriodStat) (first, second decimal.Decimal) {
	f, s := SplitHalves(stats)
	return averageTotal(f), averageTotal(s)
}

func averageTotal(stats []PeriodStat) decimal.Decimal {
	if len(stats) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, s := range stats {
		sum = sum.Add(s.Total)
	}
	return sum.Div(decimal.NewFromInt(int64(len(stats)))).Round(centPlaces)
}

// Extrema returns the periods with the highest and lowest non-Savings
// total. ok is false when stats is empty. On ties the earliest element in
// stats wins.
func Extrema(stats []PeriodStat) (highest, lowest PeriodStat, ok bool) {
	if len(stats) == 0 {
		return PeriodStat{}, PeriodStat{}, false
	}
	highest, lowest = stats[0], stats[0]
	for _, s := range stats[1:] {
		if s.Total.GreaterThan(highest.Total) {
			highest = s
		}
		if s.Total.LessThan(lowest.Total) {
			lowest = s
		}
	}
	return highest, lowest, true
}

// CategoryTotals sums ByCategory across stats, Savings included.
func CategoryTotals(stats []PeriodStat) map[Category]decimal.Decimal {
	out := make(map[Category]decimal.Decimal)
	for _, s := range stats {
		for c, amt := range s.ByCategory {
			out[c] = out[c].Add(amt)
		}
	}
	return out
}

// SpendingCategoryTotals is CategoryTotals without Savings, sorted by
// amount descending.
func SpendingCategoryTotals(stats []PeriodStat) []CategoryAmount {
	return sortedAmounts(CategoryTotals(stats), []Category{Savings})
}

// Summary is the analytics view of a window of periods.
type Summary struct {
	Window             Window                       `json:"window"`
	Periods            []PeriodStat                 `json:"periods"`
	Count              int                          `json:"count"`
	TotalSpending      decimal.Decimal              `json:"totalSpending"`
	FirstHalfAverage   decimal.Decimal              `json:"firstHalfAverage"`
	SecondHalfAverage  decimal.Decimal              `json:"secondHalfAverage"`
	HasExtrema         bool                         `json:"hasExtrema"`
	Highest            PeriodStat                   `json:"highest"`
	Lowest             PeriodStat                   `json:"lowest"`
	CategoryTotals     map[Category]decimal.Decimal `json:"categoryTotals"`
	SpendingByCategory []CategoryAmount             `json:"spendingByCategory"`
	FirstHalves        []PeriodStat                 `json:"firstHalves"`
	SecondHalves       []PeriodStat                 `json:"secondHalves"`
}

// Summarize applies w to chronologically ordered stats and reduces the
// result.
func Summarize(stats []PeriodStat, w Window, now time.Time) Summary {
	in := FilterWindow(stats, w, now)
	sum := Summary{
		Window:             w,
		Periods:            in,
		Count:              len(in),
		TotalSpending:      decimal.Zero,
		CategoryTotals:     CategoryTotals(in),
		SpendingByCategory: SpendingCategoryTotals(in),
	}
	for _, s := range in {
		sum.TotalSpending = sum.TotalSpending.Add(s.Total)
	}
	sum.FirstHalves, sum.SecondHalves = SplitHalves(in)
	sum.FirstHalfAverage = averageTotal(sum.FirstHalves)
	sum.SecondHalfAverage = averageTotal(sum.SecondHalves)
	sum.Highest, sum.Lowest, sum.HasExtrema = Extrema(in)
	return sum
}
