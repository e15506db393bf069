package core

import (
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// CategoryAmount is an amount aggregated for one category.
type CategoryAmount struct {
	Category Category        `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Total sums the amounts of expenses whose category is not excluded. An
// empty category counts as Other.
func Total(expenses []Expense, exclude ...Category) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range expenses {
		if excluded(e.Category.OrDefault(), exclude) {
			continue
		}
		sum = sum.Add(e.Amount)
	}
	return sum
}

// SpendingTotal is the total excluding Savings.
func SpendingTotal(expenses []Expense) decimal.Decimal {
	return Total(expenses, Savings)
}

// ByCategory sums amounts per category. Every category in the result has
// at least one expense.
func ByCategory(expenses []Expense) map[Category]decimal.Decimal {
	out := make(map[Category]decimal.Decimal)
	for _, e := range expenses {
		c := e.Category.OrDefault()
		out[c] = out[c].Add(e.Amount)
	}
	return out
}

// Breakdown returns per-category totals sorted by amount descending, ties
// broken by category display order.
func Breakdown(expenses []Expense, exclude ...Category) []CategoryAmount {
	return sortedAmounts(ByCategory(expenses), exclude)
}

func sortedAmounts(totals map[Category]decimal.Decimal, exclude []Category) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(totals))
	for c, amt := range totals {
		if excluded(c, exclude) {
			continue
		}
		out = append(out, CategoryAmount{Category: c, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].Amount.Cmp(out[j].Amount); cmp != 0 {
			return cmp > 0
		}
		return out[i].Category.Order() < out[j].Category.Order()
	})
	return out
}

func excluded(c Category, exclude []Category) bool {
	for _, x := range exclude {
		if c == x {
			return true
		}
	}
	return false
}

// FilterByCategory returns the expenses matching f in their original
// order. The input slice is never modified.
func FilterByCategory(expenses []Expense, f CategoryFilter) []Expense {
	out := make([]Expense, 0, len(expenses))
	for _, e := range expenses {
		if f.IsAll() || e.Category.OrDefault() == f.Category() {
			out = append(out, e)
		}
	}
	return out
}

// Remaining is the bank balance minus every expense, Savings included.
func Remaining(p Period) decimal.Decimal {
	return p.BankBalance.Sub(Total(p.Expenses))
}

type (
	SortField     string
	SortDirection string

	// SortState is the current ordering of the expense list.
	SortState struct {
		Field     SortField
		Direction SortDirection
	}
)

const (
	SortNone        SortField = ""
	SortDescription SortField = "description"
	SortAmount      SortField = "amount"

	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// ParseSortState reads the query form of a sort state. Unknown fields or
// directions fall back to insertion order.
func ParseSortState(field, direction string) SortState {
	f := SortField(field)
	if f != SortDescription && f != SortAmount {
		return SortState{}
	}
	d := SortDirection(direction)
	if d != Descending {
		d = Ascending
	}
	return SortState{Field: f, Direction: d}
}

// Toggle returns the state after the user selects field: a new field
// starts ascending, the same field cycles asc -> desc -> none.
func (s SortState) Toggle(field SortField) SortState {
	if field == SortNone {
		return SortState{}
	}
	if s.Field != field {
		return SortState{Field: field, Direction: Ascending}
	}
	if s.Direction == Ascending {
		return SortState{Field: field, Direction: Descending}
	}
	return SortState{}
}

// IsNone reports whether the list keeps insertion order.
func (s SortState) IsNone() bool {
	return s.Field == SortNone
}

// SortBy returns a sorted copy of expenses. Descriptions compare with an
// English collator, amounts numerically; the sort is stable so equal
// elements keep their insertion order.
func SortBy(expenses []Expense, s SortState) []Expense {
	out := make([]Expense, len(expenses))
	copy(out, expenses)
	if s.IsNone() {
		return out
	}

	var compare func(a, b Expense) int
	switch s.Field {
	case SortDescription:
		col := collate.New(language.English, collate.IgnoreCase)
		compare = func(a, b Expense) int { return col.CompareString(a.Description, b.Description) }
	case SortAmount:
		compare = func(a, b Expense) int { return a.Amount.Cmp(b.Amount) }
	default:
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := compare(out[i], out[j])
		if s.Direction == Descending {
			return c > 0
		}
		return c < 0
	})
	return out
}
