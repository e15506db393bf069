package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxDescriptionLen is the longest description accepted, in characters.
const MaxDescriptionLen = 100

type (
	// Expense is a single line in a period. ID is a millisecond timestamp
	// assigned at creation and unique within its period.
	Expense struct {
		ID          int64           `json:"id"`
		Description string          `json:"desc"`
		Amount      decimal.Decimal `json:"amount"`
		Category    Category        `json:"category"`
	}

	// Period is the document stored per user and half-month key.
	Period struct {
		Key         PeriodKey       `json:"key"`
		BankBalance decimal.Decimal `json:"bankBalance"`
		Expenses    []Expense       `json:"expenses"`
	}

	// ExpenseInput is a validated request to create or edit an expense.
	ExpenseInput struct {
		Description string
		Amount      decimal.Decimal
		Category    Category
	}
)

var (
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 100 characters)")
)

// NewPeriod returns an empty period with a zero balance.
func NewPeriod(key PeriodKey) Period {
	return Period{Key: key, BankBalance: decimal.Zero, Expenses: []Expense{}}
}

// Clone returns a deep copy so callers can edit without touching shared
// (cached) documents.
func (p Period) Clone() Period {
	out := p
	out.Expenses = make([]Expense, len(p.Expenses))
	copy(out.Expenses, p.Expenses)
	return out
}

// IndexOf returns the position of the expense with the given ID, or -1.
func (p Period) IndexOf(id int64) int {
	for i, e := range p.Expenses {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// NextExpenseID returns a millisecond timestamp ID that is strictly greater
// than every ID already in the period.
func (p Period) NextExpenseID(now time.Time) int64 {
	id := now.UnixMilli()
	for _, e := range p.Expenses {
		if e.ID >= id {
			id = e.ID + 1
		}
	}
	return id
}

// ParseExpenseInput builds and validates an input from raw form values.
func ParseExpenseInput(description, amount, category string) (ExpenseInput, error) {
	amt, err := ParseAmount(amount)
	if err != nil {
		return ExpenseInput{}, err
	}
	cat, err := ParseCategory(category)
	if err != nil {
		return ExpenseInput{}, err
	}
	in := ExpenseInput{Description: description, Amount: amt, Category: cat}
	if err := in.Validate(); err != nil {
		return ExpenseInput{}, err
	}
	in.Description = strings.TrimSpace(in.Description)
	return in, nil
}

func (in ExpenseInput) Validate() error {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(desc) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if err := ValidateAmount(in.Amount); err != nil {
		return err
	}
	if in.Category != "" && !in.Category.Valid() {
		return ErrUnknownCategory
	}
	return nil
}

// Expense materialises the input with the given ID.
func (in ExpenseInput) Expense(id int64) Expense {
	return Expense{
		ID:          id,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount.Round(centPlaces),
		Category:    in.Category.OrDefault(),
	}
}
