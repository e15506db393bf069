package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"halfmonth/internal/core"
)

// periodDoc is the persisted shape of one period inside a dump.
type periodDoc struct {
	BankBalance decimal.Decimal `json:"bankBalance"`
	Expenses    []core.Expense  `json:"expenses"`
}

// DecodeDump reads a user's periods from the JSON dump format
// {"2024-5-1": {"bankBalance": 0, "expenses": [...]}, ...}. The result is
// ordered chronologically.
//
// A dump is untrusted input. Periods with a malformed key or an out of range
// balance are dropped, as are expenses that fail validation or repeat an ID
// already seen in their period. Every dropped entry is logged and returned in
// skipped, as "2024-5-1" for a period or "2024-5-1#42" for an expense.
func DecodeDump(r io.Reader) (periods []core.Period, skipped []string, err error) {
	var raw map[string]periodDoc
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("decode dump: %w", err)
	}

	keys := make([]core.PeriodKey, 0, len(raw))
	byKey := make(map[core.PeriodKey]periodDoc, len(raw))
	for s, doc := range raw {
		k, err := core.ParsePeriodKey(s)
		if err != nil {
			slog.Warn("Skipping malformed period key in dump", "period_key", s)
			skipped = append(skipped, s)
			continue
		}
		if err := core.ValidateBalance(doc.BankBalance); err != nil {
			slog.Warn("Skipping period with invalid balance in dump", "period_key", s, "error", err)
			skipped = append(skipped, s)
			continue
		}
		keys = append(keys, k)
		byKey[k] = doc
	}
	core.SortKeys(keys, false)

	periods = make([]core.Period, 0, len(keys))
	for _, k := range keys {
		doc := byKey[k]
		p := core.NewPeriod(k)
		p.BankBalance = doc.BankBalance.Round(2)
		seen := make(map[int64]bool, len(doc.Expenses))
		for _, e := range doc.Expenses {
			ref := fmt.Sprintf("%s#%d", k, e.ID)
			clean, err := validExpense(e)
			if err == nil && seen[e.ID] {
				err = errDuplicateID
			}
			if err != nil {
				slog.Warn("Skipping invalid expense in dump", "expense", ref, "error", err)
				skipped = append(skipped, ref)
				continue
			}
			seen[e.ID] = true
			p.Expenses = append(p.Expenses, clean)
		}
		periods = append(periods, p)
	}
	return periods, skipped, nil
}

var errDuplicateID = errors.New("duplicate expense id")

// validExpense applies the same checks as form input to a decoded expense
// and returns it normalised.
func validExpense(e core.Expense) (core.Expense, error) {
	if e.ID <= 0 {
		return core.Expense{}, errors.New("missing expense id")
	}
	cat, err := core.ParseCategory(string(e.Category))
	if err != nil {
		return core.Expense{}, err
	}
	in := core.ExpenseInput{Description: e.Description, Amount: e.Amount.Round(2), Category: cat}
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}
	return in.Expense(e.ID), nil
}

// EncodeDump writes periods in the dump format.
func EncodeDump(w io.Writer, periods []core.Period) error {
	out := make(map[string]periodDoc, len(periods))
	for _, p := range periods {
		expenses := p.Expenses
		if expenses == nil {
			expenses = []core.Expense{}
		}
		out[p.Key.String()] = periodDoc{BankBalance: p.BankBalance, Expenses: expenses}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	return nil
}
