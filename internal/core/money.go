// Package core provides money parsing and formatting utilities.
//
// Amounts are decimal.Decimal values held at cent precision. Parsing
// accepts user input from forms and the CLI; formatting renders en-US
// dollar strings for templates and terminal output.
package core

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const centPlaces = 2

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrAmountOutOfRange  = errors.New("amount out of range")
	ErrBalanceOutOfRange = errors.New("balance out of range")

	MinAmount  = decimal.RequireFromString("0.01")
	MaxAmount  = decimal.RequireFromString("999999.99")
	MaxBalance = decimal.RequireFromString("999999.99")
)

// ParseAmount converts a non-negative decimal string to a cent-precision
// amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// rounds half-up on the third decimal place. Signs, thousands separators
// and anything that is not a plain number are rejected. Range checks are
// left to ValidateAmount and ValidateBalance.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,34")  -> 12.34
//	ParseAmount("12.345") -> 12.35
//	ParseAmount("12.344") -> 12.34
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	if parts[0] == "" && (len(parts) == 1 || parts[1] == "") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) || r > unicode.MaxASCII {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" {
		parts[0] = "0"
	}
	if len(parts) == 2 && parts[1] == "" {
		parts = parts[:1]
	}
	d, err := decimal.NewFromString(strings.Join(parts, "."))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(centPlaces), nil
}

// ValidateAmount checks an expense amount against 0.01..999999.99.
func ValidateAmount(d decimal.Decimal) error {
	if d.LessThan(MinAmount) || d.GreaterThan(MaxAmount) {
		return ErrAmountOutOfRange
	}
	return nil
}

// ValidateBalance checks a bank balance against 0..999999.99.
func ValidateBalance(d decimal.Decimal) error {
	if d.IsNegative() || d.GreaterThan(MaxBalance) {
		return ErrBalanceOutOfRange
	}
	return nil
}

// FormatCurrency renders d as US dollars with thousands separators and two
// decimals, e.g. "$1,234.56" or "-$12.00".
func FormatCurrency(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	d = d.Round(centPlaces)
	_, frac, _ := strings.Cut(d.StringFixed(centPlaces), ".")
	whole := message.NewPrinter(language.English).Sprint(number.Decimal(d.Truncate(0).IntPart()))
	return sign + "$" + whole + "." + frac
}
