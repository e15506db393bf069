package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{".5", "0.5", true},
		{"1.005", "1.01", true}, // half-up rounding
		{"12.344", "12.34", true},
		{" 2.50 ", "2.5", true},
		{"0", "0", true},
		{"-1", "", false},
		{"+1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1,000.50", "", false},
		{".", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestValidateAmount(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"0.01", true},
		{"999999.99", true},
		{"0", false},
		{"0.009", false},
		{"1000000", false},
	}
	for _, tc := range cases {
		err := ValidateAmount(decimal.RequireFromString(tc.in))
		if tc.ok && err != nil {
			t.Fatalf("%s expected ok, got %v", tc.in, err)
		}
		if !tc.ok && !errors.Is(err, ErrAmountOutOfRange) {
			t.Fatalf("%s expected ErrAmountOutOfRange, got %v", tc.in, err)
		}
	}
}

func TestValidateBalance(t *testing.T) {
	if err := ValidateBalance(decimal.Zero); err != nil {
		t.Fatalf("zero balance should be valid: %v", err)
	}
	if err := ValidateBalance(decimal.RequireFromString("-0.01")); !errors.Is(err, ErrBalanceOutOfRange) {
		t.Fatalf("negative balance: got %v", err)
	}
	if err := ValidateBalance(decimal.RequireFromString("1000000")); !errors.Is(err, ErrBalanceOutOfRange) {
		t.Fatalf("too large balance: got %v", err)
	}
}

func TestFormatCurrency(t *testing.T) {
	cases := map[string]string{
		"0":           "$0.00",
		"5":           "$5.00",
		"12.5":        "$12.50",
		"999.99":      "$999.99",
		"1000":        "$1,000.00",
		"1234.56":     "$1,234.56",
		"999999.99":   "$999,999.99",
		"1234567.891": "$1,234,567.89",
		"-12":         "-$12.00",
		"999.999":     "$1,000.00",
		"-1500.5":     "-$1,500.50",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			if got := FormatCurrency(decimal.RequireFromString(in)); got != want {
				t.Fatalf("FormatCurrency(%s) = %q, want %q", in, got, want)
			}
		})
	}
}
