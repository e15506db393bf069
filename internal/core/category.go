package core

import (
	"errors"
	"fmt"
	"strings"
)

// Category is a closed set of expense tags.
type Category string

const (
	Housing       Category = "Housing"
	Food          Category = "Food"
	Transport     Category = "Transport"
	Utilities     Category = "Utilities"
	Entertainment Category = "Entertainment"
	Health        Category = "Health"
	Insurance     Category = "Insurance"
	Savings       Category = "Savings"
	FamilySupport Category = "Family Support"
	DebtPayments  Category = "Debt/Payments"
	Other         Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	Housing, Food, Transport, Utilities, Entertainment, Health,
	Insurance, Savings, FamilySupport, DebtPayments, Other,
}

var ErrUnknownCategory = errors.New("unknown category")

var categoryIndex = func() map[Category]int {
	m := make(map[Category]int, len(Categories))
	for i, c := range Categories {
		m[c] = i
	}
	return m
}()

// ParseCategory validates a category name. An empty name is Other; any
// name outside the set is rejected.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Other, nil
	}
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Valid reports whether c belongs to the closed set.
func (c Category) Valid() bool {
	_, ok := categoryIndex[c]
	return ok
}

// OrDefault returns Other for the empty category.
func (c Category) OrDefault() Category {
	if c == "" {
		return Other
	}
	return c
}

// Order is the display position of c; unknown categories sort last.
func (c Category) Order() int {
	if i, ok := categoryIndex[c]; ok {
		return i
	}
	return len(Categories)
}

func (c Category) String() string {
	return string(c)
}

// CategoryFilter selects expenses by category. AllCategories passes
// everything through.
type CategoryFilter struct {
	all      bool
	category Category
}

// AllCategories is the pass-through filter.
var AllCategories = CategoryFilter{all: true}

// OnlyCategory filters to a single category.
func OnlyCategory(c Category) CategoryFilter {
	return CategoryFilter{category: c}
}

// ParseCategoryFilter accepts "All" (or empty) and any valid category.
func ParseCategoryFilter(s string) (CategoryFilter, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return AllCategories, nil
	}
	c, err := ParseCategory(s)
	if err != nil {
		return CategoryFilter{}, err
	}
	return OnlyCategory(c), nil
}

// IsAll reports whether the filter is the pass-through.
func (f CategoryFilter) IsAll() bool {
	return f.all || f.category == ""
}

// Category returns the selected category, or "" for AllCategories.
func (f CategoryFilter) Category() Category {
	if f.IsAll() {
		return ""
	}
	return f.category
}

func (f CategoryFilter) String() string {
	if f.IsAll() {
		return "All"
	}
	return string(f.category)
}
