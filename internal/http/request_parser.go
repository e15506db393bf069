// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating request data:
// URL parameters, dashboard and analytics query strings, and bodies sent
// either as HTMX forms or as JSON.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"halfmonth/internal/core"
	"halfmonth/internal/services"
)

const maxBodyBytes = 1 << 20

var errInvalidExpenseID = errors.New("invalid expense id")

// PeriodKeyParam reads and validates the {key} URL parameter.
func PeriodKeyParam(r *http.Request) (core.PeriodKey, error) {
	return core.ParsePeriodKey(chi.URLParam(r, "key"))
}

// ExpenseIDParam reads the {id} URL parameter.
func ExpenseIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidExpenseID
	}
	return id, nil
}

// ParseDashboardView reads category, sort and dir. An unknown category is
// an error; unknown sort values fall back to insertion order.
func ParseDashboardView(query url.Values) (services.DashboardView, error) {
	filter, err := core.ParseCategoryFilter(query.Get("category"))
	if err != nil {
		return services.DashboardView{}, err
	}
	return services.DashboardView{
		Filter: filter,
		Sort:   core.ParseSortState(query.Get("sort"), query.Get("dir")),
	}, nil
}

// ParseWindowParams reads window, year and months. A year-window without a
// year uses fallbackYear.
func ParseWindowParams(query url.Values, fallbackYear int) (core.Window, error) {
	year := fallbackYear
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.Window{}, fmt.Errorf("%w: year %q", core.ErrInvalidWindow, v)
		}
		year = y
	}
	months := 0
	if v := strings.TrimSpace(query.Get("months")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Window{}, fmt.Errorf("%w: months %q", core.ErrInvalidWindow, v)
		}
		months = m
	}
	return core.ParseWindow(query.Get("window"), year, months)
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most 1 MiB of the body once.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a trimmed, sanitised value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// ExpenseInput builds a validated expense from desc, amount and category.
func (p *RequestBodyParser) ExpenseInput() (core.ExpenseInput, error) {
	return core.ParseExpenseInput(p.Get("desc"), p.Get("amount"), p.Get("category"))
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims and drops control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
