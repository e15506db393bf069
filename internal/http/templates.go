package http

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/shopspring/decimal"

	"halfmonth/internal/core"
	appweb "halfmonth/web"
)

var templateFuncs = template.FuncMap{
	"currency":  core.FormatCurrency,
	"label":     core.DisplayLabel,
	"labelYear": core.DisplayLabelWithYear,
	"negative":  func(d decimal.Decimal) bool { return d.IsNegative() },
	"positive":  func(d decimal.Decimal) bool { return d.IsPositive() },
	"plain":     func(d decimal.Decimal) string { return d.StringFixed(2) },
	"deref": func(d *decimal.Decimal) decimal.Decimal {
		if d == nil {
			return decimal.Zero
		}
		return *d
	},
	"rowData": func(key core.PeriodKey, query string, e core.Expense) expenseRow {
		return expenseRow{Key: key, Query: query, E: e, Categories: core.Categories}
	},
}

// expenseRow is the data of one editable row in the expense table.
type expenseRow struct {
	Key        core.PeriodKey
	Query      string
	E          core.Expense
	Categories []core.Category
}

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

// render executes name into a buffer first so a template error never
// leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	html, err := s.executeToString(name, data)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed", "template", name, "error", err)
		InternalServerError("Rendering failed").Write(w)
		return
	}
	NewHTMXResponse().Status(status).BodyHTML(html).Write(w)
}

func (s *Server) executeToString(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// bar is one row of the category breakdown.
type bar struct {
	Category core.Category
	Amount   decimal.Decimal
	Width    int
}

// breakdownBars scales amounts to a 0..100 width relative to the largest,
// keeping non-zero rows visible.
func breakdownBars(rows []core.CategoryAmount) []bar {
	maxAmount := decimal.Zero
	for _, r := range rows {
		if r.Amount.GreaterThan(maxAmount) {
			maxAmount = r.Amount
		}
	}
	out := make([]bar, 0, len(rows))
	for _, r := range rows {
		width := 0
		if maxAmount.IsPositive() && r.Amount.IsPositive() {
			width = int(r.Amount.Mul(decimal.NewFromInt(100)).Div(maxAmount).Round(0).IntPart())
			if width < 2 {
				width = 2
			}
		}
		out = append(out, bar{Category: r.Category, Amount: r.Amount, Width: width})
	}
	return out
}
