package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"halfmonth/internal/core"
)

type apiPeriodKey struct {
	Key   core.PeriodKey `json:"key"`
	Label string         `json:"label"`
}

type apiPeriod struct {
	Key           core.PeriodKey        `json:"key"`
	Label         string                `json:"label"`
	BankBalance   decimal.Decimal       `json:"bankBalance"`
	Expenses      []core.Expense        `json:"expenses"`
	Total         decimal.Decimal       `json:"total"`
	SpendingTotal decimal.Decimal       `json:"spendingTotal"`
	Remaining     decimal.Decimal       `json:"remaining"`
	Breakdown     []core.CategoryAmount `json:"breakdown"`
	PreviousTotal *decimal.Decimal      `json:"previousTotal"`
	Difference    *decimal.Decimal      `json:"difference"`
}

func (s *Server) handleAPIPeriods(w http.ResponseWriter, r *http.Request) {
	keys, err := s.periods.ListKeys(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	labeler := core.Labeler(keys)
	out := make([]apiPeriodKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, apiPeriodKey{Key: k, Label: labeler(k)})
	}
	NewHTMXResponse().BodyJSON(out).Write(w)
}

// handleAPIPeriod returns the dashboard of one period; category, sort and
// dir apply to the expense list as on the HTML page.
func (s *Server) handleAPIPeriod(w http.ResponseWriter, r *http.Request) {
	key, err := PeriodKeyParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := ParseDashboardView(r.URL.Query())
	if err != nil {
		s.fail(w, r, badQuery(err))
		return
	}
	d, err := s.periods.Dashboard(r.Context(), userID(r), key, view)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewHTMXResponse().BodyJSON(apiPeriod{
		Key:           d.Period.Key,
		Label:         d.Label,
		BankBalance:   d.Period.BankBalance,
		Expenses:      d.Expenses,
		Total:         d.Total,
		SpendingTotal: d.SpendingTotal,
		Remaining:     d.Remaining,
		Breakdown:     d.Breakdown,
		PreviousTotal: d.PreviousTotal,
		Difference:    d.Difference,
	}).Write(w)
}

func (s *Server) handleAPIAnalytics(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewHTMXResponse().BodyJSON(sum).Write(w)
}
