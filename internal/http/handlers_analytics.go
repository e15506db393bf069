package http

import (
	"net/http"

	"halfmonth/internal/auth"
	"halfmonth/internal/core"
)

type analyticsPage struct {
	Email   string
	S       core.Summary
	Bars    []bar
	Years   []int
	Current core.PeriodKey
}

func (s *Server) summary(r *http.Request) (core.Summary, error) {
	w, err := ParseWindowParams(r.URL.Query(), s.periods.Now().Year())
	if err != nil {
		return core.Summary{}, err
	}
	return s.periods.Analytics(r.Context(), userID(r), w)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summary(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	keys, err := s.periods.ListKeys(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	u, _ := auth.UserFromContext(r.Context())
	s.render(w, r, http.StatusOK, "analytics.html", analyticsPage{
		Email:   u.Email,
		S:       sum,
		Bars:    breakdownBars(sum.SpendingByCategory),
		Years:   distinctYears(keys),
		Current: core.PeriodIDFor(s.periods.Now()),
	})
}

// distinctYears lists the years of keys in the order given.
func distinctYears(keys []core.PeriodKey) []int {
	var years []int
	seen := map[int]bool{}
	for _, k := range keys {
		if !seen[k.Year] {
			seen[k.Year] = true
			years = append(years, k.Year)
		}
	}
	return years
}
