package http

import (
	"net/http"
	"net/url"

	"halfmonth/internal/auth"
	"halfmonth/internal/core"
	"halfmonth/internal/services"
)

type periodTab struct {
	Key    core.PeriodKey
	Label  string
	Active bool
}

type sortLink struct {
	Field core.SortField
	Dir   core.SortDirection
	Arrow string
}

type dashboardPage struct {
	Email       string
	D           services.Dashboard
	Tabs        []periodTab
	Categories  []core.Category
	Bars        []bar
	SortDesc    sortLink
	SortAmount  sortLink
	Query       string
	IsTemplate  bool
	HasExpenses bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	key := core.PeriodIDFor(s.periods.Now())
	http.Redirect(w, r, "/periods/"+key.String(), http.StatusSeeOther)
}

func (s *Server) periodTabs(r *http.Request, active core.PeriodKey) ([]periodTab, error) {
	keys, err := s.periods.ListKeys(r.Context(), userID(r))
	if err != nil {
		return nil, err
	}
	labeler := core.Labeler(keys)
	tabs := make([]periodTab, 0, len(keys))
	for _, k := range keys {
		tabs = append(tabs, periodTab{Key: k, Label: labeler(k), Active: k == active})
	}
	return tabs, nil
}

// handlePeriodList renders the period selector; ?current marks the active
// tab.
func (s *Server) handlePeriodList(w http.ResponseWriter, r *http.Request) {
	var active core.PeriodKey
	if v := r.URL.Query().Get("current"); v != "" {
		k, err := core.ParsePeriodKey(v)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		active = k
	}
	tabs, err := s.periodTabs(r, active)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "period-list", tabs)
}

func (s *Server) dashboardPage(r *http.Request, key core.PeriodKey, view services.DashboardView) (dashboardPage, error) {
	d, err := s.periods.Dashboard(r.Context(), userID(r), key, view)
	if err != nil {
		return dashboardPage{}, err
	}
	tabs, err := s.periodTabs(r, key)
	if err != nil {
		return dashboardPage{}, err
	}
	u, _ := auth.UserFromContext(r.Context())
	return dashboardPage{
		Email:       u.Email,
		D:           d,
		Tabs:        tabs,
		Categories:  core.Categories,
		Bars:        breakdownBars(d.Breakdown),
		SortDesc:    nextSort(view, core.SortDescription),
		SortAmount:  nextSort(view, core.SortAmount),
		Query:       viewQuery(view),
		IsTemplate:  key.IsTemplate(),
		HasExpenses: len(d.Period.Expenses) > 0,
	}, nil
}

// nextSort is the link target of a column header: clicking cycles
// ascending, descending, unsorted.
func nextSort(view services.DashboardView, field core.SortField) sortLink {
	next := view.Sort.Toggle(field)
	arrow := ""
	if view.Sort.Field == field {
		arrow = "▲"
		if view.Sort.Direction == core.Descending {
			arrow = "▼"
		}
	}
	return sortLink{Field: next.Field, Dir: next.Direction, Arrow: arrow}
}

func viewQuery(view services.DashboardView) string {
	q := url.Values{}
	if !view.Filter.IsAll() {
		q.Set("category", view.Filter.String())
	}
	if !view.Sort.IsNone() {
		q.Set("sort", string(view.Sort.Field))
		q.Set("dir", string(view.Sort.Direction))
	}
	return q.Encode()
}

// handleDashboard serves the full page, or only the dashboard body when
// htmx targets it.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
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
	page, err := s.dashboardPage(r, key, view)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	name := "dashboard.html"
	if isHTMX(r) && r.Header.Get("HX-Target") == "dashboard" {
		name = "dashboard-body"
	}
	s.render(w, r, http.StatusOK, name, page)
}

// respondChanged answers a successful mutation on key: htmx gets the
// refreshed dashboard body plus triggers, plain forms a redirect.
func (s *Server) respondChanged(w http.ResponseWriter, r *http.Request, key core.PeriodKey, notice string) {
	if !isHTMX(r) {
		http.Redirect(w, r, "/periods/"+key.String(), http.StatusSeeOther)
		return
	}
	view, err := ParseDashboardView(r.URL.Query())
	if err != nil {
		view = services.DashboardView{Filter: core.AllCategories}
	}
	page, err := s.dashboardPage(r, key, view)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	html, err := s.executeToString("dashboard-body", page)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed", "template", "dashboard-body", "error", err)
		InternalServerError("Rendering failed").Write(w)
		return
	}
	NewHTMXResponse().
		TriggerPeriodChanged(key).
		TriggerFormReset().
		TriggerSuccessNotification(notice).
		BodyHTML(html).
		Write(w)
}

func (s *Server) handleCreateNext(w http.ResponseWriter, r *http.Request) {
	key, err := PeriodKeyParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	next, err := s.periods.CreateNext(r.Context(), userID(r), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewHTMXResponse().
		TriggerPeriodChanged(next.Key).
		Redirect(r, "/periods/"+next.Key.String()).
		Write(w)
}

func (s *Server) handleDeletePeriod(w http.ResponseWriter, r *http.Request) {
	key, err := PeriodKeyParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	next, err := s.periods.DeletePeriod(r.Context(), userID(r), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewHTMXResponse().
		TriggerPeriodDeleted(key, next).
		Redirect(r, "/periods/"+next.String()).
		Write(w)
}

func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	key, err := PeriodKeyParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	balance, err := core.ParseAmount(p.Get("balance"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.periods.SetBalance(r.Context(), userID(r), key, balance); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondChanged(w, r, key, "Bank balance saved")
}
