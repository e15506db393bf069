package http

import (
	"net/http"

	"halfmonth/internal/core"
	"halfmonth/internal/log"
)

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	key, err := PeriodKeyParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	in, err := parseExpenseBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	e, err := s.periods.AddExpense(r.Context(), userID(r), key, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Expense added",
		log.NewFields().
			WithPeriod(userID(r), key.String()).
			WithExpense(e.ID, e.Amount.StringFixed(2), string(e.Category)).
			ToSlice()...)
	s.respondChanged(w, r, key, "Expense added")
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	key, id, ok := s.expenseParams(w, r)
	if !ok {
		return
	}
	in, err := parseExpenseBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.periods.UpdateExpense(r.Context(), userID(r), key, id, in); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondChanged(w, r, key, "Expense updated")
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	key, id, ok := s.expenseParams(w, r)
	if !ok {
		return
	}
	if err := s.periods.DeleteExpense(r.Context(), userID(r), key, id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondChanged(w, r, key, "Expense deleted")
}

func (s *Server) expenseParams(w http.ResponseWriter, r *http.Request) (core.PeriodKey, int64, bool) {
	key, err := PeriodKeyParam(r)
	if err != nil {
		s.fail(w, r, err)
		return core.PeriodKey{}, 0, false
	}
	id, err := ExpenseIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return core.PeriodKey{}, 0, false
	}
	return key, id, true
}

func parseExpenseBody(r *http.Request) (core.ExpenseInput, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return core.ExpenseInput{}, badQuery(err)
	}
	return p.ExpenseInput()
}
