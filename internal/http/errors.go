package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"halfmonth/internal/auth"
	"halfmonth/internal/core"
	"halfmonth/internal/services"
	"halfmonth/internal/store"
)

var errBadQuery = errors.New("invalid query")

func badQuery(err error) error {
	return fmt.Errorf("%w: %v", errBadQuery, err)
}

// statusFor maps domain errors to an HTTP status and a message safe to
// show the user.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidPeriodKey):
		return http.StatusBadRequest, "Invalid period"
	case errors.Is(err, errInvalidExpenseID):
		return http.StatusBadRequest, "Invalid expense"
	case errors.Is(err, errBadQuery), errors.Is(err, core.ErrInvalidWindow):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, auth.ErrEmailNotAllowed):
		return http.StatusForbidden, "This email is not allowed"
	case errors.Is(err, services.ErrExpenseNotFound):
		return http.StatusNotFound, "Expense not found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Period not found"
	case errors.Is(err, services.ErrPeriodExists):
		return http.StatusConflict, "Next period already exists"
	case errors.Is(err, store.ErrEmailExists):
		return http.StatusConflict, "An account with this email already exists"
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "Invalid amount"
	case errors.Is(err, core.ErrAmountOutOfRange):
		return http.StatusUnprocessableEntity, "Amount must be between 0.01 and 999,999.99"
	case errors.Is(err, core.ErrBalanceOutOfRange):
		return http.StatusUnprocessableEntity, "Balance must be between 0 and 999,999.99"
	case errors.Is(err, core.ErrEmptyDescription):
		return http.StatusUnprocessableEntity, "Description is required"
	case errors.Is(err, core.ErrDescriptionTooLong):
		return http.StatusUnprocessableEntity, "Description is too long (max 100 characters)"
	case errors.Is(err, core.ErrUnknownCategory):
		return http.StatusUnprocessableEntity, "Unknown category"
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrBlankPassword):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "Something went wrong, please retry"
	}
}

// fail writes err as JSON for API routes and as an HTML fragment with an
// error notification otherwise. Server errors are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		JSONError(status, msg).Write(w)
		return
	}
	ErrorResponse(status, msg).TriggerErrorNotification(msg).Write(w)
}
