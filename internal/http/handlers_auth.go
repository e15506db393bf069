package http

import (
	"net/http"

	"halfmonth/internal/auth"
)

type loginPage struct {
	Email string
	Error string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", loginPage{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	email := p.Get("email")

	sess, _, err := s.auth.Login(r.Context(), email, p.Get("password"))
	if err != nil {
		status, msg := statusFor(err)
		s.logger.WarnContext(r.Context(), "Login rejected", "status", status)
		s.render(w, r, status, "login.html", loginPage{Email: email, Error: msg})
		return
	}
	s.startSession(r, sess.UserID)
	auth.SetCookie(w, sess, s.secure)
	NewHTMXResponse().Redirect(r, "/").Write(w)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	email, password := p.Get("email"), p.Get("password")

	if _, err := s.auth.Register(r.Context(), email, password); err != nil {
		status, msg := statusFor(err)
		s.render(w, r, status, "login.html", loginPage{Email: email, Error: msg})
		return
	}
	sess, _, err := s.auth.Login(r.Context(), email, password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.startSession(r, sess.UserID)
	auth.SetCookie(w, sess, s.secure)
	NewHTMXResponse().Redirect(r, "/").Write(w)
}

// startSession creates the current year's template periods, which seed
// every period created with "next".
func (s *Server) startSession(r *http.Request, userID string) {
	year := s.periods.Now().Year()
	if err := s.periods.EnsureTemplates(r.Context(), userID, year); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to ensure template periods",
			"user_id", userID, "year", year, "error", err)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(auth.CookieName); err == nil {
		if err := s.auth.Logout(r.Context(), c.Value); err != nil {
			s.logger.ErrorContext(r.Context(), "Logout failed", "error", err)
		}
	}
	auth.ClearCookie(w, s.secure)
	NewHTMXResponse().Redirect(r, loginPath).Write(w)
}
