package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"halfmonth/internal/store"
)

type contextKey struct{}

// WithUser returns ctx carrying the authenticated user.
func WithUser(ctx context.Context, u store.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFromContext extracts the authenticated user.
func UserFromContext(ctx context.Context) (store.User, bool) {
	u, ok := ctx.Value(contextKey{}).(store.User)
	return u, ok
}

// Middleware resolves the session cookie. Requests without a valid
// session continue anonymously and have their cookie cleared.
func Middleware(svc *Service, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(CookieName)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			u, err := svc.Authenticate(r.Context(), cookie.Value)
			if err != nil {
				if !errors.Is(err, ErrInvalidSession) && !errors.Is(err, ErrExpiredSession) && !errors.Is(err, ErrEmailNotAllowed) {
					slog.ErrorContext(r.Context(), "Session lookup failed", "error", err)
				}
				ClearCookie(w, secure)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireAuth redirects anonymous requests to the login page. HTMX
// requests get an HX-Redirect header instead of a 303.
func RequireAuth(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("HX-Request") == "true" {
				w.Header().Set("HX-Redirect", loginPath)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
		})
	}
}

// SetCookie writes the session cookie.
func SetCookie(w http.ResponseWriter, sess store.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
