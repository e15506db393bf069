package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"halfmonth/internal/store/memory"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(allowed ...string) (*Service, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	return NewService(memory.New(), allowed, time.Hour, WithClock(c.now), WithBcryptCost(bcrypt.MinCost)), c
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	u, err := svc.Register(ctx, "  Alice@Example.com ", "secret")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if u.Email != "alice@example.com" || u.ID == "" {
		t.Fatalf("unexpected user %+v", u)
	}

	sess, got, err := svc.Login(ctx, "alice@example.com", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if got.ID != u.ID || sess.Token == "" || sess.UserID != u.ID {
		t.Fatalf("unexpected session %+v", sess)
	}

	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password = %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user = %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService("alice@example.com")

	cases := []struct {
		email, password string
		want            error
	}{
		{"not-an-email", "x", ErrInvalidEmail},
		{"alice@example.com", "", ErrBlankPassword},
		{"mallory@example.com", "x", ErrEmailNotAllowed},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.email, tc.password); !errors.Is(err, tc.want) {
			t.Fatalf("Register(%q) = %v, want %v", tc.email, err, tc.want)
		}
	}
}

func TestAuthenticateExpiry(t *testing.T) {
	ctx := context.Background()
	svc, c := newTestService()
	if _, err := svc.Register(ctx, "a@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	sess, _, err := svc.Login(ctx, "a@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Authenticate(ctx, sess.Token); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	c.t = c.t.Add(2 * time.Hour)
	if _, err := svc.Authenticate(ctx, sess.Token); !errors.Is(err, ErrExpiredSession) {
		t.Fatalf("expired session = %v", err)
	}
	if _, err := svc.Authenticate(ctx, sess.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expired session should be deleted, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	_, _ = svc.Register(ctx, "a@example.com", "pw")
	sess, _, _ := svc.Login(ctx, "a@example.com", "pw")
	if err := svc.Logout(ctx, sess.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Authenticate(ctx, sess.Token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("after logout = %v", err)
	}
}

func TestMiddlewareAndRequireAuth(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	_, _ = svc.Register(ctx, "a@example.com", "pw")
	sess, _, _ := svc.Login(ctx, "a@example.com", "pw")

	protected := Middleware(svc, false)(RequireAuth("/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFromContext(r.Context())
		w.Write([]byte(u.Email))
	})))

	t.Run("anonymous redirect", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
			t.Fatalf("got %d %s", rec.Code, rec.Header().Get("Location"))
		}
	})

	t.Run("htmx redirect", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/periods/2024-5-1/balance", nil)
		req.Header.Set("HX-Request", "true")
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized || rec.Header().Get("HX-Redirect") != "/login" {
			t.Fatalf("got %d %v", rec.Code, rec.Header())
		}
	})

	t.Run("bad cookie cleared", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: "bogus"})
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("got %d", rec.Code)
		}
		if c := rec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
			t.Fatalf("cookie not cleared: %v", c)
		}
	})

	t.Run("valid session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: sess.Token})
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != "a@example.com" {
			t.Fatalf("got %d %q", rec.Code, rec.Body.String())
		}
	})
}
