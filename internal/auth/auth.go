// Package auth handles registration, password login and cookie sessions.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"halfmonth/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotAllowed    = errors.New("email is not authorized")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrBlankPassword      = errors.New("password can't be blank")
	ErrInvalidSession     = errors.New("invalid session")
	ErrExpiredSession     = errors.New("session expired")
)

const (
	CookieName        = "session_token"
	DefaultSessionTTL = 30 * 24 * time.Hour
)

type Store interface {
	store.UserStore
	store.SessionStore
}

// Service authenticates users against the allow-list and the user store.
type Service struct {
	store   Store
	allowed map[string]struct{}
	ttl     time.Duration
	now     func() time.Time
	cost    int
}

type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost sets the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService builds the auth service. An empty allow-list admits every
// email address.
func NewService(st Store, allowedEmails []string, ttl time.Duration, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &Service{
		store:   st,
		allowed: make(map[string]struct{}, len(allowedEmails)),
		ttl:     ttl,
		now:     time.Now,
		cost:    bcrypt.DefaultCost,
	}
	for _, e := range allowedEmails {
		s.allowed[normalizeEmail(e)] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Allowed reports whether email may sign in.
func (s *Service) Allowed(email string) bool {
	if len(s.allowed) == 0 {
		return true
	}
	_, ok := s.allowed[normalizeEmail(email)]
	return ok
}

// Register creates a user account. The email must be on the allow-list.
func (s *Service) Register(ctx context.Context, email, password string) (store.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return store.User{}, ErrInvalidEmail
	}
	if password == "" {
		return store.User{}, ErrBlankPassword
	}
	if !s.Allowed(email) {
		slog.WarnContext(ctx, "Registration refused for unauthorized email", "email", email)
		return store.User{}, ErrEmailNotAllowed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hashing password: %w", err)
	}
	u := store.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "User registered", "user_id", u.ID)
	return u, nil
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (store.Session, store.User, error) {
	email = normalizeEmail(email)
	if !s.Allowed(email) {
		return store.Session{}, store.User{}, ErrEmailNotAllowed
	}
	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.Session{}, store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.Session{}, store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return store.Session{}, store.User{}, ErrInvalidCredentials
	}

	token, err := generateSecureToken()
	if err != nil {
		return store.Session{}, store.User{}, fmt.Errorf("generate session token: %w", err)
	}
	now := s.now().UTC()
	sess := store.Session{
		Token:     token,
		UserID:    u.ID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return store.Session{}, store.User{}, fmt.Errorf("create session: %w", err)
	}
	slog.InfoContext(ctx, "User logged in", "user_id", u.ID)
	return sess, u, nil
}

// Authenticate resolves a session token to its user. Expired sessions are
// deleted.
func (s *Service) Authenticate(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, ErrInvalidSession
	}
	sess, err := s.store.SessionByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidSession
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup session: %w", err)
	}
	if s.now().After(sess.ExpiresAt) {
		if err := s.store.DeleteSession(ctx, token); err != nil {
			slog.WarnContext(ctx, "Failed to delete expired session", "error", err)
		}
		return store.User{}, ErrExpiredSession
	}
	u, err := s.store.UserByID(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidSession
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !s.Allowed(u.Email) {
		return store.User{}, ErrEmailNotAllowed
	}
	return u, nil
}

// Logout removes the session.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.DeleteSession(ctx, token)
}

// TTL is the lifetime of new sessions.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

func generateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
