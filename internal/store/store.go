// Package store declares the persistence ports used by the period and auth
// services. Backends live in store/memory and storage.
package store

import (
	"context"
	"errors"
	"time"

	"halfmonth/internal/core"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrEmailExists = errors.New("email already exists")
)

type (
	// PeriodReader reads period documents partitioned by user.
	PeriodReader interface {
		GetPeriod(ctx context.Context, userID string, key core.PeriodKey) (core.Period, error)
		ListPeriods(ctx context.Context, userID string) ([]core.Period, error)
	}

	// PeriodWriter replaces a whole period document.
	PeriodWriter interface {
		PutPeriod(ctx context.Context, userID string, p core.Period) error
	}

	PeriodDeleter interface {
		DeletePeriod(ctx context.Context, userID string, key core.PeriodKey) error
	}

	PeriodStore interface {
		PeriodReader
		PeriodWriter
		PeriodDeleter
	}

	// UserLister enumerates every known user partition.
	UserLister interface {
		ListUserIDs(ctx context.Context) ([]string, error)
	}

	User struct {
		ID           string
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	UserStore interface {
		UserLister
		CreateUser(ctx context.Context, u User) error
		UserByEmail(ctx context.Context, email string) (User, error)
		UserByID(ctx context.Context, id string) (User, error)
	}

	Session struct {
		Token     string
		UserID    string
		ExpiresAt time.Time
		CreatedAt time.Time
	}

	SessionStore interface {
		CreateSession(ctx context.Context, s Session) error
		SessionByToken(ctx context.Context, token string) (Session, error)
		DeleteSession(ctx context.Context, token string) error
		DeleteUserSessions(ctx context.Context, userID string) error
	}

	// Store is everything a backend provides.
	Store interface {
		PeriodStore
		UserStore
		SessionStore
		Ping(ctx context.Context) error
		Close() error
	}
)
