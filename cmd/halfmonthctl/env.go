package main

import (
	"context"
	"fmt"
	"strings"

	"halfmonth/internal/auth"
	"halfmonth/internal/backend"
	"halfmonth/internal/cli"
	"halfmonth/internal/config"
	"halfmonth/internal/log"
	"halfmonth/internal/services"
	"halfmonth/internal/store"
)

// env is the backend a command runs against.
type env struct {
	cfg     *config.Config
	logger  *log.Logger
	backend *backend.BackendResult
	periods *services.PeriodService
	auth    *auth.Service
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentCLI)
	res, err := cli.OpenBackend(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:     cfg,
		logger:  logger,
		backend: res,
		periods: services.NewPeriodService(res.Store),
		auth:    auth.NewService(res.Store, cfg.AuthorizedEmails, cfg.SessionTTL),
	}, nil
}

func (e *env) Close() {
	cli.CloseBackend(e.logger, e.backend)
}

// resolveUser accepts a user ID or an email address.
func (e *env) resolveUser(ctx context.Context, ref string) (string, error) {
	return resolveUser(ctx, e.backend.Store, ref)
}

func resolveUser(ctx context.Context, users store.UserStore, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("a user is required")
	}
	if !strings.Contains(ref, "@") {
		return ref, nil
	}
	u, err := users.UserByEmail(ctx, strings.ToLower(ref))
	if err != nil {
		return "", fmt.Errorf("look up user %s: %w", ref, err)
	}
	return u.ID, nil
}
