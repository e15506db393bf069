package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"halfmonth/internal/amqp"
	"halfmonth/internal/auth"
	"halfmonth/internal/cache"
	"halfmonth/internal/cli"
	"halfmonth/internal/core"
	"halfmonth/internal/events"
	apphttp "halfmonth/internal/http"
	"halfmonth/internal/log"
	"halfmonth/internal/metrics"
	"halfmonth/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)

	res, err := cli.OpenBackend(context.Background(), logger, cfg)
	cli.ExitOnError(logger, "Failed to initialize backend", err)
	defer cli.CloseBackend(logger, res)

	m := metrics.New()
	periodCache := cache.NewLRUCache[core.Period](cfg.CacheSize, cfg.CacheTTL, cache.WithObserver(m.CacheLookup))
	hub := events.NewHub()

	opts := []services.Option{
		services.WithCache(periodCache),
		services.WithNotifier(hub),
		services.WithRecorder(m),
	}

	// AMQP is optional: without it the mirror worker simply sees no events.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change feed", "error", err)
		} else {
			opts = append(opts, services.WithPublisher(amqpClient))
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	periods := services.NewPeriodService(res.Store, opts...)
	authSvc := auth.NewService(res.Store, cfg.AuthorizedEmails, cfg.SessionTTL)

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		SecureCookies:      cfg.SecureCookies,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, apphttp.Deps{
		Periods: periods,
		Auth:    authSvc,
		Events:  hub,
		Metrics: m,
		Ready:   res.Store,
		Logger:  logger.WithComponent(log.ComponentHTTP),
	})
	cli.ExitOnError(logger, "Failed to build HTTP server", err)

	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	cacheManager := cache.NewManager(periodCache)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Wait()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("Failed to close AMQP client", "error", err)
			}
		}
	})
	cacheManager.Start(ctx, time.Minute)

	logger.Info("Starting halfmonth server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		cli.CloseBackend(logger, res)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
