package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"halfmonth/internal/amqp"
	"halfmonth/internal/cli"
	"halfmonth/internal/log"
	"halfmonth/internal/services"
	gsheet "halfmonth/internal/sheets/google"
	"halfmonth/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting halfmonth-worker")

	res, err := cli.OpenBackend(context.Background(), logger, cfg)
	cli.ExitOnError(logger, "Failed to initialize backend", err)
	defer cli.CloseBackend(logger, res)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	periods := services.NewPeriodService(res.Store)
	keeper := worker.NewTemplateKeeper(res.Store, periods, cfg.TemplateInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keeper.Run(gctx)
		return nil
	})

	switch {
	case !cfg.MirrorEnabled():
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID or credentials provided")
	case cfg.AMQPURL == "":
		logger.Info("Skipping period event consumption - no AMQP_URL provided")
	default:
		mirror, err := gsheet.NewFromServiceAccount(ctx, cfg.GoogleSpreadsheetID,
			cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
		cli.ExitOnError(logger, "Failed to initialize Google Sheets client", err)

		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		cli.ExitOnError(logger, "Failed to initialize AMQP client", err)
		defer amqpClient.Close()

		mirrorWorker := worker.NewMirrorWorker(res.Store, mirror)

		// Catch up on anything published while the worker was down.
		logger.Info("Performing startup sync")
		if _, _, err := mirrorWorker.StartupSync(ctx); err != nil {
			logger.Error("Startup sync failed", "error", err)
		}

		g.Go(func() error {
			err := amqpClient.ConsumePeriodEvents(gctx, mirrorWorker.HandlePeriodEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
