package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/finverse/finverse/internal/app"
	"github.com/finverse/finverse/internal/features"
	"github.com/finverse/finverse/internal/observability"
	"github.com/finverse/finverse/internal/payouts"
	"github.com/finverse/finverse/internal/statement/export"
	statementhttp "github.com/finverse/finverse/internal/statement/http"
	"github.com/finverse/finverse/jobs"
	"github.com/finverse/finverse/report"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	rt, err := newRuntime(ctx, metrics)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logger := rt.cfg, rt.logger

	for _, c := range []interface{ ListenForInvalidation(context.Context) error }{rt.titles, rt.overrides} {
		if err := c.ListenForInvalidation(ctx); err != nil {
			logger.Warn("cache invalidation listener", slog.Any("error", err))
		}
	}

	htmlExporter, err := export.NewHTMLExporter()
	if err != nil {
		return err
	}
	reportClient := report.NewClient(cfg.GotenbergURL, 0)
	var pdf statementhttp.PDFService
	if reportClient.Configured() {
		pdf = &export.PDFExporter{HTML: htmlExporter, Client: reportClient}
	} else {
		logger.Warn("GOTENBERG_URL not set, PDF export disabled")
	}
	statementHandler := statementhttp.NewHandler(logger, rt.statements, htmlExporter, pdf, cfg.AppRequestTimeout)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	payoutService := payouts.NewService(rt.store, rt.statements, jobClient, logger)

	registry, err := features.DefaultRegistry()
	if err != nil {
		return err
	}
	featureService := features.NewService(registry, rt.store, rt.overrides, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		StatementHandler: statementHandler,
		PayoutHandler:    payouts.NewHandler(logger, payoutService),
		FeatureHandler:   features.NewHandler(logger, featureService),
		ReportHandler:    report.NewHandler(reportClient, logger),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
