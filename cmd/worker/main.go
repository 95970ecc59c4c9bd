package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/city-osm-features/internal/bootstrap"
	"github.com/kirillkom/city-osm-features/internal/config"
	"github.com/kirillkom/city-osm-features/internal/core/domain"
	"github.com/kirillkom/city-osm-features/internal/observability/logging"
)

const jobTimeout = 2 * time.Hour

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("pipeline-worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "pipeline-worker", WithQueue: true})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeCityRequested(ctx, func(handlerCtx context.Context, job domain.CityJob) error {
		if !job.RequestedAt.IsZero() {
			app.Metrics.ObserveQueueLag(time.Since(job.RequestedAt))
		}
		app.Metrics.StartJob()
		defer app.Metrics.FinishJob()

		jobCtx, cancel := context.WithTimeout(handlerCtx, jobTimeout)
		defer cancel()
		return app.ProcessUC.Handle(jobCtx, job)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
