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

	"github.com/kirillkom/vendor-onboarding/internal/bootstrap"
	"github.com/kirillkom/vendor-onboarding/internal/config"
	"github.com/kirillkom/vendor-onboarding/internal/infrastructure/queue/nats"
	"github.com/kirillkom/vendor-onboarding/internal/observability/logging"
	"github.com/kirillkom/vendor-onboarding/internal/observability/metrics"
)

const (
	serviceName       = "worker"
	extractionTimeout = 5 * time.Minute
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Observers{Dependencies: workerMetrics})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
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
	err = app.Queue.SubscribeDocumentUploaded(ctx, func(handlerCtx context.Context, documentID string) error {
		if publishedAt, ok := nats.PublishedAt(handlerCtx); ok {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(publishedAt))
		}

		extractCtx, cancel := context.WithTimeout(handlerCtx, extractionTimeout)
		defer cancel()

		started := time.Now()
		workerMetrics.StartExtraction()
		err := app.Extract.ExtractByID(extractCtx, documentID)
		workerMetrics.FinishExtraction(serviceName, time.Since(started), err)
		if err != nil {
			return err
		}
		slog.Info("document_extracted", "document_id", documentID, "duration_ms", time.Since(started).Milliseconds())
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}
}
