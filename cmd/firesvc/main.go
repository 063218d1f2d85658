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

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wildfire-data-service/internal/adapter/firms"
	httpadapter "github.com/couchcryptid/wildfire-data-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/wildfire-data-service/internal/adapter/kafka"
	"github.com/couchcryptid/wildfire-data-service/internal/config"
	"github.com/couchcryptid/wildfire-data-service/internal/domain"
	"github.com/couchcryptid/wildfire-data-service/internal/observability"
	"github.com/couchcryptid/wildfire-data-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if cfg.FIRMSMapKey == "" {
		logger.Warn("FIRMS_MAP_KEY is not set; fire queries will fail with InvalidCredential")
	}

	availability := firms.NewCachedAvailability(
		firms.NewAvailabilityClient(cfg.FIRMSBaseURL, cfg.FIRMSMapKey, cfg.AvailabilityTimeout, logger),
		cfg.FIRMSMapKey, cfg.AvailabilityTTL, clockwork.NewRealClock(), metrics,
	)
	fetcher := firms.NewFetcher(cfg.FIRMSTimeout, retryPolicy(cfg), cfg.MaxConcurrency, logger, metrics)
	composer := firms.NewComposer(cfg.FIRMSBaseURL, cfg.FIRMSMapKey)

	settings := pipeline.Settings{
		Priority:       domain.ParsePriority(cfg.SourcePriority),
		SegmentDays:    cfg.SegmentDays,
		PublishTimeout: cfg.PublishTimeout,
	}

	// Publisher stays a nil interface unless Kafka is enabled.
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		settings.Publisher = writer
		logger.Info("detection publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("detection publishing disabled")
	}

	orch := pipeline.New(availability, composer, fetcher, logger, metrics, settings)
	srv := httpadapter.NewServer(cfg.HTTPAddr, orch, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Warm the availability cache so /readyz flips without waiting for traffic.
	go func() {
		warmCtx, cancel := context.WithTimeout(ctx, cfg.AvailabilityTimeout)
		defer cancel()
		if _, err := orch.Warm(warmCtx); err != nil {
			logger.Warn("availability warm-up failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func retryPolicy(cfg *config.Config) firms.RetryPolicy {
	return firms.RetryPolicy{
		MaxAttempts: cfg.FIRMSRetries,
		BackoffBase: cfg.FIRMSBackoffBase,
		BackoffUnit: time.Second,
		MaxBackoff:  cfg.FIRMSMaxBackoff,
	}
}
