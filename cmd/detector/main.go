// detector runs the anomaly detector on a timer against the shared audit log.
// Set DATABASE_URL; KAFKA_BROKERS enables CRITICAL alert publishing, and
// OTEL_EXPORTER_OTLP_ENDPOINT enables telemetry export.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auth-lifecycle-engine/internal/anomaly"
	auditrepo "auth-lifecycle-engine/internal/audit/repository"
	"auth-lifecycle-engine/internal/config"
	"auth-lifecycle-engine/internal/db"
	"auth-lifecycle-engine/internal/logging"
	"auth-lifecycle-engine/internal/telemetry"
	otelsetup "auth-lifecycle-engine/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("detector: DATABASE_URL is required")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, "auth-lifecycle-detector", cfg.OTLPInsecure)
	if err != nil {
		logger.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics(providers.MeterProvider.Meter("auth-lifecycle-detector"))
	if err != nil {
		logger.Error("metrics setup failed", "error", err)
		os.Exit(1)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	var producer anomaly.AlertProducer
	if p := anomaly.NewKafkaAlertProducer(cfg.AlertKafkaBrokersList(), cfg.AlertKafkaTopic); p != nil {
		producer = p
		defer p.Close()
		logger.Info("alert publishing enabled", "topic", cfg.AlertKafkaTopic)
	}

	detector := anomaly.NewDetector(auditrepo.NewPostgresRepository(conn), producer, metrics, logger,
		anomaly.Config{
			CriticalBlockRate: cfg.AnomalyCriticalBlockRate,
			WarningBlockRate:  cfg.AnomalyWarningBlockRate,
			FanoutSources:     cfg.AnomalyFanoutSources,
			Window:            cfg.DetectWindow(),
		})

	// One run up front so a fresh deploy reports immediately instead of after the
	// first full interval.
	if report, err := detector.RunOnce(ctx); err != nil {
		logger.Warn("initial detection run failed", "error", err)
	} else {
		logger.Info("initial detection run", "severity", report.Severity, "kind", report.Kind)
	}

	timer := anomaly.NewTimer(detector, cfg.DetectInterval(), logger)
	go timer.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("detector shutting down")
	timer.Stop()
	cancel()
}
