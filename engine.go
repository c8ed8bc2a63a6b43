// Package engine wires the authentication lifecycle components (OTP challenges,
// profile reconciliation, audit log, rate limits, anomaly detection) into one unit the
// hosting application embeds. It owns no transport; callers invoke it from their own
// handlers.
package engine

import (
	"database/sql"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"auth-lifecycle-engine/internal/anomaly"
	"auth-lifecycle-engine/internal/audit"
	auditrepo "auth-lifecycle-engine/internal/audit/repository"
	"auth-lifecycle-engine/internal/config"
	"auth-lifecycle-engine/internal/delivery"
	"auth-lifecycle-engine/internal/otp"
	otprepo "auth-lifecycle-engine/internal/otp/repository"
	"auth-lifecycle-engine/internal/profile"
	profilerepo "auth-lifecycle-engine/internal/profile/repository"
	"auth-lifecycle-engine/internal/ratelimit"
	"auth-lifecycle-engine/internal/telemetry"
)

// Options holds the dependencies the engine is assembled from. Challenges, Profiles,
// Audit, and Config are required; everything else may be nil.
type Options struct {
	Challenges otprepo.Repository
	Profiles   profilerepo.Repository
	Audit      auditrepo.Repository

	// Dispatcher sends OTP codes. Required unless dev OTP mode is enabled.
	Dispatcher delivery.Dispatcher
	// IPExtractor resolves the client IP for audit events.
	IPExtractor audit.IPExtractor
	// AlertProducer receives CRITICAL anomaly reports.
	AlertProducer anomaly.AlertProducer

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
	Config  *config.Config
}

// Engine is the assembled authentication lifecycle engine.
type Engine struct {
	// OTP issues and verifies challenges.
	OTP *otp.Manager
	// Profiles reconciles the one-per-account profile row.
	Profiles *profile.Reconciler
	// Detector aggregates the audit log into anomaly reports.
	Detector *anomaly.Detector
	// Limits answers storage-backed rate-limit questions.
	Limits *ratelimit.Limiter
	// Audit appends events outside the lifecycle paths (e.g. signup attempts seen
	// before any challenge exists).
	Audit *audit.Recorder
	// DevCodes exposes plain codes when dev OTP mode is on; nil otherwise.
	DevCodes *otp.DevStore

	producer anomaly.AlertProducer
}

// New assembles an Engine from the given options.
func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	recorder := audit.NewRecorder(opts.Audit, opts.IPExtractor, logger)

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		// An empty router fails every send as unsupported rather than panicking.
		dispatcher = &delivery.Router{}
	}

	var dev *otp.DevStore
	if cfg.OTPReturnToClient {
		dev = otp.NewDevStore()
	}

	manager := otp.NewManager(opts.Challenges, dispatcher, recorder, dev,
		opts.Metrics, logger, otp.Config{
			TTL:               cfg.ChallengeTTL(),
			MaxAttempts:       cfg.OTPMaxAttempts,
			CodeLength:        cfg.OTPCodeLength,
			HashSecret:        cfg.OTPHashSecret,
			RequestsPerWindow: cfg.OTPRequestsPerHour,
		})

	detector := anomaly.NewDetector(opts.Audit, opts.AlertProducer, opts.Metrics,
		logger, anomaly.Config{
			CriticalBlockRate: cfg.AnomalyCriticalBlockRate,
			WarningBlockRate:  cfg.AnomalyWarningBlockRate,
			FanoutSources:     cfg.AnomalyFanoutSources,
			Window:            cfg.DetectWindow(),
		})

	return &Engine{
		OTP:      manager,
		Profiles: profile.NewReconciler(opts.Profiles, opts.Metrics, logger),
		Detector: detector,
		Limits:   ratelimit.NewLimiter(opts.Audit, 0),
		Audit:    recorder,
		DevCodes: dev,
		producer: opts.AlertProducer,
	}
}

// NewFromDB assembles an Engine over Postgres repositories and the configured delivery
// providers. meter may be nil to disable metrics.
func NewFromDB(db *sql.DB, cfg *config.Config, logger *slog.Logger, meter metric.Meter) (*Engine, error) {
	var metrics *telemetry.Metrics
	if meter != nil {
		var err error
		if metrics, err = telemetry.NewMetrics(meter); err != nil {
			return nil, err
		}
	}

	router := &delivery.Router{
		SMS:      delivery.NewSMSLocalClient(cfg.SMSAPIKey, cfg.SMSBaseURL, cfg.SMSSender, cfg.SendTimeout()),
		WhatsApp: delivery.NewWhatsAppClient(cfg.WhatsAppToken, cfg.WhatsAppBaseURL, cfg.SendTimeout()),
	}

	var producer anomaly.AlertProducer
	if p := anomaly.NewKafkaAlertProducer(cfg.AlertKafkaBrokersList(), cfg.AlertKafkaTopic); p != nil {
		producer = p
	}

	return New(Options{
		Challenges:    otprepo.NewPostgresRepository(db),
		Profiles:      profilerepo.NewPostgresRepository(db),
		Audit:         auditrepo.NewPostgresRepository(db),
		Dispatcher:    router,
		AlertProducer: producer,
		Metrics:       metrics,
		Logger:        logger,
		Config:        cfg,
	}), nil
}

// Close releases resources held by the engine (currently the alert producer).
func (e *Engine) Close() error {
	if e.producer != nil {
		return e.producer.Close()
	}
	return nil
}
