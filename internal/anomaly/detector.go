package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	auditrepo "auth-lifecycle-engine/internal/audit/repository"
	"auth-lifecycle-engine/internal/telemetry"
)

// unknownBucket collects events with missing attribution so sparse data never skews
// ratios or crashes a run.
const unknownBucket = "unknown"

// Config holds detection thresholds. Zero values fall back to the documented defaults.
type Config struct {
	// CriticalBlockRate is the block-rate above which a window is CRITICAL. Default 0.50.
	CriticalBlockRate float64
	// WarningBlockRate is the block-rate above which a window is WARNING. Default 0.25.
	WarningBlockRate float64
	// FanoutSources is the unique-source count that triggers fan-out analysis. Default 100.
	FanoutSources int
	// FanoutMedianGap is the median inter-attempt gap below which fan-out is an attack.
	// Default 1s.
	FanoutMedianGap time.Duration
	// Window is the default detection window for RunOnce. Default 24h.
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.CriticalBlockRate <= 0 {
		c.CriticalBlockRate = 0.50
	}
	if c.WarningBlockRate <= 0 {
		c.WarningBlockRate = 0.25
	}
	if c.FanoutSources <= 0 {
		c.FanoutSources = 100
	}
	if c.FanoutMedianGap <= 0 {
		c.FanoutMedianGap = time.Second
	}
	if c.Window <= 0 {
		c.Window = 24 * time.Hour
	}
	return c
}

// AlertProducer publishes CRITICAL reports to an external sink (e.g. Kafka).
// Best-effort: callers log and ignore errors.
type AlertProducer interface {
	Publish(ctx context.Context, r *Report) error
	Close() error
}

// Detector aggregates audit events into anomaly reports. Safe to run concurrently with
// the write path: it never shares a transaction with it and never mutates source data.
type Detector struct {
	repo     auditrepo.Repository
	producer AlertProducer
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	cfg      Config
	nowF     func() time.Time
}

// NewDetector returns a Detector with the given dependencies. producer and metrics may
// be nil; logger falls back to slog.Default.
func NewDetector(repo auditrepo.Repository, producer AlertProducer, metrics *telemetry.Metrics,
	logger *slog.Logger, cfg Config) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		repo:     repo,
		producer: producer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// Detect computes one report over [now - window, now].
func (d *Detector) Detect(ctx context.Context, window time.Duration) (*Report, error) {
	if window <= 0 {
		window = d.cfg.Window
	}
	end := d.nowF()
	start := end.Add(-window)

	events, err := d.repo.ListSince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("anomaly: list events: %w", err)
	}

	report := &Report{
		WindowStart: start,
		WindowEnd:   end,
		Severity:    SeverityInfo,
		Kind:        KindNone,
	}

	sources := make(map[string]struct{})
	byDestination := make(map[string][]time.Time)
	for _, e := range events {
		if e == nil {
			continue
		}
		report.TotalAttempts++
		if e.Blocked {
			report.BlockedAttempts++
		}
		ip := e.SourceIP
		if ip == "" {
			ip = unknownBucket
		}
		if ip != unknownBucket {
			sources[ip] = struct{}{}
		}
		if e.Destination != "" {
			byDestination[e.Destination] = append(byDestination[e.Destination], e.CreatedAt)
		}
	}
	report.UniqueSourceCount = len(sources)

	if report.TotalAttempts > 0 {
		report.BlockRate = float64(report.BlockedAttempts) / float64(report.TotalAttempts)
	}

	switch {
	case report.TotalAttempts == 0:
		report.Recommendation = "No authentication activity in window."
	case report.BlockRate > d.cfg.CriticalBlockRate:
		report.Severity = SeverityCritical
		report.Kind = KindElevatedBlockRate
		report.Recommendation = "Block rate is above the critical threshold; review blocked destinations and tighten signup rate limits."
	case report.BlockRate > d.cfg.WarningBlockRate:
		report.Severity = SeverityWarning
		report.Kind = KindElevatedBlockRate
		report.Recommendation = "Block rate is elevated; monitor for escalation."
	default:
		report.Recommendation = "Activity within normal bounds."
	}

	// Fan-out overrides block-rate classification: a low block-rate distributed attack
	// is still an attack.
	if report.UniqueSourceCount > d.cfg.FanoutSources {
		if gap, ok := medianGapTopDestination(byDestination); ok && gap < d.cfg.FanoutMedianGap {
			report.Severity = SeverityCritical
			report.Kind = KindDistributedAttack
			report.Recommendation = "Many distinct sources hammering one destination with sub-second spacing; likely a distributed attack. Consider blocking the destination and the top source ranges."
		}
	}

	return report, nil
}

// medianGapTopDestination returns the median inter-attempt interval for the
// destination with the most attempts. ok is false when no destination has at least two
// attempts.
func medianGapTopDestination(byDestination map[string][]time.Time) (time.Duration, bool) {
	var top []time.Time
	for _, ts := range byDestination {
		if len(ts) > len(top) {
			top = ts
		}
	}
	if len(top) < 2 {
		return 0, false
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Before(top[j]) })
	gaps := make([]time.Duration, 0, len(top)-1)
	for i := 1; i < len(top); i++ {
		gaps = append(gaps, top[i].Sub(top[i-1]))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	mid := len(gaps) / 2
	if len(gaps)%2 == 1 {
		return gaps[mid], true
	}
	return (gaps[mid-1] + gaps[mid]) / 2, true
}

// HealthMetrics summarizes the last hours of audit activity for dashboards.
func (d *Detector) HealthMetrics(ctx context.Context, hours int) (*HealthMetrics, error) {
	if hours <= 0 {
		hours = 24
	}
	stats, err := d.repo.StatsSince(ctx, d.nowF().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("anomaly: stats: %w", err)
	}
	m := &HealthMetrics{
		Total:      stats.Total,
		Successful: stats.Total - stats.Blocked,
		Blocked:    stats.Blocked,
	}
	if stats.Total > 0 {
		m.BlockRate = float64(stats.Blocked) / float64(stats.Total)
	}
	return m, nil
}

// RetryCandidates returns destinations with blocked-only history whose latest block is
// more than an hour old: their rate-limit window has lapsed and a retry is safe. This
// is support tooling information, not an alert.
func (d *Detector) RetryCandidates(ctx context.Context) ([]string, error) {
	return d.repo.BlockedOnlyDestinations(ctx, d.nowF().Add(-time.Hour))
}

// RunOnce runs one detection over the configured window, records metrics, and
// publishes CRITICAL reports to the alert producer. Errors are returned for the
// caller to log; they never reach the authentication write path.
func (d *Detector) RunOnce(ctx context.Context) (*Report, error) {
	report, err := d.Detect(ctx, d.cfg.Window)
	if err != nil {
		return nil, err
	}
	d.metrics.DetectorRun(ctx, string(report.Severity))
	if report.Severity == SeverityCritical && d.producer != nil {
		if perr := d.producer.Publish(ctx, report); perr != nil {
			d.logger.Warn("anomaly alert publish failed", "kind", report.Kind, "error", perr)
		}
	}
	return report, nil
}
