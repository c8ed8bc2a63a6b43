package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Timer periodically runs the detector. It never blocks or fails the write path; a
// failed run is logged and the next tick tries again.
type Timer struct {
	detector *Detector
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

// NewTimer creates a detection timer with the given interval (default 1h).
func NewTimer(detector *Detector, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Timer{
		detector: detector,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the periodic detection loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeRun(ctx)
		}
	}
}

// Stop signals the timer to stop. Safe to call more than once, and the signal is not
// lost when the loop is mid-run.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *Timer) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in anomaly detector", "panic", fmt.Sprint(r))
		}
	}()

	report, err := t.detector.RunOnce(ctx)
	if err != nil {
		t.logger.Warn("anomaly detection run failed", "error", err)
		return
	}
	t.logger.Info("anomaly detection run",
		"severity", report.Severity,
		"kind", report.Kind,
		"total", report.TotalAttempts,
		"blocked", report.BlockedAttempts)
}
