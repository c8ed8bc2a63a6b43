// Package telemetry holds the engine's OpenTelemetry instruments.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the engine's counters. A nil *Metrics is a valid no-op receiver so
// components can be constructed without telemetry in tests.
type Metrics struct {
	challengesIssued  metric.Int64Counter
	deliveryFailures  metric.Int64Counter
	verifyOutcomes    metric.Int64Counter
	reconcileOutcomes metric.Int64Counter
	detectorRuns      metric.Int64Counter
}

// NewMetrics creates the engine counters on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	if m.challengesIssued, err = meter.Int64Counter("authn.otp.challenges_issued",
		metric.WithDescription("OTP challenges created")); err != nil {
		return nil, err
	}
	if m.deliveryFailures, err = meter.Int64Counter("authn.otp.delivery_failures",
		metric.WithDescription("Outbound OTP deliveries that failed")); err != nil {
		return nil, err
	}
	if m.verifyOutcomes, err = meter.Int64Counter("authn.otp.verify_outcomes",
		metric.WithDescription("OTP verification attempts by outcome")); err != nil {
		return nil, err
	}
	if m.reconcileOutcomes, err = meter.Int64Counter("authn.profile.reconcile_outcomes",
		metric.WithDescription("Profile reconciliation results by outcome")); err != nil {
		return nil, err
	}
	if m.detectorRuns, err = meter.Int64Counter("authn.anomaly.detector_runs",
		metric.WithDescription("Anomaly detector runs by reported severity")); err != nil {
		return nil, err
	}
	return m, nil
}

// ChallengeIssued counts one created challenge.
func (m *Metrics) ChallengeIssued(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.challengesIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// DeliveryFailure counts one failed outbound send.
func (m *Metrics) DeliveryFailure(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.deliveryFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// VerifyOutcome counts one verification attempt (success, invalid_code, expired, ...).
func (m *Metrics) VerifyOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.verifyOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ReconcileOutcome counts one reconcile result (created, adopted, deferred).
func (m *Metrics) ReconcileOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.reconcileOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// DetectorRun counts one detector run with the severity it reported.
func (m *Metrics) DetectorRun(ctx context.Context, severity string) {
	if m == nil {
		return
	}
	m.detectorRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("severity", severity)))
}
