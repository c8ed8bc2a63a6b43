// Package anomaly computes block-rate and fan-out statistics over the append-only
// audit log and classifies abusive signup/verification patterns. It only ever reads
// the log; a failed run simply produces no report for that window.
package anomaly

import "time"

// Severity grades a report.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Kind names the detected pattern.
type Kind string

const (
	KindNone              Kind = "NONE"
	KindElevatedBlockRate Kind = "ELEVATED_BLOCK_RATE"
	KindDistributedAttack Kind = "DISTRIBUTED_ATTACK"
)

// Report is the derived, ephemeral output of one detection window. It is not persisted
// as a source of truth; every query window recomputes it.
type Report struct {
	WindowStart       time.Time `json:"windowStart"`
	WindowEnd         time.Time `json:"windowEnd"`
	TotalAttempts     int       `json:"totalAttempts"`
	BlockedAttempts   int       `json:"blockedAttempts"`
	BlockRate         float64   `json:"blockRate"`
	UniqueSourceCount int       `json:"uniqueSourceCount"`
	Severity          Severity  `json:"severity"`
	Kind              Kind      `json:"kind"`
	Recommendation    string    `json:"recommendation"`
}

// HealthMetrics is the monitoring surface summary for dashboards.
type HealthMetrics struct {
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Blocked    int     `json:"blocked"`
	BlockRate  float64 `json:"blockRate"`
}
