// Package health defines the scraper health state machine.
//
// Status is derived from the consecutive-failure count alone:
//
//	HEALTHY ──(n ≥ Degraded)──► DEGRADED ──(n ≥ Failed)──► FAILED
//	   ▲                                                      │
//	   └──────────────────── any successful run ◄─────────────┘
//
// FAILED is not terminal; the scheduler only holds the source back for a cool-down.
package health

import (
	"fmt"
	"time"

	"gigbot/discovery-service/internal/model"
)

// Thresholds are the consecutive-failure counts at which a source degrades and fails.
type Thresholds struct {
	Degraded int
	Failed   int
}

// DefaultThresholds returns the stock 3/6 thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Degraded: 3, Failed: 6}
}

// Validate rejects non-positive or inverted thresholds.
func (t Thresholds) Validate() error {
	if t.Degraded < 1 {
		return fmt.Errorf("degraded threshold must be positive, got %d", t.Degraded)
	}
	if t.Failed < t.Degraded {
		return fmt.Errorf("failed threshold (%d) must not be below degraded threshold (%d)", t.Failed, t.Degraded)
	}
	return nil
}

// StatusFor maps a consecutive-failure count to a status.
func StatusFor(consecutiveFailures int, t Thresholds) model.HealthStatus {
	switch {
	case consecutiveFailures >= t.Failed:
		return model.StatusFailed
	case consecutiveFailures >= t.Degraded:
		return model.StatusDegraded
	default:
		return model.StatusHealthy
	}
}

// Apply folds one run outcome into rec and returns the updated record.
// A zero-value rec is treated as a fresh, healthy source.
func Apply(rec model.HealthRecord, out model.RunOutcome, t Thresholds) model.HealthRecord {
	at := out.At
	rec.LastDuration = out.Duration

	if out.Success {
		rec.ConsecutiveFailures = 0
		rec.TotalSuccesses++
		rec.LastSuccessAt = &at
		rec.LastError = ""
	} else {
		rec.ConsecutiveFailures++
		rec.TotalFailures++
		rec.LastFailureAt = &at
		if out.Err != nil {
			rec.LastError = out.Err.Error()
		} else {
			rec.LastError = "unknown error"
		}
	}

	rec.Status = StatusFor(rec.ConsecutiveFailures, t)
	return rec
}

// InCooldown reports whether a FAILED source should still be skipped at now.
func InCooldown(rec model.HealthRecord, now time.Time, cooldown time.Duration) bool {
	if rec.Status != model.StatusFailed || rec.LastFailureAt == nil {
		return false
	}
	return now.Sub(*rec.LastFailureAt) < cooldown
}
