package health_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigbot/discovery-service/internal/health"
	"gigbot/discovery-service/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fail(at time.Time) model.RunOutcome {
	return model.RunOutcome{Success: false, At: at, Duration: time.Second, Err: errors.New("boom")}
}

func ok(at time.Time) model.RunOutcome {
	return model.RunOutcome{Success: true, At: at, Duration: 2 * time.Second}
}

// ── StatusFor ──────────────────────────────────────────────────────────────

func TestStatusFor(t *testing.T) {
	th := health.DefaultThresholds()
	cases := []struct {
		n    int
		want model.HealthStatus
	}{
		{0, model.StatusHealthy},
		{2, model.StatusHealthy},
		{3, model.StatusDegraded},
		{5, model.StatusDegraded},
		{6, model.StatusFailed},
		{40, model.StatusFailed},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, health.StatusFor(c.n, th), "StatusFor(%d)", c.n)
	}
}

// ── Apply ──────────────────────────────────────────────────────────────────

func TestApply_FirstSuccessIsHealthy(t *testing.T) {
	rec := health.Apply(model.HealthRecord{Source: "reddit"}, ok(t0), health.DefaultThresholds())

	assert.Equal(t, model.StatusHealthy, rec.Status)
	assert.Equal(t, 0, rec.ConsecutiveFailures)
	assert.EqualValues(t, 1, rec.TotalSuccesses)
	require.NotNil(t, rec.LastSuccessAt)
	assert.Equal(t, t0, *rec.LastSuccessAt)
	assert.Nil(t, rec.LastFailureAt)
	assert.Equal(t, 2*time.Second, rec.LastDuration)
}

func TestApply_FailureLadder(t *testing.T) {
	th := health.DefaultThresholds()
	rec := model.HealthRecord{Source: "jiji"}

	want := []model.HealthStatus{
		model.StatusHealthy, model.StatusHealthy, model.StatusDegraded,
		model.StatusDegraded, model.StatusDegraded, model.StatusFailed,
	}
	for i, st := range want {
		rec = health.Apply(rec, fail(t0.Add(time.Duration(i)*time.Minute)), th)
		assert.Equal(t, st, rec.Status, "after %d failures", i+1)
		assert.Equal(t, i+1, rec.ConsecutiveFailures)
	}
	assert.EqualValues(t, 6, rec.TotalFailures)
	assert.Equal(t, "boom", rec.LastError)
}

func TestApply_SuccessResetsFromAnyCount(t *testing.T) {
	th := health.DefaultThresholds()
	for n := 1; n <= 8; n++ {
		rec := model.HealthRecord{Source: "gumtree"}
		for i := 0; i < n; i++ {
			rec = health.Apply(rec, fail(t0), th)
		}
		rec = health.Apply(rec, ok(t0.Add(time.Hour)), th)

		assert.Equal(t, model.StatusHealthy, rec.Status, "after %d failures", n)
		assert.Equal(t, 0, rec.ConsecutiveFailures)
		assert.EqualValues(t, n, rec.TotalFailures)
		assert.Empty(t, rec.LastError)
	}
}

func TestApply_FailureWithoutErrorStillRecorded(t *testing.T) {
	rec := health.Apply(model.HealthRecord{}, model.RunOutcome{At: t0}, health.DefaultThresholds())
	assert.Equal(t, "unknown error", rec.LastError)
	assert.Equal(t, 1, rec.ConsecutiveFailures)
}

// ── InCooldown ─────────────────────────────────────────────────────────────

func TestInCooldown(t *testing.T) {
	last := t0
	failed := model.HealthRecord{Status: model.StatusFailed, LastFailureAt: &last}
	degraded := model.HealthRecord{Status: model.StatusDegraded, LastFailureAt: &last}

	assert.True(t, health.InCooldown(failed, t0.Add(10*time.Minute), time.Hour))
	assert.False(t, health.InCooldown(failed, t0.Add(time.Hour), time.Hour))
	assert.False(t, health.InCooldown(degraded, t0.Add(time.Minute), time.Hour))
	assert.False(t, health.InCooldown(model.HealthRecord{Status: model.StatusFailed}, t0, time.Hour))
}

// ── Thresholds ─────────────────────────────────────────────────────────────

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, health.DefaultThresholds().Validate())
	assert.NoError(t, health.Thresholds{Degraded: 2, Failed: 2}.Validate())
	assert.Error(t, health.Thresholds{Degraded: 0, Failed: 6}.Validate())
	assert.Error(t, health.Thresholds{Degraded: 5, Failed: 4}.Validate())
}
