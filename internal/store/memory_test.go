package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigbot/discovery-service/internal/health"
	"gigbot/discovery-service/internal/model"
)

func TestMemoryStore_ConcurrentInsertSameFingerprint(t *testing.T) {
	s := NewMemoryStore(health.DefaultThresholds())
	gig := model.Gig{Fingerprint: Fingerprint("reddit", "https://x/1", ""), Source: "reddit"}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[InsertOutcome]int{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := s.TryInsert(context.Background(), gig)
			assert.NoError(t, err)
			mu.Lock()
			outcomes[o]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[Inserted])
	assert.Equal(t, 49, outcomes[AlreadyExists])
}

func TestMemoryStore_RecentGigsNewestFirst(t *testing.T) {
	s := NewMemoryStore(health.DefaultThresholds())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.TryInsert(ctx, model.Gig{Fingerprint: fmt.Sprint(i), Title: fmt.Sprint("gig ", i)})
		require.NoError(t, err)
	}

	recent, err := s.RecentGigs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "gig 4", recent[0].Title)
	assert.Equal(t, "gig 3", recent[1].Title)

	all, err := s.RecentGigs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMemoryStore_RecordRunAppliesTransitions(t *testing.T) {
	s := NewMemoryStore(health.Thresholds{Degraded: 2, Failed: 3})
	ctx := context.Background()
	now := time.Now()

	_, err := s.Health(ctx, "jiji")
	assert.True(t, errors.Is(err, ErrNotFound))

	var rec model.HealthRecord
	for i := 0; i < 3; i++ {
		rec, err = s.RecordRun(ctx, "jiji", model.RunOutcome{At: now, Err: errors.New("timeout")})
		require.NoError(t, err)
	}
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, "jiji", rec.Source)

	rec, err = s.RecordRun(ctx, "jiji", model.RunOutcome{Success: true, At: now})
	require.NoError(t, err)
	assert.Equal(t, model.StatusHealthy, rec.Status)
	assert.Equal(t, 0, rec.ConsecutiveFailures)
	assert.EqualValues(t, 3, rec.TotalFailures)
	assert.EqualValues(t, 1, rec.TotalSuccesses)

	stored, err := s.Health(ctx, "jiji")
	require.NoError(t, err)
	assert.Equal(t, rec, stored)
}

func TestMemoryStore_ConcurrentRecordRunLosesNoUpdates(t *testing.T) {
	s := NewMemoryStore(health.DefaultThresholds())
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.RecordRun(context.Background(), "reddit", model.RunOutcome{Success: i%2 == 0, At: time.Now()})
		}(i)
	}
	wg.Wait()

	rec, err := s.Health(context.Background(), "reddit")
	require.NoError(t, err)
	assert.EqualValues(t, 40, rec.TotalSuccesses+rec.TotalFailures)
}

func TestMemoryStore_ListHealthSorted(t *testing.T) {
	s := NewMemoryStore(health.DefaultThresholds())
	for _, src := range []string{"reddit", "adzuna", "craigslist"} {
		_, err := s.RecordRun(context.Background(), src, model.RunOutcome{Success: true, At: time.Now()})
		require.NoError(t, err)
	}
	recs, err := s.ListHealth(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"adzuna", "craigslist", "reddit"}, []string{recs[0].Source, recs[1].Source, recs[2].Source})
}
