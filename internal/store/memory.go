package store

import (
	"context"
	"sort"
	"sync"

	"gigbot/discovery-service/internal/health"
	"gigbot/discovery-service/internal/model"
)

// MemoryStore keeps everything in process memory. It backs tests and dry runs.
type MemoryStore struct {
	thresholds health.Thresholds

	writeMu sync.Mutex   // serializes writers
	mu      sync.RWMutex // guards the maps
	gigs    map[string]model.Gig
	order   []string
	health  map[string]model.HealthRecord
}

// NewMemoryStore returns an empty store applying t to health updates.
func NewMemoryStore(t health.Thresholds) *MemoryStore {
	return &MemoryStore{
		thresholds: t,
		gigs:       make(map[string]model.Gig),
		health:     make(map[string]model.HealthRecord),
	}
}

func (m *MemoryStore) TryInsert(ctx context.Context, gig model.Gig) (InsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gigs[gig.Fingerprint]; ok {
		return AlreadyExists, nil
	}
	m.gigs[gig.Fingerprint] = gig
	m.order = append(m.order, gig.Fingerprint)
	return Inserted, nil
}

func (m *MemoryStore) RecordRun(ctx context.Context, source string, out model.RunOutcome) (model.HealthRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.HealthRecord{}, err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	rec := m.health[source]
	m.mu.RUnlock()

	rec.Source = source
	rec = health.Apply(rec, out, m.thresholds)

	m.mu.Lock()
	m.health[source] = rec
	m.mu.Unlock()
	return rec, nil
}

func (m *MemoryStore) Health(_ context.Context, source string) (model.HealthRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.health[source]
	if !ok {
		return model.HealthRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) ListHealth(context.Context) ([]model.HealthRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.HealthRecord, 0, len(m.health))
	for _, rec := range m.health {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (m *MemoryStore) RecentGigs(_ context.Context, limit int) ([]model.Gig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Gig, 0, n)
	for i := len(m.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.gigs[m.order[i]])
	}
	return out, nil
}
