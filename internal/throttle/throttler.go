// Package throttle spaces out requests to each source and caps how many are in
// flight per source at once.
package throttle

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Config bounds the per-call delay and the per-source concurrency.
type Config struct {
	MinDelay      time.Duration
	MaxDelay      time.Duration
	MaxConcurrent int // per source; < 1 means 1
}

// Throttler hands out permits per source. Safe for concurrent use.
type Throttler struct {
	cfg   Config
	mu    sync.RWMutex
	slots map[string]*semaphore.Weighted

	// sleep and jitter are swapped out in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64
}

// Permit is held for the duration of one request.
type Permit struct {
	once    sync.Once
	release func()
}

// Release returns the slot. Calling it more than once is harmless.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.release)
}

// New returns a Throttler for cfg.
func New(cfg Config) *Throttler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &Throttler{
		cfg:    cfg,
		slots:  make(map[string]*semaphore.Weighted),
		sleep:  Sleep,
		jitter: rand.Int64N,
	}
}

// Acquire blocks until source has a free slot and the random delay has elapsed.
// The caller must Release the permit when the request is done.
func (t *Throttler) Acquire(ctx context.Context, source string) (*Permit, error) {
	sem := t.slot(source)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("throttle %s: %w", source, err)
	}
	p := &Permit{release: func() { sem.Release(1) }}

	if err := t.sleep(ctx, t.delay()); err != nil {
		p.Release()
		return nil, fmt.Errorf("throttle %s: %w", source, err)
	}
	return p, nil
}

func (t *Throttler) delay() time.Duration {
	span := int64(t.cfg.MaxDelay - t.cfg.MinDelay)
	if span <= 0 {
		return t.cfg.MinDelay
	}
	return t.cfg.MinDelay + time.Duration(t.jitter(span+1))
}

// slot gets or creates the semaphore for a source.
func (t *Throttler) slot(source string) *semaphore.Weighted {
	t.mu.RLock()
	sem, ok := t.slots[source]
	t.mu.RUnlock()
	if ok {
		return sem
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double-check after acquiring write lock
	if sem, ok := t.slots[source]; ok {
		return sem
	}
	sem = semaphore.NewWeighted(int64(t.cfg.MaxConcurrent))
	t.slots[source] = sem
	return sem
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
