package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"gigbot/discovery-service/internal/model"
	"gigbot/discovery-service/internal/store"
)

// Evaluator is the filter pipeline.
type Evaluator interface {
	Evaluate(ctx context.Context, c model.Candidate) model.Verdict
}

// Notifier is told about every newly inserted gig.
type Notifier interface {
	Notify(ctx context.Context, gig model.Gig) error
}

// HealthObserver is called with every health record the orchestrator writes.
type HealthObserver interface {
	ObserveHealth(rec model.HealthRecord)
}

// FetcherFor returns the fetcher bound to a source.
type FetcherFor func(source string) Fetcher

// RunResult summarises one invocation of a source.
type RunResult struct {
	Source     string
	RunID      string
	Accepted   int
	Duplicates int
	Rejected   int
	Skipped    int
	Err        error
	Duration   time.Duration
}

// Orchestrator runs one source end to end: fetch, filter, dedup insert, notify, and
// exactly one health update per run.
type Orchestrator struct {
	fetchers FetcherFor
	filter   Evaluator
	store    store.Store
	notifier Notifier
	observer HealthObserver
	logger   *slog.Logger

	now           func() time.Time
	healthTimeout time.Duration
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier sets the notifier for inserted gigs.
func WithNotifier(n Notifier) Option { return func(o *Orchestrator) { o.notifier = n } }

// WithHealthObserver sets an observer for health updates.
func WithHealthObserver(h HealthObserver) Option { return func(o *Orchestrator) { o.observer = h } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(fetchers FetcherFor, filter Evaluator, st store.Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		fetchers:      fetchers,
		filter:        filter,
		store:         st,
		logger:        logger,
		now:           time.Now,
		healthTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes src once. Candidate-level problems are counted and logged; only
// errors that end the run make it a failure. Inserted gigs are never rolled back.
func (o *Orchestrator) Run(ctx context.Context, src Source) RunResult {
	res := RunResult{Source: src.Name(), RunID: uuid.NewString()}
	log := o.logger.With("source", res.Source, "run_id", res.RunID)
	start := o.now()

	log.Info("scrape run started")
	res.Err = o.consume(ctx, src, &res, log)
	res.Duration = o.now().Sub(start)

	o.recordHealth(ctx, &res, start, log)

	attrs := []any{
		"accepted", res.Accepted,
		"duplicates", res.Duplicates,
		"rejected", res.Rejected,
		"skipped", res.Skipped,
		"duration", res.Duration,
	}
	if res.Err != nil {
		log.Warn("scrape run failed", append(attrs, "err", res.Err)...)
	} else {
		log.Info("scrape run done", attrs...)
	}
	return res
}

func (o *Orchestrator) consume(ctx context.Context, src Source, res *RunResult, log *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("source adapter panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic in %s adapter: %v", res.Source, r)
		}
	}()

	for c, cerr := range src.Candidates(ctx, o.fetchers(res.Source)) {
		if cerr != nil {
			var pe *ParseError
			if errors.As(cerr, &pe) {
				res.Skipped++
				log.Debug("skipping malformed item", "err", cerr)
				continue
			}
			return cerr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		o.handle(ctx, c, res, log)
	}
	return ctx.Err()
}

func (o *Orchestrator) handle(ctx context.Context, c model.Candidate, res *RunResult, log *slog.Logger) {
	if c.Source == "" {
		c.Source = res.Source
	}
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = o.now().UTC()
	}

	v := o.filter.Evaluate(ctx, c)
	if !v.Accepted {
		res.Rejected++
		return
	}

	gig := store.NewGig(c, v)
	outcome, err := o.store.TryInsert(ctx, gig)
	if err != nil {
		res.Skipped++
		log.Warn("gig insert failed", "link", c.Link, "err", err)
		return
	}
	if outcome == store.AlreadyExists {
		res.Duplicates++
		return
	}
	res.Accepted++

	if o.notifier != nil {
		if err := o.notifier.Notify(ctx, gig); err != nil {
			log.Warn("notify failed", "fingerprint", gig.Fingerprint, "err", err)
		}
	}
}

// recordHealth writes the run outcome even when ctx is already cancelled.
func (o *Orchestrator) recordHealth(ctx context.Context, res *RunResult, start time.Time, log *slog.Logger) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.healthTimeout)
	defer cancel()

	rec, err := o.store.RecordRun(hctx, res.Source, model.RunOutcome{
		Success:  res.Err == nil,
		At:       start.Add(res.Duration).UTC(),
		Duration: res.Duration,
		Err:      res.Err,
	})
	if err != nil {
		log.Error("health update failed", "err", err)
		return
	}
	if rec.Status != model.StatusHealthy {
		log.Warn("source unhealthy", "status", rec.Status, "consecutive_failures", rec.ConsecutiveFailures)
	}
	if o.observer != nil {
		o.observer.ObserveHealth(rec)
	}
}
