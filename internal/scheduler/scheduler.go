// Package scheduler wires up the cron job that periodically runs every enabled
// source through the orchestrator.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gigbot/discovery-service/internal/health"
	"gigbot/discovery-service/internal/model"
	"gigbot/discovery-service/internal/scraper"
	"gigbot/discovery-service/internal/store"
)

// Runner runs one source. *scraper.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, src scraper.Source) scraper.RunResult
}

// HealthReader is the read side of the store used for cool-down checks.
type HealthReader interface {
	Health(ctx context.Context, source string) (model.HealthRecord, error)
}

// Config controls cycle timing.
type Config struct {
	Interval       time.Duration // between cycles
	MaxRunDuration time.Duration // per source run; 0 means unbounded
	Cooldown       time.Duration // FAILED sources are skipped this long after their last failure
}

// Scheduler wraps robfig/cron and manages the scrape loop.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	cfg     Config
	runner  Runner
	health  HealthReader
	sources []scraper.Source
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// New creates a Scheduler that runs sources every cfg.Interval.
func New(cfg Config, runner Runner, hr HealthReader, sources []scraper.Source, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		spec:    fmt.Sprintf("@every %s", cfg.Interval),
		cfg:     cfg,
		runner:  runner,
		health:  hr,
		sources: sources,
		logger:  logger,
		now:     time.Now,
	}
}

// Start registers the job and starts the scheduler. It also runs one cycle
// immediately so the feed is populated without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("scrape interval must be positive, got %s", s.cfg.Interval)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{logger: s.logger})).Then(cron.FuncJob(func() {
		s.RunCycle(ctx)
	}))
	if _, err := s.cron.AddJob(s.spec, job); err != nil {
		cancel()
		return fmt.Errorf("cron.AddJob: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec, "sources", len(s.sources))

	// first cycle goes through the same skip-if-running wrapper
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		job.Run()
	}()
	return nil
}

// Stop cancels in-flight runs and waits for them to record their health.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.running.Wait()
	s.logger.Info("scheduler stopped")
}

// RunCycle runs every source not in cool-down concurrently, one goroutine per
// source, and returns their results once all have finished.
func (s *Scheduler) RunCycle(ctx context.Context) []scraper.RunResult {
	s.logger.Info("scrape cycle started", "sources", len(s.sources))

	results := make([]scraper.RunResult, len(s.sources))
	var wg sync.WaitGroup
	for i, src := range s.sources {
		if s.coolingDown(ctx, src.Name()) {
			results[i] = scraper.RunResult{Source: src.Name()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			runCtx, cancel := s.runContext(ctx)
			defer cancel()
			results[i] = s.runner.Run(runCtx, src)
		}()
	}
	wg.Wait()

	var accepted, failed int
	for _, r := range results {
		accepted += r.Accepted
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info("scrape cycle complete", "accepted", accepted, "failed_sources", failed)
	return results
}

func (s *Scheduler) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.MaxRunDuration > 0 {
		return context.WithTimeout(ctx, s.cfg.MaxRunDuration)
	}
	return context.WithCancel(ctx)
}

func (s *Scheduler) coolingDown(ctx context.Context, source string) bool {
	rec, err := s.health.Health(ctx, source)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("health lookup failed, running anyway", "source", source, "err", err)
		}
		return false
	}
	if health.InCooldown(rec, s.now(), s.cfg.Cooldown) {
		s.logger.Info("source in cool-down, skipping", "source", source, "last_failure_at", rec.LastFailureAt)
		return true
	}
	return false
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
