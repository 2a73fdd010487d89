// gigbot discovery-service
//
// Periodically scrapes public gig boards, scores each posting for cheap/urgent
// programming work, stores new gigs once per fingerprint and tracks per-source
// scraper health.
//
//   - cron scheduler → one goroutine per source per cycle
//   - throttled, retrying, robots.txt-aware fetcher
//   - keyword + optional zero-shot classifier filter
//   - PostgreSQL dedup store, Redis EVENT_GIG_FOUND + Telegram notifications
//   - REST (/health, /scrapers/health, /gigs/…) and gRPC health endpoints
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigbot/discovery-service/internal/api"
	"gigbot/discovery-service/internal/config"
	"gigbot/discovery-service/internal/db"
	"gigbot/discovery-service/internal/fetch"
	"gigbot/discovery-service/internal/filter"
	"gigbot/discovery-service/internal/grpcserver"
	"gigbot/discovery-service/internal/notify"
	"gigbot/discovery-service/internal/scheduler"
	"gigbot/discovery-service/internal/scraper"
	"gigbot/discovery-service/internal/sources"
	"gigbot/discovery-service/internal/store"
	"gigbot/discovery-service/internal/throttle"
)

const version = "1.0.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("discovery-service failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Store ───────────────────────────────────────────────────────────────
	var st store.Store
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Warn("using in-memory store, gigs are lost on restart")
		st = store.NewMemoryStore(cfg.Health)
	default:
		logger.Info("connecting to PostgreSQL")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, int32(len(cfg.EnabledSources)+4))
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		logger.Info("PostgreSQL connected")
		st = store.NewPostgresStore(pool, cfg.Health)
	}

	// ── Redis ───────────────────────────────────────────────────────────────
	logger.Info("connecting to Redis")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, "gigbot-discovery")
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer rdb.Close()
	logger.Info("Redis connected")

	// ── Fetching ────────────────────────────────────────────────────────────
	httpClient := &http.Client{}
	throttler := throttle.New(throttle.Config{
		MinDelay:      cfg.DelayMin,
		MaxDelay:      cfg.DelayMax,
		MaxConcurrent: cfg.SourceConcurrency,
	})
	robots := fetch.NewRobotsCache(httpClient, cfg.UserAgent, 0, logger)
	fetcher := fetch.NewClient(fetch.Options{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
		Timeout:   cfg.HTTPTimeout,
		UserAgent: cfg.UserAgent,
	}, httpClient, throttler, robots, logger)

	// ── Filter ──────────────────────────────────────────────────────────────
	classifier, err := newClassifier(cfg, logger)
	if err != nil {
		return err
	}
	pipeline := filter.NewPipeline(cfg.Filter, classifier, logger)

	// ── Notifications ───────────────────────────────────────────────────────
	notifiers := notify.Multi{notify.NewRedisPublisher(rdb)}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, tg)
		logger.Info("telegram notifications enabled", "chat_id", cfg.TelegramChatID)
	}

	// ── Sources ─────────────────────────────────────────────────────────────
	registry := scraper.NewRegistry(
		sources.NewReddit(cfg.RedditSubreddits),
		sources.NewCraigslist(cfg.CraigslistCities),
		sources.NewAdzuna(cfg.AdzunaAppID, cfg.AdzunaAppKey, cfg.AdzunaCountry),
	)
	enabled, unknown := registry.Select(cfg.EnabledSources)
	if len(unknown) > 0 {
		return fmt.Errorf("ENABLED_SOURCES names unknown sources %v (known: %v)", unknown, registry.Names())
	}

	// ── gRPC health ─────────────────────────────────────────────────────────
	reporter := grpcserver.NewHealthReporter(logger)
	existing, err := st.ListHealth(ctx)
	if err != nil {
		logger.Warn("could not load stored health records", "err", err)
	}
	reporter.Seed(cfg.EnabledSources, existing)

	grpcSrv, err := grpcserver.Listen(":"+cfg.GRPCPort, reporter, logger)
	if err != nil {
		return err
	}
	go func() {
		if err := grpcSrv.Serve(); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	// ── Scheduler ───────────────────────────────────────────────────────────
	orchestrator := scraper.NewOrchestrator(
		func(source string) scraper.Fetcher { return fetcher.ForSource(source) },
		pipeline, st, logger,
		scraper.WithNotifier(notifiers),
		scraper.WithHealthObserver(reporter),
	)
	sched := scheduler.New(scheduler.Config{
		Interval:       cfg.ScrapeInterval,
		MaxRunDuration: cfg.MaxRunDuration,
		Cooldown:       cfg.FailedCooldown,
	}, orchestrator, st, enabled, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	// ── HTTP server ─────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	api.NewHandler(st, version, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		logger.Info("discovery-service listening", "version", version, "port", cfg.Port, "sources", cfg.EnabledSources)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	reporter.Shutdown()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("stopped")
	return nil
}

func newClassifier(cfg *config.Config, logger *slog.Logger) (filter.Classifier, error) {
	cc := cfg.Filter.Classifier
	if !cc.Enabled {
		return nil, nil
	}
	if cfg.HFAPIToken == "" {
		logger.Warn("classifier enabled but HF_API_TOKEN is empty, using keyword scoring only")
		return nil, nil
	}
	hf := filter.NewHuggingFaceClassifier(nil, cfg.HFModel, cfg.HFAPIToken)
	cached, err := filter.NewCachedClassifier(hf, cc.CacheSize, cc.Workers, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("zero-shot classifier enabled", "model", cfg.HFModel, "threshold", cc.Threshold)
	return cached, nil
}

func logLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
