package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/saturnino-fabrica-de-software/trace-ml/internal/anomaly"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/api"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/audit"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/auth"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/checkin"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/config"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/database"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/docstore"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/engagement"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/face"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/identity"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/metrics"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/quality"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/ratelimit"
	"github.com/saturnino-fabrica-de-software/trace-ml/internal/service"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// backends holds the connections that must be closed on shutdown.
type backends struct {
	store  docstore.Store
	pool   *pgxpool.Pool
	redis  *redis.Client
	checks []handler.Check
}

func (b *backends) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{}

	if cfg.StoreBackend == "postgres" || cfg.IdentityIndex == "pgvector" {
		if err := database.MigrateUp(cfg.DatabaseURL, "traceml"); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := database.NewPgxPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
		b.checks = append(b.checks, handler.Check{
			Name: "postgres",
			Fn:   func(ctx context.Context) error { return database.HealthCheck(ctx, pool) },
		})
	}

	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory store, state is lost on restart")
		b.store = docstore.NewMemory()
	case "file":
		store, err := docstore.NewFile(cfg.DataDir)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.store = store
	case "postgres":
		b.store = docstore.NewPostgres(b.pool)
	case "redis":
		store, client, err := docstore.NewRedisFromURL(ctx, cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.store = store
		b.redis = client
		b.checks = append(b.checks, handler.Check{Name: "redis", Fn: store.Ping})
	}

	return b, nil
}

func newIndex(cfg *config.Config, b *backends) identity.Index {
	switch cfg.IdentityIndex {
	case "hnsw":
		return identity.NewHNSWIndex()
	case "pgvector":
		return identity.NewPGVectorIndex(b.pool)
	default:
		return identity.NewLinearIndex()
	}
}

func newEngagementModel(ctx context.Context, cfg *config.Config, store docstore.Store) (engagement.Model, error) {
	if cfg.EngagementModel == "remote" {
		rc := engagement.DefaultRemoteConfig()
		rc.BaseURL = cfg.EngagementModelURL
		return engagement.NewRemoteModel(rc), nil
	}

	model := engagement.NewLogisticModel(store, engagement.DefaultInputDim)
	if err := model.Load(ctx); err != nil {
		return nil, fmt.Errorf("load engagement model: %w", err)
	}
	return model, nil
}

// rateLimitCounter prefers redis when both backends are connected.
func rateLimitCounter(b *backends) middleware.Counter {
	switch {
	case b.redis != nil:
		return ratelimit.NewRedis(b.redis)
	case b.pool != nil:
		return ratelimit.NewPostgres(b.pool)
	default:
		return nil
	}
}

func pruneRateLimits(ctx context.Context, counters *ratelimit.Postgres, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := counters.CleanupExpired(ctx, time.Now().Add(-time.Hour))
			if err != nil {
				logger.Warn("rate limit cleanup failed", slog.Any("error", err))
				continue
			}
			logger.Debug("rate limit counters pruned", slog.Int64("removed", removed))
		}
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting TRACE ML",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.StoreBackend),
		slog.String("index", cfg.IdentityIndex),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	m := metrics.New()
	auditLogger := audit.NewSlogLogger(logger)

	faceProvider, err := face.NewFaceProvider(ctx, cfg, auditLogger)
	if err != nil {
		return fmt.Errorf("face provider: %w", err)
	}

	registry := identity.NewRegistry(b.store, newIndex(cfg, b), logger)
	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("load identities: %w", err)
	}
	logger.Info("identities loaded", slog.Int("count", registry.Len()))

	detectorCfg := anomaly.DefaultConfig()
	detectorCfg.WindowSize = cfg.AnomalyWindowSize
	detectorCfg.MinSamples = cfg.AnomalyMinSamples
	detectorCfg.Forest.Contamination = cfg.AnomalyContamination
	detector := anomaly.NewDetector(b.store, detectorCfg, logger)

	model, err := newEngagementModel(ctx, cfg, b.store)
	if err != nil {
		return err
	}
	tracker := engagement.NewTracker(b.store, model, logger)

	faceService := service.NewFaceService(
		faceProvider,
		registry,
		quality.NewScorer(quality.DefaultThresholds()),
		auditLogger,
		m,
		logger,
	).WithThresholds(cfg.VerifyDistanceThreshold, cfg.EnrollDistanceThreshold)

	deps := &api.Dependencies{
		FaceService:        faceService,
		AnomalyService:     service.NewAnomalyService(faceProvider, detector, auditLogger, m, logger),
		EngagementService:  service.NewEngagementService(faceProvider, tracker, m, logger),
		Metrics:            m,
		ReadyChecks:        b.checks,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Version:            version,
	}

	if counter := rateLimitCounter(b); counter != nil {
		deps.RateLimitCounter = counter
		if pg, ok := counter.(*ratelimit.Postgres); ok {
			go pruneRateLimits(ctx, pg, logger)
		}
	}

	if cfg.AuthEnabled() {
		deps.Tokens = auth.NewJWTService(cfg.AuthJWTSecret, cfg.AuthJWTIssuer, cfg.AuthTokenTTL)
	} else {
		logger.Warn("AUTH_JWT_SECRET not set, API is unauthenticated")
	}

	var notifier *checkin.Notifier
	if cfg.CheckinEnabled() {
		ncfg := checkin.DefaultConfig()
		ncfg.BackendURL = cfg.BackendURL
		ncfg.Secret = cfg.CheckinSecret
		notifier = checkin.NewNotifier(ncfg, m, auditLogger, logger)
		deps.Checkins = notifier
		go notifier.Run(ctx)
	} else {
		logger.Info("BACKEND_URL not set, attendance check-ins disabled")
	}

	aggregator := metrics.NewAggregator(m, registry, logger, 0)
	go aggregator.Start(ctx)

	router := api.NewRouter(logger, deps)
	router.Setup()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	aggregator.Stop()
	if notifier != nil {
		notifier.Stop()
	}

	// final flush of the identity table
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := registry.Save(flushCtx); err != nil {
		logger.Error("final identity save failed", slog.Any("error", err))
	}

	logger.Info("server stopped")

	return nil
}
