package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"anivault/internal/auth"
	"anivault/internal/config"
	"anivault/internal/db"
	"anivault/internal/jikan"
	"anivault/internal/maintenance"
	"anivault/internal/notify"
	"anivault/internal/observability"
	"anivault/internal/token"
)

type Options struct {
	LoadDotEnv bool
}

type Runtime struct {
	Config  config.Config
	Logger  *observability.Logger
	Handler http.Handler
	Sweeper *maintenance.Runner
	Close   func() error
}

func Build(ctx context.Context, options Options) (*Runtime, error) {
	cfg, err := config.Load(options.LoadDotEnv)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(cfg.LogLevel)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return nil, err
	}

	if cfg.RunMigrationsOnStartup {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	limiterRoles, err := auth.ParseRoles(cfg.LimiterStatsRoles)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("LIMITER_STATS_ROLES: %w", err)
	}

	cache, redisClient, err := newCache(ctx, cfg, logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	repo := auth.NewRepository(database)
	signer := token.NewSigner(cfg.JWTSecret, cfg.AccessTokenTTL)
	ledger := auth.NewLedger(repo, cfg.RefreshTokenTTL)
	service := auth.NewService(repo, ledger, signer,
		auth.WithNotifier(newNotifier(cfg, logger)),
		auth.WithVerificationRequired(cfg.EmailVerificationRequired),
		auth.WithLogger(logger),
	)

	limiter := jikan.NewRateLimiter(cfg.JikanRatePerSec, cfg.JikanRatePerMin)
	gateway := jikan.NewGateway(cache, limiter, logger, jikan.GatewayConfig{
		Timeout:      cfg.JikanTimeout,
		CacheTTL:     cfg.JikanCacheTTL,
		RetryBackoff: cfg.JikanRetryBackoff,
	})

	checks := map[string]healthCheck{"database": database.PingContext}
	if redisClient != nil {
		checks["cache"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	handler := newRouter(routerDeps{
		logger:       logger,
		signer:       signer,
		auth:         auth.NewHandler(service),
		loginLimiter: auth.NewLoginRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow),
		anime:        jikan.NewHandler(jikan.NewClient(gateway, cfg.JikanBaseURL), limiter),
		limiterRoles: limiterRoles,
		cleanup:      maintenance.NewCleanupHandler(ledger, logger, cfg.CronSecret),
		health:       checks,
	})

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Handler: handler,
		Sweeper: maintenance.NewRunner(ledger, logger, cfg.SweepInterval),
		Close: func() error {
			observability.FlushSentry()
			var errs []error
			if redisClient != nil {
				errs = append(errs, redisClient.Close())
			}
			errs = append(errs, database.Close())
			_ = logger.Sync()
			return errors.Join(errs...)
		},
	}, nil
}

// newCache prefers Redis when REDIS_ADDR is set and falls back to the
// in-process cache otherwise.
func newCache(ctx context.Context, cfg config.Config, logger *observability.Logger) (jikan.Cache, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Info("jikan_cache_memory", nil)
		return jikan.NewMemoryCache(), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cache := jikan.NewRedisCache(client)
	if err := cache.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("jikan_cache_redis", map[string]any{"addr": cfg.RedisAddr})
	return cache, client, nil
}

func newNotifier(cfg config.Config, logger *observability.Logger) auth.Notifier {
	if cfg.ResendAPIKey == "" {
		if cfg.IsProduction() {
			logger.Warn("resend_api_key_missing", nil)
		}
		return notify.NewLogNotifier(logger)
	}
	return notify.NewResendNotifier(cfg.ResendAPIKey, cfg.MailFromEmail, cfg.MailFromName)
}
