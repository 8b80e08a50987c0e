package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minProductionSecretLength = 32

type Config struct {
	Environment string
	Port        string
	LogLevel    string
	SentryDSN   string

	DatabaseURL            string
	DBMaxOpenConns         int
	DBMaxIdleConns         int
	DBConnMaxLifetime      time.Duration
	DBConnMaxIdleTime      time.Duration
	RunMigrationsOnStartup bool

	JWTSecret                 string
	AccessTokenTTL            time.Duration
	RefreshTokenTTL           time.Duration
	EmailVerificationRequired bool

	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JikanBaseURL      string
	JikanCacheTTL     time.Duration
	JikanTimeout      time.Duration
	JikanRatePerSec   int
	JikanRatePerMin   int
	JikanRetryBackoff time.Duration

	ResendAPIKey  string
	MailFromEmail string
	MailFromName  string

	CronSecret    string
	SweepInterval time.Duration

	// LimiterStatsRoles names the roles, besides admin, allowed to read the
	// outbound limiter stats.
	LimiterStatsRoles []string
}

// Load reads the configuration from the environment. When loadDotEnv is set a
// local .env file is merged first; missing files are ignored.
func Load(loadDotEnv bool) (Config, error) {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: envOrDefault("APP_ENV", "development"),
		Port:        envOrDefault("PORT", "8080"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		SentryDSN:   strings.TrimSpace(os.Getenv("SENTRY_DSN")),

		DatabaseURL:            databaseURL,
		DBMaxOpenConns:         envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:         envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime:      envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime:      envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		RunMigrationsOnStartup: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", true),

		JWTSecret:                 jwtSecret,
		AccessTokenTTL:            envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 60),
		RefreshTokenTTL:           envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 720),
		EmailVerificationRequired: EnvBoolOrDefault("EMAIL_VERIFICATION_REQUIRED", false),

		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),

		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envIntOrZero("REDIS_DB"),

		JikanBaseURL:      strings.TrimRight(envOrDefault("JIKAN_BASE_URL", "https://api.jikan.moe/v4"), "/"),
		JikanCacheTTL:     envSecondsOrDefault("JIKAN_CACHE_TTL", 3600),
		JikanTimeout:      envSecondsOrDefault("JIKAN_TIMEOUT_SECONDS", 30),
		JikanRatePerSec:   envIntOrDefault("JIKAN_RATE_PER_SECOND", 3),
		JikanRatePerMin:   envIntOrDefault("JIKAN_RATE_PER_MINUTE", 60),
		JikanRetryBackoff: envSecondsOrDefault("JIKAN_RETRY_BACKOFF_SECONDS", 1),

		ResendAPIKey:  strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		MailFromEmail: envOrDefault("MAIL_FROM_EMAIL", "noreply@anivault.com"),
		MailFromName:  envOrDefault("MAIL_FROM_NAME", "AniVault"),

		CronSecret:    strings.TrimSpace(os.Getenv("CRON_SECRET")),
		SweepInterval: envMinutesOrDefault("SWEEP_INTERVAL_MINUTES", 60),

		LimiterStatsRoles: envListOrDefault("LIMITER_STATS_ROLES", []string{"admin"}),
	}

	if cfg.IsProduction() && len(cfg.JWTSecret) < minProductionSecretLength {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least %d characters in production", minProductionSecretLength)
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envListOrDefault(name string, fallback []string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(name), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}

func envIntOrZero(name string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
