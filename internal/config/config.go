package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort            = "8080"
	defaultAccessTTL       = "15m"
	defaultRefreshTTL      = "168h"
	defaultStoreTimeout    = "500ms"
	defaultGuardAttempts   = "5"
	defaultGuardBlock      = "15m"
	defaultLockTTL         = "5s"
	defaultIdempotencyTTL  = "24h"
	defaultGeneralCap      = "100"
	defaultGeneralWindow   = "15m"
	defaultAuthCap         = "10"
	defaultAuthWindow      = "15m"
	defaultWriteCap        = "10"
	defaultWriteWindow     = "1m"
	defaultAccessSecret    = "change-me-access-secret"
	defaultRefreshSecret   = "change-me-refresh-secret"
	defaultTokenIssuer     = "storeapi"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StoreTimeout  time.Duration

	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	TokenIssuer   string

	GuardMaxAttempts   int
	GuardBlockDuration time.Duration

	LockTTL        time.Duration
	IdempotencyTTL time.Duration

	RateGeneralCap    int
	RateGeneralWindow time.Duration
	RateAuthCap       int
	RateAuthWindow    time.Duration
	RateWriteCap      int
	RateWriteWindow   time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.Port = strings.TrimSpace(getEnv("PORT", defaultPort))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", "storeapi.db"))

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.AccessSecret = strings.TrimSpace(getEnv("JWT_ACCESS_SECRET", defaultAccessSecret))
	cfg.RefreshSecret = strings.TrimSpace(getEnv("JWT_REFRESH_SECRET", defaultRefreshSecret))
	cfg.TokenIssuer = strings.TrimSpace(getEnv("TOKEN_ISSUER", defaultTokenIssuer))

	var err error
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = parseDurationEnv("STORE_TIMEOUT", defaultStoreTimeout); err != nil {
		return nil, err
	}
	if cfg.AccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", defaultAccessTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTTL, err = parseDurationEnv("JWT_REFRESH_TTL", defaultRefreshTTL); err != nil {
		return nil, err
	}
	if cfg.GuardMaxAttempts, err = parseIntEnv("LOGIN_MAX_ATTEMPTS", defaultGuardAttempts); err != nil {
		return nil, err
	}
	if cfg.GuardBlockDuration, err = parseDurationEnv("LOGIN_BLOCK_DURATION", defaultGuardBlock); err != nil {
		return nil, err
	}
	if cfg.LockTTL, err = parseDurationEnv("REQUEST_LOCK_TTL", defaultLockTTL); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return nil, err
	}
	if cfg.RateGeneralCap, err = parseIntEnv("RATE_GENERAL_CAP", defaultGeneralCap); err != nil {
		return nil, err
	}
	if cfg.RateGeneralWindow, err = parseDurationEnv("RATE_GENERAL_WINDOW", defaultGeneralWindow); err != nil {
		return nil, err
	}
	if cfg.RateAuthCap, err = parseIntEnv("RATE_AUTH_CAP", defaultAuthCap); err != nil {
		return nil, err
	}
	if cfg.RateAuthWindow, err = parseDurationEnv("RATE_AUTH_WINDOW", defaultAuthWindow); err != nil {
		return nil, err
	}
	if cfg.RateWriteCap, err = parseIntEnv("RATE_WRITE_CAP", defaultWriteCap); err != nil {
		return nil, err
	}
	if cfg.RateWriteWindow, err = parseDurationEnv("RATE_WRITE_WINDOW", defaultWriteWindow); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.AccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return fmt.Errorf("JWT_REFRESH_TTL must exceed JWT_ACCESS_TTL")
	}
	if cfg.GuardMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be > 0")
	}
	if cfg.LockTTL <= 0 {
		return fmt.Errorf("REQUEST_LOCK_TTL must be > 0")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.AccessSecret, defaultAccessSecret) {
			return fmt.Errorf("in prod/release JWT_ACCESS_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.RefreshSecret, defaultRefreshSecret) {
			return fmt.Errorf("in prod/release JWT_REFRESH_SECRET must be set and not default")
		}
	}

	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
