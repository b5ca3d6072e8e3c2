package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"zvision-console/internal/backend"
)

type Config struct {
	Port           int
	BackendURL     string
	BackendTimeout time.Duration
	ConsoleSecret  string
	GinMode        string
	TLSCertFile    string
	TLSKeyFile     string
	SessionTTL     time.Duration
	StateFile      string
	CookieSecure   bool
	LoginRateLimit int
	LogLevel       string
	LogFormat      string
	Redis          RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:           3000,
		BackendURL:     backend.DefaultBaseURL,
		BackendTimeout: 10 * time.Second,
		GinMode:        "release",
		SessionTTL:     7 * 24 * time.Hour,
		LoginRateLimit: 10,
		LogLevel:       "info",
		LogFormat:      "console",
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.ConsoleSecret = env.Getenv("CONSOLE_SECRET")
	if cfg.ConsoleSecret == "" {
		return Config{}, fmt.Errorf("CONSOLE_SECRET is required")
	}

	if raw := env.Getenv("BACKEND_URL"); raw != "" {
		if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
			return Config{}, fmt.Errorf("invalid BACKEND_URL")
		}
		cfg.BackendURL = strings.TrimRight(raw, "/")
	}

	var err error
	if cfg.BackendTimeout, err = seconds(env, "BACKEND_TIMEOUT_SECONDS", cfg.BackendTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = seconds(env, "SESSION_TTL_SECONDS", cfg.SessionTTL); err != nil {
		return Config{}, err
	}

	if raw := env.Getenv("LOGIN_RATE_LIMIT"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return Config{}, fmt.Errorf("invalid LOGIN_RATE_LIMIT")
		}
		cfg.LoginRateLimit = limit
	}

	if raw := env.Getenv("COOKIE_SECURE"); raw != "" {
		secure, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid COOKIE_SECURE")
		}
		cfg.CookieSecure = secure
	}

	cfg.GinMode, _ = lo.Coalesce(env.Getenv("GIN_MODE"), cfg.GinMode)
	cfg.LogLevel, _ = lo.Coalesce(env.Getenv("LOG_LEVEL"), cfg.LogLevel)
	cfg.LogFormat, _ = lo.Coalesce(env.Getenv("LOG_FORMAT"), cfg.LogFormat)
	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")
	cfg.StateFile = env.Getenv("STATE_FILE")

	cfg.Redis.Addr = env.Getenv("REDIS_ADDR")
	cfg.Redis.Password = env.Getenv("REDIS_PASSWORD")
	if raw := env.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil || db < 0 {
			return Config{}, fmt.Errorf("invalid REDIS_DB")
		}
		cfg.Redis.DB = db
	}

	return cfg, nil
}

func seconds(env Env, key string, fallback time.Duration) (time.Duration, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return time.Duration(n) * time.Second, nil
}
