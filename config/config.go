// Package config loads the tollgate service configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config is the service configuration.
type Config struct {
	Host    string
	Port    int
	BaseURL string

	StoreDriver string
	// DatabaseURL is the driver DSN. SQLite DSNs get busy_timeout(5000)
	// and journal_mode(WAL) pragmas unless they set their own.
	DatabaseURL string
	RedisURL    string

	RelayTimeout     time.Duration
	RetryMaxAttempts int

	RateLimitTelemetry int
	RateLimitRelay     int

	MockPayFailureRate   float64
	MockRelayFailureRate float64

	LogLevel  string
	LogFormat string

	MetricsEnabled bool
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		Host:                 "0.0.0.0",
		Port:                 8080,
		StoreDriver:          DriverMemory,
		RelayTimeout:         5 * time.Second,
		RetryMaxAttempts:     3,
		RateLimitTelemetry:   50,
		RateLimitRelay:       50,
		MockPayFailureRate:   0.2,
		MockRelayFailureRate: 0.1,
		LogLevel:             "info",
		LogFormat:            "json",
		MetricsEnabled:       true,
	}
}

// Load reads envFiles (missing files are skipped) into the process
// environment without overriding variables already set, then builds the
// configuration with LoadFromEnv.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return LoadFromEnv(os.LookupEnv)
}

// LoadFromEnv builds the configuration from lookup, applies defaults and
// validates the result.
func LoadFromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	e := env{lookup: lookup}

	cfg.Host = e.str("HOST", cfg.Host)
	cfg.Port = e.int("PORT", cfg.Port)
	cfg.BaseURL = e.str("BASE_URL", cfg.BaseURL)
	cfg.StoreDriver = strings.ToLower(e.str("STORE_DRIVER", cfg.StoreDriver))
	cfg.DatabaseURL = e.str("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = e.str("REDIS_URL", cfg.RedisURL)
	cfg.RelayTimeout = e.duration("RELAY_TIMEOUT", cfg.RelayTimeout)
	cfg.RetryMaxAttempts = e.int("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts)
	cfg.RateLimitTelemetry = e.int("RATE_LIMIT_TELEMETRY", cfg.RateLimitTelemetry)
	cfg.RateLimitRelay = e.int("RATE_LIMIT_RELAY", cfg.RateLimitRelay)
	cfg.MockPayFailureRate = e.float("MOCK_PAY_FAILURE_RATE", cfg.MockPayFailureRate)
	cfg.MockRelayFailureRate = e.float("MOCK_RELAY_FAILURE_RATE", cfg.MockRelayFailureRate)
	cfg.LogLevel = strings.ToLower(e.str("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(e.str("LOG_FORMAT", cfg.LogFormat))
	cfg.MetricsEnabled = e.bool("METRICS_ENABLED", cfg.MetricsEnabled)

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + net.JoinHostPort(localHost(cfg.Host), strconv.Itoa(cfg.Port))
	}

	if len(e.errs) > 0 {
		return cfg, errors.Join(e.errs...)
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges and driver requirements.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("config: BASE_URL: %w", err))
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres, DriverMongo:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("config: DATABASE_URL is required for store driver %q", c.StoreDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.RelayTimeout <= 0 {
		errs = append(errs, errors.New("config: RELAY_TIMEOUT must be positive"))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, errors.New("config: RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.RateLimitTelemetry < 0 || c.RateLimitRelay < 0 {
		errs = append(errs, errors.New("config: rate limits must not be negative"))
	}
	for name, p := range map[string]float64{
		"MOCK_PAY_FAILURE_RATE":   c.MockPayFailureRate,
		"MOCK_RELAY_FAILURE_RATE": c.MockRelayFailureRate,
	} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("config: %s must be within [0, 1], got %v", name, p))
		}
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("config: LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ParseLevel maps LOG_LEVEL onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return l, nil
}

func localHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "localhost"
	}
	return host
}

// env reads typed variables and collects parse failures.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return f
}

func (e *env) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return b
}

// duration accepts Go durations ("5s") or bare milliseconds ("5000").
func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return d
}
