package extension

import "time"

// Config holds the Tollgate extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tollgate" or "tollgate" keys).
type Config struct {
	// DisableRoutes prevents the HTTP server from being provided to the
	// DI container.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RelayTimeout bounds a single delivery attempt (default: 5s).
	RelayTimeout time.Duration `json:"relay_timeout" mapstructure:"relay_timeout" yaml:"relay_timeout"`

	// RetryMaxAttempts bounds delivery attempts per relay (default: 3).
	RetryMaxAttempts int `json:"retry_max_attempts" mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`

	// RetryBaseDelay is the wait before the second attempt (default: 1s).
	RetryBaseDelay time.Duration `json:"retry_base_delay" mapstructure:"retry_base_delay" yaml:"retry_base_delay"`

	// RetryMaxDelay caps the wait between attempts (default: 10s).
	RetryMaxDelay time.Duration `json:"retry_max_delay" mapstructure:"retry_max_delay" yaml:"retry_max_delay"`

	// RateLimitTelemetry and RateLimitRelay are per-minute allowances for
	// the HTTP routes (default: 50).
	RateLimitTelemetry int `json:"rate_limit_telemetry" mapstructure:"rate_limit_telemetry" yaml:"rate_limit_telemetry"`
	RateLimitRelay     int `json:"rate_limit_relay" mapstructure:"rate_limit_relay" yaml:"rate_limit_relay"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RelayTimeout:       5 * time.Second,
		RetryMaxAttempts:   3,
		RetryBaseDelay:     time.Second,
		RetryMaxDelay:      10 * time.Second,
		RateLimitTelemetry: 50,
		RateLimitRelay:     50,
	}
}
