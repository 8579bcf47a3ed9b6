package extension

import (
	"time"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/api"
	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/store"
)

// Option configures the Tollgate Forge extension.
type Option func(*Extension)

// WithStore sets the store for the gateway.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGatewayOption passes a tollgate.Option through to the underlying gateway.
func WithGatewayOption(opt tollgate.Option) Option {
	return func(e *Extension) {
		e.gatewayOpts = append(e.gatewayOpts, opt)
	}
}

// WithAPIOption passes an api.Option through to the HTTP server.
func WithAPIOption(opt api.Option) Option {
	return func(e *Extension) {
		e.apiOpts = append(e.apiOpts, opt)
	}
}

// WithPlugin registers a gateway plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.gatewayOpts = append(e.gatewayOpts, tollgate.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes keeps the HTTP server out of the DI container.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithRelayTimeout bounds a single delivery attempt.
func WithRelayTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.RelayTimeout = d }
}

// WithRetry sets the delivery retry bounds.
func WithRetry(maxAttempts int, baseDelay, maxDelay time.Duration) Option {
	return func(e *Extension) {
		e.config.RetryMaxAttempts = maxAttempts
		e.config.RetryBaseDelay = baseDelay
		e.config.RetryMaxDelay = maxDelay
	}
}

// WithRateLimits sets the per-minute allowances of the HTTP routes.
func WithRateLimits(telemetryPerMinute, relayPerMinute int) Option {
	return func(e *Extension) {
		e.config.RateLimitTelemetry = telemetryPerMinute
		e.config.RateLimitRelay = relayPerMinute
	}
}
