// Package extension provides the Forge extension adapter for Tollgate.
//
// It implements the forge.Extension interface to integrate the gateway
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tollgate" or "tollgate" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/api"
	"github.com/xraph/tollgate/retry"
	"github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tollgate"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Entitlement-gated ingestion and relay gateway"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Tollgate as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	gateway     *tollgate.Gateway
	server      *api.Server
	store       store.Store
	gatewayOpts []tollgate.Option
	apiOpts     []api.Option
}

// New creates a new Tollgate Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Gateway returns the underlying gateway.
// This is nil until Register is called.
func (e *Extension) Gateway() *tollgate.Gateway { return e.gateway }

// Server returns the HTTP server, or nil when routes are disabled.
func (e *Extension) Server() *api.Server { return e.server }

// Register implements [forge.Extension]. It loads configuration,
// initializes the gateway, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.gateway = tollgate.New(e.store, e.buildGatewayOpts()...)

	if err := vessel.Provide(fapp.Container(), func() (*tollgate.Gateway, error) {
		return e.gateway, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}

	e.server = api.NewServer(e.gateway, e.buildAPIOpts()...)
	return vessel.Provide(fapp.Container(), func() (*api.Server, error) {
		return e.server, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.gateway == nil {
		return errors.New("tollgate: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.gateway.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.gateway != nil {
		if err := e.gateway.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tollgate: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildGatewayOpts constructs tollgate.Option values from the resolved config.
func (e *Extension) buildGatewayOpts() []tollgate.Option {
	opts := make([]tollgate.Option, 0, len(e.gatewayOpts)+2)

	opts = append(opts,
		tollgate.WithRelayTimeout(e.config.RelayTimeout),
		tollgate.WithRetryPolicy(retry.Policy{
			MaxAttempts: e.config.RetryMaxAttempts,
			BaseDelay:   e.config.RetryBaseDelay,
			MaxDelay:    e.config.RetryMaxDelay,
		}),
	)

	// Pass-through options are applied last so they win.
	return append(opts, e.gatewayOpts...)
}

func (e *Extension) buildAPIOpts() []api.Option {
	opts := []api.Option{api.WithRateLimits(e.config.RateLimitTelemetry, e.config.RateLimitRelay)}
	return append(opts, e.apiOpts...)
}

// ──────────────────────────────────────────────────
// Config loading
// ──────────────────────────────────────────────────

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tollgate: configuration is required but not found in config files; " +
				"ensure 'extensions.tollgate' or 'tollgate' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tollgate: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("relay_timeout", e.config.RelayTimeout),
		forge.F("retry_max_attempts", e.config.RetryMaxAttempts),
		forge.F("rate_limit_telemetry", e.config.RateLimitTelemetry),
		forge.F("rate_limit_relay", e.config.RateLimitRelay),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.tollgate", "tollgate"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("tollgate: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("tollgate: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults. Negative rate
// limits survive and disable the limiter.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.RelayTimeout == 0 {
		cfg.RelayTimeout = defaults.RelayTimeout
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = defaults.RetryMaxAttempts
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = defaults.RetryMaxDelay
	}
	if cfg.RateLimitTelemetry == 0 {
		cfg.RateLimitTelemetry = defaults.RateLimitTelemetry
	}
	if cfg.RateLimitRelay == 0 {
		cfg.RateLimitRelay = defaults.RateLimitRelay
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.RelayTimeout == 0 {
		yamlConfig.RelayTimeout = programmaticConfig.RelayTimeout
	}
	if yamlConfig.RetryMaxAttempts == 0 {
		yamlConfig.RetryMaxAttempts = programmaticConfig.RetryMaxAttempts
	}
	if yamlConfig.RetryBaseDelay == 0 {
		yamlConfig.RetryBaseDelay = programmaticConfig.RetryBaseDelay
	}
	if yamlConfig.RetryMaxDelay == 0 {
		yamlConfig.RetryMaxDelay = programmaticConfig.RetryMaxDelay
	}
	if yamlConfig.RateLimitTelemetry == 0 {
		yamlConfig.RateLimitTelemetry = programmaticConfig.RateLimitTelemetry
	}
	if yamlConfig.RateLimitRelay == 0 {
		yamlConfig.RateLimitRelay = programmaticConfig.RateLimitRelay
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
