package tollgate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/tollgate/idempotency"
	"github.com/xraph/tollgate/payment"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/receiver"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/retry"
	"github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/telemetry"
)

// Keyspace names reported to plugins and used as cache namespaces.
const (
	KeyspaceRelay     = "relay"
	KeyspaceTelemetry = "telemetry"
)

// DefaultRelayTimeout bounds a single delivery attempt.
const DefaultRelayTimeout = 5 * time.Second

// DefaultCacheTTL is how long terminal outcomes stay in the idempotency cache.
const DefaultCacheTTL = 24 * time.Hour

// Gateway is the ingestion and relay engine.
type Gateway struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	catalog  *plan.Catalog
	payments payment.Provider
	receiver receiver.Receiver

	retryPolicy  retry.Policy
	relayTimeout time.Duration

	cache    idempotency.Cache
	cacheTTL time.Duration

	relays idempotency.Keyspace[*relay.Record]
	events idempotency.Keyspace[*telemetry.Record]

	now    func() time.Time
	newKey func() string

	// Background snapshot refreshes started by Subscribe.
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a new Gateway over s.
func New(s store.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:        s,
		plugins:      plugin.NewRegistry(),
		logger:       slog.Default(),
		catalog:      plan.DefaultCatalog(),
		payments:     payment.NewSimulator(nil),
		receiver:     receiver.NewSimulator(nil),
		retryPolicy:  retry.DefaultPolicy(),
		relayTimeout: DefaultRelayTimeout,
		cacheTTL:     DefaultCacheTTL,
		now:          time.Now,
		newKey:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(g)
	}

	g.relays = idempotency.Keyspace[*relay.Record]{
		Name:         KeyspaceRelay,
		Find:         g.store.GetRelayByKey,
		IsAbsent:     IsNotFound,
		IsConflict:   isConflict,
		Cache:        g.cache,
		CacheTTL:     g.cacheTTL,
		Cacheable:    func(r *relay.Record) bool { return r.Status.Terminal() },
		OnCacheError: g.cacheError,
	}
	g.events = idempotency.Keyspace[*telemetry.Record]{
		Name:         KeyspaceTelemetry,
		Find:         g.store.GetTelemetryByEvent,
		IsAbsent:     IsNotFound,
		IsConflict:   isConflict,
		Cache:        g.cache,
		CacheTTL:     g.cacheTTL,
		OnCacheError: g.cacheError,
	}

	return g
}

// Option configures a Gateway instance.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
		g.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(g *Gateway) {
		_ = g.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCatalog sets the plan catalog used to price subscriptions.
func WithCatalog(c *plan.Catalog) Option {
	return func(g *Gateway) { g.catalog = c }
}

// WithPaymentProvider sets the payment collaborator.
func WithPaymentProvider(p payment.Provider) Option {
	return func(g *Gateway) { g.payments = p }
}

// WithReceiver sets the downstream relay collaborator.
func WithReceiver(r receiver.Receiver) Option {
	return func(g *Gateway) { g.receiver = r }
}

// WithRetryPolicy sets the delivery retry policy. Zero fields keep their
// defaults. Policy.OnRetry is chained after the gateway's own hook.
func WithRetryPolicy(p retry.Policy) Option {
	return func(g *Gateway) { g.retryPolicy = p }
}

// WithRelayTimeout bounds each delivery attempt.
func WithRelayTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.relayTimeout = d
		}
	}
}

// WithIdempotencyCache puts c in front of the store for replay lookups.
func WithIdempotencyCache(c idempotency.Cache, ttl time.Duration) Option {
	return func(g *Gateway) {
		g.cache = c
		if ttl > 0 {
			g.cacheTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithKeyGenerator overrides how missing idempotency keys are generated.
func WithKeyGenerator(fn func() string) Option {
	return func(g *Gateway) { g.newKey = fn }
}

// Start migrates the store and initializes plugins.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.store.Migrate(ctx); err != nil {
		return err
	}

	g.plugins.EmitInit(ctx, g)

	g.logger.Info("tollgate started",
		"plugins", g.plugins.Count(),
		"relay_timeout", g.relayTimeout,
		"retry_max_attempts", g.retryPolicy.MaxAttempts,
		"cache", g.cache != nil,
	)

	return nil
}

// Stop waits for background refreshes, shuts plugins down and closes the
// store. Calling Stop more than once is a no-op.
func (g *Gateway) Stop() error {
	var err error
	g.stopOnce.Do(func() {
		g.wg.Wait()

		g.plugins.EmitShutdown(context.Background())

		err = g.store.Close()
	})
	return err
}

// Store returns the underlying store.
func (g *Gateway) Store() store.Store { return g.store }

// Plugins returns the plugin registry.
func (g *Gateway) Plugins() *plugin.Registry { return g.plugins }

// Catalog returns the plan catalog.
func (g *Gateway) Catalog() *plan.Catalog { return g.catalog }

// Ping checks that the store is reachable.
func (g *Gateway) Ping(ctx context.Context) error { return g.store.Ping(ctx) }

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func isConflict(err error) bool { return errors.Is(err, ErrAlreadyExists) }

func (g *Gateway) cacheError(err error) {
	g.logger.Warn("idempotency cache unavailable", "error", err)
}

// refreshDevice marks the device seen now and forces it ACTIVE.
func (g *Gateway) refreshDevice(ctx context.Context, deviceID string) error {
	return g.store.RefreshDevice(ctx, deviceID, g.now())
}
