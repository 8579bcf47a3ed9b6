package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
)

// DefaultHookTimeout bounds a single plugin call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and dispatches gateway events.
// Hook implementations are cached per interface at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                []OnInit
	onShutdown            []OnShutdown
	onEntitlementChecked  []OnEntitlementChecked
	onTelemetryIngested   []OnTelemetryIngested
	onTelemetryRejected   []OnTelemetryRejected
	onRelayPublished      []OnRelayPublished
	onRelayDelivered      []OnRelayDelivered
	onRelayFailed         []OnRelayFailed
	onRelayRetried        []OnRelayRetried
	onReplay              []OnReplay
	onSubscriptionCreated []OnSubscriptionCreated
	onPaymentFailed       []OnPaymentFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout overrides the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnEntitlementChecked); ok {
		r.onEntitlementChecked = append(r.onEntitlementChecked, v)
	}
	if v, ok := p.(OnTelemetryIngested); ok {
		r.onTelemetryIngested = append(r.onTelemetryIngested, v)
	}
	if v, ok := p.(OnTelemetryRejected); ok {
		r.onTelemetryRejected = append(r.onTelemetryRejected, v)
	}
	if v, ok := p.(OnRelayPublished); ok {
		r.onRelayPublished = append(r.onRelayPublished, v)
	}
	if v, ok := p.(OnRelayDelivered); ok {
		r.onRelayDelivered = append(r.onRelayDelivered, v)
	}
	if v, ok := p.(OnRelayFailed); ok {
		r.onRelayFailed = append(r.onRelayFailed, v)
	}
	if v, ok := p.(OnRelayRetried); ok {
		r.onRelayRetried = append(r.onRelayRetried, v)
	}
	if v, ok := p.(OnReplay); ok {
		r.onReplay = append(r.onReplay, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnEntitlementChecked", reflect.TypeFor[OnEntitlementChecked]()},
	{"OnTelemetryIngested", reflect.TypeFor[OnTelemetryIngested]()},
	{"OnTelemetryRejected", reflect.TypeFor[OnTelemetryRejected]()},
	{"OnRelayPublished", reflect.TypeFor[OnRelayPublished]()},
	{"OnRelayDelivered", reflect.TypeFor[OnRelayDelivered]()},
	{"OnRelayFailed", reflect.TypeFor[OnRelayFailed]()},
	{"OnRelayRetried", reflect.TypeFor[OnRelayRetried]()},
	{"OnReplay", reflect.TypeFor[OnReplay]()},
	{"OnSubscriptionCreated", reflect.TypeFor[OnSubscriptionCreated]()},
	{"OnPaymentFailed", reflect.TypeFor[OnPaymentFailed]()},
}

// implementedInterfaces returns the hook names a plugin implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, gw any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error { return p.OnInit(ctx, gw) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error { return p.OnShutdown(ctx) })
	}
}

func (r *Registry) EmitEntitlementChecked(ctx context.Context, d *entitlement.Decision) {
	r.mu.RLock()
	plugins := r.onEntitlementChecked
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnEntitlementChecked", func() error { return p.OnEntitlementChecked(ctx, d) })
	}
}

func (r *Registry) EmitTelemetryIngested(ctx context.Context, rec *telemetry.Record) {
	r.mu.RLock()
	plugins := r.onTelemetryIngested
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnTelemetryIngested", func() error { return p.OnTelemetryIngested(ctx, rec) })
	}
}

func (r *Registry) EmitTelemetryRejected(ctx context.Context, deviceID, reason string) {
	r.mu.RLock()
	plugins := r.onTelemetryRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnTelemetryRejected", func() error { return p.OnTelemetryRejected(ctx, deviceID, reason) })
	}
}

func (r *Registry) EmitRelayPublished(ctx context.Context, rec *relay.Record) {
	r.mu.RLock()
	plugins := r.onRelayPublished
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnRelayPublished", func() error { return p.OnRelayPublished(ctx, rec) })
	}
}

func (r *Registry) EmitRelayDelivered(ctx context.Context, rec *relay.Record, attempts int) {
	r.mu.RLock()
	plugins := r.onRelayDelivered
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnRelayDelivered", func() error { return p.OnRelayDelivered(ctx, rec, attempts) })
	}
}

func (r *Registry) EmitRelayFailed(ctx context.Context, rec *relay.Record, attempts int, cause error) {
	r.mu.RLock()
	plugins := r.onRelayFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnRelayFailed", func() error { return p.OnRelayFailed(ctx, rec, attempts, cause) })
	}
}

// EmitRelayRetried is called from the retry executor's OnRetry callback.
func (r *Registry) EmitRelayRetried(ctx context.Context, relayID string, attempt int, delay time.Duration, cause error) {
	r.mu.RLock()
	plugins := r.onRelayRetried
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnRelayRetried", func() error { return p.OnRelayRetried(ctx, relayID, attempt, delay, cause) })
	}
}

func (r *Registry) EmitReplay(ctx context.Context, keyspace, key string) {
	r.mu.RLock()
	plugins := r.onReplay
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnReplay", func() error { return p.OnReplay(ctx, keyspace, key) })
	}
}

func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onSubscriptionCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnSubscriptionCreated", func() error { return p.OnSubscriptionCreated(ctx, sub) })
	}
}

func (r *Registry) EmitPaymentFailed(ctx context.Context, deviceID, planID string, cause error) {
	r.mu.RLock()
	plugins := r.onPaymentFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnPaymentFailed", func() error { return p.OnPaymentFailed(ctx, deviceID, planID, cause) })
	}
}

// ──────────────────────────────────────────────────
// Dispatch
// ──────────────────────────────────────────────────

// dispatch runs one hook call and logs its failure. Hook errors never
// reach the gateway caller.
func (r *Registry) dispatch(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block a request.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
