// Package observability provides a metrics plugin for Tollgate that counts
// gateway lifecycle events through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementChecked  = (*MetricsExtension)(nil)
	_ plugin.OnTelemetryIngested   = (*MetricsExtension)(nil)
	_ plugin.OnTelemetryRejected   = (*MetricsExtension)(nil)
	_ plugin.OnRelayPublished      = (*MetricsExtension)(nil)
	_ plugin.OnRelayDelivered      = (*MetricsExtension)(nil)
	_ plugin.OnRelayFailed         = (*MetricsExtension)(nil)
	_ plugin.OnRelayRetried        = (*MetricsExtension)(nil)
	_ plugin.OnReplay              = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records gateway-wide lifecycle metrics.
// Register it as a Tollgate plugin to track ingestion, relay and billing.
type MetricsExtension struct {
	factory MetricFactory

	// Entitlement metrics
	EntitlementChecks Counter
	EntitlementDenied Counter

	// Telemetry metrics
	TelemetryIngested Counter
	TelemetryRejected Counter
	TelemetryReplayed Counter

	// Relay metrics
	RelayPublished     Counter
	RelayDelivered     Counter
	RelayFailed        Counter
	RelayRetries       Counter
	RelayReplayed      Counter
	RelayAttempts      Histogram
	RelayBackoffMillis Histogram

	// Billing metrics
	SubscriptionCreated Counter
	PaymentFailed       Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		EntitlementChecks: factory.Counter("tollgate.entitlement.checks"),
		EntitlementDenied: factory.Counter("tollgate.entitlement.denied"),

		TelemetryIngested: factory.Counter("tollgate.telemetry.ingested"),
		TelemetryRejected: factory.Counter("tollgate.telemetry.rejected"),
		TelemetryReplayed: factory.Counter("tollgate.telemetry.replayed"),

		RelayPublished:     factory.Counter("tollgate.relay.published"),
		RelayDelivered:     factory.Counter("tollgate.relay.delivered"),
		RelayFailed:        factory.Counter("tollgate.relay.failed"),
		RelayRetries:       factory.Counter("tollgate.relay.retries"),
		RelayReplayed:      factory.Counter("tollgate.relay.replayed"),
		RelayAttempts:      factory.Histogram("tollgate.relay.attempts"),
		RelayBackoffMillis: factory.Histogram("tollgate.relay.backoff_ms"),

		SubscriptionCreated: factory.Counter("tollgate.subscription.created"),
		PaymentFailed:       factory.Counter("tollgate.payment.failed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnEntitlementChecked(_ context.Context, d *entitlement.Decision) error {
	m.EntitlementChecks.Inc()
	if !d.Allowed {
		m.EntitlementDenied.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Telemetry hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnTelemetryIngested(_ context.Context, _ *telemetry.Record) error {
	m.TelemetryIngested.Inc()
	return nil
}

func (m *MetricsExtension) OnTelemetryRejected(_ context.Context, _, _ string) error {
	m.TelemetryRejected.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Relay hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnRelayPublished(_ context.Context, _ *relay.Record) error {
	m.RelayPublished.Inc()
	return nil
}

func (m *MetricsExtension) OnRelayDelivered(_ context.Context, _ *relay.Record, attempts int) error {
	m.RelayDelivered.Inc()
	m.RelayAttempts.Observe(float64(attempts))
	return nil
}

func (m *MetricsExtension) OnRelayFailed(_ context.Context, _ *relay.Record, attempts int, _ error) error {
	m.RelayFailed.Inc()
	m.RelayAttempts.Observe(float64(attempts))
	return nil
}

func (m *MetricsExtension) OnRelayRetried(_ context.Context, _ string, _ int, delay time.Duration, _ error) error {
	m.RelayRetries.Inc()
	m.RelayBackoffMillis.Observe(float64(delay.Milliseconds()))
	return nil
}

// OnReplay implements plugin.OnReplay.
func (m *MetricsExtension) OnReplay(_ context.Context, keyspace, _ string) error {
	switch keyspace {
	case "relay":
		m.RelayReplayed.Inc()
	case "telemetry":
		m.TelemetryReplayed.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	return nil
}

func (m *MetricsExtension) OnPaymentFailed(_ context.Context, _, _ string, _ error) error {
	m.PaymentFailed.Inc()
	return nil
}
