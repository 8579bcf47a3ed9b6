// Package plugin provides an extensible plugin system for Tollgate.
// Plugins implement any subset of the hook interfaces below and are
// discovered by type assertion at registration.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/tollgate/entitlement"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the gateway starts. gw is the *tollgate.Gateway.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, gw any) error
}

// OnShutdown is called when the gateway stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked is called after every entitlement decision.
type OnEntitlementChecked interface {
	Plugin
	OnEntitlementChecked(ctx context.Context, decision *entitlement.Decision) error
}

// ──────────────────────────────────────────────────
// Telemetry hooks
// ──────────────────────────────────────────────────

// OnTelemetryIngested is called when a new telemetry record is persisted.
// Replays do not fire it.
type OnTelemetryIngested interface {
	Plugin
	OnTelemetryIngested(ctx context.Context, rec *telemetry.Record) error
}

// OnTelemetryRejected is called when a ping is refused by the gate.
type OnTelemetryRejected interface {
	Plugin
	OnTelemetryRejected(ctx context.Context, deviceID, reason string) error
}

// ──────────────────────────────────────────────────
// Relay hooks
// ──────────────────────────────────────────────────

// OnRelayPublished is called once the PENDING record has been claimed.
type OnRelayPublished interface {
	Plugin
	OnRelayPublished(ctx context.Context, rec *relay.Record) error
}

// OnRelayDelivered is called when the receiver accepted the message.
type OnRelayDelivered interface {
	Plugin
	OnRelayDelivered(ctx context.Context, rec *relay.Record, attempts int) error
}

// OnRelayFailed is called when the retry cycle gave up.
type OnRelayFailed interface {
	Plugin
	OnRelayFailed(ctx context.Context, rec *relay.Record, attempts int, cause error) error
}

// OnRelayRetried is called before each backoff wait.
type OnRelayRetried interface {
	Plugin
	OnRelayRetried(ctx context.Context, relayID string, attempt int, delay time.Duration, cause error) error
}

// OnReplay is called when an idempotency key resolves to an existing record.
// keyspace is "relay" or "telemetry".
type OnReplay interface {
	Plugin
	OnReplay(ctx context.Context, keyspace, key string) error
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called after a paid subscription is persisted.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnPaymentFailed is called when the payment provider declines a charge.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, deviceID, planID string, cause error) error
}
