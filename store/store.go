package store

import (
	"context"
	"time"

	"github.com/xraph/tollgate/client"
	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/relay"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
)

// Store is the unified storage interface for all Tollgate entities.
// Methods are declared explicitly instead of embedding the per-entity
// interfaces, which share method names.
//
// Inserts on unique keys (relay idempotency key, telemetry event id, client
// api key) must fail with tollgate.ErrAlreadyExists on conflict. That error
// is the only concurrency control the gateway relies on.
type Store interface {
	// Device methods
	CreateDevice(ctx context.Context, d *device.Device) error
	GetDevice(ctx context.Context, deviceID string) (*device.Device, error)
	RefreshDevice(ctx context.Context, deviceID string, at time.Time) error

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	GetActiveSubscription(ctx context.Context, deviceID string, at time.Time) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, deviceID string, opts subscription.ListOpts) ([]*subscription.Subscription, error)

	// Client methods
	CreateClient(ctx context.Context, c *client.Client) error
	GetClient(ctx context.Context, clientID string) (*client.Client, error)
	GetClientByAPIKey(ctx context.Context, apiKey string) (*client.Client, error)

	// Relay methods
	CreateRelay(ctx context.Context, r *relay.Record) error
	GetRelay(ctx context.Context, relayID id.RelayID) (*relay.Record, error)
	GetRelayByKey(ctx context.Context, idempotencyKey string) (*relay.Record, error)
	CompleteRelay(ctx context.Context, relayID id.RelayID, status relay.Status, at time.Time) error

	// Telemetry methods
	CreateTelemetry(ctx context.Context, r *telemetry.Record) error
	GetTelemetry(ctx context.Context, telemetryID id.TelemetryID) (*telemetry.Record, error)
	GetTelemetryByEvent(ctx context.Context, eventID string) (*telemetry.Record, error)
	ListTelemetry(ctx context.Context, deviceID string, opts telemetry.ListOpts) ([]*telemetry.Record, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
