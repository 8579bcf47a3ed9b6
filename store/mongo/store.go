package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/client"
	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/relay"
	tollgatestore "github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
)

// Collection name constants.
const (
	colDevices       = "tollgate_devices"
	colSubscriptions = "tollgate_subscriptions"
	colClients       = "tollgate_clients"
	colRelays        = "tollgate_relay_records"
	colTelemetry     = "tollgate_telemetry_records"
)

// compile-time interface check
var _ tollgatestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tollgate collections. The unique indexes
// are what make idempotent inserts safe across gateway replicas.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("tollgate/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Device Store ====================

func (s *Store) CreateDevice(ctx context.Context, d *device.Device) error {
	_, err := s.mdb.NewInsert(toDeviceModel(d)).Exec(ctx)
	if err != nil {
		return insertErr("create device", err)
	}
	return nil
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (*device.Device, error) {
	var m deviceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": deviceID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tollgate.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get device: %w", err)
	}
	return fromDeviceModel(&m), nil
}

func (s *Store) RefreshDevice(ctx context.Context, deviceID string, at time.Time) error {
	res, err := s.mdb.NewUpdate((*deviceModel)(nil)).
		Filter(bson.M{"_id": deviceID}).
		Set("status", string(device.StatusActive)).
		Set("updated_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tollgate/mongo: refresh device: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tollgate.ErrDeviceNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.mdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		return insertErr("create subscription", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tollgate.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, deviceID string, at time.Time) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"device_id": deviceID,
			"status":    string(subscription.StatusActive),
			"end_date":  bson.M{"$gte": at.UTC()},
		}).
		Sort(bson.D{{Key: "start_date", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tollgate.ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("tollgate/mongo: get active subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, deviceID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{"device_id": deviceID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "start_date", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tollgate/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// ==================== Client Store ====================

func (s *Store) CreateClient(ctx context.Context, c *client.Client) error {
	_, err := s.mdb.NewInsert(toClientModel(c)).Exec(ctx)
	if err != nil {
		return insertErr("create client", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*client.Client, error) {
	return s.findClient(ctx, bson.M{"_id": clientID})
}

func (s *Store) GetClientByAPIKey(ctx context.Context, apiKey string) (*client.Client, error) {
	return s.findClient(ctx, bson.M{"api_key": apiKey})
}

func (s *Store) findClient(ctx context.Context, filter bson.M) (*client.Client, error) {
	var m clientModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tollgate.ErrClientNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get client: %w", err)
	}
	return fromClientModel(&m), nil
}

// ==================== Relay Store ====================

func (s *Store) CreateRelay(ctx context.Context, r *relay.Record) error {
	_, err := s.mdb.NewInsert(toRelayModel(r)).Exec(ctx)
	if err != nil {
		return insertErr("create relay", err)
	}
	return nil
}

func (s *Store) GetRelay(ctx context.Context, relayID id.RelayID) (*relay.Record, error) {
	return s.findRelay(ctx, bson.M{"_id": relayID.String()})
}

func (s *Store) GetRelayByKey(ctx context.Context, idempotencyKey string) (*relay.Record, error) {
	return s.findRelay(ctx, bson.M{"idempotency_key": idempotencyKey})
}

func (s *Store) findRelay(ctx context.Context, filter bson.M) (*relay.Record, error) {
	var m relayModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tollgate.ErrRelayNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get relay: %w", err)
	}
	return fromRelayModel(&m)
}

func (s *Store) CompleteRelay(ctx context.Context, relayID id.RelayID, status relay.Status, at time.Time) error {
	if !relay.StatusPending.CanTransition(status) {
		return tollgate.ErrInvalidTransition
	}

	t := at.UTC()
	res, err := s.mdb.NewUpdate((*relayModel)(nil)).
		Filter(bson.M{"_id": relayID.String(), "status": string(relay.StatusPending)}).
		Set("status", string(status)).
		Set("last_attempt", t).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tollgate/mongo: complete relay: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetRelay(ctx, relayID); err != nil {
			return err
		}
		return tollgate.ErrInvalidTransition
	}
	return nil
}

// ==================== Telemetry Store ====================

func (s *Store) CreateTelemetry(ctx context.Context, r *telemetry.Record) error {
	_, err := s.mdb.NewInsert(toTelemetryModel(r)).Exec(ctx)
	if err != nil {
		return insertErr("create telemetry", err)
	}
	return nil
}

func (s *Store) GetTelemetry(ctx context.Context, telemetryID id.TelemetryID) (*telemetry.Record, error) {
	return s.findTelemetry(ctx, bson.M{"_id": telemetryID.String()})
}

func (s *Store) GetTelemetryByEvent(ctx context.Context, eventID string) (*telemetry.Record, error) {
	return s.findTelemetry(ctx, bson.M{"event_id": eventID})
}

func (s *Store) findTelemetry(ctx context.Context, filter bson.M) (*telemetry.Record, error) {
	var m telemetryModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tollgate.ErrTelemetryNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get telemetry: %w", err)
	}
	return fromTelemetryModel(&m)
}

func (s *Store) ListTelemetry(ctx context.Context, deviceID string, opts telemetry.ListOpts) ([]*telemetry.Record, error) {
	var models []telemetryModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"device_id": deviceID}).
		Sort(bson.D{{Key: "ts", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tollgate/mongo: list telemetry: %w", err)
	}

	result := make([]*telemetry.Record, len(models))
	for i := range models {
		rec, err := fromTelemetryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = rec
	}
	return result, nil
}

// ==================== Helpers ====================

// insertErr maps duplicate-key failures to ErrAlreadyExists.
func insertErr(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return tollgate.ErrAlreadyExists
	}
	return fmt.Errorf("tollgate/mongo: %s: %w", op, err)
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tollgate collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colDevices: {},
		colSubscriptions: {
			{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "status", Value: 1}, {Key: "end_date", Value: -1}}},
			{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "start_date", Value: -1}}},
		},
		colClients: {
			{
				Keys:    bson.D{{Key: "api_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colRelays: {
			{
				Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colTelemetry: {
			{
				Keys:    bson.D{{Key: "event_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "ts", Value: -1}}},
		},
	}
}
