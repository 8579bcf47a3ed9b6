package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

	tollgate "github.com/xraph/tollgate"
	"github.com/xraph/tollgate/client"
	"github.com/xraph/tollgate/device"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/relay"
	tollgatestore "github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/telemetry"
)

// compile-time interface check
var _ tollgatestore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tollgate/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tollgate/postgres: migration failed: %w", err)
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
	res, err := s.pg.NewInsert(toDeviceModel(d)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return insertedOnce(res, err)
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (*device.Device, error) {
	m := new(deviceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", deviceID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrDeviceNotFound
		}
		return nil, err
	}
	return fromDeviceModel(m), nil
}

func (s *Store) RefreshDevice(ctx context.Context, deviceID string, at time.Time) error {
	res, err := s.pg.NewUpdate((*deviceModel)(nil)).
		Set("status = $1", string(device.StatusActive)).
		Set("updated_at = $2", at.UTC()).
		Where("id = $3", deviceID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tollgate.ErrDeviceNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.pg.NewInsert(toSubscriptionModel(sub)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return insertedOnce(res, err)
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, deviceID string, at time.Time) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("device_id = $1", deviceID).
		Where("status = $2", string(subscription.StatusActive)).
		Where("end_date >= $3", at.UTC()).
		OrderExpr("start_date DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrNoActiveSubscription
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, deviceID string, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models).Where("device_id = $1", deviceID)

	if opts.Status != "" {
		q = q.Where("status = $2", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("start_date DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.pg.NewInsert(toClientModel(c)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertedOnce(res, err)
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*client.Client, error) {
	m := new(clientModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", clientID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrClientNotFound
		}
		return nil, err
	}
	return fromClientModel(m), nil
}

func (s *Store) GetClientByAPIKey(ctx context.Context, apiKey string) (*client.Client, error) {
	m := new(clientModel)
	err := s.pg.NewSelect(m).
		Where("api_key = $1", apiKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrClientNotFound
		}
		return nil, err
	}
	return fromClientModel(m), nil
}

// ==================== Relay Store ====================

// CreateRelay relies on the unique idempotency_key index: a concurrent
// submission with the same key inserts nothing and reports ErrAlreadyExists.
func (s *Store) CreateRelay(ctx context.Context, r *relay.Record) error {
	res, err := s.pg.NewInsert(toRelayModel(r)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertedOnce(res, err)
}

func (s *Store) GetRelay(ctx context.Context, relayID id.RelayID) (*relay.Record, error) {
	m := new(relayModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", relayID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrRelayNotFound
		}
		return nil, err
	}
	return fromRelayModel(m)
}

func (s *Store) GetRelayByKey(ctx context.Context, idempotencyKey string) (*relay.Record, error) {
	m := new(relayModel)
	err := s.pg.NewSelect(m).
		Where("idempotency_key = $1", idempotencyKey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrRelayNotFound
		}
		return nil, err
	}
	return fromRelayModel(m)
}

// CompleteRelay moves a PENDING record to a terminal status. The update is
// conditional on the current status so a record is completed at most once.
func (s *Store) CompleteRelay(ctx context.Context, relayID id.RelayID, status relay.Status, at time.Time) error {
	if !relay.StatusPending.CanTransition(status) {
		return tollgate.ErrInvalidTransition
	}

	t := at.UTC()
	res, err := s.pg.NewUpdate((*relayModel)(nil)).
		Set("status = $1", string(status)).
		Set("last_attempt = $2", t).
		Set("updated_at = $3", t).
		Where("id = $4", relayID.String()).
		Where("status = $5", string(relay.StatusPending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetRelay(ctx, relayID); err != nil {
			return err
		}
		return tollgate.ErrInvalidTransition
	}
	return nil
}

// ==================== Telemetry Store ====================

func (s *Store) CreateTelemetry(ctx context.Context, r *telemetry.Record) error {
	res, err := s.pg.NewInsert(toTelemetryModel(r)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertedOnce(res, err)
}

func (s *Store) GetTelemetry(ctx context.Context, telemetryID id.TelemetryID) (*telemetry.Record, error) {
	m := new(telemetryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", telemetryID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrTelemetryNotFound
		}
		return nil, err
	}
	return fromTelemetryModel(m)
}

func (s *Store) GetTelemetryByEvent(ctx context.Context, eventID string) (*telemetry.Record, error) {
	m := new(telemetryModel)
	err := s.pg.NewSelect(m).
		Where("event_id = $1", eventID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tollgate.ErrTelemetryNotFound
		}
		return nil, err
	}
	return fromTelemetryModel(m)
}

func (s *Store) ListTelemetry(ctx context.Context, deviceID string, opts telemetry.ListOpts) ([]*telemetry.Record, error) {
	var models []telemetryModel
	q := s.pg.NewSelect(&models).Where("device_id = $1", deviceID)

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("ts DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

type affected interface {
	RowsAffected() (int64, error)
}

// insertedOnce maps an ON CONFLICT DO NOTHING insert that touched no rows
// to ErrAlreadyExists.
func insertedOnce(res affected, err error) error {
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tollgate.ErrAlreadyExists
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
