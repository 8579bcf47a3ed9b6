package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
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

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tollgate/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tollgate/sqlite: migration failed: %w", err)
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
	res, err := s.sdb.NewInsert(toDeviceModel(d)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return insertedOnce(res, err)
}

func (s *Store) GetDevice(ctx context.Context, deviceID string) (*device.Device, error) {
	m := new(deviceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", deviceID).
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
	res, err := s.sdb.NewUpdate((*deviceModel)(nil)).
		Set("status = ?", string(device.StatusActive)).
		Set("updated_at = ?", unixNano(at)).
		Where("id = ?", deviceID).
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
	res, err := s.sdb.NewInsert(toSubscriptionModel(sub)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return insertedOnce(res, err)
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("device_id = ?", deviceID).
		Where("status = ?", string(subscription.StatusActive)).
		Where("end_date >= ?", unixNano(at)).
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
	q := s.sdb.NewSelect(&models).Where("device_id = ?", deviceID)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
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
	res, err := s.sdb.NewInsert(toClientModel(c)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertedOnce(res, err)
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*client.Client, error) {
	m := new(clientModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", clientID).
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
	err := s.sdb.NewSelect(m).
		Where("api_key = ?", apiKey).
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
	res, err := s.sdb.NewInsert(toRelayModel(r)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertedOnce(res, err)
}

func (s *Store) GetRelay(ctx context.Context, relayID id.RelayID) (*relay.Record, error) {
	m := new(relayModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", relayID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("idempotency_key = ?", idempotencyKey).
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

	t := unixNano(at)
	res, err := s.sdb.NewUpdate((*relayModel)(nil)).
		Set("status = ?", string(status)).
		Set("last_attempt = ?", t).
		Set("updated_at = ?", t).
		Where("id = ?", relayID.String()).
		Where("status = ?", string(relay.StatusPending)).
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
	res, err := s.sdb.NewInsert(toTelemetryModel(r)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	return insertedOnce(res, err)
}

func (s *Store) GetTelemetry(ctx context.Context, telemetryID id.TelemetryID) (*telemetry.Record, error) {
	m := new(telemetryModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", telemetryID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("event_id = ?", eventID).
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
	q := s.sdb.NewSelect(&models).Where("device_id = ?", deviceID)

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
