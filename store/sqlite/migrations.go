package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tollgate store (SQLite).
var Migrations = migrate.NewGroup("tollgate")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tollgate_devices",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_devices (
    id         TEXT PRIMARY KEY,
    status     TEXT NOT NULL DEFAULT 'INACTIVE',
    created_at INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL DEFAULT 0
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_devices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_subscriptions",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_subscriptions (
    id           TEXT PRIMARY KEY,
    device_id    TEXT NOT NULL,
    plan_id      TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'ACTIVE',
    start_date   INTEGER NOT NULL,
    end_date     INTEGER NOT NULL,
    provider_ref TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL DEFAULT 0,
    updated_at   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tollgate_subs_device_status ON tollgate_subscriptions (device_id, status, end_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_clients",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_clients (
    id         TEXT PRIMARY KEY,
    api_key    TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'ACTIVE',
    created_at INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tollgate_clients_api_key ON tollgate_clients (api_key);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_clients`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_relay_records",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_relay_records (
    id              TEXT PRIMARY KEY,
    client_id       TEXT NOT NULL,
    message         TEXT NOT NULL,
    meta            TEXT NOT NULL DEFAULT '{}',
    idempotency_key TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'PENDING',
    last_attempt    INTEGER,
    created_at      INTEGER NOT NULL DEFAULT 0,
    updated_at      INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tollgate_relay_idempotency ON tollgate_relay_records (idempotency_key);
CREATE INDEX IF NOT EXISTS idx_tollgate_relay_client ON tollgate_relay_records (client_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_relay_records`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tollgate_telemetry_records",
			Version: "20260101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tollgate_telemetry_records (
    id         TEXT PRIMARY KEY,
    device_id  TEXT NOT NULL,
    metric     TEXT NOT NULL,
    value      TEXT NOT NULL,
    status     TEXT NOT NULL,
    ts         INTEGER NOT NULL,
    event_id   TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tollgate_telemetry_event ON tollgate_telemetry_records (event_id);
CREATE INDEX IF NOT EXISTS idx_tollgate_telemetry_device_ts ON tollgate_telemetry_records (device_id, ts);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tollgate_telemetry_records`)
				return err
			},
		},
	)
}
