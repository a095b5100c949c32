package storage

import (
	"database/sql"
	"fmt"
)

var sqliteMigrations = []string{
	// Migration 1: Initial schema
	`CREATE TABLE IF NOT EXISTS readings (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		device_id       TEXT NOT NULL,
		ts              INTEGER NOT NULL,
		consumption_kwh REAL NOT NULL,
		voltage_v       REAL NOT NULL DEFAULT 0,
		current_a       REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_readings_user_ts ON readings(user_id, ts);
	CREATE INDEX IF NOT EXISTS idx_readings_device_ts ON readings(user_id, device_id, ts);

	CREATE TABLE IF NOT EXISTS thresholds (
		user_id       TEXT NOT NULL,
		device_id     TEXT NOT NULL,
		daily_limit   REAL NOT NULL CHECK(daily_limit > 0),
		weekly_limit  REAL,
		monthly_limit REAL,
		updated_at    INTEGER NOT NULL,
		PRIMARY KEY (user_id, device_id)
	);

	CREATE TABLE IF NOT EXISTS budgets (
		user_id    TEXT PRIMARY KEY,
		budget_kwh REAL NOT NULL CHECK(budget_kwh >= 0),
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		device_id  TEXT NOT NULL DEFAULT '',
		reading_id TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL CHECK(kind IN ('BUDGET_EXCEEDED', 'DAILY_THRESHOLD', 'WEEKLY_THRESHOLD', 'MONTHLY_THRESHOLD')),
		message    TEXT NOT NULL,
		limit_kwh  REAL NOT NULL DEFAULT 0,
		value_kwh  REAL NOT NULL DEFAULT 0,
		ts         INTEGER NOT NULL,
		is_read    INTEGER NOT NULL DEFAULT 0,
		status     TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_user_ts ON alerts(user_id, ts);
	CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);

	CREATE TABLE IF NOT EXISTS predictions (
		id                    TEXT PRIMARY KEY,
		user_id               TEXT NOT NULL,
		device_id             TEXT NOT NULL,
		predicted_consumption REAL NOT NULL,
		confidence            REAL NOT NULL,
		recommendations       TEXT NOT NULL DEFAULT '[]',
		peak_hours            TEXT NOT NULL DEFAULT '[]',
		anomalous             INTEGER NOT NULL DEFAULT 0,
		sample_size           INTEGER NOT NULL DEFAULT 0,
		ts                    INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_predictions_device_ts ON predictions(user_id, device_id, ts);`,

	// Migration 2: Per-notifier delivery tracking
	`ALTER TABLE alerts ADD COLUMN delivered_to TEXT NOT NULL DEFAULT '[]';`,
}

var postgresMigrations = []string{
	// Migration 1: Initial schema
	`CREATE TABLE IF NOT EXISTS readings (
		seq             BIGSERIAL,
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		device_id       TEXT NOT NULL,
		ts              TIMESTAMPTZ NOT NULL,
		consumption_kwh DOUBLE PRECISION NOT NULL,
		voltage_v       DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_a       DOUBLE PRECISION NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_readings_user_ts ON readings(user_id, ts);
	CREATE INDEX IF NOT EXISTS idx_readings_device_ts ON readings(user_id, device_id, ts);

	CREATE TABLE IF NOT EXISTS thresholds (
		user_id       TEXT NOT NULL,
		device_id     TEXT NOT NULL,
		daily_limit   DOUBLE PRECISION NOT NULL CHECK(daily_limit > 0),
		weekly_limit  DOUBLE PRECISION,
		monthly_limit DOUBLE PRECISION,
		updated_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, device_id)
	);

	CREATE TABLE IF NOT EXISTS budgets (
		user_id    TEXT PRIMARY KEY,
		budget_kwh DOUBLE PRECISION NOT NULL CHECK(budget_kwh >= 0),
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS alerts (
		seq        BIGSERIAL,
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		device_id  TEXT NOT NULL DEFAULT '',
		reading_id TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL,
		message    TEXT NOT NULL,
		limit_kwh  DOUBLE PRECISION NOT NULL DEFAULT 0,
		value_kwh  DOUBLE PRECISION NOT NULL DEFAULT 0,
		ts         TIMESTAMPTZ NOT NULL,
		is_read    BOOLEAN NOT NULL DEFAULT FALSE,
		status     TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_user_ts ON alerts(user_id, ts);
	CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);

	CREATE TABLE IF NOT EXISTS predictions (
		seq                   BIGSERIAL,
		id                    TEXT PRIMARY KEY,
		user_id               TEXT NOT NULL,
		device_id             TEXT NOT NULL,
		predicted_consumption DOUBLE PRECISION NOT NULL,
		confidence            DOUBLE PRECISION NOT NULL,
		recommendations       JSONB NOT NULL DEFAULT '[]',
		peak_hours            JSONB NOT NULL DEFAULT '[]',
		anomalous             BOOLEAN NOT NULL DEFAULT FALSE,
		sample_size           INTEGER NOT NULL DEFAULT 0,
		ts                    TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_predictions_device_ts ON predictions(user_id, device_id, ts);`,

	// Migration 2: Per-notifier delivery tracking
	`ALTER TABLE alerts ADD COLUMN IF NOT EXISTS delivered_to JSONB NOT NULL DEFAULT '[]';`,
}

// runMigrations applies pending schema migrations. recordSQL inserts the
// applied version using the driver's placeholder syntax.
func runMigrations(db *sql.DB, migrations []string, recordSQL string) error {
	// Ensure migration tracking table exists
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(recordSQL, i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
