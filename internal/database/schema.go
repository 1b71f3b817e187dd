package database

import (
	"context"
	"database/sql"

	"firewatch/internal/errors"
)

// SQL schemas for the iot_data table, one per supported dialect

const (
	// ClickHouseTableSQL creates iot_data on ClickHouse
	ClickHouseTableSQL = `
		CREATE TABLE IF NOT EXISTS iot_data (
			temperature Float64,
			humidity Float64,
			gas Float64,
			flame Float64,
			status String,
			timestamp DateTime
		) ENGINE = MergeTree()
		ORDER BY timestamp
		PARTITION BY toYYYYMM(timestamp)
	`

	// PostgresTableSQL creates iot_data on PostgreSQL
	PostgresTableSQL = `
		CREATE TABLE IF NOT EXISTS iot_data (
			id BIGSERIAL PRIMARY KEY,
			temperature DOUBLE PRECISION NOT NULL,
			humidity DOUBLE PRECISION NOT NULL,
			gas DOUBLE PRECISION NOT NULL,
			flame DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL
		)
	`

	// SQLiteTableSQL creates iot_data on SQLite
	SQLiteTableSQL = `
		CREATE TABLE IF NOT EXISTS iot_data (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			temperature REAL NOT NULL,
			humidity REAL NOT NULL,
			gas REAL NOT NULL,
			flame REAL NOT NULL,
			status TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		)
	`
)

// InitSchema creates iot_data if it does not exist. Provisioning is
// normally external; this runs only when auto-migration is enabled.
func InitSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	if _, err := db.ExecContext(ctx, dialect.CreateTableSQL()); err != nil {
		return errors.New().Wrap(errors.ErrSchemaInit, err)
	}
	return nil
}
