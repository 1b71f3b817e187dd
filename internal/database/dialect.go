package database

import (
	"fmt"
	"strings"

	"firewatch/internal/errors"
)

// Dialect selects the driver, placeholder style and DDL of a relational store
type Dialect string

const (
	DialectClickHouse Dialect = "clickhouse"
	DialectPostgres   Dialect = "postgres"
	DialectSQLite     Dialect = "sqlite3"
)

// ParseDialect accepts the configured driver name and its common aliases
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "clickhouse":
		return DialectClickHouse, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	default:
		return "", errors.New().WithData(errors.ErrInvalidConfig, fmt.Sprintf("unsupported database driver %q", name))
	}
}

// DriverName is the database/sql driver registered for the dialect
func (d Dialect) DriverName() string {
	switch d {
	case DialectPostgres:
		return "pgx"
	default:
		return string(d)
	}
}

// InsertSQL returns the single-row insert for iot_data
func (d Dialect) InsertSQL() string {
	if d == DialectPostgres {
		return "INSERT INTO iot_data (temperature, humidity, gas, flame, status, timestamp) VALUES ($1, $2, $3, $4, $5, $6)"
	}
	return "INSERT INTO iot_data (temperature, humidity, gas, flame, status, timestamp) VALUES (?, ?, ?, ?, ?, ?)"
}

// CreateTableSQL returns the iot_data DDL
func (d Dialect) CreateTableSQL() string {
	switch d {
	case DialectClickHouse:
		return ClickHouseTableSQL
	case DialectPostgres:
		return PostgresTableSQL
	default:
		return SQLiteTableSQL
	}
}
