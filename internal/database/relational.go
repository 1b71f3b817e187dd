package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"firewatch/internal/errors"
	"firewatch/internal/models"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds one insert including connection setup
const DefaultTimeout = 5 * time.Second

// Open prepares a handle for dialect. Idle connections are not kept, so
// every insert dials and releases its own connection.
func Open(dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrStorageInit, err)
	}
	db.SetMaxIdleConns(0)
	return db, nil
}

// RelationalSink writes each reading into iot_data. It holds no
// in-process lock; concurrent inserts use independent connections.
type RelationalSink struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRelationalSink wraps db. A non-positive timeout uses DefaultTimeout.
func NewRelationalSink(db *sql.DB, dialect Dialect, timeout time.Duration, log zerolog.Logger) *RelationalSink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RelationalSink{
		db:      db,
		dialect: dialect,
		timeout: timeout,
		logger:  log.With().Str("sink", "relational").Str("dialect", string(dialect)).Logger(),
	}
}

func (s *RelationalSink) Name() string { return "relational" }

// Append satisfies the pipeline sink contract
func (s *RelationalSink) Append(ctx context.Context, r models.Reading) error {
	return s.Insert(ctx, r)
}

// Insert acquires a connection, inserts r in its own transaction and
// releases the connection on every exit path.
func (s *RelationalSink) Insert(ctx context.Context, r models.Reading) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return phaseError("connect", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to release connection")
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return phaseError("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, s.dialect.InsertSQL(),
		r.Temp,
		r.Hum,
		r.Gas,
		r.Flame,
		r.Status,
		r.Timestamp.Time,
	); err != nil {
		return phaseError("insert", err)
	}

	if err := tx.Commit(); err != nil {
		return phaseError("commit", err)
	}
	committed = true

	return nil
}

// Ping checks that the store is reachable within the sink timeout
func (s *RelationalSink) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return errors.New().Wrap(errors.ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying handle
func (s *RelationalSink) Close() error {
	return s.db.Close()
}

func phaseError(phase string, err error) error {
	return errors.New().Wrap(errors.ErrSinkWrite, fmt.Errorf("%s: %w", phase, err))
}
