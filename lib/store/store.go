// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/brewshed/brewshed/lib/clock"
	"github.com/brewshed/brewshed/lib/schema"
	"github.com/brewshed/brewshed/lib/sqlitepool"
)

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. Required.
	Path string

	// PoolSize is the number of connections in the pool. Defaults
	// to 4 if zero or negative.
	PoolSize int

	// Clock provides the current time for device last-seen updates
	// and batch timestamps.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Store is the SQLite persistence layer for devices, sessions, and
// telemetry point batches. Safe for concurrent use; writes serialize
// on SQLite's single writer.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Open creates a store over the given database path, creating the
// file and schema as needed. The caller must Close the store when
// done.
func Open(cfg Config) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("brewshed store: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("brewshed store: Logger is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, storeSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("brewshed store: %w", err)
	}

	return &Store{
		pool:   pool,
		clock:  cfg.Clock,
		logger: cfg.Logger.With("component", "store"),
	}, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// write runs fn inside an immediate transaction, retrying once on
// non-domain failure. A second failure wraps into PersistenceError.
// Domain errors (conflict, not-found) pass through on the first
// attempt; they are decisions, not faults.
func (s *Store) write(ctx context.Context, op string, fn func(conn *sqlite.Conn) error) error {
	err := s.writeOnce(ctx, fn)
	if err == nil || isDomainError(err) || ctx.Err() != nil {
		return err
	}

	s.logger.Warn("store write failed, retrying", "op", op, "error", err)
	if err := s.writeOnce(ctx, fn); err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

func (s *Store) writeOnce(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	return fn(conn)
}

// read borrows a connection for a read-only query. No transaction:
// WAL gives each reader a consistent snapshot.
func (s *Store) read(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// Stats is a snapshot of storage counters for the status endpoint.
type Stats struct {
	DeviceCount       int64                        `json:"device_count"`
	SessionCount      int64                        `json:"session_count"`
	ActiveByType      map[schema.SessionType]int64 `json:"active_by_type"`
	BatchCount        int64                        `json:"batch_count"`
	PointCount        int64                        `json:"point_count"`
	DatabaseSizeBytes int64                        `json:"database_size_bytes"`
}

// Stats returns current storage statistics.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ActiveByType: make(map[schema.SessionType]int64)}

	err := s.read(ctx, func(conn *sqlite.Conn) error {
		var err error
		if stats.DeviceCount, err = tableRowCount(conn, "devices"); err != nil {
			return err
		}
		if stats.SessionCount, err = tableRowCount(conn, "sessions"); err != nil {
			return err
		}
		if stats.BatchCount, err = tableRowCount(conn, "point_batches"); err != nil {
			return err
		}

		err = sqlitex.Execute(conn,
			"SELECT session_type, COUNT(*) FROM sessions WHERE active = 1 GROUP BY session_type",
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.ActiveByType[schema.SessionType(stmt.ColumnText(0))] = stmt.ColumnInt64(1)
					return nil
				},
			})
		if err != nil {
			return fmt.Errorf("active session counts: %w", err)
		}

		err = sqlitex.Execute(conn,
			"SELECT COALESCE(SUM(point_count), 0) FROM sessions",
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.PointCount = stmt.ColumnInt64(0)
					return nil
				},
			})
		if err != nil {
			return fmt.Errorf("point count: %w", err)
		}

		err = sqlitex.Execute(conn,
			"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.DatabaseSizeBytes = stmt.ColumnInt64(0)
					return nil
				},
			})
		if err != nil {
			return fmt.Errorf("database size: %w", err)
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("brewshed store: stats: %w", err)
	}
	return stats, nil
}

func tableRowCount(conn *sqlite.Conn, tableName string) (int64, error) {
	var count int64
	err := sqlitex.ExecuteTransient(conn, "SELECT COUNT(*) FROM "+tableName, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", tableName, err)
	}
	return count, nil
}
