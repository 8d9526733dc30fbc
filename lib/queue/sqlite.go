// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/mymetro/beacon/lib/position"
	"github.com/mymetro/beacon/lib/sqlitepool"
)

// AUTOINCREMENT makes SQLite remember the high-water mark in
// sqlite_sequence, so ids of deleted rows are never handed out again.
const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id TEXT    NOT NULL,
	time      INTEGER NOT NULL,
	payload   BLOB    NOT NULL
);
`

// SQLiteConfig holds the parameters for OpenSQLite.
type SQLiteConfig struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// Durability defaults to sqlitepool.DurabilityFull: an
	// acknowledged insert survives power loss, which is the common
	// failure on a vehicle.
	Durability sqlitepool.Durability

	Logger *slog.Logger
}

// SQLite is a Queue stored in a local SQLite database.
type SQLite struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the queue database and checks
// that it is usable.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLite, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:       cfg.Path,
		Durability: cfg.Durability,
		Logger:     logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}

	q := &SQLite{pool: pool, logger: logger}

	// Connections are prepared lazily; take one now so a bad path or
	// a corrupt file fails here rather than on the first insert.
	pending, err := q.Len(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("queue: opening %s: %w", cfg.Path, err)
	}
	logger.Info("position queue opened", "backend", "sqlite", "path", cfg.Path, "pending", pending)
	return q, nil
}

func (q *SQLite) Insert(ctx context.Context, p position.Position) (int64, error) {
	payload, err := encodeRecord(0, p)
	if err != nil {
		return 0, fmt.Errorf("queue: encoding position: %w", err)
	}

	conn, err := q.pool.Take(ctx)
	if err != nil {
		return 0, storageError("insert", err)
	}
	defer q.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO positions (device_id, time, payload) VALUES (?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{p.DeviceID, p.Time.UnixMilli(), payload}})
	if err != nil {
		return 0, storageError("insert", err)
	}
	return conn.LastInsertRowID(), nil
}

func (q *SQLite) PeekOldest(ctx context.Context) (*position.Position, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return nil, storageError("peek", err)
	}
	defer q.pool.Put(conn)

	var (
		found    bool
		id       int64
		deviceID string
		payload  []byte
	)
	err = sqlitex.Execute(conn,
		"SELECT id, device_id, payload FROM positions ORDER BY id LIMIT 1",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				id = stmt.ColumnInt64(0)
				deviceID = stmt.ColumnText(1)
				payload = make([]byte, stmt.ColumnLen(2))
				stmt.ColumnBytes(2, payload)
				return nil
			},
		})
	if err != nil {
		return nil, storageError("peek", err)
	}
	if !found {
		return nil, nil
	}

	p, _, err := decodeRecord(payload)
	if err != nil {
		// An undecodable row would block the queue head forever.
		// Surface it with its id so an operator can remove it.
		return nil, storageError("peek", fmt.Errorf("record %d: %w", id, err))
	}
	p.ID = id
	p.DeviceID = deviceID
	return &p, nil
}

func (q *SQLite) Delete(ctx context.Context, id int64) error {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return storageError("delete", err)
	}
	defer q.pool.Put(conn)

	if err := sqlitex.Execute(conn, "DELETE FROM positions WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{id}}); err != nil {
		return storageError("delete", err)
	}
	return nil
}

func (q *SQLite) Len(ctx context.Context) (int, error) {
	conn, err := q.pool.Take(ctx)
	if err != nil {
		return 0, storageError("count", err)
	}
	defer q.pool.Put(conn)

	var count int
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM positions", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	if err != nil {
		return 0, storageError("count", err)
	}
	return count, nil
}

func (q *SQLite) Close() error {
	return q.pool.Close()
}
