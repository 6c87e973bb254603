// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// DefaultPoolSize is the pool size used when Config.PoolSize is zero.
// One writer plus a handful of history readers is plenty for a single
// process owning the database file.
const DefaultPoolSize = 4

// pragmas applied to every connection before it joins the pool. Order
// matters: journal_mode must be set before the first write.
var connectionPragmas = []string{
	"PRAGMA journal_mode = WAL;",
	"PRAGMA synchronous = NORMAL;",
	"PRAGMA busy_timeout = 5000;",
	"PRAGMA foreign_keys = ON;",
	"PRAGMA cache_size = -8192;",
	"PRAGMA temp_store = MEMORY;",
}

// Config describes a pool to open.
type Config struct {
	// Path is the database file path. Required.
	Path string

	// PoolSize is the number of connections to hold open. Zero means
	// DefaultPoolSize.
	PoolSize int

	// Logger receives pool lifecycle events. Nil discards them.
	Logger *slog.Logger

	// OnConnect, when non-nil, runs against each connection after the
	// standard pragmas. Schema migration hooks go here.
	OnConnect func(conn *sqlite.Conn) error
}

// Pool is a fixed-size pool of prepared SQLite connections.
type Pool struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
}

// Open opens the database at cfg.Path, applies the standard pragmas
// to every connection, and returns the pool. The file and any missing
// parent WAL artifacts are created on first use.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: path is required")
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = DefaultPoolSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			return prepareConnection(conn, cfg.OnConnect)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Path, err)
	}

	// Force one connection through PrepareConn now so pragma or
	// migration failures surface at startup, not on first query.
	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("preparing database %s: %w", cfg.Path, err)
	}
	pool.Put(conn)

	logger.Info("database open", "path", cfg.Path, "pool_size", size)
	return &Pool{pool: pool, logger: logger}, nil
}

func prepareConnection(conn *sqlite.Conn, onConnect func(*sqlite.Conn) error) error {
	for _, pragma := range connectionPragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	if onConnect != nil {
		if err := onConnect(conn); err != nil {
			return fmt.Errorf("connection hook: %w", err)
		}
	}
	return nil
}

// Take borrows a connection. It blocks until one is free or ctx is
// done. The caller must return it with Put.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking connection: %w", err)
	}
	return conn, nil
}

// Put returns a connection obtained from Take.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.pool.Put(conn)
}

// Close closes all connections. Outstanding Take calls fail.
func (p *Pool) Close() error {
	if err := p.pool.Close(); err != nil {
		return fmt.Errorf("closing pool: %w", err)
	}
	return nil
}
