// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/seed-foundation/seed/lib/secret"
	"github.com/seed-foundation/seed/lib/sqlitepool"
	"github.com/seed-foundation/seed/session"
)

// Config describes a store to open.
type Config struct {
	// Path is the SQLite database file path. Required.
	Path string

	// PoolSize is the connection pool size. Zero means the pool
	// default.
	PoolSize int

	// SealKey, when non-nil, enables payload sealing. The store takes
	// ownership of the buffer; it is consumed during Open.
	SealKey *secret.Buffer

	// Logger receives store lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// Store implements session.Gateway over SQLite.
type Store struct {
	pool   *sqlitepool.Pool
	sealer *Sealer
	logger *slog.Logger
}

var _ session.Gateway = (*Store)(nil)

// Open opens (creating if absent) the database at cfg.Path, applies
// the schema, and derives the sealing subkeys when a seal key is
// configured.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var sealer *Sealer
	if cfg.SealKey != nil {
		var err error
		sealer, err = NewSealer(cfg.SealKey)
		if err != nil {
			return nil, err
		}
	}

	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:      cfg.Path,
		PoolSize:  cfg.PoolSize,
		Logger:    logger,
		OnConnect: applySchema,
	})
	if err != nil {
		if sealer != nil {
			sealer.Close()
		}
		return nil, fmt.Errorf("opening message store: %w", err)
	}

	logger.Info("message store open", "path", cfg.Path, "sealed", sealer != nil)
	return &Store{pool: pool, sealer: sealer, logger: logger}, nil
}

// Close releases the connection pool and zeroes the sealing subkeys.
func (s *Store) Close() error {
	err := s.pool.Close()
	if s.sealer != nil {
		if cerr := s.sealer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// AppendMessage stores a group message and assigns it the next
// position in the group's history. Idempotent by message ID: an
// already-stored ID returns its original position with Duplicate set.
// The dedup lookup and the position assignment share one immediate
// transaction, so concurrent appends and router retries cannot skip
// or double-assign a position.
func (s *Store) AppendMessage(ctx context.Context, msg session.Message) (result session.AppendResult, err error) {
	if msg.Dest.Kind != session.ToGroup || msg.Dest.Group == "" {
		return session.AppendResult{}, errors.New("store: append requires a group destination")
	}
	messageID := msg.ID.String()

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return session.AppendResult{}, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return session.AppendResult{}, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer endTransaction(&err)

	now := msg.CreatedAt.UnixMilli()

	// Group rows come into existence on first reference.
	err = sqlitex.Execute(conn,
		`INSERT INTO groups (group_id, created_at) VALUES (?, ?)
		 ON CONFLICT (group_id) DO NOTHING;`,
		&sqlitex.ExecOptions{Args: []any{string(msg.Dest.Group), now}})
	if err != nil {
		return session.AppendResult{}, fmt.Errorf("creating group row: %w", err)
	}

	// Dedup before assigning a position: a retry of an already-stored
	// message reports the original position.
	var existing int64 = -1
	err = sqlitex.Execute(conn,
		`SELECT seq FROM messages WHERE message_id = ?;`,
		&sqlitex.ExecOptions{
			Args: []any{messageID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				existing = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return session.AppendResult{}, fmt.Errorf("checking for duplicate message: %w", err)
	}
	if existing >= 0 {
		return session.AppendResult{GroupSeq: uint64(existing), Duplicate: true}, nil
	}

	var seq int64
	err = sqlitex.Execute(conn,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE group_id = ?;`,
		&sqlitex.ExecOptions{
			Args: []any{string(msg.Dest.Group)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				seq = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return session.AppendResult{}, fmt.Errorf("assigning group position: %w", err)
	}

	stored := encodePayload(msg.Payload)
	sealed := 0
	var digest []byte
	if s.sealer != nil {
		digest = s.sealer.Digest(msg.Payload)
		stored, err = s.sealer.Seal(stored, []byte(messageID))
		if err != nil {
			return session.AppendResult{}, fmt.Errorf("sealing payload: %w", err)
		}
		sealed = 1
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO messages (group_id, seq, message_id, origin, payload, sealed, digest, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		&sqlitex.ExecOptions{Args: []any{
			string(msg.Dest.Group), seq, messageID, string(msg.Origin),
			stored, sealed, digest, now,
		}})
	if err != nil {
		return session.AppendResult{}, fmt.Errorf("inserting message: %w", err)
	}

	return session.AppendResult{GroupSeq: uint64(seq)}, nil
}

// FetchHistory returns up to limit messages of group with positions
// strictly greater than cursor, ascending.
func (s *Store) FetchHistory(ctx context.Context, group session.GroupID, cursor uint64, limit int) ([]session.StoredMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	type row struct {
		seq       int64
		id        string
		origin    string
		payload   []byte
		sealed    bool
		digest    []byte
		createdAt int64
	}
	var rows []row
	err = sqlitex.Execute(conn,
		`SELECT seq, message_id, origin, payload, sealed, digest, created_at
		 FROM messages WHERE group_id = ? AND seq > ?
		 ORDER BY seq ASC LIMIT ?;`,
		&sqlitex.ExecOptions{
			Args: []any{string(group), int64(cursor), limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				r := row{
					seq:       stmt.ColumnInt64(0),
					id:        stmt.ColumnText(1),
					origin:    stmt.ColumnText(2),
					sealed:    stmt.ColumnInt64(4) != 0,
					createdAt: stmt.ColumnInt64(6),
				}
				r.payload = make([]byte, stmt.ColumnLen(3))
				stmt.ColumnBytes(3, r.payload)
				if n := stmt.ColumnLen(5); n > 0 {
					r.digest = make([]byte, n)
					stmt.ColumnBytes(5, r.digest)
				}
				rows = append(rows, r)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("fetching history for %s: %w", group, err)
	}

	messages := make([]session.StoredMessage, 0, len(rows))
	for _, r := range rows {
		plaintext, err := s.recoverPayload(r.payload, r.sealed, r.digest, r.id)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", r.id, err)
		}
		messages = append(messages, session.StoredMessage{
			Group:     group,
			GroupSeq:  uint64(r.seq),
			ID:        r.id,
			Origin:    session.PrincipalID(r.origin),
			Payload:   plaintext,
			CreatedAt: time.UnixMilli(r.createdAt).UTC(),
		})
	}
	return messages, nil
}

// recoverPayload undoes the at-rest encoding of one row and verifies
// the keyed digest on sealed rows.
func (s *Store) recoverPayload(stored []byte, sealed bool, digest []byte, messageID string) ([]byte, error) {
	encoded := stored
	if sealed {
		if s.sealer == nil {
			return nil, fmt.Errorf("%w: row is sealed but no seal key is configured", ErrSealKey)
		}
		var err error
		encoded, err = s.sealer.Open(stored, []byte(messageID))
		if err != nil {
			return nil, err
		}
	}
	plaintext, err := decodePayload(encoded)
	if err != nil {
		return nil, err
	}
	if sealed && len(digest) > 0 {
		if string(s.sealer.Digest(plaintext)) != string(digest) {
			return nil, ErrDigestMismatch
		}
	}
	return plaintext, nil
}

// UpsertUser records a principal, updating the display name if the
// row exists.
func (s *Store) UpsertUser(ctx context.Context, principal session.PrincipalID, displayName string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	now := time.Now().UnixMilli()
	err = sqlitex.Execute(conn,
		`INSERT INTO users (principal, display_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (principal) DO UPDATE SET
		   display_name = excluded.display_name,
		   updated_at = excluded.updated_at;`,
		&sqlitex.ExecOptions{Args: []any{string(principal), displayName, now, now}})
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", principal, err)
	}
	return nil
}

// ListGroupMembers returns the member principals of group, sorted. A
// group nobody ever joined has no members and no error.
func (s *Store) ListGroupMembers(ctx context.Context, group session.GroupID) ([]session.PrincipalID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var members []session.PrincipalID
	err = sqlitex.Execute(conn,
		`SELECT principal FROM group_members WHERE group_id = ? ORDER BY principal;`,
		&sqlitex.ExecOptions{
			Args: []any{string(group)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				members = append(members, session.PrincipalID(stmt.ColumnText(0)))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("listing members of %s: %w", group, err)
	}
	return members, nil
}

// JoinGroup adds principal to group, creating the group row on first
// reference. Idempotent.
func (s *Store) JoinGroup(ctx context.Context, group session.GroupID, principal session.PrincipalID) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("beginning join transaction: %w", err)
	}
	defer endTransaction(&err)

	now := time.Now().UnixMilli()
	err = sqlitex.Execute(conn,
		`INSERT INTO groups (group_id, created_at) VALUES (?, ?)
		 ON CONFLICT (group_id) DO NOTHING;`,
		&sqlitex.ExecOptions{Args: []any{string(group), now}})
	if err != nil {
		return fmt.Errorf("creating group row: %w", err)
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO group_members (group_id, principal, joined_at) VALUES (?, ?, ?)
		 ON CONFLICT (group_id, principal) DO NOTHING;`,
		&sqlitex.ExecOptions{Args: []any{string(group), string(principal), now}})
	if err != nil {
		return fmt.Errorf("adding %s to %s: %w", principal, group, err)
	}
	return nil
}

// LeaveGroup removes principal from group. Idempotent; the group row
// persists at zero members so its history stays reachable.
func (s *Store) LeaveGroup(ctx context.Context, group session.GroupID, principal session.PrincipalID) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM group_members WHERE group_id = ? AND principal = ?;`,
		&sqlitex.ExecOptions{Args: []any{string(group), string(principal)}})
	if err != nil {
		return fmt.Errorf("removing %s from %s: %w", principal, group, err)
	}
	return nil
}

// Stats is a point-in-time row-count summary for the operational
// surface.
type Stats struct {
	Users    int64 `json:"users"`
	Groups   int64 `json:"groups"`
	Messages int64 `json:"messages"`
	Sealed   bool  `json:"sealed"`
}

// Stats reports table sizes and whether sealing is active.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer s.pool.Put(conn)

	stats := Stats{Sealed: s.sealer != nil}
	for _, q := range []struct {
		table string
		dest  *int64
	}{
		{"users", &stats.Users},
		{"groups", &stats.Groups},
		{"messages", &stats.Messages},
	} {
		err = sqlitex.Execute(conn, `SELECT count(*) FROM `+q.table+`;`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					*q.dest = stmt.ColumnInt64(0)
					return nil
				},
			})
		if err != nil {
			return Stats{}, fmt.Errorf("counting %s: %w", q.table, err)
		}
	}
	return stats, nil
}
