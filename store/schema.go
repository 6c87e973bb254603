// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// schema is applied to every connection via the pool's connect hook.
// Idempotent: IF NOT EXISTS throughout, so reopening an existing
// database is a no-op.
//
// messages keys on (group_id, seq): seq is the per-group monotonic
// position assigned at append time and the cursor value for history
// fetches. message_id is the dedup key for router retries. sealed
// marks rows written under a sealing key so a deployment can enable
// sealing without losing old rows; digest is the keyed BLAKE3 of the
// plaintext, present only on sealed rows.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	principal    TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS groups (
	group_id   TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS group_members (
	group_id  TEXT NOT NULL REFERENCES groups (group_id),
	principal TEXT NOT NULL,
	joined_at INTEGER NOT NULL,
	PRIMARY KEY (group_id, principal)
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS messages (
	group_id   TEXT NOT NULL REFERENCES groups (group_id),
	seq        INTEGER NOT NULL,
	message_id TEXT NOT NULL UNIQUE,
	origin     TEXT NOT NULL,
	payload    BLOB NOT NULL,
	sealed     INTEGER NOT NULL DEFAULT 0,
	digest     BLOB,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (group_id, seq)
);
`

func applySchema(conn *sqlite.Conn) error {
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
