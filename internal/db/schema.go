package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS marketplace (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    administrator  TEXT NOT NULL,
    creator        TEXT NOT NULL,
    royalty_rate   INTEGER NOT NULL CHECK (royalty_rate >= 0),
    base_uri       TEXT NOT NULL DEFAULT '',
    funding        INTEGER NOT NULL CHECK (funding >= 0),
    pool           INTEGER NOT NULL CHECK (pool >= 0),
    sales          INTEGER NOT NULL DEFAULT 0,
    volume         INTEGER NOT NULL DEFAULT 0,
    royalties_paid INTEGER NOT NULL DEFAULT 0,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
    id         INTEGER PRIMARY KEY CHECK (id >= 0),
    price      INTEGER NOT NULL CHECK (price > 0),
    status     TEXT NOT NULL CHECK (status IN ('available', 'owned')),
    holder     TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_holder ON items(status, holder);

CREATE TABLE IF NOT EXISTS events (
    seq        INTEGER PRIMARY KEY,
    kind       TEXT NOT NULL CHECK (kind IN ('initialized', 'sold', 'relisted', 'royalty_updated')),
    item_id    INTEGER REFERENCES items(id),
    seller     TEXT,
    buyer      TEXT,
    price      INTEGER NOT NULL,
    actor      TEXT NOT NULL,
    payer      TEXT,
    inflow     INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_item ON events(item_id);

CREATE TABLE IF NOT EXISTS payments (
    id        INTEGER PRIMARY KEY,
    event_seq INTEGER NOT NULL REFERENCES events(seq),
    recipient TEXT NOT NULL,
    amount    INTEGER NOT NULL CHECK (amount > 0),
    memo      TEXT
);

CREATE INDEX IF NOT EXISTS idx_payments_recipient ON payments(recipient);

CREATE TABLE IF NOT EXISTS item_media (
    item_id    INTEGER PRIMARY KEY REFERENCES items(id),
    image      BLOB NOT NULL,
    image_mime TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Usernames are ledger identities and are never reused, not even after
	// the account is deleted.
	`DROP INDEX IF EXISTS idx_users_username_active`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist,
// then applies migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
