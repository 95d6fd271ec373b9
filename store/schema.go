package store

import "database/sql"

// Schema is the complete tracker schema. Timestamps are unix milliseconds.
const Schema = `
-- Canonical protest events
CREATE TABLE IF NOT EXISTS events (
    id               TEXT PRIMARY KEY,
    dedup_key        TEXT NOT NULL,
    title            TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    cause            TEXT NOT NULL,
    address          TEXT NOT NULL,
    latitude         REAL,
    longitude        REAL,
    start_time       INTEGER NOT NULL,
    end_time         INTEGER,
    status           TEXT NOT NULL DEFAULT 'planned',
    source_type      TEXT NOT NULL,
    source_url       TEXT NOT NULL DEFAULT '',
    confidence_score REAL NOT NULL DEFAULT 0.5,
    expected_size    INTEGER,
    permit_status    TEXT NOT NULL DEFAULT '',
    organizers       TEXT NOT NULL DEFAULT '[]',
    hashtags         TEXT NOT NULL DEFAULT '[]',
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_dedup ON events(dedup_key);
CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
CREATE INDEX IF NOT EXISTS idx_events_cause ON events(cause);
CREATE INDEX IF NOT EXISTS idx_events_start_time ON events(start_time);

-- Per-adapter scrape health
CREATE TABLE IF NOT EXISTS data_sources (
    name          TEXT PRIMARY KEY,
    type          TEXT NOT NULL,
    url           TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'active',
    last_scraped  INTEGER,
    error_message TEXT NOT NULL DEFAULT '',
    last_error_at INTEGER,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
