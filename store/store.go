// Package store provides the data access layer for the tracker.
//
// It owns the canonical events table (with its dedup boundary) and the
// data_sources health table. A Store wraps an already-opened database so
// tests can supply an in-memory connection.
package store

import "database/sql"

// Store wraps the tracker database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
