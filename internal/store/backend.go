package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"classattend/internal/attendance"
	"classattend/internal/store/memory"
	"classattend/internal/store/postgres"
)

// Backend is the attendance store selected by configuration.
type Backend struct {
	Store attendance.Store
	DB    *DB
}

// OpenBackend returns the memory store for "memory" and Postgres otherwise.
func OpenBackend(ctx context.Context, kind, databaseURL string, logger zerolog.Logger) (*Backend, error) {
	if kind == "memory" {
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		return &Backend{Store: memory.New()}, nil
	}
	db, err := NewDB(ctx, databaseURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres backend: %w", err)
	}
	return &Backend{Store: postgres.New(db.Client, logger), DB: db}, nil
}

// Healthy pings the database; the memory store is always healthy.
func (b *Backend) Healthy(ctx context.Context) bool {
	if b.DB == nil {
		return true
	}
	return b.DB.Client.PingContext(ctx) == nil
}

// Close releases the database handle, if any.
func (b *Backend) Close() error {
	return b.DB.Close()
}
