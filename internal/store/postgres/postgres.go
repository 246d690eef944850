// Package postgres implements the attendance storage ports on Postgres
// through database/sql and the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"classattend/internal/attendance"
)

const uniqueViolation = "23505"

// dbtx is the subset of *sql.DB and *sql.Tx the repositories need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store runs every unit of work in its own transaction.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New wraps an open database handle.
func New(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "postgres").Logger()}
}

// Atomic implements attendance.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, r attendance.Repos) error) error {
	const op = "postgres.Store.Atomic"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(ctx, repos(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func repos(q dbtx) attendance.Repos {
	return attendance.Repos{
		Users:       &userRepo{q},
		Classes:     &classRepo{q},
		Enrollments: &enrollmentRepo{q},
		Sessions:    &sessionRepo{q},
		Records:     &recordRepo{q},
		Requests:    &requestRepo{q},
		Warnings:    &warningRepo{q},
	}
}

// mapErr turns Postgres unique violations into attendance.ErrConflict.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %s", op, attendance.ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
