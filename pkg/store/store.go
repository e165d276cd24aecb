// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package store provides the PostgreSQL persistence layer: the shared
// connection pool, transaction helpers, typed constraint errors and the
// LISTEN/NOTIFY wake-up channel used by the operation queue.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
)

const driverName = "pgx"

// Config carries the pool settings for a Store.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string
	// MaxOpenConns bounds the pool size. Zero means the driver default.
	MaxOpenConns int
	// MaxIdleConns bounds the idle pool. Zero means the driver default.
	MaxIdleConns int
	// ConnMaxLifetime recycles connections older than this.
	ConnMaxLifetime time.Duration
	// QueryTimeout is the default per-statement deadline applied by
	// callers via Context.
	QueryTimeout time.Duration
}

// DefaultQueryTimeout is applied when Config.QueryTimeout is unset.
const DefaultQueryTimeout = 5 * time.Second

// Store owns the shared connection pool. All repositories and the operation
// queue run their statements through it.
type Store struct {
	db           *sqlx.DB
	log          logr.Logger
	queryTimeout time.Duration
}

// Open connects to PostgreSQL, verifies the connection and returns a ready
// Store.
func Open(ctx context.Context, cfg Config, log logr.Logger) (*Store, error) {
	db, err := sqlx.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not ping database: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	log.Info("database connection established",
		"maxOpenConns", cfg.MaxOpenConns,
		"maxIdleConns", cfg.MaxIdleConns,
	)

	return &Store{db: db, log: log, queryTimeout: timeout}, nil
}

// NewFromDB wraps an existing database handle. Used by tests with sqlmock.
func NewFromDB(db *sqlx.DB, log logr.Logger) *Store {
	return &Store{db: db, log: log, queryTimeout: DefaultQueryTimeout}
}

// DB exposes the underlying pool for repositories.
func (s *Store) DB() *sqlx.DB { return s.db }

// QueryTimeout returns the configured per-statement deadline.
func (s *Store) QueryTimeout() time.Duration { return s.queryTimeout }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside a transaction. The transaction is rolled back when
// fn returns an error or panics, committed otherwise. Multi-entity writes
// must go through here so a resource row and its enqueued operations become
// durable together.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error(rbErr, "transaction rollback failed")
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Notify emits a payload on the given notification channel. Producers call
// this after the enqueueing transaction has committed so idle workers wake
// immediately instead of waiting for the next poll tick.
func (s *Store) Notify(ctx context.Context, channel, payload string) error {
	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, payload); err != nil {
		return fmt.Errorf("could not notify channel %s: %w", channel, err)
	}
	return nil
}
