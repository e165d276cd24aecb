// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package model defines the authoritative resource entities and their
// repositories. Repositories run against any Querier so callers can compose
// several writes into one transaction via store.WithTx; timestamps are set
// by the database on insert and update, and create operations return the
// fully hydrated row.
package model

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/meridian-cloud/meridian/pkg/store"
)

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type Querier = sqlx.ExtContext

func get(ctx context.Context, q Querier, dest any, query string, args ...any) error {
	return store.ClassifyError(sqlx.GetContext(ctx, q, dest, query, args...))
}

func selectAll(ctx context.Context, q Querier, dest any, query string, args ...any) error {
	return store.ClassifyError(sqlx.SelectContext(ctx, q, dest, query, args...))
}

func exec(ctx context.Context, q Querier, query string, args ...any) error {
	_, err := q.ExecContext(ctx, query, args...)
	return store.ClassifyError(err)
}

func sqlxIn(query string, args ...any) (string, []any, error) {
	return sqlx.In(query, args...)
}
