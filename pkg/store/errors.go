// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ConstraintKind distinguishes the constraint families higher layers care
// about. Services translate these into domain errors such as
// SlugAlreadyExists or IpAlreadyInUse.
type ConstraintKind string

const (
	// UniqueViolation corresponds to SQLSTATE 23505.
	UniqueViolation ConstraintKind = "UniqueViolation"
	// ForeignKeyViolation corresponds to SQLSTATE 23503.
	ForeignKeyViolation ConstraintKind = "ForeignKeyViolation"
	// CheckViolation corresponds to SQLSTATE 23514.
	CheckViolation ConstraintKind = "CheckViolation"
)

// ConstraintError is a typed wrapper around a PostgreSQL integrity error.
type ConstraintError struct {
	Kind       ConstraintKind
	Constraint string
	Cause      error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s on constraint %q: %v", e.Kind, e.Constraint, e.Cause)
}

func (e *ConstraintError) Unwrap() error { return e.Cause }

// ClassifyError maps driver errors to typed constraint errors. Errors that
// are not integrity violations are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505":
		return &ConstraintError{Kind: UniqueViolation, Constraint: pgErr.ConstraintName, Cause: err}
	case "23503":
		return &ConstraintError{Kind: ForeignKeyViolation, Constraint: pgErr.ConstraintName, Cause: err}
	case "23514":
		return &ConstraintError{Kind: CheckViolation, Constraint: pgErr.ConstraintName, Cause: err}
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to a named constraint.
func IsUniqueViolation(err error, constraint ...string) bool {
	var ce *ConstraintError
	if !errors.As(err, &ce) || ce.Kind != UniqueViolation {
		return false
	}
	if len(constraint) == 0 {
		return true
	}
	for _, c := range constraint {
		if ce.Constraint == c {
			return true
		}
	}
	return false
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce) && ce.Kind == ForeignKeyViolation
}

// IsNoRows reports whether err signals an empty result.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
