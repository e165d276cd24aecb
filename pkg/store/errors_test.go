// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/store"
)

var _ = Describe("ClassifyError", func() {
	pgError := func(code, constraint string) error {
		return fmt.Errorf("insert: %w", &pgconn.PgError{Code: code, ConstraintName: constraint})
	}

	It("keeps nil as nil", func() {
		Expect(store.ClassifyError(nil)).To(Succeed())
	})

	It("returns non-driver errors unchanged", func() {
		err := errors.New("dial tcp: connection refused")
		Expect(store.ClassifyError(err)).To(BeIdenticalTo(err))
	})

	It("types a unique violation with its constraint name", func() {
		err := store.ClassifyError(pgError("23505", "organizations_slug_key"))

		var ce *store.ConstraintError
		Expect(errors.As(err, &ce)).To(BeTrue())
		Expect(ce.Kind).To(Equal(store.UniqueViolation))
		Expect(ce.Constraint).To(Equal("organizations_slug_key"))
		Expect(store.IsUniqueViolation(err)).To(BeTrue())
		Expect(store.IsUniqueViolation(err, "organizations_slug_key")).To(BeTrue())
		Expect(store.IsUniqueViolation(err, "vpcs_slug_key")).To(BeFalse())
	})

	It("types a foreign key violation", func() {
		err := store.ClassifyError(pgError("23503", "instances_project_id_fkey"))
		Expect(store.IsForeignKeyViolation(err)).To(BeTrue())
		Expect(store.IsUniqueViolation(err)).To(BeFalse())
	})

	It("passes other SQLSTATEs through unchanged", func() {
		cause := pgError("57014", "")
		Expect(store.ClassifyError(cause)).To(BeIdenticalTo(cause))
	})

	It("unwraps back to the driver error", func() {
		err := store.ClassifyError(pgError("23514", "instances_cpu_check"))

		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue())
		Expect(pgErr.Code).To(Equal("23514"))
	})
})

var _ = Describe("IsNoRows", func() {
	It("matches wrapped sql.ErrNoRows", func() {
		Expect(store.IsNoRows(fmt.Errorf("find organization: %w", sql.ErrNoRows))).To(BeTrue())
		Expect(store.IsNoRows(errors.New("other"))).To(BeFalse())
	})
})

var _ = Describe("WithTx", func() {
	var (
		mock sqlmock.Sqlmock
		st   *store.Store
	)

	BeforeEach(func() {
		rawDB, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		mock = m
		st = store.NewFromDB(sqlx.NewDb(rawDB, "sqlmock"), logr.Discard())
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("commits when the function succeeds", func() {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE instances").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := st.WithTx(context.Background(), func(tx *sqlx.Tx) error {
			_, execErr := tx.ExecContext(context.Background(), "UPDATE instances SET status = 'Running'")
			return execErr
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("rolls back and surfaces the function error", func() {
		mock.ExpectBegin()
		mock.ExpectRollback()

		refusal := errors.New("no capacity left")
		err := st.WithTx(context.Background(), func(tx *sqlx.Tx) error { return refusal })
		Expect(errors.Is(err, refusal)).To(BeTrue())
	})
})
