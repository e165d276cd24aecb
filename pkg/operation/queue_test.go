// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package operation_test

import (
	"context"
	"errors"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/operation"
	"github.com/meridian-cloud/meridian/pkg/store"
)

var operationRowColumns = []string{
	"id", "op_type", "backend", "resource_type", "resource_id", "status", "input", "output",
	"error_code", "error_message", "attempt_count", "max_attempts", "next_retry_at", "idempotency_key",
	"created_at", "started_at", "completed_at", "updated_at",
}

// operationRow renders one stored operation as a sqlmock row.
func operationRow(opID id.OperationID, opType operation.OpType, status operation.Status, attemptCount, maxAttempts int) *sqlmock.Rows {
	backend, err := opType.BackendOf()
	Expect(err).NotTo(HaveOccurred())
	now := time.Now().UTC()
	return sqlmock.NewRows(operationRowColumns).AddRow(
		opID.String(), string(opType), string(backend), "instance", "i1", string(status), []byte(`{}`), nil,
		nil, nil, attemptCount, maxAttempts, nil, nil,
		now, nil, nil, now,
	)
}

var _ = Describe("Queue", func() {
	var (
		ctx   context.Context
		mock  sqlmock.Sqlmock
		db    *sqlx.DB
		st    *store.Store
		queue *operation.Queue
	)

	BeforeEach(func() {
		ctx = context.Background()
		rawDB, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		mock = m
		db = sqlx.NewDb(rawDB, "sqlmock")
		st = store.NewFromDB(db, logr.Discard())
		queue = operation.NewQueue(st, logr.Discard())
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		_ = db.Close()
	})

	Describe("Enqueue", func() {
		It("inserts a pending row and notifies workers", func() {
			opID := id.NewOperationID()
			mock.ExpectQuery("INSERT INTO operations").
				WillReturnRows(operationRow(opID, operation.VpnInviteUser, operation.StatusPending, 0, 5))
			mock.ExpectExec("pg_notify").
				WillReturnResult(sqlmock.NewResult(0, 1))

			op, err := queue.Enqueue(ctx, db, operation.NewOperation{
				OpType:       operation.VpnInviteUser,
				ResourceType: "instance",
				ResourceID:   "i1",
				Input:        types.JSONText(`{"email":"jane@example.com"}`),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(op.ID).To(Equal(opID))
			Expect(op.Status).To(Equal(operation.StatusPending))
			Expect(op.Backend).To(Equal(operation.BackendVpn))
		})

		It("returns the existing row when the idempotency key already exists", func() {
			opID := id.NewOperationID()
			key := "instance-i1-agent"
			mock.ExpectQuery("INSERT INTO operations").
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "operations_idempotency_key_key"})
			mock.ExpectQuery("WHERE idempotency_key").
				WillReturnRows(operationRow(opID, operation.BastionCreateAgent, operation.StatusPending, 0, 5))

			op, err := queue.Enqueue(ctx, db, operation.NewOperation{
				OpType:         operation.BastionCreateAgent,
				ResourceType:   "instance",
				ResourceID:     "i1",
				IdempotencyKey: &key,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(op.ID).To(Equal(opID))
		})

		It("surfaces other constraint failures instead of deduplicating", func() {
			key := "instance-i1-agent"
			mock.ExpectQuery("INSERT INTO operations").
				WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "operations_resource_fkey"})

			_, err := queue.Enqueue(ctx, db, operation.NewOperation{
				OpType:         operation.BastionCreateAgent,
				IdempotencyKey: &key,
			})
			Expect(err).To(HaveOccurred())
		})

		It("rejects a negative attempt budget before touching the database", func() {
			negative := -1
			_, err := queue.Enqueue(ctx, db, operation.NewOperation{
				OpType:      operation.VpnInviteUser,
				MaxAttempts: &negative,
			})
			Expect(cperrors.IsInvalidInput(err)).To(BeTrue())
		})

		It("rejects unknown operation types before touching the database", func() {
			_, err := queue.Enqueue(ctx, db, operation.NewOperation{OpType: "Mystery"})
			Expect(err).To(HaveOccurred())
		})

		It("records relationship operations with the tuple as input", func() {
			opID := id.NewOperationID()
			mock.ExpectQuery("INSERT INTO operations").
				WithArgs(sqlmock.AnyArg(), "AuthzWriteRel", "Authz", "organization", "org-1",
					[]byte(`{"object_type":"organization","object_id":"org-1","relation":"member","subject_type":"user","subject_id":"u1"}`),
					5, nil).
				WillReturnRows(operationRow(opID, operation.AuthzWriteRel, operation.StatusPending, 0, 5))
			mock.ExpectExec("pg_notify").
				WillReturnResult(sqlmock.NewResult(0, 1))

			op, err := queue.EnqueueWriteRelationship(ctx, db, authz.Tuple{
				ObjectType:  "organization",
				ObjectID:    "org-1",
				Relation:    "member",
				SubjectType: "user",
				SubjectID:   "u1",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(op.OpType).To(Equal(operation.AuthzWriteRel))
		})
	})

	Describe("Claim", func() {
		It("returns nil on an empty queue", func() {
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
				WillReturnRows(sqlmock.NewRows(operationRowColumns))
			mock.ExpectCommit()

			op, err := queue.Claim(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(op).To(BeNil())
		})

		It("marks the claimed row running and bumps the attempt counter", func() {
			opID := id.NewOperationID()
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
				WillReturnRows(operationRow(opID, operation.BastionCreateAgent, operation.StatusPending, 0, 5))
			mock.ExpectQuery("UPDATE operations").
				WillReturnRows(operationRow(opID, operation.BastionCreateAgent, operation.StatusRunning, 1, 5))
			mock.ExpectCommit()

			op, err := queue.Claim(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(op.Status).To(Equal(operation.StatusRunning))
			Expect(op.AttemptCount).To(Equal(1))
		})

		It("keeps the attempt counter inside the budget when reclaiming a stale final attempt", func() {
			// A worker died mid-way through attempt 5 of 5; the row comes
			// back claimable and the interrupted attempt is re-run.
			opID := id.NewOperationID()
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
				WillReturnRows(operationRow(opID, operation.BastionCreateAgent, operation.StatusRunning, 5, 5))
			mock.ExpectQuery("LEAST").
				WillReturnRows(operationRow(opID, operation.BastionCreateAgent, operation.StatusRunning, 5, 5))
			mock.ExpectCommit()

			op, err := queue.Claim(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(op).NotTo(BeNil())
			Expect(op.AttemptCount).To(Equal(op.MaxAttempts))
		})

		It("fails a zero-budget row in place without executing it", func() {
			opID := id.NewOperationID()
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
				WillReturnRows(operationRow(opID, operation.K8sGrantNs, operation.StatusPending, 0, 0))
			mock.ExpectQuery("UPDATE operations").
				WillReturnRows(operationRow(opID, operation.K8sGrantNs, operation.StatusRunning, 0, 0))
			mock.ExpectCommit()
			mock.ExpectExec("UPDATE operations").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
				WillReturnRows(sqlmock.NewRows(operationRowColumns))
			mock.ExpectCommit()

			op, err := queue.Claim(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(op).To(BeNil())
		})
	})

	Describe("results", func() {
		It("records success with the output document", func() {
			mock.ExpectExec("UPDATE operations").
				WillReturnResult(sqlmock.NewResult(0, 1))
			Expect(queue.MarkSucceeded(ctx, id.NewOperationID(), types.JSONText(`{"vm":100}`))).To(Succeed())
		})

		It("tolerates a result arriving after a cancel", func() {
			// Zero rows updated means the guard dropped the late result.
			mock.ExpectExec("UPDATE operations").
				WillReturnResult(sqlmock.NewResult(0, 0))
			Expect(queue.MarkSucceeded(ctx, id.NewOperationID(), nil)).To(Succeed())
		})

		It("reschedules a retry", func() {
			mock.ExpectExec("UPDATE operations").
				WillReturnResult(sqlmock.NewResult(0, 1))
			Expect(queue.ScheduleRetry(ctx, id.NewOperationID(), 30*time.Second, "CONNECTIVITY", "backend unreachable")).To(Succeed())
		})
	})

	Describe("Cancel", func() {
		It("cancels a pending operation", func() {
			opID := id.NewOperationID()
			mock.ExpectQuery("UPDATE operations").
				WillReturnRows(operationRow(opID, operation.VpnRemoveUser, operation.StatusCancelled, 0, 5))

			op, err := queue.Cancel(ctx, opID)
			Expect(err).NotTo(HaveOccurred())
			Expect(op.Status).To(Equal(operation.StatusCancelled))
		})

		It("refuses to cancel a terminal operation", func() {
			opID := id.NewOperationID()
			mock.ExpectQuery("UPDATE operations").
				WillReturnRows(sqlmock.NewRows(operationRowColumns))
			mock.ExpectQuery("FROM operations").
				WillReturnRows(operationRow(opID, operation.VpnRemoveUser, operation.StatusSucceeded, 1, 5))

			_, err := queue.Cancel(ctx, opID)
			var notCancellable *cperrors.OperationNotCancellableError
			Expect(errors.As(err, &notCancellable)).To(BeTrue())
			Expect(notCancellable.Status).To(Equal("Succeeded"))
		})

		It("reports an unknown operation as not found", func() {
			opID := id.NewOperationID()
			mock.ExpectQuery("UPDATE operations").
				WillReturnRows(sqlmock.NewRows(operationRowColumns))
			mock.ExpectQuery("FROM operations").
				WillReturnRows(sqlmock.NewRows(operationRowColumns))

			_, err := queue.Cancel(ctx, opID)
			Expect(cperrors.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("ListByResource", func() {
		It("returns the operations of a resource", func() {
			opID := id.NewOperationID()
			mock.ExpectQuery("FROM operations").
				WillReturnRows(operationRow(opID, operation.BastionDeleteAgent, operation.StatusSucceeded, 1, 5))

			ops, err := queue.ListByResource(ctx, "instance", "i1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ops).To(HaveLen(1))
			Expect(ops[0].ID).To(Equal(opID))
		})
	})
})
