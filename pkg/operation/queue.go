// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package operation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/store"
)

const operationColumns = `id, op_type, backend, resource_type, resource_id, status, input, output,
	error_code, error_message, attempt_count, max_attempts, next_retry_at, idempotency_key,
	created_at, started_at, completed_at, updated_at`

// Queue persists operations and hands them out to workers. Enqueue runs
// against any Querier so producers can record the operation in the same
// transaction as the resource mutation it belongs to; the claim and result
// paths manage their own transactions.
type Queue struct {
	store *store.Store
	log   logr.Logger
}

// NewQueue returns a queue backed by the given store.
func NewQueue(st *store.Store, log logr.Logger) *Queue {
	return &Queue{store: st, log: log.WithName("operation-queue")}
}

// NewOperation describes an operation to be enqueued. MaxAttempts zero is
// honored literally: the row fails with EXHAUSTED_RETRIES on its first
// claim without ever executing.
type NewOperation struct {
	OpType         OpType
	ResourceType   string
	ResourceID     string
	Input          types.JSONText
	MaxAttempts    *int
	IdempotencyKey *string
}

// Enqueue inserts a Pending operation and notifies waiting workers. When an
// idempotency key is given and a row with that key already exists, the
// existing row is returned unchanged.
func (qu *Queue) Enqueue(ctx context.Context, q model.Querier, req NewOperation) (*Operation, error) {
	backend, err := req.OpType.BackendOf()
	if err != nil {
		return nil, err
	}
	maxAttempts := DefaultMaxAttempts
	if req.MaxAttempts != nil {
		if *req.MaxAttempts < 0 {
			return nil, &cperrors.InvalidInputError{Field: "max_attempts", Reason: "must not be negative"}
		}
		maxAttempts = *req.MaxAttempts
	}
	input := req.Input
	if input == nil {
		input = types.JSONText("{}")
	}

	op := &Operation{}
	err = sqlx.GetContext(ctx, q, op, `
		INSERT INTO operations (id, op_type, backend, resource_type, resource_id, status, input, max_attempts, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, 'Pending', $6, $7, $8)
		RETURNING `+operationColumns,
		id.NewOperationID(), req.OpType, backend, req.ResourceType, req.ResourceID, input, maxAttempts, req.IdempotencyKey)
	if err != nil {
		err = store.ClassifyError(err)
		if req.IdempotencyKey != nil && store.IsUniqueViolation(err, "operations_idempotency_key_key") {
			return qu.findByIdempotencyKey(ctx, q, *req.IdempotencyKey)
		}
		return nil, err
	}

	// pg_notify inside the caller's transaction is delivered on commit, so
	// workers never wake for a row that rolled back.
	if _, err := q.ExecContext(ctx, `SELECT pg_notify($1, $2)`, store.OperationsChannel, op.ID.String()); err != nil {
		// The poll fallback will still pick the row up.
		qu.log.V(1).Info("notify failed after enqueue", "operation", op.Name(), "error", err)
	}
	return op, nil
}

func (qu *Queue) findByIdempotencyKey(ctx context.Context, q model.Querier, key string) (*Operation, error) {
	op := &Operation{}
	err := sqlx.GetContext(ctx, q, op,
		`SELECT `+operationColumns+` FROM operations WHERE idempotency_key = $1`, key)
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	return op, nil
}

// Claim picks the oldest runnable operation, marks it Running and bumps its
// attempt counter, all in one transaction. Runnable means Pending with a
// due (or absent) retry time, or Running but started before the staleness
// horizon, which recovers rows abandoned by crashed workers. Returns nil
// when the queue is empty.
//
// A claimed row whose attempt budget is already spent (including the
// max_attempts=0 case) is failed in place and Claim moves on to the next
// candidate.
func (qu *Queue) Claim(ctx context.Context) (*Operation, error) {
	for {
		op, err := qu.claimOne(ctx)
		if err != nil || op == nil {
			return nil, err
		}
		if op.AttemptCount > op.MaxAttempts || op.MaxAttempts == 0 {
			if err := qu.failExhausted(ctx, op); err != nil {
				return nil, err
			}
			continue
		}
		return op, nil
	}
}

func (qu *Queue) claimOne(ctx context.Context) (*Operation, error) {
	var op *Operation
	err := qu.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		candidate := &Operation{}
		err := tx.GetContext(ctx, candidate, fmt.Sprintf(`
			SELECT `+operationColumns+`
			FROM operations
			WHERE (status = 'Pending' AND (next_retry_at IS NULL OR next_retry_at <= now()))
			   OR (status = 'Running' AND started_at < now() - interval '%d seconds')
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED`, int(StalenessHorizon.Seconds())))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return store.ClassifyError(err)
		}

		bump := 1
		if candidate.MaxAttempts == 0 {
			// Keep attempt_count <= max_attempts; the caller fails the
			// row without executing it.
			bump = 0
		}
		// LEAST keeps the counter inside the budget when a stale row is
		// reclaimed on its final attempt; that attempt is simply re-run.
		claimed := &Operation{}
		err = tx.GetContext(ctx, claimed, `
			UPDATE operations
			SET status = 'Running', started_at = now(), attempt_count = LEAST(attempt_count + $2, max_attempts), updated_at = now()
			WHERE id = $1
			RETURNING `+operationColumns,
			candidate.ID, bump)
		if err != nil {
			return store.ClassifyError(err)
		}
		op = claimed
		return nil
	})
	return op, err
}

func (qu *Queue) failExhausted(ctx context.Context, op *Operation) error {
	qu.log.Info("operation exhausted its attempt budget", "operation", op.Name(),
		"opType", op.OpType, "attempts", op.AttemptCount, "maxAttempts", op.MaxAttempts)
	return qu.MarkFailed(ctx, op.ID, ErrCodeExhaustedRetries,
		fmt.Sprintf("gave up after %d of %d attempts", op.AttemptCount, op.MaxAttempts))
}

// MarkSucceeded finishes an operation with its output. The update only
// applies while the row is Running, so a result arriving after an
// administrative cancel is dropped.
func (qu *Queue) MarkSucceeded(ctx context.Context, opID id.OperationID, output types.JSONText) error {
	if output == nil {
		output = types.JSONText("{}")
	}
	return qu.finish(ctx, `
		UPDATE operations
		SET status = 'Succeeded', output = $2, error_code = NULL, error_message = NULL,
		    completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'Running'`, opID, output)
}

// MarkFailed terminally fails an operation.
func (qu *Queue) MarkFailed(ctx context.Context, opID id.OperationID, code, message string) error {
	return qu.finish(ctx, `
		UPDATE operations
		SET status = 'Failed', error_code = $2, error_message = $3,
		    completed_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('Running', 'Pending')`, opID, code, message)
}

// ScheduleRetry returns a Running operation to Pending with a retry time
// computed by the database clock, which keeps the schedule consistent
// across workers with skewed clocks.
func (qu *Queue) ScheduleRetry(ctx context.Context, opID id.OperationID, delay time.Duration, code, message string) error {
	return qu.finish(ctx, `
		UPDATE operations
		SET status = 'Pending', next_retry_at = now() + ($2 * interval '1 millisecond'),
		    error_code = $3, error_message = $4, updated_at = now()
		WHERE id = $1 AND status = 'Running'`, opID, delay.Milliseconds(), code, message)
}

func (qu *Queue) finish(ctx context.Context, query string, args ...any) error {
	res, err := qu.store.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return store.ClassifyError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		qu.log.V(1).Info("operation result dropped, row no longer in an updatable state", "operation", args[0])
	}
	return nil
}

// Cancel moves a non-terminal operation to Cancelled. Cancellation is
// advisory: an execution already in flight runs to completion but its
// result is discarded by the status guards on the finish paths.
func (qu *Queue) Cancel(ctx context.Context, opID id.OperationID) (*Operation, error) {
	op := &Operation{}
	err := sqlx.GetContext(ctx, qu.store.DB(), op, `
		UPDATE operations
		SET status = 'Cancelled', completed_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('Pending', 'Running')
		RETURNING `+operationColumns, opID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existing, getErr := qu.Get(ctx, opID)
			if getErr != nil {
				return nil, getErr
			}
			return nil, &cperrors.OperationNotCancellableError{Name: existing.Name(), Status: string(existing.Status)}
		}
		return nil, store.ClassifyError(err)
	}
	return op, nil
}

// Get fetches one operation by id.
func (qu *Queue) Get(ctx context.Context, opID id.OperationID) (*Operation, error) {
	op := &Operation{}
	err := sqlx.GetContext(ctx, qu.store.DB(), op,
		`SELECT `+operationColumns+` FROM operations WHERE id = $1`, opID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cperrors.NewNotFound("operation", opID.String())
		}
		return nil, store.ClassifyError(err)
	}
	return op, nil
}

// ListByResource lists the operations recorded for a resource, newest
// first.
func (qu *Queue) ListByResource(ctx context.Context, resourceType, resourceID string) ([]Operation, error) {
	var ops []Operation
	err := sqlx.SelectContext(ctx, qu.store.DB(), &ops, `
		SELECT `+operationColumns+` FROM operations
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_at DESC`, resourceType, resourceID)
	if err != nil {
		return nil, store.ClassifyError(err)
	}
	return ops, nil
}
