// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package executor provides the built-in per-backend executors wired into
// the operation dispatcher.
package executor

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/operation"
)

// Authz executes relationship writes and deletes against the policy
// server. Both directions are idempotent on the server side, so replays
// after a lost acknowledgement converge.
type Authz struct {
	client authz.Client
}

// NewAuthz returns the policy-server executor.
func NewAuthz(client authz.Client) *Authz {
	return &Authz{client: client}
}

// Handles implements operation.Executor.
func (e *Authz) Handles(t operation.OpType) bool {
	return t == operation.AuthzWriteRel || t == operation.AuthzDeleteRel
}

// Execute implements operation.Executor.
func (e *Authz) Execute(ctx context.Context, op *operation.Operation) (types.JSONText, error) {
	var input operation.AuthzRelInput
	if err := op.DecodeInput(&input); err != nil {
		return nil, operation.NewExecutorError(operation.ErrKindInvalidInput, err, "malformed relationship input")
	}
	tuple := authz.Tuple{
		ObjectType:  input.ObjectType,
		ObjectID:    input.ObjectID,
		Relation:    input.Relation,
		SubjectType: input.SubjectType,
		SubjectID:   input.SubjectID,
	}

	var err error
	switch op.OpType {
	case operation.AuthzWriteRel:
		err = e.client.WriteTuple(ctx, tuple)
	case operation.AuthzDeleteRel:
		err = e.client.DeleteTuple(ctx, tuple)
	}
	if err != nil {
		return nil, classifyAuthzError(err, tuple)
	}
	return types.JSONText(`{}`), nil
}

func classifyAuthzError(err error, tuple authz.Tuple) *operation.ExecutorError {
	var ase *cperrors.AuthorizationServerError
	cause := err
	if errors.As(err, &ase) && ase.Cause != nil {
		cause = ase.Cause
	}
	switch status.Code(cause) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return operation.NewExecutorError(operation.ErrKindConnectivity, err, "policy server unreachable for %s", tuple)
	case codes.ResourceExhausted, codes.Aborted:
		return operation.NewExecutorError(operation.ErrKindTemporarilyUnavailable, err, "policy server busy for %s", tuple)
	case codes.Unauthenticated, codes.PermissionDenied:
		return operation.NewExecutorError(operation.ErrKindUnauthorized, err, "policy server refused credentials")
	case codes.InvalidArgument, codes.FailedPrecondition:
		return operation.NewExecutorError(operation.ErrKindInvalidInput, err, "policy server rejected %s", tuple)
	}
	return operation.NewExecutorError(operation.ErrKindInternal, err, "policy server error for %s", tuple)
}
