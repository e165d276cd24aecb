// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/operation"
)

// OperationService exposes the asynchronous work queue to the API so
// callers can watch their mutations converge and cancel work that has
// not run yet.
type OperationService struct {
	base
}

// Get returns one operation by its resource name, "operations/<id>".
func (s *OperationService) Get(ctx context.Context, p identity.Principal, name string) (*operation.Operation, error) {
	if p.IsAnonymous() {
		return nil, cperrors.ErrUnauthenticated
	}
	opID, err := operation.ParseName(name)
	if err != nil {
		return nil, err
	}
	return s.queue.Get(ctx, opID)
}

// List returns the operations attached to a resource, newest first.
func (s *OperationService) List(ctx context.Context, p identity.Principal, resourceType, resourceID string) ([]operation.Operation, error) {
	if p.IsAnonymous() {
		return nil, cperrors.ErrUnauthenticated
	}
	if resourceType == "" || resourceID == "" {
		return nil, &cperrors.InvalidInputError{Field: "resource", Reason: "resource type and id are required"}
	}
	return s.queue.ListByResource(ctx, resourceType, resourceID)
}

// Cancel aborts a pending or running operation. A result arriving after
// the cancel is dropped, so cancel always wins.
func (s *OperationService) Cancel(ctx context.Context, p identity.Principal, name string) (*operation.Operation, error) {
	if p.IsAnonymous() {
		return nil, cperrors.ErrUnauthenticated
	}
	opID, err := operation.ParseName(name)
	if err != nil {
		return nil, err
	}
	op, err := s.queue.Cancel(ctx, opID)
	if err != nil {
		return nil, err
	}
	s.log.Info("cancelled operation", "operation", op.Name(), "by", p.DisplayName())
	return op, nil
}
