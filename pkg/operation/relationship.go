// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package operation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/model"
)

// EnqueueWriteRelationship records an AuthzWriteRel operation for the given
// tuple in the caller's transaction, so the relationship reaches the policy
// server if and only if the guarded resource write commits.
func (qu *Queue) EnqueueWriteRelationship(ctx context.Context, q model.Querier, tuple authz.Tuple) (*Operation, error) {
	return qu.enqueueRelationship(ctx, q, AuthzWriteRel, tuple)
}

// EnqueueDeleteRelationship records an AuthzDeleteRel operation for the
// given tuple in the caller's transaction.
func (qu *Queue) EnqueueDeleteRelationship(ctx context.Context, q model.Querier, tuple authz.Tuple) (*Operation, error) {
	return qu.enqueueRelationship(ctx, q, AuthzDeleteRel, tuple)
}

func (qu *Queue) enqueueRelationship(ctx context.Context, q model.Querier, t OpType, tuple authz.Tuple) (*Operation, error) {
	input, err := json.Marshal(AuthzRelInput{
		ObjectType:  tuple.ObjectType,
		ObjectID:    tuple.ObjectID,
		Relation:    tuple.Relation,
		SubjectType: tuple.SubjectType,
		SubjectID:   tuple.SubjectID,
	})
	if err != nil {
		return nil, fmt.Errorf("could not encode relationship: %w", err)
	}
	return qu.Enqueue(ctx, q, NewOperation{
		OpType:       t,
		ResourceType: tuple.ObjectType,
		ResourceID:   tuple.ObjectID,
		Input:        input,
	})
}
