// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/operation"
	"github.com/meridian-cloud/meridian/pkg/store"
)

// notFoundOr translates an empty lookup into a NotFoundError and passes
// every other failure through.
func notFoundOr(err error, resource, name string) error {
	if store.IsNoRows(err) {
		return cperrors.NewNotFound(resource, name)
	}
	return err
}

// NamespaceFor returns the workload-cluster namespace of a project.
func NamespaceFor(projectID id.ProjectID) string {
	return "project-" + projectID.String()
}

func enqueueNamespaceGrant(ctx context.Context, queue *operation.Queue, q model.Querier, projectID id.ProjectID, email string) error {
	input, err := json.Marshal(operation.K8sNsInput{
		Namespace: NamespaceFor(projectID),
		UserEmail: email,
	})
	if err != nil {
		return err
	}
	_, err = queue.Enqueue(ctx, q, operation.NewOperation{
		OpType:       operation.K8sGrantNs,
		ResourceType: "project",
		ResourceID:   projectID.String(),
		Input:        input,
	})
	return err
}

func enqueueNamespaceRevoke(ctx context.Context, queue *operation.Queue, q model.Querier, projectID id.ProjectID, email string) error {
	input, err := json.Marshal(operation.K8sNsInput{
		Namespace: NamespaceFor(projectID),
		UserEmail: email,
	})
	if err != nil {
		return err
	}
	_, err = queue.Enqueue(ctx, q, operation.NewOperation{
		OpType:       operation.K8sRevokeNs,
		ResourceType: "project",
		ResourceID:   projectID.String(),
		Input:        input,
	})
	return err
}
