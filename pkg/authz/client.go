// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package authz talks to the external relationship-based authorization
// server. It exposes the four verbs the control plane needs (check, lookup,
// write tuple, delete tuple) behind a narrow interface, plus a staged
// builder for permission checks.
package authz

import (
	"context"
	"errors"
	"fmt"
	"io"

	v1 "github.com/authzed/authzed-go/proto/authzed/api/v1"
	"github.com/authzed/authzed-go/v1"
	"github.com/authzed/grpcutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
)

// Tuple is a directed relationship stored in the policy server.
type Tuple struct {
	ObjectType  string
	ObjectID    string
	Relation    string
	SubjectType string
	SubjectID   string
}

func (t Tuple) String() string {
	return fmt.Sprintf("%s:%s#%s@%s:%s", t.ObjectType, t.ObjectID, t.Relation, t.SubjectType, t.SubjectID)
}

// Decision is the outcome of a permission check.
type Decision bool

// Check outcomes.
const (
	Allowed Decision = true
	Denied  Decision = false
)

// Client is the operation surface against the policy server. The production
// implementation shares one long-lived channel across all workers; tests use
// the fake in this package.
type Client interface {
	// Check evaluates whether the subject holds the permission on the object.
	Check(ctx context.Context, subjectType, subjectID, permission, objectType, objectID string) (Decision, error)
	// Lookup returns the object ids of objectType the subject holds the
	// permission on.
	Lookup(ctx context.Context, subjectType, subjectID, permission, objectType string) ([]string, error)
	// WriteTuple stores the tuple; writing an existing tuple is a no-op.
	WriteTuple(ctx context.Context, t Tuple) error
	// DeleteTuple removes the tuple; deleting an absent tuple is a no-op.
	DeleteTuple(ctx context.Context, t Tuple) error
}

type client struct {
	authzed *authzed.Client
}

// NewClient dials the policy server with a token-injecting credential. The
// returned client is safe for concurrent use and should be shared.
func NewClient(endpoint, presharedKey string) (Client, error) {
	c, err := authzed.NewClient(
		endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpcutil.WithInsecureBearerToken(presharedKey),
	)
	if err != nil {
		return nil, fmt.Errorf("could not dial authorization server: %w", err)
	}
	return &client{authzed: c}, nil
}

func (c *client) Check(ctx context.Context, subjectType, subjectID, permission, objectType, objectID string) (Decision, error) {
	resp, err := c.authzed.CheckPermission(ctx, &v1.CheckPermissionRequest{
		Consistency: fullConsistency(),
		Resource:    &v1.ObjectReference{ObjectType: objectType, ObjectId: objectID},
		Permission:  permission,
		Subject: &v1.SubjectReference{
			Object: &v1.ObjectReference{ObjectType: subjectType, ObjectId: subjectID},
		},
	})
	if err != nil {
		return Denied, &cperrors.AuthorizationServerError{Cause: err}
	}
	if resp.Permissionship == v1.CheckPermissionResponse_PERMISSIONSHIP_HAS_PERMISSION {
		return Allowed, nil
	}
	return Denied, nil
}

func (c *client) Lookup(ctx context.Context, subjectType, subjectID, permission, objectType string) ([]string, error) {
	stream, err := c.authzed.LookupResources(ctx, &v1.LookupResourcesRequest{
		Consistency:        fullConsistency(),
		ResourceObjectType: objectType,
		Permission:         permission,
		Subject: &v1.SubjectReference{
			Object: &v1.ObjectReference{ObjectType: subjectType, ObjectId: subjectID},
		},
	})
	if err != nil {
		return nil, &cperrors.AuthorizationServerError{Cause: err}
	}

	var ids []string
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ids, nil
			}
			return nil, &cperrors.AuthorizationServerError{Cause: err}
		}
		ids = append(ids, resp.ResourceObjectId)
	}
}

func (c *client) WriteTuple(ctx context.Context, t Tuple) error {
	return c.writeUpdate(ctx, t, v1.RelationshipUpdate_OPERATION_TOUCH)
}

func (c *client) DeleteTuple(ctx context.Context, t Tuple) error {
	return c.writeUpdate(ctx, t, v1.RelationshipUpdate_OPERATION_DELETE)
}

func (c *client) writeUpdate(ctx context.Context, t Tuple, op v1.RelationshipUpdate_Operation) error {
	_, err := c.authzed.WriteRelationships(ctx, &v1.WriteRelationshipsRequest{
		Updates: []*v1.RelationshipUpdate{{
			Operation: op,
			Relationship: &v1.Relationship{
				Resource: &v1.ObjectReference{ObjectType: t.ObjectType, ObjectId: t.ObjectID},
				Relation: t.Relation,
				Subject: &v1.SubjectReference{
					Object: &v1.ObjectReference{ObjectType: t.SubjectType, ObjectId: t.SubjectID},
				},
			},
		}},
	})
	if err != nil {
		return &cperrors.AuthorizationServerError{Cause: err}
	}
	return nil
}

func fullConsistency() *v1.Consistency {
	return &v1.Consistency{Requirement: &v1.Consistency_FullyConsistent{FullyConsistent: true}}
}
