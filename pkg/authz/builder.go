// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package authz

import (
	"context"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
)

// Check starts a staged permission check. Each stage returns a new type so
// a check cannot be dispatched until subject, permission and object are all
// set:
//
//	err := authz.Check(client).
//		Subject(authz.TypeUser, userID).
//		Permission(authz.PermCreateVPC).
//		Object(authz.TypeOrganization, orgID).
//		Allowed(ctx)
func Check(c Client) CheckBuilder {
	return CheckBuilder{client: c}
}

// CheckBuilder is the initial stage of a permission check.
type CheckBuilder struct {
	client Client
}

// Subject sets the principal being checked.
func (b CheckBuilder) Subject(subjectType, subjectID string) CheckWithSubject {
	return CheckWithSubject{client: b.client, subjectType: subjectType, subjectID: subjectID}
}

// CheckWithSubject is a check with its subject set.
type CheckWithSubject struct {
	client      Client
	subjectType string
	subjectID   string
}

// Permission sets the permission being checked.
func (b CheckWithSubject) Permission(permission string) CheckWithPermission {
	return CheckWithPermission{
		client:      b.client,
		subjectType: b.subjectType,
		subjectID:   b.subjectID,
		permission:  permission,
	}
}

// CheckWithPermission is a check with subject and permission set.
type CheckWithPermission struct {
	client      Client
	subjectType string
	subjectID   string
	permission  string
}

// Object sets the resource the permission applies to.
func (b CheckWithPermission) Object(objectType, objectID string) ReadyCheck {
	return ReadyCheck{
		client:      b.client,
		subjectType: b.subjectType,
		subjectID:   b.subjectID,
		permission:  b.permission,
		objectType:  objectType,
		objectID:    objectID,
	}
}

// ReadyCheck is a fully specified check.
type ReadyCheck struct {
	client      Client
	subjectType string
	subjectID   string
	permission  string
	objectType  string
	objectID    string
}

// Do dispatches the check and returns the decision.
func (c ReadyCheck) Do(ctx context.Context) (Decision, error) {
	return c.client.Check(ctx, c.subjectType, c.subjectID, c.permission, c.objectType, c.objectID)
}

// Allowed dispatches the check and translates a denial into a
// ForbiddenError, which the gRPC facade maps to PermissionDenied.
func (c ReadyCheck) Allowed(ctx context.Context) error {
	decision, err := c.Do(ctx)
	if err != nil {
		return err
	}
	if decision != Allowed {
		return &cperrors.ForbiddenError{
			Permission: c.permission,
			Resource:   c.objectType + ":" + c.objectID,
		}
	}
	return nil
}
