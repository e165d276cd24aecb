// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/model"
)

// ProjectService manages projects.
type ProjectService struct {
	base
}

// List returns the projects of an organization the principal can view.
func (s *ProjectService) List(ctx context.Context, p identity.Principal, orgID id.OrganizationID) ([]model.Project, error) {
	if err := s.authorize(ctx, p, authz.PermViewOrganization, authz.TypeOrganization, orgID.String()); err != nil {
		return nil, err
	}
	return s.projects.ListByOrganization(ctx, s.db(), orgID)
}

// Create inserts a project under the organization and queues its parent
// relationship and the creator's namespace grant.
func (s *ProjectService) Create(ctx context.Context, p identity.Principal, orgID id.OrganizationID, name string) (*model.Project, error) {
	if name == "" {
		return nil, &cperrors.InvalidInputError{Field: "name", Reason: "must not be empty"}
	}
	if err := s.authorize(ctx, p, authz.PermCreateProject, authz.TypeOrganization, orgID.String()); err != nil {
		return nil, err
	}
	if _, err := s.orgs.FindByID(ctx, s.db(), orgID); err != nil {
		return nil, notFoundOr(err, "organization", orgID.String())
	}

	var created *model.Project
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		project, err := s.projects.Create(ctx, tx, &model.Project{
			ID:             id.NewProjectID(),
			Name:           name,
			OrganizationID: orgID,
		})
		if err != nil {
			return err
		}

		if _, err := s.queue.EnqueueWriteRelationship(ctx, tx, authz.Tuple{
			ObjectType:  authz.TypeProject,
			ObjectID:    project.ID.String(),
			Relation:    authz.RelationParent,
			SubjectType: authz.TypeOrganization,
			SubjectID:   orgID.String(),
		}); err != nil {
			return err
		}

		// Project creators get workload-cluster access to the project
		// namespace.
		if p.Kind == identity.KindUser {
			if err := enqueueNamespaceGrant(ctx, s.queue, tx, project.ID, p.User.Email); err != nil {
				return err
			}
		}

		created = project
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("created project", "project", created.ID, "organization", orgID, "by", p.DisplayName())
	return created, nil
}
