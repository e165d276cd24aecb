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
	"github.com/meridian-cloud/meridian/pkg/store"
)

// OrganizationService manages organizations.
type OrganizationService struct {
	base
}

// List returns the organizations the principal can view. Service accounts
// see all organizations; users see the ones the policy server grants them.
func (s *OrganizationService) List(ctx context.Context, p identity.Principal) ([]model.Organization, error) {
	if p.IsAnonymous() {
		return nil, cperrors.ErrUnauthenticated
	}
	if p.Kind == identity.KindServiceAccount {
		return s.orgs.List(ctx, s.db())
	}

	subjectType, subjectID := p.Subject()
	visible, err := s.authz.Lookup(ctx, subjectType, subjectID, authz.PermViewOrganization, authz.TypeOrganization)
	if err != nil {
		return nil, err
	}
	ids := make([]id.OrganizationID, 0, len(visible))
	for _, raw := range visible {
		orgID, err := id.ParseOrganizationID(raw)
		if err != nil {
			s.log.Info("policy server returned an unparsable organization id", "id", raw)
			continue
		}
		ids = append(ids, orgID)
	}
	return s.orgs.ListByIDs(ctx, s.db(), ids)
}

// CreateOrganizationRequest is the input of Create.
type CreateOrganizationRequest struct {
	Name     string
	Slug     string
	ParentID *id.OrganizationID
}

// Create inserts an organization and queues the membership relationships
// of its creator. A taken slug yields SlugAlreadyExists.
func (s *OrganizationService) Create(ctx context.Context, p identity.Principal, req CreateOrganizationRequest) (*model.Organization, error) {
	if p.IsAnonymous() {
		return nil, cperrors.ErrUnauthenticated
	}
	if req.Name == "" || req.Slug == "" {
		return nil, &cperrors.InvalidInputError{Field: "name", Reason: "name and slug are required"}
	}
	if req.ParentID != nil {
		if err := s.authorize(ctx, p, authz.PermAdminOrganization, authz.TypeOrganization, req.ParentID.String()); err != nil {
			return nil, err
		}
	}

	var created *model.Organization
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		org, err := s.orgs.Create(ctx, tx, &model.Organization{
			ID:       id.NewOrganizationID(),
			Name:     req.Name,
			Slug:     req.Slug,
			ParentID: req.ParentID,
		})
		if err != nil {
			if store.IsUniqueViolation(err, "organizations_slug_key") {
				return &cperrors.SlugAlreadyExistsError{Slug: req.Slug}
			}
			return err
		}

		subjectType, subjectID := p.Subject()
		relations := []string{authz.RelationOwner, authz.RelationMember}
		for _, relation := range relations {
			if _, err := s.queue.EnqueueWriteRelationship(ctx, tx, authz.Tuple{
				ObjectType:  authz.TypeOrganization,
				ObjectID:    org.ID.String(),
				Relation:    relation,
				SubjectType: subjectType,
				SubjectID:   subjectID,
			}); err != nil {
				return err
			}
		}
		if req.ParentID != nil {
			if _, err := s.queue.EnqueueWriteRelationship(ctx, tx, authz.Tuple{
				ObjectType:  authz.TypeOrganization,
				ObjectID:    org.ID.String(),
				Relation:    authz.RelationParent,
				SubjectType: authz.TypeOrganization,
				SubjectID:   req.ParentID.String(),
			}); err != nil {
				return err
			}
		}

		created = org
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("created organization", "organization", created.ID, "slug", created.Slug, "by", p.DisplayName())
	return created, nil
}
