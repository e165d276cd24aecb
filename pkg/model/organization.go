// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"time"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// Organization is the root of the multi-tenant tree. Slugs are globally
// unique; sub-organizations reference their parent.
type Organization struct {
	ID        id.OrganizationID  `db:"id"`
	Name      string             `db:"name"`
	Slug      string             `db:"slug"`
	ParentID  *id.OrganizationID `db:"parent_id"`
	CreatedAt time.Time          `db:"created_at"`
	UpdatedAt time.Time          `db:"updated_at"`
}

// OrganizationRepository provides CRUD over organizations.
type OrganizationRepository struct{}

const organizationColumns = `id, name, slug, parent_id, created_at, updated_at`

// Create inserts the organization and returns the hydrated row.
func (OrganizationRepository) Create(ctx context.Context, q Querier, org *Organization) (*Organization, error) {
	var out Organization
	err := get(ctx, q, &out, `
		INSERT INTO organizations (id, name, slug, parent_id)
		VALUES ($1, $2, $3, $4)
		RETURNING `+organizationColumns,
		org.ID, org.Name, org.Slug, org.ParentID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update renames the organization.
func (OrganizationRepository) Update(ctx context.Context, q Querier, org *Organization) (*Organization, error) {
	var out Organization
	err := get(ctx, q, &out, `
		UPDATE organizations SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+organizationColumns,
		org.ID, org.Name)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID returns the organization with the given id.
func (OrganizationRepository) FindByID(ctx context.Context, q Querier, orgID id.OrganizationID) (*Organization, error) {
	var out Organization
	err := get(ctx, q, &out, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, orgID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindBySlug returns the organization with the given slug.
func (OrganizationRepository) FindBySlug(ctx context.Context, q Querier, slug string) (*Organization, error) {
	var out Organization
	err := get(ctx, q, &out, `SELECT `+organizationColumns+` FROM organizations WHERE slug = $1`, slug)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns all organizations ordered by creation time.
func (OrganizationRepository) List(ctx context.Context, q Querier) ([]Organization, error) {
	var out []Organization
	if err := selectAll(ctx, q, &out, `SELECT `+organizationColumns+` FROM organizations ORDER BY created_at`); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByIDs returns organizations restricted to the given identifiers; used
// by authorization lookups.
func (OrganizationRepository) ListByIDs(ctx context.Context, q Querier, ids []id.OrganizationID) ([]Organization, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlxIn(`SELECT `+organizationColumns+` FROM organizations WHERE id IN (?) ORDER BY created_at`, ids)
	if err != nil {
		return nil, err
	}
	var out []Organization
	if err := selectAll(ctx, q, &out, q.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the organization.
func (OrganizationRepository) Delete(ctx context.Context, q Querier, orgID id.OrganizationID) error {
	return exec(ctx, q, `DELETE FROM organizations WHERE id = $1`, orgID)
}
