// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"time"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// Project owns compute and network resources inside an organization.
type Project struct {
	ID             id.ProjectID      `db:"id"`
	Name           string            `db:"name"`
	OrganizationID id.OrganizationID `db:"organization_id"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
}

// ProjectRepository provides CRUD over projects.
type ProjectRepository struct{}

const projectColumns = `id, name, organization_id, created_at, updated_at`

// Create inserts the project and returns the hydrated row.
func (ProjectRepository) Create(ctx context.Context, q Querier, p *Project) (*Project, error) {
	var out Project
	err := get(ctx, q, &out, `
		INSERT INTO projects (id, name, organization_id)
		VALUES ($1, $2, $3)
		RETURNING `+projectColumns,
		p.ID, p.Name, p.OrganizationID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update renames the project.
func (ProjectRepository) Update(ctx context.Context, q Querier, p *Project) (*Project, error) {
	var out Project
	err := get(ctx, q, &out, `
		UPDATE projects SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+projectColumns,
		p.ID, p.Name)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID returns the project with the given id.
func (ProjectRepository) FindByID(ctx context.Context, q Querier, projectID id.ProjectID) (*Project, error) {
	var out Project
	err := get(ctx, q, &out, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByOrganization returns all projects of one organization.
func (ProjectRepository) ListByOrganization(ctx context.Context, q Querier, orgID id.OrganizationID) ([]Project, error) {
	var out []Project
	err := selectAll(ctx, q, &out, `SELECT `+projectColumns+` FROM projects WHERE organization_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByIDs returns projects restricted to the given identifiers.
func (ProjectRepository) ListByIDs(ctx context.Context, q Querier, ids []id.ProjectID) ([]Project, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlxIn(`SELECT `+projectColumns+` FROM projects WHERE id IN (?) ORDER BY created_at`, ids)
	if err != nil {
		return nil, err
	}
	var out []Project
	if err := selectAll(ctx, q, &out, q.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the project.
func (ProjectRepository) Delete(ctx context.Context, q Querier, projectID id.ProjectID) error {
	return exec(ctx, q, `DELETE FROM projects WHERE id = $1`, projectID)
}
