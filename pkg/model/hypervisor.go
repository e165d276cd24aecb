// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"time"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// Hypervisor is a registered hypervisor cluster endpoint. Instances placed
// on it must belong to a project of the same organization.
type Hypervisor struct {
	ID             id.HypervisorID   `db:"id"`
	ZoneID         id.ZoneID         `db:"zone_id"`
	OrganizationID id.OrganizationID `db:"organization_id"`
	URL            string            `db:"url"`
	AuthToken      string            `db:"auth_token"`
	StorageName    string            `db:"storage_name"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
}

// HypervisorRepository provides CRUD over hypervisors.
type HypervisorRepository struct{}

const hypervisorColumns = `id, zone_id, organization_id, url, auth_token, storage_name, created_at, updated_at`

// Create registers the hypervisor and returns the hydrated row.
func (HypervisorRepository) Create(ctx context.Context, q Querier, h *Hypervisor) (*Hypervisor, error) {
	var out Hypervisor
	err := get(ctx, q, &out, `
		INSERT INTO hypervisors (id, zone_id, organization_id, url, auth_token, storage_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+hypervisorColumns,
		h.ID, h.ZoneID, h.OrganizationID, h.URL, h.AuthToken, h.StorageName)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Update rewrites the mutable connection fields.
func (HypervisorRepository) Update(ctx context.Context, q Querier, h *Hypervisor) (*Hypervisor, error) {
	var out Hypervisor
	err := get(ctx, q, &out, `
		UPDATE hypervisors SET url = $2, auth_token = $3, storage_name = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+hypervisorColumns,
		h.ID, h.URL, h.AuthToken, h.StorageName)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID returns the hypervisor with the given id.
func (HypervisorRepository) FindByID(ctx context.Context, q Querier, hvID id.HypervisorID) (*Hypervisor, error) {
	var out Hypervisor
	if err := get(ctx, q, &out, `SELECT `+hypervisorColumns+` FROM hypervisors WHERE id = $1`, hvID); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByOrganization returns all hypervisors registered to an organization.
func (HypervisorRepository) ListByOrganization(ctx context.Context, q Querier, orgID id.OrganizationID) ([]Hypervisor, error) {
	var out []Hypervisor
	err := selectAll(ctx, q, &out, `SELECT `+hypervisorColumns+` FROM hypervisors WHERE organization_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByZone returns all hypervisors in a placement zone.
func (HypervisorRepository) ListByZone(ctx context.Context, q Querier, zoneID id.ZoneID) ([]Hypervisor, error) {
	var out []Hypervisor
	err := selectAll(ctx, q, &out, `SELECT `+hypervisorColumns+` FROM hypervisors WHERE zone_id = $1 ORDER BY created_at`, zoneID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete detaches the hypervisor.
func (HypervisorRepository) Delete(ctx context.Context, q Querier, hvID id.HypervisorID) error {
	return exec(ctx, q, `DELETE FROM hypervisors WHERE id = $1`, hvID)
}
