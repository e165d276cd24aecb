// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"time"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// Zone is a placement region referenced by hypervisors.
type Zone struct {
	ID        id.ZoneID `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ZoneRepository provides CRUD over zones.
type ZoneRepository struct{}

const zoneColumns = `id, name, created_at, updated_at`

// Create inserts the zone and returns the hydrated row.
func (ZoneRepository) Create(ctx context.Context, q Querier, z *Zone) (*Zone, error) {
	var out Zone
	err := get(ctx, q, &out, `
		INSERT INTO zones (id, name)
		VALUES ($1, $2)
		RETURNING `+zoneColumns,
		z.ID, z.Name)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID returns the zone with the given id.
func (ZoneRepository) FindByID(ctx context.Context, q Querier, zoneID id.ZoneID) (*Zone, error) {
	var out Zone
	if err := get(ctx, q, &out, `SELECT `+zoneColumns+` FROM zones WHERE id = $1`, zoneID); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByName returns the zone with the given name.
func (ZoneRepository) FindByName(ctx context.Context, q Querier, name string) (*Zone, error) {
	var out Zone
	if err := get(ctx, q, &out, `SELECT `+zoneColumns+` FROM zones WHERE name = $1`, name); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns all zones.
func (ZoneRepository) List(ctx context.Context, q Querier) ([]Zone, error) {
	var out []Zone
	if err := selectAll(ctx, q, &out, `SELECT `+zoneColumns+` FROM zones ORDER BY name`); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the zone.
func (ZoneRepository) Delete(ctx context.Context, q Querier, zoneID id.ZoneID) error {
	return exec(ctx, q, `DELETE FROM zones WHERE id = $1`, zoneID)
}
