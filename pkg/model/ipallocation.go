// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"time"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// IPAllocationKind classifies an address row.
type IPAllocationKind string

// Address kinds.
const (
	IPStatic   IPAllocationKind = "Static"
	IPDynamic  IPAllocationKind = "Dynamic"
	IPReserved IPAllocationKind = "Reserved"
	IPGateway  IPAllocationKind = "Gateway"
)

// IPAllocationStatus is the pool state of an address row.
type IPAllocationStatus string

// Address pool states.
const (
	IPStatusReserved IPAllocationStatus = "Reserved"
	IPStatusInUse    IPAllocationStatus = "InUse"
)

// IPAllocation is one address of a VNet's pre-filled pool. At most one row
// per VNet holds a given address; at most one row globally holds a given
// MAC address.
type IPAllocation struct {
	ID                  id.IPAllocationID  `db:"id"`
	VnetID              id.VNetID          `db:"vnet_id"`
	Address             string             `db:"address"`
	MacAddress          *string            `db:"mac_address"`
	InstanceInterfaceID *string            `db:"instance_interface_id"`
	Kind                IPAllocationKind   `db:"kind"`
	Status              IPAllocationStatus `db:"status"`
	InstanceID          *id.InstanceID     `db:"instance_id"`
	Hostname            *string            `db:"hostname"`
	AllocatedAt         *time.Time         `db:"allocated_at"`
	ReleasedAt          *time.Time         `db:"released_at"`
	CreatedAt           time.Time          `db:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at"`
}

// IPAllocationRepository provides lookups over the address pool. The
// allocation algorithm itself lives in the ipam package because it needs
// skip-locked row claims.
type IPAllocationRepository struct{}

const ipAllocationColumns = `id, vnet_id, address, mac_address, instance_interface_id, kind, status,
	instance_id, hostname, allocated_at, released_at, created_at, updated_at`

// FindByID returns the allocation with the given id.
func (IPAllocationRepository) FindByID(ctx context.Context, q Querier, allocID id.IPAllocationID) (*IPAllocation, error) {
	var out IPAllocation
	if err := get(ctx, q, &out, `SELECT `+ipAllocationColumns+` FROM ip_allocations WHERE id = $1`, allocID); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByAddress returns the allocation row holding address on the VNet.
func (IPAllocationRepository) FindByAddress(ctx context.Context, q Querier, vnetID id.VNetID, address string) (*IPAllocation, error) {
	var out IPAllocation
	err := get(ctx, q, &out, `SELECT `+ipAllocationColumns+` FROM ip_allocations WHERE vnet_id = $1 AND address = $2`, vnetID, address)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByVNet returns the full pool of one VNet ordered by address.
func (IPAllocationRepository) ListByVNet(ctx context.Context, q Querier, vnetID id.VNetID) ([]IPAllocation, error) {
	var out []IPAllocation
	if err := selectAll(ctx, q, &out, `SELECT `+ipAllocationColumns+` FROM ip_allocations WHERE vnet_id = $1 ORDER BY address`, vnetID); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByInstance returns the addresses bound to an instance.
func (IPAllocationRepository) ListByInstance(ctx context.Context, q Querier, instanceID id.InstanceID) ([]IPAllocation, error) {
	var out []IPAllocation
	if err := selectAll(ctx, q, &out, `SELECT `+ipAllocationColumns+` FROM ip_allocations WHERE instance_id = $1 ORDER BY address`, instanceID); err != nil {
		return nil, err
	}
	return out, nil
}
