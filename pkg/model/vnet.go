// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// VNetState is the lifecycle state of a VNet.
type VNetState string

// VNet lifecycle states.
const (
	VNetPending VNetState = "Pending"
	VNetActive  VNetState = "Active"
	VNetError   VNetState = "Error"
)

// VNet is a single broadcast domain within a VPC. The bridge identifier is
// the SDN vnet name on the hypervisor side and is unique across the fleet.
type VNet struct {
	ID           id.VNetID      `db:"id"`
	VpcID        id.VPCID       `db:"vpc_id"`
	Name         string         `db:"name"`
	VnetBridgeID string         `db:"vnet_bridge_id"`
	Subnet       string         `db:"subnet"`
	Gateway      string         `db:"gateway"`
	DhcpEnabled  bool           `db:"dhcp_enabled"`
	DNSServers   pq.StringArray `db:"dns_servers"`
	State        VNetState      `db:"state"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// VNetRepository provides CRUD over VNets.
type VNetRepository struct{}

const vnetColumns = `id, vpc_id, name, vnet_bridge_id, subnet, gateway, dhcp_enabled, dns_servers, state, created_at, updated_at`

// Create inserts the VNet and returns the hydrated row.
func (VNetRepository) Create(ctx context.Context, q Querier, v *VNet) (*VNet, error) {
	var out VNet
	err := get(ctx, q, &out, `
		INSERT INTO vnets (id, vpc_id, name, vnet_bridge_id, subnet, gateway, dhcp_enabled, dns_servers, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+vnetColumns,
		v.ID, v.VpcID, v.Name, v.VnetBridgeID, v.Subnet, v.Gateway, v.DhcpEnabled, v.DNSServers, v.State)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateState moves the VNet to the given state.
func (VNetRepository) UpdateState(ctx context.Context, q Querier, vnetID id.VNetID, state VNetState) error {
	return exec(ctx, q, `UPDATE vnets SET state = $2, updated_at = now() WHERE id = $1`, vnetID, state)
}

// FindByID returns the VNet with the given id.
func (VNetRepository) FindByID(ctx context.Context, q Querier, vnetID id.VNetID) (*VNet, error) {
	var out VNet
	if err := get(ctx, q, &out, `SELECT `+vnetColumns+` FROM vnets WHERE id = $1`, vnetID); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByVPC returns the VNets parented to one VPC.
func (VNetRepository) ListByVPC(ctx context.Context, q Querier, vpcID id.VPCID) ([]VNet, error) {
	var out []VNet
	if err := selectAll(ctx, q, &out, `SELECT `+vnetColumns+` FROM vnets WHERE vpc_id = $1 ORDER BY created_at`, vpcID); err != nil {
		return nil, err
	}
	return out, nil
}

// CountInUseAddresses returns the number of addresses currently bound to
// instances on the VNet. Gateway rows do not count.
func (VNetRepository) CountInUseAddresses(ctx context.Context, q Querier, vnetID id.VNetID) (int, error) {
	var n int
	err := get(ctx, q, &n, `
		SELECT count(*) FROM ip_allocations
		WHERE vnet_id = $1 AND status = 'InUse' AND kind <> 'Gateway'`,
		vnetID)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Delete removes the VNet and its address pool.
func (VNetRepository) Delete(ctx context.Context, q Querier, vnetID id.VNetID) error {
	if err := exec(ctx, q, `DELETE FROM ip_allocations WHERE vnet_id = $1`, vnetID); err != nil {
		return err
	}
	return exec(ctx, q, `DELETE FROM vnets WHERE id = $1`, vnetID)
}
