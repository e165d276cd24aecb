// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"time"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// VPCState is the lifecycle state of a VPC.
type VPCState string

// VPC lifecycle states.
const (
	VPCPending  VPCState = "Pending"
	VPCCreating VPCState = "Creating"
	VPCActive   VPCState = "Active"
	VPCError    VPCState = "Error"
	VPCDeleting VPCState = "Deleting"
)

// VPC is an isolated virtual network within an organization. The VXLAN tag
// is the 24-bit VNI of the SDN overlay and is drawn from a monotonic
// database sequence so no two VPCs ever share one.
type VPC struct {
	ID             id.VPCID          `db:"id"`
	Name           string            `db:"name"`
	Slug           string            `db:"slug"`
	OrganizationID id.OrganizationID `db:"organization_id"`
	Region         string            `db:"region"`
	SdnZoneID      *string           `db:"sdn_zone_id"`
	VxlanTag       int32             `db:"vxlan_tag"`
	State          VPCState          `db:"state"`
	MTU            int32             `db:"mtu"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
}

// VPCRepository provides CRUD over VPCs and the VXLAN tag sequence.
type VPCRepository struct{}

const vpcColumns = `id, name, slug, organization_id, region, sdn_zone_id, vxlan_tag, state, mtu, created_at, updated_at`

// NextVxlanTag draws the next tag from the monotonic sequence.
func (VPCRepository) NextVxlanTag(ctx context.Context, q Querier) (int32, error) {
	var tag int32
	if err := get(ctx, q, &tag, `SELECT nextval('vpc_vxlan_tag_seq')::integer`); err != nil {
		return 0, err
	}
	return tag, nil
}

// Create inserts the VPC and returns the hydrated row.
func (VPCRepository) Create(ctx context.Context, q Querier, v *VPC) (*VPC, error) {
	var out VPC
	err := get(ctx, q, &out, `
		INSERT INTO vpcs (id, name, slug, organization_id, region, sdn_zone_id, vxlan_tag, state, mtu)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+vpcColumns,
		v.ID, v.Name, v.Slug, v.OrganizationID, v.Region, v.SdnZoneID, v.VxlanTag, v.State, v.MTU)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateState moves the VPC to the given state, optionally recording the
// SDN zone identifier the overlay was materialised under.
func (VPCRepository) UpdateState(ctx context.Context, q Querier, vpcID id.VPCID, state VPCState, sdnZoneID *string) error {
	return exec(ctx, q, `
		UPDATE vpcs SET state = $2, sdn_zone_id = COALESCE($3, sdn_zone_id), updated_at = now()
		WHERE id = $1`,
		vpcID, state, sdnZoneID)
}

// FindByID returns the VPC with the given id.
func (VPCRepository) FindByID(ctx context.Context, q Querier, vpcID id.VPCID) (*VPC, error) {
	var out VPC
	if err := get(ctx, q, &out, `SELECT `+vpcColumns+` FROM vpcs WHERE id = $1`, vpcID); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindBySlug returns the VPC with the given slug.
func (VPCRepository) FindBySlug(ctx context.Context, q Querier, slug string) (*VPC, error) {
	var out VPC
	if err := get(ctx, q, &out, `SELECT `+vpcColumns+` FROM vpcs WHERE slug = $1`, slug); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByOrganization returns all VPCs of one organization.
func (VPCRepository) ListByOrganization(ctx context.Context, q Querier, orgID id.OrganizationID) ([]VPC, error) {
	var out []VPC
	err := selectAll(ctx, q, &out, `SELECT `+vpcColumns+` FROM vpcs WHERE organization_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountVNets returns the number of VNets still parented to the VPC.
func (VPCRepository) CountVNets(ctx context.Context, q Querier, vpcID id.VPCID) (int, error) {
	var n int
	if err := get(ctx, q, &n, `SELECT count(*) FROM vnets WHERE vpc_id = $1`, vpcID); err != nil {
		return 0, err
	}
	return n, nil
}

// Delete removes the VPC row and its security groups.
func (VPCRepository) Delete(ctx context.Context, q Querier, vpcID id.VPCID) error {
	if err := exec(ctx, q, `DELETE FROM security_groups WHERE vpc_id = $1`, vpcID); err != nil {
		return err
	}
	return exec(ctx, q, `DELETE FROM vpcs WHERE id = $1`, vpcID)
}
