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

// MTU bounds accepted for a VPC.
const (
	MinMTU = 1280
	MaxMTU = 1500
)

// DefaultMTU is applied when a create request does not set one.
const DefaultMTU = 1450

// VPCService manages VPCs and their default security groups.
type VPCService struct {
	base
}

// List returns the VPCs of an organization the principal can view.
func (s *VPCService) List(ctx context.Context, p identity.Principal, orgID id.OrganizationID) ([]model.VPC, error) {
	if err := s.authorize(ctx, p, authz.PermViewOrganization, authz.TypeOrganization, orgID.String()); err != nil {
		return nil, err
	}
	return s.vpcs.ListByOrganization(ctx, s.db(), orgID)
}

// Get returns one VPC after checking view permission on its organization.
func (s *VPCService) Get(ctx context.Context, p identity.Principal, vpcID id.VPCID) (*model.VPC, error) {
	vpc, err := s.vpcs.FindByID(ctx, s.db(), vpcID)
	if err != nil {
		return nil, notFoundOr(err, "vpc", vpcID.String())
	}
	if err := s.authorize(ctx, p, authz.PermViewOrganization, authz.TypeOrganization, vpc.OrganizationID.String()); err != nil {
		return nil, err
	}
	return vpc, nil
}

// CreateVPCRequest is the input of Create.
type CreateVPCRequest struct {
	OrganizationID id.OrganizationID
	Name           string
	Slug           string
	Region         string
	MTU            int32
}

// Create inserts a VPC in one transaction together with its VXLAN tag, its
// parent relationship, and a default security group carrying one deny-all
// rule per direction. The VPC comes out Active; SDN materialisation is
// deferred to the first VNet. A taken slug yields SlugAlreadyExists and
// leaves no residue.
func (s *VPCService) Create(ctx context.Context, p identity.Principal, req CreateVPCRequest) (*model.VPC, error) {
	if err := s.authorize(ctx, p, authz.PermCreateVPC, authz.TypeOrganization, req.OrganizationID.String()); err != nil {
		return nil, err
	}
	if req.Name == "" || req.Slug == "" {
		return nil, &cperrors.InvalidInputError{Field: "name", Reason: "name and slug are required"}
	}
	mtu := req.MTU
	if mtu == 0 {
		mtu = DefaultMTU
	}
	if mtu < MinMTU || mtu > MaxMTU {
		return nil, &cperrors.InvalidInputError{Field: "mtu", Reason: "must be between 1280 and 1500"}
	}

	var created *model.VPC
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		// The tag sequence does not roll back, so the slug is checked
		// before a tag is drawn; the unique constraint on the insert
		// backstops the race.
		if _, err := s.vpcs.FindBySlug(ctx, tx, req.Slug); err == nil {
			return &cperrors.SlugAlreadyExistsError{Slug: req.Slug}
		} else if !store.IsNoRows(err) {
			return err
		}
		tag, err := s.vpcs.NextVxlanTag(ctx, tx)
		if err != nil {
			return err
		}
		vpc, err := s.vpcs.Create(ctx, tx, &model.VPC{
			ID:             id.NewVPCID(),
			Name:           req.Name,
			Slug:           req.Slug,
			OrganizationID: req.OrganizationID,
			Region:         req.Region,
			VxlanTag:       tag,
			State:          model.VPCCreating,
			MTU:            mtu,
		})
		if err != nil {
			if store.IsUniqueViolation(err, "vpcs_slug_key") {
				return &cperrors.SlugAlreadyExistsError{Slug: req.Slug}
			}
			return err
		}

		if _, err := s.queue.EnqueueWriteRelationship(ctx, tx, authz.Tuple{
			ObjectType:  authz.TypeVPC,
			ObjectID:    vpc.ID.String(),
			Relation:    authz.RelationParent,
			SubjectType: authz.TypeOrganization,
			SubjectID:   req.OrganizationID.String(),
		}); err != nil {
			return err
		}

		if err := s.createDefaultSecurityGroup(ctx, tx, vpc.ID); err != nil {
			return err
		}

		if err := s.vpcs.UpdateState(ctx, tx, vpc.ID, model.VPCActive, nil); err != nil {
			return err
		}
		vpc.State = model.VPCActive
		created = vpc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("created vpc", "vpc", created.ID, "slug", created.Slug,
		"vxlanTag", created.VxlanTag, "by", p.DisplayName())
	return created, nil
}

// createDefaultSecurityGroup inserts the default group with exactly two
// deny-all rules, one per direction, at the lowest priority.
func (s *VPCService) createDefaultSecurityGroup(ctx context.Context, tx *sqlx.Tx, vpcID id.VPCID) error {
	group, err := s.groups.CreateGroup(ctx, tx, &model.SecurityGroup{
		ID:        id.NewSecurityGroupID(),
		VpcID:     vpcID,
		Name:      "default",
		IsDefault: true,
	})
	if err != nil {
		return err
	}
	for _, direction := range []model.RuleDirection{model.DirectionInbound, model.DirectionOutbound} {
		_, err := s.groups.CreateRule(ctx, tx, &model.SecurityRule{
			ID:              id.NewSecurityRuleID(),
			SecurityGroupID: group.ID,
			Direction:       direction,
			Protocol:        model.ProtocolAll,
			Action:          model.ActionDeny,
			Priority:        model.DenyAllPriority,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a VPC. Remaining VNets block the deletion; the SDN zone,
// where one was materialised, is torn down first.
func (s *VPCService) Delete(ctx context.Context, p identity.Principal, vpcID id.VPCID) error {
	vpc, err := s.vpcs.FindByID(ctx, s.db(), vpcID)
	if err != nil {
		return notFoundOr(err, "vpc", vpcID.String())
	}
	if err := s.authorize(ctx, p, authz.PermDeleteVPC, authz.TypeOrganization, vpc.OrganizationID.String()); err != nil {
		return err
	}

	count, err := s.vpcs.CountVNets(ctx, s.db(), vpcID)
	if err != nil {
		return err
	}
	if count > 0 {
		return &cperrors.VpcHasVnetsError{VPC: vpcID.String()}
	}

	if vpc.SdnZoneID != nil {
		if err := s.proxmox.DeleteSDNZone(ctx, *vpc.SdnZoneID); err != nil {
			return err
		}
		if _, err := s.proxmox.ApplySDN(ctx); err != nil {
			return err
		}
	}

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.vpcs.Delete(ctx, tx, vpcID); err != nil {
			return err
		}
		_, err := s.queue.EnqueueDeleteRelationship(ctx, tx, authz.Tuple{
			ObjectType:  authz.TypeVPC,
			ObjectID:    vpcID.String(),
			Relation:    authz.RelationParent,
			SubjectType: authz.TypeOrganization,
			SubjectID:   vpc.OrganizationID.String(),
		})
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info("deleted vpc", "vpc", vpcID, "by", p.DisplayName())
	return nil
}
