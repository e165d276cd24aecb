// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/proxmox"
)

// VNetService manages VNets: the database row, the pre-filled address pool
// and the SDN objects on the hypervisor.
type VNetService struct {
	base
}

// List returns the VNets of a VPC.
func (s *VNetService) List(ctx context.Context, p identity.Principal, vpcID id.VPCID) ([]model.VNet, error) {
	vpc, err := s.vpcs.FindByID(ctx, s.db(), vpcID)
	if err != nil {
		return nil, notFoundOr(err, "vpc", vpcID.String())
	}
	if err := s.authorize(ctx, p, authz.PermViewOrganization, authz.TypeOrganization, vpc.OrganizationID.String()); err != nil {
		return nil, err
	}
	return s.vnets.ListByVPC(ctx, s.db(), vpcID)
}

// CreateVNetRequest is the input of Create.
type CreateVNetRequest struct {
	VpcID       id.VPCID
	Name        string
	Subnet      string
	Gateway     string
	DhcpEnabled bool
	DNSServers  []string
}

// Create inserts a VNet with its pre-filled address pool, then
// materialises the SDN overlay: the VPC's zone on first use, the vnet
// bridge, the subnet, and a cluster-wide apply. The row starts Pending and
// only turns Active once the overlay is applied; SDN failure removes the
// row and its pool again.
func (s *VNetService) Create(ctx context.Context, p identity.Principal, req CreateVNetRequest) (*model.VNet, error) {
	vpc, err := s.vpcs.FindByID(ctx, s.db(), req.VpcID)
	if err != nil {
		return nil, notFoundOr(err, "vpc", req.VpcID.String())
	}
	if err := s.authorize(ctx, p, authz.PermCreateVNet, authz.TypeOrganization, vpc.OrganizationID.String()); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, &cperrors.InvalidInputError{Field: "name", Reason: "must not be empty"}
	}

	vnetID := id.NewVNetID()
	bridgeID := bridgeIDFor(vnetID)

	var created *model.VNet
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		vnet, err := s.vnets.Create(ctx, tx, &model.VNet{
			ID:           vnetID,
			VpcID:        req.VpcID,
			Name:         req.Name,
			VnetBridgeID: bridgeID,
			Subnet:       req.Subnet,
			Gateway:      req.Gateway,
			DhcpEnabled:  req.DhcpEnabled,
			DNSServers:   pq.StringArray(req.DNSServers),
			State:        model.VNetPending,
		})
		if err != nil {
			return err
		}
		if _, err := s.allocator.PrefillPool(ctx, tx, vnetID, req.Subnet, req.Gateway); err != nil {
			return err
		}
		created = vnet
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.materialiseSDN(ctx, vpc, created); err != nil {
		if cleanupErr := s.vnets.Delete(ctx, s.db(), vnetID); cleanupErr != nil {
			s.log.Error(cleanupErr, "could not remove vnet row after sdn failure", "vnet", vnetID)
		}
		return nil, err
	}

	if err := s.vnets.UpdateState(ctx, s.db(), vnetID, model.VNetActive); err != nil {
		return nil, err
	}
	created.State = model.VNetActive
	s.log.Info("created vnet", "vnet", vnetID, "vpc", req.VpcID,
		"bridge", bridgeID, "subnet", req.Subnet, "by", p.DisplayName())
	return created, nil
}

// materialiseSDN builds the overlay pieces for a fresh VNet. Objects
// created before a failure are deleted again in reverse order.
func (s *VNetService) materialiseSDN(ctx context.Context, vpc *model.VPC, vnet *model.VNet) error {
	zoneID := sdnZoneFor(vpc)
	if vpc.SdnZoneID == nil {
		if err := s.proxmox.CreateSDNZone(ctx, proxmox.SDNZone{
			Zone: zoneID,
			Type: "vxlan",
			MTU:  int(vpc.MTU),
		}); err != nil {
			return err
		}
		if err := s.vpcs.UpdateState(ctx, s.db(), vpc.ID, vpc.State, &zoneID); err != nil {
			return err
		}
		vpc.SdnZoneID = &zoneID
	}

	if err := s.proxmox.CreateSDNVNet(ctx, proxmox.SDNVNet{
		VNet: vnet.VnetBridgeID,
		Zone: zoneID,
		Tag:  int(vpc.VxlanTag),
	}); err != nil {
		return err
	}
	if err := s.proxmox.CreateSDNSubnet(ctx, proxmox.SDNSubnet{
		Subnet:  vnet.Subnet,
		VNet:    vnet.VnetBridgeID,
		Type:    "subnet",
		Gateway: vnet.Gateway,
	}); err != nil {
		s.teardownSDN(ctx, vnet, false)
		return err
	}

	upid, err := s.proxmox.ApplySDN(ctx)
	if err != nil {
		s.teardownSDN(ctx, vnet, true)
		return err
	}
	if upid != "" {
		if _, err := proxmox.WaitForTask(ctx, s.proxmox, upid.Node(), upid); err != nil {
			s.teardownSDN(ctx, vnet, true)
			return err
		}
	}
	return nil
}

// teardownSDN removes the vnet-scoped overlay objects, best effort.
func (s *VNetService) teardownSDN(ctx context.Context, vnet *model.VNet, includeSubnet bool) {
	if includeSubnet {
		if err := s.proxmox.DeleteSDNSubnet(ctx, vnet.VnetBridgeID, vnet.Subnet); err != nil {
			s.log.Error(err, "could not remove sdn subnet during rollback", "vnet", vnet.ID)
		}
	}
	if err := s.proxmox.DeleteSDNVNet(ctx, vnet.VnetBridgeID); err != nil {
		s.log.Error(err, "could not remove sdn vnet during rollback", "vnet", vnet.ID)
	}
}

// Delete removes a VNet. Addresses still in use block the deletion.
func (s *VNetService) Delete(ctx context.Context, p identity.Principal, vnetID id.VNetID) error {
	vnet, err := s.vnets.FindByID(ctx, s.db(), vnetID)
	if err != nil {
		return notFoundOr(err, "vnet", vnetID.String())
	}
	vpc, err := s.vpcs.FindByID(ctx, s.db(), vnet.VpcID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, p, authz.PermCreateVNet, authz.TypeOrganization, vpc.OrganizationID.String()); err != nil {
		return err
	}

	inUse, err := s.vnets.CountInUseAddresses(ctx, s.db(), vnetID)
	if err != nil {
		return err
	}
	if inUse > 0 {
		return &cperrors.VnetHasAddressesError{VNet: vnetID.String()}
	}

	if vnet.State == model.VNetActive {
		if err := s.proxmox.DeleteSDNSubnet(ctx, vnet.VnetBridgeID, vnet.Subnet); err != nil {
			return err
		}
		if err := s.proxmox.DeleteSDNVNet(ctx, vnet.VnetBridgeID); err != nil {
			return err
		}
		if _, err := s.proxmox.ApplySDN(ctx); err != nil {
			return err
		}
	}
	if err := s.vnets.Delete(ctx, s.db(), vnetID); err != nil {
		return err
	}
	s.log.Info("deleted vnet", "vnet", vnetID, "by", p.DisplayName())
	return nil
}

// bridgeIDFor derives the SDN bridge name of a VNet. The hypervisor limits
// vnet names to eight characters, so the name is "vn" plus the first three
// bytes of the VNet id.
func bridgeIDFor(vnetID id.VNetID) string {
	raw := vnetID.UUID
	return "vn" + hex.EncodeToString(raw[:3])
}

// sdnZoneFor derives the SDN zone name of a VPC from its VXLAN tag.
func sdnZoneFor(vpc *model.VPC) string {
	if vpc.SdnZoneID != nil {
		return *vpc.SdnZoneID
	}
	return fmt.Sprintf("mz%d", vpc.VxlanTag)
}
