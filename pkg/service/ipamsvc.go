// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/ipam"
	"github.com/meridian-cloud/meridian/pkg/model"
)

// IPAMService exposes the address pools to the API: listing a VNet's
// pool, reserving or releasing individual addresses, and minting MAC
// addresses for externally managed interfaces.
type IPAMService struct {
	base
}

// organizationOfVNet walks vnet -> vpc -> organization.
func (s *IPAMService) organizationOfVNet(ctx context.Context, vnetID id.VNetID) (id.OrganizationID, error) {
	vnet, err := s.vnets.FindByID(ctx, s.db(), vnetID)
	if err != nil {
		return id.OrganizationID{}, notFoundOr(err, "vnet", vnetID.String())
	}
	vpc, err := s.vpcs.FindByID(ctx, s.db(), vnet.VpcID)
	if err != nil {
		return id.OrganizationID{}, err
	}
	return vpc.OrganizationID, nil
}

// ListPool returns every allocation row of a VNet in address order,
// gateway and reserved rows included.
func (s *IPAMService) ListPool(ctx context.Context, p identity.Principal, vnetID id.VNetID) ([]model.IPAllocation, error) {
	orgID, err := s.organizationOfVNet(ctx, vnetID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, authz.PermViewOrganization, authz.TypeOrganization, orgID.String()); err != nil {
		return nil, err
	}
	return s.ips.ListByVNet(ctx, s.db(), vnetID)
}

// Allocate claims the next free address of the pool for an instance.
func (s *IPAMService) Allocate(ctx context.Context, p identity.Principal, vnetID id.VNetID, instanceID id.InstanceID, hostname string) (*ipam.Allocation, error) {
	orgID, err := s.organizationOfVNet(ctx, vnetID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, authz.PermCreateVNet, authz.TypeOrganization, orgID.String()); err != nil {
		return nil, err
	}
	alloc, err := s.allocator.Allocate(ctx, vnetID, instanceID, hostname)
	if err != nil {
		return nil, err
	}
	s.log.Info("allocated address", "vnet", vnetID, "address", alloc.Address, "by", p.DisplayName())
	return alloc, nil
}

// Reserve claims a specific address of the pool for an instance.
func (s *IPAMService) Reserve(ctx context.Context, p identity.Principal, vnetID id.VNetID, address string, instanceID id.InstanceID, hostname string) (*ipam.Allocation, error) {
	orgID, err := s.organizationOfVNet(ctx, vnetID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, authz.PermCreateVNet, authz.TypeOrganization, orgID.String()); err != nil {
		return nil, err
	}
	alloc, err := s.allocator.AllocateSpecific(ctx, vnetID, address, instanceID, hostname)
	if err != nil {
		return nil, err
	}
	s.log.Info("reserved address", "vnet", vnetID, "address", address, "by", p.DisplayName())
	return alloc, nil
}

// Release returns an allocated address to the pool. Gateway rows are
// never released.
func (s *IPAMService) Release(ctx context.Context, p identity.Principal, vnetID id.VNetID, address string) error {
	orgID, err := s.organizationOfVNet(ctx, vnetID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, p, authz.PermCreateVNet, authz.TypeOrganization, orgID.String()); err != nil {
		return err
	}
	alloc, err := s.ips.FindByAddress(ctx, s.db(), vnetID, address)
	if err != nil {
		return notFoundOr(err, "ip allocation", address)
	}
	if err := s.allocator.Release(ctx, alloc.ID); err != nil {
		return err
	}
	s.log.Info("released address", "vnet", vnetID, "address", address, "by", p.DisplayName())
	return nil
}

// GenerateMAC mints a MAC address in the platform's OUI without touching
// any pool. Callers use it for interfaces managed outside the allocator.
func (s *IPAMService) GenerateMAC(_ context.Context, p identity.Principal) (string, error) {
	if p.IsAnonymous() {
		return "", cperrors.ErrUnauthenticated
	}
	return ipam.GenerateMAC()
}
