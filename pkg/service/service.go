// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package service implements the control plane's business logic. Services
// compose the resource model, the authorization client, the operation
// queue, the IPAM allocator and the hypervisor adapter; every mutation is
// authorized against the policy server, validated, written transactionally
// together with its outbox operations, and rolled back on partial failure.
package service

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/ipam"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/operation"
	"github.com/meridian-cloud/meridian/pkg/proxmox"
	"github.com/meridian-cloud/meridian/pkg/store"
)

// Services bundles every domain service over one shared dependency set.
type Services struct {
	Organizations  *OrganizationService
	Projects       *ProjectService
	Zones          *ZoneService
	Hypervisors    *HypervisorService
	VPCs           *VPCService
	VNets          *VNetService
	SecurityGroups *SecurityGroupService
	Instances      *InstanceService
	IPAM           *IPAMService
	Invitations    *InvitationService
	Members        *MemberService
	Operations     *OperationService
}

// Deps are the collaborators the services run against.
type Deps struct {
	Store     *store.Store
	Authz     authz.Client
	Queue     *operation.Queue
	Allocator *ipam.Allocator
	Proxmox   proxmox.API
	Snippets  *SnippetStore
	Log       logr.Logger
}

// New wires up all services.
func New(d Deps) *Services {
	base := base{
		store:     d.Store,
		authz:     d.Authz,
		queue:     d.Queue,
		allocator: d.Allocator,
		proxmox:   d.Proxmox,
		snippets:  d.Snippets,
		log:       d.Log.WithName("service"),
	}
	return &Services{
		Organizations:  &OrganizationService{base: base},
		Projects:       &ProjectService{base: base},
		Zones:          &ZoneService{base: base},
		Hypervisors:    &HypervisorService{base: base},
		VPCs:           &VPCService{base: base},
		VNets:          &VNetService{base: base},
		SecurityGroups: &SecurityGroupService{base: base},
		Instances:      &InstanceService{base: base},
		IPAM:           &IPAMService{base: base},
		Invitations:    &InvitationService{base: base},
		Members:        &MemberService{base: base},
		Operations:     &OperationService{base: base},
	}
}

// base carries the shared collaborators and helpers. Repositories are
// stateless and embedded by value.
type base struct {
	store     *store.Store
	authz     authz.Client
	queue     *operation.Queue
	allocator *ipam.Allocator
	proxmox   proxmox.API
	snippets  *SnippetStore
	log       logr.Logger

	orgs        model.OrganizationRepository
	projects    model.ProjectRepository
	zones       model.ZoneRepository
	hypervisors model.HypervisorRepository
	vpcs        model.VPCRepository
	vnets       model.VNetRepository
	ips         model.IPAllocationRepository
	groups      model.SecurityGroupRepository
	instances   model.InstanceRepository
	users       model.UserRepository
	accounts    model.ServiceAccountRepository
	invitations model.InvitationRepository
}

// authorize checks that the principal holds the permission on the object.
// Anonymous principals are rejected before the policy server is consulted.
func (b base) authorize(ctx context.Context, p identity.Principal, permission, objectType, objectID string) error {
	if p.IsAnonymous() {
		return cperrors.ErrUnauthenticated
	}
	subjectType, subjectID := p.Subject()
	return authz.Check(b.authz).
		Subject(subjectType, subjectID).
		Permission(permission).
		Object(objectType, objectID).
		Allowed(ctx)
}

func (b base) db() model.Querier { return b.store.DB() }
