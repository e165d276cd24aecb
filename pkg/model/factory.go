// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"time"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// Fixture builders for tests. Each returns a plausible, fully populated
// row; callers override fields through the mutators.

// OrganizationFixture returns a test organization.
func OrganizationFixture(muts ...func(*Organization)) *Organization {
	org := &Organization{
		ID:        id.NewOrganizationID(),
		Name:      "Acme Corp",
		Slug:      "acme",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	for _, m := range muts {
		m(org)
	}
	return org
}

// ProjectFixture returns a test project.
func ProjectFixture(muts ...func(*Project)) *Project {
	p := &Project{
		ID:             id.NewProjectID(),
		Name:           "production",
		OrganizationID: id.NewOrganizationID(),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	for _, m := range muts {
		m(p)
	}
	return p
}

// HypervisorFixture returns a test hypervisor.
func HypervisorFixture(muts ...func(*Hypervisor)) *Hypervisor {
	hv := &Hypervisor{
		ID:             id.NewHypervisorID(),
		ZoneID:         id.NewZoneID(),
		OrganizationID: id.NewOrganizationID(),
		URL:            "https://pve.example.com:8006",
		AuthToken:      "root@pam!token=secret",
		StorageName:    "local-lvm",
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	for _, m := range muts {
		m(hv)
	}
	return hv
}

// InstanceFixture returns a test instance in Provisioning.
func InstanceFixture(muts ...func(*Instance)) *Instance {
	addr := "10.0.0.10"
	inst := &Instance{
		ID:             id.NewInstanceID(),
		HypervisorID:   id.NewHypervisorID(),
		ProjectID:      id.NewProjectID(),
		DistantID:      "100",
		IPv4:           &addr,
		Name:           "web-1",
		Status:         InstanceProvisioning,
		MaxCPUCores:    2,
		MaxMemoryBytes: 2 << 30,
		MaxDiskBytes:   20 << 30,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	for _, m := range muts {
		m(inst)
	}
	return inst
}

// VPCFixture returns a test VPC in Active state.
func VPCFixture(muts ...func(*VPC)) *VPC {
	zone := "vpcacme1"
	v := &VPC{
		ID:             id.NewVPCID(),
		Name:           "default",
		Slug:           "default",
		OrganizationID: id.NewOrganizationID(),
		Region:         "eu-1",
		SdnZoneID:      &zone,
		VxlanTag:       100,
		State:          VPCActive,
		MTU:            1450,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	for _, m := range muts {
		m(v)
	}
	return v
}

// VNetFixture returns a test VNet in Active state.
func VNetFixture(muts ...func(*VNet)) *VNet {
	v := &VNet{
		ID:           id.NewVNetID(),
		VpcID:        id.NewVPCID(),
		Name:         "frontend",
		VnetBridgeID: "vnfro1a2",
		Subnet:       "10.0.0.0/24",
		Gateway:      "10.0.0.1",
		DhcpEnabled:  false,
		State:        VNetActive,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	for _, m := range muts {
		m(v)
	}
	return v
}

// UserFixture returns a registered test user.
func UserFixture(muts ...func(*User)) *User {
	u := &User{
		ID:        id.NewUserID(),
		Email:     "jane@example.com",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	for _, m := range muts {
		m(u)
	}
	return u
}
