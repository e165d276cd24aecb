// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package authz

// Object types known to the policy schema.
const (
	TypeOrganization   = "organization"
	TypeProject        = "project"
	TypeVPC            = "vpc"
	TypeInstance       = "instance"
	TypeHypervisor     = "hypervisor"
	TypeUser           = "user"
	TypeServiceAccount = "service_account"
)

// Relations written by the control plane.
const (
	RelationParent = "parent"
	RelationMember = "member"
	RelationOwner  = "owner"
)

// Permissions checked before mutations.
const (
	PermViewOrganization     = "view"
	PermAdminOrganization    = "admin"
	PermInviteMember         = "invite_member"
	PermRemoveMember         = "remove_member"
	PermCreateProject        = "create_project"
	PermCreateVPC            = "create_vpc"
	PermDeleteVPC            = "delete_vpc"
	PermCreateVNet           = "create_vnet"
	PermCreateInstance       = "create_instance"
	PermOperateInstance      = "operate_instance"
	PermDeleteInstance       = "delete_instance"
	PermRegisterHypervisor   = "register_hypervisor"
	PermManageSecurityGroups = "manage_security_groups"
)
