// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package id defines the typed identifiers used across the control plane.
// Every resource kind carries its own identifier type so that, for example,
// an instance identifier cannot be passed where a project identifier is
// expected. All identifiers wrap a 128-bit UUID and serialise to/from their
// canonical textual form.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// MalformedIDError is returned when a textual identifier cannot be parsed.
type MalformedIDError struct {
	Kind  string
	Value string
	Cause error
}

func (e *MalformedIDError) Error() string {
	return fmt.Sprintf("malformed %s identifier %q: %v", e.Kind, e.Value, e.Cause)
}

func (e *MalformedIDError) Unwrap() error { return e.Cause }

func parse(kind, s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, &MalformedIDError{Kind: kind, Value: s, Cause: err}
	}
	return u, nil
}

// OrganizationID identifies an Organization.
type OrganizationID struct{ uuid.UUID }

// ProjectID identifies a Project.
type ProjectID struct{ uuid.UUID }

// ZoneID identifies a placement Zone.
type ZoneID struct{ uuid.UUID }

// HypervisorID identifies a Hypervisor.
type HypervisorID struct{ uuid.UUID }

// InstanceID identifies an Instance.
type InstanceID struct{ uuid.UUID }

// VPCID identifies a VPC.
type VPCID struct{ uuid.UUID }

// VNetID identifies a VNet.
type VNetID struct{ uuid.UUID }

// IPAllocationID identifies an IPAllocation.
type IPAllocationID struct{ uuid.UUID }

// SecurityGroupID identifies a SecurityGroup.
type SecurityGroupID struct{ uuid.UUID }

// SecurityRuleID identifies a SecurityRule.
type SecurityRuleID struct{ uuid.UUID }

// UserID identifies a User.
type UserID struct{ uuid.UUID }

// ServiceAccountID identifies a ServiceAccount.
type ServiceAccountID struct{ uuid.UUID }

// InvitationID identifies an Invitation.
type InvitationID struct{ uuid.UUID }

// OperationID identifies an Operation.
type OperationID struct{ uuid.UUID }

// NewOrganizationID returns a fresh random OrganizationID.
func NewOrganizationID() OrganizationID { return OrganizationID{uuid.New()} }

// NewProjectID returns a fresh random ProjectID.
func NewProjectID() ProjectID { return ProjectID{uuid.New()} }

// NewZoneID returns a fresh random ZoneID.
func NewZoneID() ZoneID { return ZoneID{uuid.New()} }

// NewHypervisorID returns a fresh random HypervisorID.
func NewHypervisorID() HypervisorID { return HypervisorID{uuid.New()} }

// NewInstanceID returns a fresh random InstanceID.
func NewInstanceID() InstanceID { return InstanceID{uuid.New()} }

// NewVPCID returns a fresh random VPCID.
func NewVPCID() VPCID { return VPCID{uuid.New()} }

// NewVNetID returns a fresh random VNetID.
func NewVNetID() VNetID { return VNetID{uuid.New()} }

// NewIPAllocationID returns a fresh random IPAllocationID.
func NewIPAllocationID() IPAllocationID { return IPAllocationID{uuid.New()} }

// NewSecurityGroupID returns a fresh random SecurityGroupID.
func NewSecurityGroupID() SecurityGroupID { return SecurityGroupID{uuid.New()} }

// NewSecurityRuleID returns a fresh random SecurityRuleID.
func NewSecurityRuleID() SecurityRuleID { return SecurityRuleID{uuid.New()} }

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID{uuid.New()} }

// NewServiceAccountID returns a fresh random ServiceAccountID.
func NewServiceAccountID() ServiceAccountID { return ServiceAccountID{uuid.New()} }

// NewInvitationID returns a fresh random InvitationID.
func NewInvitationID() InvitationID { return InvitationID{uuid.New()} }

// NewOperationID returns a fresh random OperationID.
func NewOperationID() OperationID { return OperationID{uuid.New()} }

// ParseOrganizationID parses s into an OrganizationID.
func ParseOrganizationID(s string) (OrganizationID, error) {
	u, err := parse("organization", s)
	return OrganizationID{u}, err
}

// ParseProjectID parses s into a ProjectID.
func ParseProjectID(s string) (ProjectID, error) {
	u, err := parse("project", s)
	return ProjectID{u}, err
}

// ParseZoneID parses s into a ZoneID.
func ParseZoneID(s string) (ZoneID, error) {
	u, err := parse("zone", s)
	return ZoneID{u}, err
}

// ParseHypervisorID parses s into a HypervisorID.
func ParseHypervisorID(s string) (HypervisorID, error) {
	u, err := parse("hypervisor", s)
	return HypervisorID{u}, err
}

// ParseInstanceID parses s into an InstanceID.
func ParseInstanceID(s string) (InstanceID, error) {
	u, err := parse("instance", s)
	return InstanceID{u}, err
}

// ParseVPCID parses s into a VPCID.
func ParseVPCID(s string) (VPCID, error) {
	u, err := parse("vpc", s)
	return VPCID{u}, err
}

// ParseVNetID parses s into a VNetID.
func ParseVNetID(s string) (VNetID, error) {
	u, err := parse("vnet", s)
	return VNetID{u}, err
}

// ParseIPAllocationID parses s into an IPAllocationID.
func ParseIPAllocationID(s string) (IPAllocationID, error) {
	u, err := parse("ipallocation", s)
	return IPAllocationID{u}, err
}

// ParseSecurityGroupID parses s into a SecurityGroupID.
func ParseSecurityGroupID(s string) (SecurityGroupID, error) {
	u, err := parse("securitygroup", s)
	return SecurityGroupID{u}, err
}

// ParseSecurityRuleID parses s into a SecurityRuleID.
func ParseSecurityRuleID(s string) (SecurityRuleID, error) {
	u, err := parse("securityrule", s)
	return SecurityRuleID{u}, err
}

// ParseUserID parses s into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parse("user", s)
	return UserID{u}, err
}

// ParseServiceAccountID parses s into a ServiceAccountID.
func ParseServiceAccountID(s string) (ServiceAccountID, error) {
	u, err := parse("serviceaccount", s)
	return ServiceAccountID{u}, err
}

// ParseInvitationID parses s into an InvitationID.
func ParseInvitationID(s string) (InvitationID, error) {
	u, err := parse("invitation", s)
	return InvitationID{u}, err
}

// ParseOperationID parses s into an OperationID.
func ParseOperationID(s string) (OperationID, error) {
	u, err := parse("operation", s)
	return OperationID{u}, err
}

// IsZero reports whether the identifier is the zero UUID.
func (i OrganizationID) IsZero() bool   { return i.UUID == uuid.Nil }
func (i ProjectID) IsZero() bool        { return i.UUID == uuid.Nil }
func (i ZoneID) IsZero() bool           { return i.UUID == uuid.Nil }
func (i HypervisorID) IsZero() bool     { return i.UUID == uuid.Nil }
func (i InstanceID) IsZero() bool       { return i.UUID == uuid.Nil }
func (i VPCID) IsZero() bool            { return i.UUID == uuid.Nil }
func (i VNetID) IsZero() bool           { return i.UUID == uuid.Nil }
func (i IPAllocationID) IsZero() bool   { return i.UUID == uuid.Nil }
func (i SecurityGroupID) IsZero() bool  { return i.UUID == uuid.Nil }
func (i SecurityRuleID) IsZero() bool   { return i.UUID == uuid.Nil }
func (i UserID) IsZero() bool           { return i.UUID == uuid.Nil }
func (i ServiceAccountID) IsZero() bool { return i.UUID == uuid.Nil }
func (i InvitationID) IsZero() bool     { return i.UUID == uuid.Nil }
func (i OperationID) IsZero() bool      { return i.UUID == uuid.Nil }
