// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"time"

	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/operation"
)

// Wire messages are plain structs serialized by the JSON codec.
// Identifiers and timestamps are strings so browser clients never juggle
// 64-bit integers or timezone-less dates.

func wireTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// Organization is the wire form of a tenant.
type Organization struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	ParentID  *string `json:"parent_id,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func wireOrganization(o *model.Organization) *Organization {
	out := &Organization{
		ID:        o.ID.String(),
		Name:      o.Name,
		Slug:      o.Slug,
		CreatedAt: wireTime(o.CreatedAt),
	}
	if o.ParentID != nil {
		s := o.ParentID.String()
		out.ParentID = &s
	}
	return out
}

// Project is the wire form of a project.
type Project struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id"`
	CreatedAt      string `json:"created_at"`
}

func wireProject(p *model.Project) *Project {
	return &Project{
		ID:             p.ID.String(),
		Name:           p.Name,
		OrganizationID: p.OrganizationID.String(),
		CreatedAt:      wireTime(p.CreatedAt),
	}
}

// Zone is the wire form of a placement zone.
type Zone struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func wireZone(z *model.Zone) *Zone {
	return &Zone{ID: z.ID.String(), Name: z.Name, CreatedAt: wireTime(z.CreatedAt)}
}

// Hypervisor is the wire form of a registered hypervisor. The auth token
// never leaves the control plane.
type Hypervisor struct {
	ID             string `json:"id"`
	ZoneID         string `json:"zone_id"`
	OrganizationID string `json:"organization_id"`
	URL            string `json:"url"`
	StorageName    string `json:"storage_name"`
	CreatedAt      string `json:"created_at"`
}

func wireHypervisor(h *model.Hypervisor) *Hypervisor {
	return &Hypervisor{
		ID:             h.ID.String(),
		ZoneID:         h.ZoneID.String(),
		OrganizationID: h.OrganizationID.String(),
		URL:            h.URL,
		StorageName:    h.StorageName,
		CreatedAt:      wireTime(h.CreatedAt),
	}
}

// Instance is the wire form of a virtual machine.
type Instance struct {
	ID               string  `json:"id"`
	HypervisorID     string  `json:"hypervisor_id"`
	ProjectID        string  `json:"project_id"`
	Name             string  `json:"name"`
	Status           string  `json:"status"`
	IPv4             *string `json:"ip_v4,omitempty"`
	MaxCPUCores      int     `json:"max_cpu_cores"`
	CPUUsagePercent  float64 `json:"cpu_usage_percent"`
	MaxMemoryBytes   int64   `json:"max_memory_bytes,string"`
	MemoryUsageBytes int64   `json:"memory_usage_bytes,string"`
	MaxDiskBytes     int64   `json:"max_disk_bytes,string"`
	DiskUsageBytes   int64   `json:"disk_usage_bytes,string"`
	CreatedAt        string  `json:"created_at"`
}

func wireInstance(i *model.Instance) *Instance {
	return &Instance{
		ID:               i.ID.String(),
		HypervisorID:     i.HypervisorID.String(),
		ProjectID:        i.ProjectID.String(),
		Name:             i.Name,
		Status:           string(i.Status),
		IPv4:             i.IPv4,
		MaxCPUCores:      i.MaxCPUCores,
		CPUUsagePercent:  i.CPUUsagePercent,
		MaxMemoryBytes:   i.MaxMemoryBytes,
		MemoryUsageBytes: i.MemoryUsageBytes,
		MaxDiskBytes:     i.MaxDiskBytes,
		DiskUsageBytes:   i.DiskUsageBytes,
		CreatedAt:        wireTime(i.CreatedAt),
	}
}

// VPC is the wire form of a virtual private cloud.
type VPC struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	OrganizationID string `json:"organization_id"`
	Region         string `json:"region"`
	VxlanTag       int32  `json:"vxlan_tag"`
	State          string `json:"state"`
	MTU            int32  `json:"mtu"`
	CreatedAt      string `json:"created_at"`
}

func wireVPC(v *model.VPC) *VPC {
	return &VPC{
		ID:             v.ID.String(),
		Name:           v.Name,
		Slug:           v.Slug,
		OrganizationID: v.OrganizationID.String(),
		Region:         v.Region,
		VxlanTag:       v.VxlanTag,
		State:          string(v.State),
		MTU:            v.MTU,
		CreatedAt:      wireTime(v.CreatedAt),
	}
}

// VNet is the wire form of a subnet.
type VNet struct {
	ID          string   `json:"id"`
	VpcID       string   `json:"vpc_id"`
	Name        string   `json:"name"`
	Subnet      string   `json:"subnet"`
	Gateway     string   `json:"gateway"`
	DhcpEnabled bool     `json:"dhcp_enabled"`
	DNSServers  []string `json:"dns_servers,omitempty"`
	State       string   `json:"state"`
	CreatedAt   string   `json:"created_at"`
}

func wireVNet(v *model.VNet) *VNet {
	return &VNet{
		ID:          v.ID.String(),
		VpcID:       v.VpcID.String(),
		Name:        v.Name,
		Subnet:      v.Subnet,
		Gateway:     v.Gateway,
		DhcpEnabled: v.DhcpEnabled,
		DNSServers:  v.DNSServers,
		State:       string(v.State),
		CreatedAt:   wireTime(v.CreatedAt),
	}
}

// SecurityGroup is the wire form of a security group with its rules.
type SecurityGroup struct {
	ID        string         `json:"id"`
	VpcID     string         `json:"vpc_id"`
	Name      string         `json:"name"`
	IsDefault bool           `json:"is_default"`
	Rules     []SecurityRule `json:"rules,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// SecurityRule is the wire form of one rule.
type SecurityRule struct {
	ID         string `json:"id"`
	Direction  string `json:"direction"`
	Protocol   string `json:"protocol"`
	PortFrom   *int32 `json:"port_from,omitempty"`
	PortTo     *int32 `json:"port_to,omitempty"`
	SourceCidr string `json:"source_cidr"`
	Action     string `json:"action"`
	Priority   int32  `json:"priority"`
}

func wireSecurityGroup(g *model.SecurityGroup, rules []model.SecurityRule) *SecurityGroup {
	out := &SecurityGroup{
		ID:        g.ID.String(),
		VpcID:     g.VpcID.String(),
		Name:      g.Name,
		IsDefault: g.IsDefault,
		CreatedAt: wireTime(g.CreatedAt),
	}
	for i := range rules {
		out.Rules = append(out.Rules, wireSecurityRule(&rules[i]))
	}
	return out
}

func wireSecurityRule(r *model.SecurityRule) SecurityRule {
	return SecurityRule{
		ID:         r.ID.String(),
		Direction:  string(r.Direction),
		Protocol:   string(r.Protocol),
		PortFrom:   r.PortFrom,
		PortTo:     r.PortTo,
		SourceCidr: r.SourceCidr,
		Action:     string(r.Action),
		Priority:   r.Priority,
	}
}

// IPAllocation is the wire form of one pool row.
type IPAllocation struct {
	ID         string  `json:"id"`
	VnetID     string  `json:"vnet_id"`
	Address    string  `json:"address"`
	MacAddress *string `json:"mac_address,omitempty"`
	Kind       string  `json:"kind"`
	Status     string  `json:"status"`
	InstanceID *string `json:"instance_id,omitempty"`
	Hostname   *string `json:"hostname,omitempty"`
}

func wireIPAllocation(a *model.IPAllocation) IPAllocation {
	out := IPAllocation{
		ID:         a.ID.String(),
		VnetID:     a.VnetID.String(),
		Address:    a.Address,
		MacAddress: a.MacAddress,
		Kind:       string(a.Kind),
		Status:     string(a.Status),
		Hostname:   a.Hostname,
	}
	if a.InstanceID != nil {
		s := a.InstanceID.String()
		out.InstanceID = &s
	}
	return out
}

// User is the wire form of a member.
type User struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	OrganizationID *string `json:"organization_id,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func wireUser(u *model.User) User {
	out := User{ID: u.ID.String(), Email: u.Email, CreatedAt: wireTime(u.CreatedAt)}
	if u.OrganizationID != nil {
		s := u.OrganizationID.String()
		out.OrganizationID = &s
	}
	return out
}

// Invitation is the wire form of an invitation.
type Invitation struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	State          string `json:"state"`
	CreatedAt      string `json:"created_at"`
}

func wireInvitation(i *model.Invitation) *Invitation {
	return &Invitation{
		ID:             i.ID.String(),
		OrganizationID: i.OrganizationID.String(),
		UserID:         i.UserID.String(),
		State:          string(i.State),
		CreatedAt:      wireTime(i.CreatedAt),
	}
}

// Operation is the wire form of an asynchronous operation. Name is the
// stable handle, "operations/<uuid>".
type Operation struct {
	Name         string          `json:"name"`
	OpType       string          `json:"op_type"`
	Backend      string          `json:"backend"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Status       string          `json:"status"`
	Output       json.RawMessage `json:"output,omitempty"`
	ErrorCode    *string         `json:"error_code,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	MaxAttempts  int             `json:"max_attempts"`
	NextRetryAt  *string         `json:"next_retry_at,omitempty"`
	CreatedAt    string          `json:"created_at"`
	CompletedAt  *string         `json:"completed_at,omitempty"`
}

func wireOperation(o *operation.Operation) *Operation {
	out := &Operation{
		Name:         o.Name(),
		OpType:       string(o.OpType),
		Backend:      string(o.Backend),
		ResourceType: o.ResourceType,
		ResourceID:   o.ResourceID,
		Status:       string(o.Status),
		ErrorCode:    o.ErrorCode,
		ErrorMessage: o.ErrorMessage,
		AttemptCount: o.AttemptCount,
		MaxAttempts:  o.MaxAttempts,
		CreatedAt:    wireTime(o.CreatedAt),
	}
	if o.Output != nil {
		out.Output = json.RawMessage(*o.Output)
	}
	if o.NextRetryAt != nil {
		s := wireTime(*o.NextRetryAt)
		out.NextRetryAt = &s
	}
	if o.CompletedAt != nil {
		s := wireTime(*o.CompletedAt)
		out.CompletedAt = &s
	}
	return out
}
