// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/service"
)

type vpcsHandler struct {
	svc *service.VPCService
}

// ListVPCsRequest scopes the listing to one organization.
type ListVPCsRequest struct {
	OrganizationID string `json:"organization_id"`
}

// ListVPCsResponse carries the organization's VPCs.
type ListVPCsResponse struct {
	VPCs []VPC `json:"vpcs"`
}

// GetVPCRequest addresses one VPC.
type GetVPCRequest struct {
	ID string `json:"id"`
}

// CreateVPCRequest creates a VPC.
type CreateVPCRequest struct {
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	Region         string `json:"region"`
	MTU            int32  `json:"mtu,omitempty"`
}

// DeleteVPCRequest removes an empty VPC.
type DeleteVPCRequest struct {
	ID string `json:"id"`
}

func (h vpcsHandler) list(ctx context.Context, req *ListVPCsRequest) (any, error) {
	orgID, err := id.ParseOrganizationID(req.OrganizationID)
	if err != nil {
		return nil, toStatus(err)
	}
	vpcs, err := h.svc.List(ctx, PrincipalFrom(ctx), orgID)
	if err != nil {
		return nil, toStatus(err)
	}
	res := &ListVPCsResponse{VPCs: []VPC{}}
	for i := range vpcs {
		res.VPCs = append(res.VPCs, *wireVPC(&vpcs[i]))
	}
	return res, nil
}

func (h vpcsHandler) get(ctx context.Context, req *GetVPCRequest) (any, error) {
	vpcID, err := id.ParseVPCID(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	vpc, err := h.svc.Get(ctx, PrincipalFrom(ctx), vpcID)
	if err != nil {
		return nil, toStatus(err)
	}
	return wireVPC(vpc), nil
}

func (h vpcsHandler) create(ctx context.Context, req *CreateVPCRequest) (any, error) {
	orgID, err := id.ParseOrganizationID(req.OrganizationID)
	if err != nil {
		return nil, toStatus(err)
	}
	vpc, err := h.svc.Create(ctx, PrincipalFrom(ctx), service.CreateVPCRequest{
		OrganizationID: orgID,
		Name:           req.Name,
		Slug:           req.Slug,
		Region:         req.Region,
		MTU:            req.MTU,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return wireVPC(vpc), nil
}

func (h vpcsHandler) delete(ctx context.Context, req *DeleteVPCRequest) (any, error) {
	vpcID, err := id.ParseVPCID(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := h.svc.Delete(ctx, PrincipalFrom(ctx), vpcID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func vpcsDesc(svc *service.VPCService) *grpc.ServiceDesc {
	h := vpcsHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.VPCs",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "List", Handler: unary("/meridian.v1.VPCs/List", h.list)},
			{MethodName: "Get", Handler: unary("/meridian.v1.VPCs/Get", h.get)},
			{MethodName: "Create", Handler: unary("/meridian.v1.VPCs/Create", h.create)},
			{MethodName: "Delete", Handler: unary("/meridian.v1.VPCs/Delete", h.delete)},
		},
		Metadata: "meridian/v1/vpcs",
	}
}

type vnetsHandler struct {
	svc *service.VNetService
}

// ListVNetsRequest scopes the listing to one VPC.
type ListVNetsRequest struct {
	VpcID string `json:"vpc_id"`
}

// ListVNetsResponse carries the VPC's subnets.
type ListVNetsResponse struct {
	VNets []VNet `json:"vnets"`
}

// CreateVNetRequest creates a subnet inside a VPC.
type CreateVNetRequest struct {
	VpcID       string   `json:"vpc_id"`
	Name        string   `json:"name"`
	Subnet      string   `json:"subnet"`
	Gateway     string   `json:"gateway"`
	DhcpEnabled bool     `json:"dhcp_enabled"`
	DNSServers  []string `json:"dns_servers,omitempty"`
}

// DeleteVNetRequest removes an unused subnet.
type DeleteVNetRequest struct {
	ID string `json:"id"`
}

func (h vnetsHandler) list(ctx context.Context, req *ListVNetsRequest) (any, error) {
	vpcID, err := id.ParseVPCID(req.VpcID)
	if err != nil {
		return nil, toStatus(err)
	}
	vnets, err := h.svc.List(ctx, PrincipalFrom(ctx), vpcID)
	if err != nil {
		return nil, toStatus(err)
	}
	res := &ListVNetsResponse{VNets: []VNet{}}
	for i := range vnets {
		res.VNets = append(res.VNets, *wireVNet(&vnets[i]))
	}
	return res, nil
}

func (h vnetsHandler) create(ctx context.Context, req *CreateVNetRequest) (any, error) {
	vpcID, err := id.ParseVPCID(req.VpcID)
	if err != nil {
		return nil, toStatus(err)
	}
	vnet, err := h.svc.Create(ctx, PrincipalFrom(ctx), service.CreateVNetRequest{
		VpcID:       vpcID,
		Name:        req.Name,
		Subnet:      req.Subnet,
		Gateway:     req.Gateway,
		DhcpEnabled: req.DhcpEnabled,
		DNSServers:  req.DNSServers,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return wireVNet(vnet), nil
}

func (h vnetsHandler) delete(ctx context.Context, req *DeleteVNetRequest) (any, error) {
	vnetID, err := id.ParseVNetID(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := h.svc.Delete(ctx, PrincipalFrom(ctx), vnetID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func vnetsDesc(svc *service.VNetService) *grpc.ServiceDesc {
	h := vnetsHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.VNets",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "List", Handler: unary("/meridian.v1.VNets/List", h.list)},
			{MethodName: "Create", Handler: unary("/meridian.v1.VNets/Create", h.create)},
			{MethodName: "Delete", Handler: unary("/meridian.v1.VNets/Delete", h.delete)},
		},
		Metadata: "meridian/v1/vnets",
	}
}

type securityGroupsHandler struct {
	svc *service.SecurityGroupService
}

// ListSecurityGroupsRequest scopes the listing to one VPC.
type ListSecurityGroupsRequest struct {
	VpcID string `json:"vpc_id"`
}

// ListSecurityGroupsResponse carries the VPC's groups with their rules.
type ListSecurityGroupsResponse struct {
	SecurityGroups []SecurityGroup `json:"security_groups"`
}

// CreateSecurityGroupRequest creates a group inside a VPC.
type CreateSecurityGroupRequest struct {
	VpcID string `json:"vpc_id"`
	Name  string `json:"name"`
}

// CreateSecurityRuleRequest appends a rule to a group.
type CreateSecurityRuleRequest struct {
	GroupID    string `json:"group_id"`
	Direction  string `json:"direction"`
	Protocol   string `json:"protocol"`
	PortFrom   *int32 `json:"port_from,omitempty"`
	PortTo     *int32 `json:"port_to,omitempty"`
	SourceCidr string `json:"source_cidr"`
	Action     string `json:"action"`
	Priority   int32  `json:"priority"`
}

// DeleteSecurityRuleRequest removes one rule from a group.
type DeleteSecurityRuleRequest struct {
	GroupID string `json:"group_id"`
	RuleID  string `json:"rule_id"`
}

// DeleteSecurityGroupRequest removes a non-default group.
type DeleteSecurityGroupRequest struct {
	ID string `json:"id"`
}

func (h securityGroupsHandler) list(ctx context.Context, req *ListSecurityGroupsRequest) (any, error) {
	vpcID, err := id.ParseVPCID(req.VpcID)
	if err != nil {
		return nil, toStatus(err)
	}
	p := PrincipalFrom(ctx)
	groups, err := h.svc.List(ctx, p, vpcID)
	if err != nil {
		return nil, toStatus(err)
	}
	res := &ListSecurityGroupsResponse{SecurityGroups: []SecurityGroup{}}
	for i := range groups {
		rules, err := h.svc.ListRules(ctx, p, groups[i].ID)
		if err != nil {
			return nil, toStatus(err)
		}
		res.SecurityGroups = append(res.SecurityGroups, *wireSecurityGroup(&groups[i], rules))
	}
	return res, nil
}

func (h securityGroupsHandler) createGroup(ctx context.Context, req *CreateSecurityGroupRequest) (any, error) {
	vpcID, err := id.ParseVPCID(req.VpcID)
	if err != nil {
		return nil, toStatus(err)
	}
	group, err := h.svc.CreateGroup(ctx, PrincipalFrom(ctx), vpcID, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return wireSecurityGroup(group, nil), nil
}

func (h securityGroupsHandler) createRule(ctx context.Context, req *CreateSecurityRuleRequest) (any, error) {
	groupID, err := id.ParseSecurityGroupID(req.GroupID)
	if err != nil {
		return nil, toStatus(err)
	}
	rule, err := h.svc.CreateRule(ctx, PrincipalFrom(ctx), service.CreateRuleRequest{
		GroupID:    groupID,
		Direction:  model.RuleDirection(req.Direction),
		Protocol:   model.RuleProtocol(req.Protocol),
		PortFrom:   req.PortFrom,
		PortTo:     req.PortTo,
		SourceCidr: req.SourceCidr,
		Action:     model.RuleAction(req.Action),
		Priority:   req.Priority,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out := wireSecurityRule(rule)
	return &out, nil
}

func (h securityGroupsHandler) deleteRule(ctx context.Context, req *DeleteSecurityRuleRequest) (any, error) {
	groupID, err := id.ParseSecurityGroupID(req.GroupID)
	if err != nil {
		return nil, toStatus(err)
	}
	ruleID, err := id.ParseSecurityRuleID(req.RuleID)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := h.svc.DeleteRule(ctx, PrincipalFrom(ctx), groupID, ruleID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (h securityGroupsHandler) deleteGroup(ctx context.Context, req *DeleteSecurityGroupRequest) (any, error) {
	groupID, err := id.ParseSecurityGroupID(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := h.svc.DeleteGroup(ctx, PrincipalFrom(ctx), groupID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func securityGroupsDesc(svc *service.SecurityGroupService) *grpc.ServiceDesc {
	h := securityGroupsHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.SecurityGroups",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "List", Handler: unary("/meridian.v1.SecurityGroups/List", h.list)},
			{MethodName: "Create", Handler: unary("/meridian.v1.SecurityGroups/Create", h.createGroup)},
			{MethodName: "CreateRule", Handler: unary("/meridian.v1.SecurityGroups/CreateRule", h.createRule)},
			{MethodName: "DeleteRule", Handler: unary("/meridian.v1.SecurityGroups/DeleteRule", h.deleteRule)},
			{MethodName: "Delete", Handler: unary("/meridian.v1.SecurityGroups/Delete", h.deleteGroup)},
		},
		Metadata: "meridian/v1/securitygroups",
	}
}

type ipamHandler struct {
	svc *service.IPAMService
}

// ListIPPoolRequest scopes the pool listing to one VNet.
type ListIPPoolRequest struct {
	VnetID string `json:"vnet_id"`
}

// ListIPPoolResponse carries the VNet's full pool.
type ListIPPoolResponse struct {
	Allocations []IPAllocation `json:"allocations"`
}

// AllocateIPRequest claims the next free address for an instance.
type AllocateIPRequest struct {
	VnetID     string `json:"vnet_id"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname,omitempty"`
}

// ReserveIPRequest pins one address to an instance.
type ReserveIPRequest struct {
	VnetID     string `json:"vnet_id"`
	Address    string `json:"address"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname,omitempty"`
}

// ReserveIPResponse returns the claimed address and its MAC.
type ReserveIPResponse struct {
	AllocationID string `json:"allocation_id"`
	Address      string `json:"address"`
	MacAddress   string `json:"mac_address"`
}

// ReleaseIPRequest returns an address to the pool.
type ReleaseIPRequest struct {
	VnetID  string `json:"vnet_id"`
	Address string `json:"address"`
}

// GenerateMacRequest has no fields.
type GenerateMacRequest struct{}

// GenerateMacResponse carries the minted MAC address.
type GenerateMacResponse struct {
	MacAddress string `json:"mac_address"`
}

func (h ipamHandler) listPool(ctx context.Context, req *ListIPPoolRequest) (any, error) {
	vnetID, err := id.ParseVNetID(req.VnetID)
	if err != nil {
		return nil, toStatus(err)
	}
	pool, err := h.svc.ListPool(ctx, PrincipalFrom(ctx), vnetID)
	if err != nil {
		return nil, toStatus(err)
	}
	res := &ListIPPoolResponse{Allocations: []IPAllocation{}}
	for i := range pool {
		res.Allocations = append(res.Allocations, wireIPAllocation(&pool[i]))
	}
	return res, nil
}

func (h ipamHandler) allocate(ctx context.Context, req *AllocateIPRequest) (any, error) {
	vnetID, err := id.ParseVNetID(req.VnetID)
	if err != nil {
		return nil, toStatus(err)
	}
	instanceID, err := id.ParseInstanceID(req.InstanceID)
	if err != nil {
		return nil, toStatus(err)
	}
	alloc, err := h.svc.Allocate(ctx, PrincipalFrom(ctx), vnetID, instanceID, req.Hostname)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ReserveIPResponse{
		AllocationID: alloc.ID.String(),
		Address:      alloc.Address,
		MacAddress:   alloc.MAC,
	}, nil
}

func (h ipamHandler) reserve(ctx context.Context, req *ReserveIPRequest) (any, error) {
	vnetID, err := id.ParseVNetID(req.VnetID)
	if err != nil {
		return nil, toStatus(err)
	}
	instanceID, err := id.ParseInstanceID(req.InstanceID)
	if err != nil {
		return nil, toStatus(err)
	}
	alloc, err := h.svc.Reserve(ctx, PrincipalFrom(ctx), vnetID, req.Address, instanceID, req.Hostname)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ReserveIPResponse{
		AllocationID: alloc.ID.String(),
		Address:      alloc.Address,
		MacAddress:   alloc.MAC,
	}, nil
}

func (h ipamHandler) release(ctx context.Context, req *ReleaseIPRequest) (any, error) {
	vnetID, err := id.ParseVNetID(req.VnetID)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := h.svc.Release(ctx, PrincipalFrom(ctx), vnetID, req.Address); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (h ipamHandler) generateMac(ctx context.Context, _ *GenerateMacRequest) (any, error) {
	mac, err := h.svc.GenerateMAC(ctx, PrincipalFrom(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &GenerateMacResponse{MacAddress: mac}, nil
}

func ipamDesc(svc *service.IPAMService) *grpc.ServiceDesc {
	h := ipamHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.IPAM",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "List", Handler: unary("/meridian.v1.IPAM/List", h.listPool)},
			{MethodName: "AllocateIP", Handler: unary("/meridian.v1.IPAM/AllocateIP", h.allocate)},
			{MethodName: "ReserveIP", Handler: unary("/meridian.v1.IPAM/ReserveIP", h.reserve)},
			{MethodName: "ReleaseIP", Handler: unary("/meridian.v1.IPAM/ReleaseIP", h.release)},
			{MethodName: "GenerateMac", Handler: unary("/meridian.v1.IPAM/GenerateMac", h.generateMac)},
		},
		Metadata: "meridian/v1/ipam",
	}
}
