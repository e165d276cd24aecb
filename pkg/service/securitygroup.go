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
	"github.com/meridian-cloud/meridian/pkg/model"
)

// SecurityGroupService manages security groups and rules. The default
// group of a VPC and its two deny-all rules are immutable.
type SecurityGroupService struct {
	base
}

// List returns the groups of a VPC.
func (s *SecurityGroupService) List(ctx context.Context, p identity.Principal, vpcID id.VPCID) ([]model.SecurityGroup, error) {
	vpc, err := s.vpcs.FindByID(ctx, s.db(), vpcID)
	if err != nil {
		return nil, notFoundOr(err, "vpc", vpcID.String())
	}
	if err := s.authorize(ctx, p, authz.PermViewOrganization, authz.TypeOrganization, vpc.OrganizationID.String()); err != nil {
		return nil, err
	}
	return s.groups.ListGroupsByVPC(ctx, s.db(), vpcID)
}

// ListRules returns the rules of a group.
func (s *SecurityGroupService) ListRules(ctx context.Context, p identity.Principal, groupID id.SecurityGroupID) ([]model.SecurityRule, error) {
	group, err := s.groups.FindGroupByID(ctx, s.db(), groupID)
	if err != nil {
		return nil, notFoundOr(err, "security group", groupID.String())
	}
	if err := s.authorizeOnVPC(ctx, p, authz.PermViewOrganization, group.VpcID); err != nil {
		return nil, err
	}
	return s.groups.ListRules(ctx, s.db(), groupID)
}

// CreateGroup inserts a non-default group on a VPC.
func (s *SecurityGroupService) CreateGroup(ctx context.Context, p identity.Principal, vpcID id.VPCID, name string) (*model.SecurityGroup, error) {
	if name == "" {
		return nil, &cperrors.InvalidInputError{Field: "name", Reason: "must not be empty"}
	}
	if err := s.authorizeOnVPC(ctx, p, authz.PermManageSecurityGroups, vpcID); err != nil {
		return nil, err
	}
	group, err := s.groups.CreateGroup(ctx, s.db(), &model.SecurityGroup{
		ID:    id.NewSecurityGroupID(),
		VpcID: vpcID,
		Name:  name,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("created security group", "group", group.ID, "vpc", vpcID, "by", p.DisplayName())
	return group, nil
}

// CreateRuleRequest is the input of CreateRule.
type CreateRuleRequest struct {
	GroupID    id.SecurityGroupID
	Direction  model.RuleDirection
	Protocol   model.RuleProtocol
	PortFrom   *int32
	PortTo     *int32
	SourceCidr string
	Action     model.RuleAction
	Priority   int32
}

// CreateRule appends a rule to a group. The deny-all priority is reserved
// for the default rules.
func (s *SecurityGroupService) CreateRule(ctx context.Context, p identity.Principal, req CreateRuleRequest) (*model.SecurityRule, error) {
	group, err := s.groups.FindGroupByID(ctx, s.db(), req.GroupID)
	if err != nil {
		return nil, notFoundOr(err, "security group", req.GroupID.String())
	}
	if err := s.authorizeOnVPC(ctx, p, authz.PermManageSecurityGroups, group.VpcID); err != nil {
		return nil, err
	}
	if req.Priority >= model.DenyAllPriority || req.Priority < 0 {
		return nil, &cperrors.InvalidInputError{Field: "priority", Reason: "must be between 0 and 65534"}
	}

	rule, err := s.groups.CreateRule(ctx, s.db(), &model.SecurityRule{
		ID:              id.NewSecurityRuleID(),
		SecurityGroupID: req.GroupID,
		Direction:       req.Direction,
		Protocol:        req.Protocol,
		PortFrom:        req.PortFrom,
		PortTo:          req.PortTo,
		SourceCidr:      req.SourceCidr,
		Action:          req.Action,
		Priority:        req.Priority,
	})
	if err != nil {
		return nil, err
	}
	s.propagateRules(ctx, group.VpcID)
	s.log.Info("created security rule", "rule", rule.ID, "group", req.GroupID, "by", p.DisplayName())
	return rule, nil
}

// DeleteRule removes a rule. Rules of the default group cannot be removed.
func (s *SecurityGroupService) DeleteRule(ctx context.Context, p identity.Principal, groupID id.SecurityGroupID, ruleID id.SecurityRuleID) error {
	group, err := s.groups.FindGroupByID(ctx, s.db(), groupID)
	if err != nil {
		return notFoundOr(err, "security group", groupID.String())
	}
	if group.IsDefault {
		return &cperrors.InvalidInputError{Field: "rule", Reason: "default group rules are immutable"}
	}
	if err := s.authorizeOnVPC(ctx, p, authz.PermManageSecurityGroups, group.VpcID); err != nil {
		return err
	}
	if err := s.groups.DeleteRule(ctx, s.db(), ruleID); err != nil {
		return err
	}
	s.propagateRules(ctx, group.VpcID)
	return nil
}

// DeleteGroup removes a non-default group with its rules.
func (s *SecurityGroupService) DeleteGroup(ctx context.Context, p identity.Principal, groupID id.SecurityGroupID) error {
	group, err := s.groups.FindGroupByID(ctx, s.db(), groupID)
	if err != nil {
		return notFoundOr(err, "security group", groupID.String())
	}
	if group.IsDefault {
		return &cperrors.InvalidInputError{Field: "group", Reason: "the default group cannot be deleted"}
	}
	if err := s.authorizeOnVPC(ctx, p, authz.PermManageSecurityGroups, group.VpcID); err != nil {
		return err
	}
	if err := s.groups.DeleteGroup(ctx, s.db(), groupID); err != nil {
		return err
	}
	s.propagateRules(ctx, group.VpcID)
	return nil
}

func (s *SecurityGroupService) authorizeOnVPC(ctx context.Context, p identity.Principal, permission string, vpcID id.VPCID) error {
	vpc, err := s.vpcs.FindByID(ctx, s.db(), vpcID)
	if err != nil {
		return notFoundOr(err, "vpc", vpcID.String())
	}
	return s.authorize(ctx, p, permission, authz.TypeOrganization, vpc.OrganizationID.String())
}
