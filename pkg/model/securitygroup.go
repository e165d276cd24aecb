// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"time"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// RuleDirection is the traffic direction a security rule matches.
type RuleDirection string

// Rule directions.
const (
	DirectionInbound  RuleDirection = "Inbound"
	DirectionOutbound RuleDirection = "Outbound"
)

// RuleProtocol is the transport protocol a security rule matches.
type RuleProtocol string

// Rule protocols.
const (
	ProtocolTCP  RuleProtocol = "Tcp"
	ProtocolUDP  RuleProtocol = "Udp"
	ProtocolICMP RuleProtocol = "Icmp"
	ProtocolAll  RuleProtocol = "All"
)

// RuleAction is the verdict of a matching rule.
type RuleAction string

// Rule actions.
const (
	ActionAllow RuleAction = "Allow"
	ActionDeny  RuleAction = "Deny"
)

// DenyAllPriority is the priority of the default deny-all rules. It is the
// lowest priority so explicit rules always win.
const DenyAllPriority = 65535

// SecurityGroup is a named rule set within a VPC. Every VPC carries exactly
// one default group holding the two deny-all rules.
type SecurityGroup struct {
	ID        id.SecurityGroupID `db:"id"`
	VpcID     id.VPCID           `db:"vpc_id"`
	Name      string             `db:"name"`
	IsDefault bool               `db:"is_default"`
	CreatedAt time.Time          `db:"created_at"`
	UpdatedAt time.Time          `db:"updated_at"`
}

// SecurityRule is one entry of a security group.
type SecurityRule struct {
	ID              id.SecurityRuleID  `db:"id"`
	SecurityGroupID id.SecurityGroupID `db:"security_group_id"`
	Direction       RuleDirection      `db:"direction"`
	Protocol        RuleProtocol       `db:"protocol"`
	PortFrom        *int32             `db:"port_from"`
	PortTo          *int32             `db:"port_to"`
	SourceCidr      string             `db:"source_cidr"`
	Action          RuleAction         `db:"action"`
	Priority        int32              `db:"priority"`
	CreatedAt       time.Time          `db:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at"`
}

// SecurityGroupRepository provides CRUD over security groups and rules.
type SecurityGroupRepository struct{}

const securityGroupColumns = `id, vpc_id, name, is_default, created_at, updated_at`

const securityRuleColumns = `id, security_group_id, direction, protocol, port_from, port_to, source_cidr, action, priority, created_at, updated_at`

// CreateGroup inserts the group and returns the hydrated row.
func (SecurityGroupRepository) CreateGroup(ctx context.Context, q Querier, g *SecurityGroup) (*SecurityGroup, error) {
	var out SecurityGroup
	err := get(ctx, q, &out, `
		INSERT INTO security_groups (id, vpc_id, name, is_default)
		VALUES ($1, $2, $3, $4)
		RETURNING `+securityGroupColumns,
		g.ID, g.VpcID, g.Name, g.IsDefault)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRule inserts the rule and returns the hydrated row.
func (SecurityGroupRepository) CreateRule(ctx context.Context, q Querier, r *SecurityRule) (*SecurityRule, error) {
	var out SecurityRule
	err := get(ctx, q, &out, `
		INSERT INTO security_rules (id, security_group_id, direction, protocol, port_from, port_to, source_cidr, action, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+securityRuleColumns,
		r.ID, r.SecurityGroupID, r.Direction, r.Protocol, r.PortFrom, r.PortTo, r.SourceCidr, r.Action, r.Priority)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindGroupByID returns the group with the given id.
func (SecurityGroupRepository) FindGroupByID(ctx context.Context, q Querier, groupID id.SecurityGroupID) (*SecurityGroup, error) {
	var out SecurityGroup
	if err := get(ctx, q, &out, `SELECT `+securityGroupColumns+` FROM security_groups WHERE id = $1`, groupID); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindDefaultGroup returns the default group of a VPC.
func (SecurityGroupRepository) FindDefaultGroup(ctx context.Context, q Querier, vpcID id.VPCID) (*SecurityGroup, error) {
	var out SecurityGroup
	err := get(ctx, q, &out, `SELECT `+securityGroupColumns+` FROM security_groups WHERE vpc_id = $1 AND is_default`, vpcID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListGroupsByVPC returns all groups of a VPC.
func (SecurityGroupRepository) ListGroupsByVPC(ctx context.Context, q Querier, vpcID id.VPCID) ([]SecurityGroup, error) {
	var out []SecurityGroup
	if err := selectAll(ctx, q, &out, `SELECT `+securityGroupColumns+` FROM security_groups WHERE vpc_id = $1 ORDER BY created_at`, vpcID); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRules returns the rules of one group ordered by priority.
func (SecurityGroupRepository) ListRules(ctx context.Context, q Querier, groupID id.SecurityGroupID) ([]SecurityRule, error) {
	var out []SecurityRule
	if err := selectAll(ctx, q, &out, `SELECT `+securityRuleColumns+` FROM security_rules WHERE security_group_id = $1 ORDER BY priority, created_at`, groupID); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRulesByVPC returns every rule of every group of a VPC ordered by
// priority, the flat set a guest firewall is synced from.
func (SecurityGroupRepository) ListRulesByVPC(ctx context.Context, q Querier, vpcID id.VPCID) ([]SecurityRule, error) {
	var out []SecurityRule
	err := selectAll(ctx, q, &out, `
		SELECT r.id, r.security_group_id, r.direction, r.protocol, r.port_from, r.port_to,
			r.source_cidr, r.action, r.priority, r.created_at, r.updated_at
		FROM security_rules r
		JOIN security_groups g ON g.id = r.security_group_id
		WHERE g.vpc_id = $1
		ORDER BY r.priority, r.created_at`, vpcID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRule removes one rule.
func (SecurityGroupRepository) DeleteRule(ctx context.Context, q Querier, ruleID id.SecurityRuleID) error {
	return exec(ctx, q, `DELETE FROM security_rules WHERE id = $1`, ruleID)
}

// DeleteGroup removes the group; rules cascade.
func (SecurityGroupRepository) DeleteGroup(ctx context.Context, q Querier, groupID id.SecurityGroupID) error {
	return exec(ctx, q, `DELETE FROM security_groups WHERE id = $1`, groupID)
}
