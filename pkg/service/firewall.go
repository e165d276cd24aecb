// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"sort"
	"strconv"

	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/proxmox"
)

// firewallRuleOf renders one security rule as a guest firewall rule. The
// rule id travels in the comment so a synced table can be traced back to
// its rows.
func firewallRuleOf(r model.SecurityRule) proxmox.FirewallRule {
	rule := proxmox.FirewallRule{
		Type:     "in",
		Action:   "ACCEPT",
		Enable:   1,
		Comment:  r.ID.String(),
		Priority: int(r.Priority),
	}
	if r.Direction == model.DirectionOutbound {
		rule.Type = "out"
	}
	if r.Action == model.ActionDeny {
		rule.Action = "DROP"
	}
	switch r.Protocol {
	case model.ProtocolTCP:
		rule.Proto = "tcp"
	case model.ProtocolUDP:
		rule.Proto = "udp"
	case model.ProtocolICMP:
		rule.Proto = "icmp"
	}
	if r.PortFrom != nil {
		rule.Dport = strconv.Itoa(int(*r.PortFrom))
		if r.PortTo != nil && *r.PortTo != *r.PortFrom {
			rule.Dport += ":" + strconv.Itoa(int(*r.PortTo))
		}
	}
	if r.SourceCidr != "" {
		if rule.Type == "in" {
			rule.Source = r.SourceCidr
		} else {
			rule.Dest = r.SourceCidr
		}
	}
	return rule
}

// guestFirewallRules renders the rule set in evaluation order, lowest
// priority number first so the deny-alls end up at the bottom of the
// first-match table.
func guestFirewallRules(rules []model.SecurityRule) []proxmox.FirewallRule {
	out := make([]proxmox.FirewallRule, len(rules))
	for i, r := range rules {
		out[i] = firewallRuleOf(r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// syncGuestFirewall makes the guest firewall match the given rule set:
// the firewall is enabled, the existing table dropped and the rules
// pushed in evaluation order.
func (b base) syncGuestFirewall(ctx context.Context, node string, vmID int, rules []model.SecurityRule) error {
	if err := b.proxmox.EnableFirewall(ctx, node, vmID); err != nil {
		return err
	}
	existing, err := b.proxmox.ListFirewallRules(ctx, node, vmID)
	if err != nil {
		return err
	}
	// Deleting from the bottom up keeps the remaining positions stable.
	for i := len(existing) - 1; i >= 0; i-- {
		if err := b.proxmox.DeleteFirewallRule(ctx, node, vmID, existing[i].Pos); err != nil {
			return err
		}
	}
	// Creation inserts at the top of the table, so the rules go in
	// reverse: the last one pushed ends up evaluated first.
	desired := guestFirewallRules(rules)
	for i := len(desired) - 1; i >= 0; i-- {
		if err := b.proxmox.CreateFirewallRule(ctx, node, vmID, desired[i]); err != nil {
			return err
		}
	}
	return nil
}

// propagateRules pushes the VPC's current rule set to every guest holding
// an address on it. The database stays authoritative; a guest that cannot
// be reached is logged and skipped, the next sync catches it up.
func (s *SecurityGroupService) propagateRules(ctx context.Context, vpcID id.VPCID) {
	rules, err := s.groups.ListRulesByVPC(ctx, s.db(), vpcID)
	if err != nil {
		s.log.Error(err, "could not load rules for firewall sync", "vpc", vpcID)
		return
	}
	instances, err := s.instances.ListByVPC(ctx, s.db(), vpcID)
	if err != nil {
		s.log.Error(err, "could not list instances for firewall sync", "vpc", vpcID)
		return
	}
	for i := range instances {
		instance := &instances[i]
		vmID, err := strconv.Atoi(instance.DistantID)
		if err != nil {
			s.log.Error(err, "skipping firewall sync of malformed distant id", "instance", instance.ID)
			continue
		}
		node, err := proxmox.ExecutionNode(ctx, s.proxmox, vmID)
		if err != nil {
			s.log.Error(err, "could not locate guest for firewall sync", "instance", instance.ID)
			continue
		}
		if err := s.syncGuestFirewall(ctx, node, vmID, rules); err != nil {
			s.log.Error(err, "could not sync guest firewall", "instance", instance.ID, "vmid", vmID)
		}
	}
}
