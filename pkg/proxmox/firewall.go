// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package proxmox

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// EnableFirewall implements API.
func (c *Client) EnableFirewall(ctx context.Context, node string, vmID int) error {
	form := url.Values{}
	form.Set("enable", "1")
	return c.put(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/firewall/options", node, vmID), form)
}

// ListFirewallRules implements API.
func (c *Client) ListFirewallRules(ctx context.Context, node string, vmID int) ([]FirewallRule, error) {
	var rules []FirewallRule
	if err := c.get(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/firewall/rules", node, vmID), nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// CreateFirewallRule implements API.
func (c *Client) CreateFirewallRule(ctx context.Context, node string, vmID int, rule FirewallRule) error {
	form := url.Values{}
	form.Set("type", rule.Type)
	form.Set("action", rule.Action)
	form.Set("enable", strconv.Itoa(rule.Enable))
	if rule.Proto != "" {
		form.Set("proto", rule.Proto)
	}
	if rule.Dport != "" {
		form.Set("dport", rule.Dport)
	}
	if rule.Source != "" {
		form.Set("source", rule.Source)
	}
	if rule.Dest != "" {
		form.Set("dest", rule.Dest)
	}
	if rule.Comment != "" {
		form.Set("comment", rule.Comment)
	}
	return c.post(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/firewall/rules", node, vmID), form, nil)
}

// DeleteFirewallRule implements API.
func (c *Client) DeleteFirewallRule(ctx context.Context, node string, vmID int, pos int) error {
	return c.delete(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/firewall/rules/%d", node, vmID, pos), nil)
}
