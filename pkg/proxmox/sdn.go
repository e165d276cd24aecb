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

// CreateSDNZone implements API.
func (c *Client) CreateSDNZone(ctx context.Context, zone SDNZone) error {
	form := url.Values{}
	form.Set("zone", zone.Zone)
	form.Set("type", zone.Type)
	if zone.MTU > 0 {
		form.Set("mtu", strconv.Itoa(zone.MTU))
	}
	return c.post(ctx, "/cluster/sdn/zones", form, nil)
}

// DeleteSDNZone implements API.
func (c *Client) DeleteSDNZone(ctx context.Context, zone string) error {
	return c.delete(ctx, "/cluster/sdn/zones/"+url.PathEscape(zone), nil)
}

// CreateSDNVNet implements API.
func (c *Client) CreateSDNVNet(ctx context.Context, vnet SDNVNet) error {
	form := url.Values{}
	form.Set("vnet", vnet.VNet)
	form.Set("zone", vnet.Zone)
	if vnet.Tag > 0 {
		form.Set("tag", strconv.Itoa(vnet.Tag))
	}
	return c.post(ctx, "/cluster/sdn/vnets", form, nil)
}

// DeleteSDNVNet implements API.
func (c *Client) DeleteSDNVNet(ctx context.Context, vnet string) error {
	return c.delete(ctx, "/cluster/sdn/vnets/"+url.PathEscape(vnet), nil)
}

// CreateSDNSubnet implements API.
func (c *Client) CreateSDNSubnet(ctx context.Context, subnet SDNSubnet) error {
	form := url.Values{}
	form.Set("subnet", subnet.Subnet)
	form.Set("type", subnet.Type)
	if subnet.Gateway != "" {
		form.Set("gateway", subnet.Gateway)
	}
	return c.post(ctx, fmt.Sprintf("/cluster/sdn/vnets/%s/subnets", url.PathEscape(subnet.VNet)), form, nil)
}

// DeleteSDNSubnet implements API.
func (c *Client) DeleteSDNSubnet(ctx context.Context, vnet, subnet string) error {
	path := fmt.Sprintf("/cluster/sdn/vnets/%s/subnets/%s", url.PathEscape(vnet), url.PathEscape(subnet))
	return c.delete(ctx, path, nil)
}

// ApplySDN implements API. Zone, vnet and subnet writes stay pending until
// applied.
func (c *Client) ApplySDN(ctx context.Context) (UPID, error) {
	var upid UPID
	if err := c.do(ctx, "PUT", "/cluster/sdn", nil, url.Values{}, &upid); err != nil {
		return "", err
	}
	return upid, nil
}
