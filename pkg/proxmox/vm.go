// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package proxmox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// ClusterNextID implements API.
func (c *Client) ClusterNextID(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/cluster/nextid", nil, &raw); err != nil {
		return 0, err
	}
	return decodeQuotedInt(raw)
}

// ClusterResources implements API.
func (c *Client) ClusterResources(ctx context.Context, kind ResourceKind) ([]ClusterResource, error) {
	query := url.Values{}
	if kind != "" {
		query.Set("type", string(kind))
	}
	var resources []ClusterResource
	if err := c.get(ctx, "/cluster/resources", query, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// CreateVM implements API.
func (c *Client) CreateVM(ctx context.Context, node string, cfg VMConfig) (UPID, error) {
	form := url.Values{}
	form.Set("vmid", strconv.Itoa(cfg.VMID))
	form.Set("name", cfg.Name)
	form.Set("cores", strconv.Itoa(cfg.Cores))
	form.Set("memory", strconv.FormatInt(cfg.MemoryMB, 10))
	form.Set("scsihw", "virtio-scsi-pci")
	form.Set("agent", "1")
	if cfg.Disk != "" {
		form.Set("scsi0", cfg.Disk)
	}
	if cfg.CloudInit != "" {
		form.Set("cicustom", cfg.CloudInit)
		form.Set("ide2", "local-lvm:cloudinit")
	}
	if cfg.Net0 != "" {
		form.Set("net0", cfg.Net0)
	}
	if cfg.IPCfg0 != "" {
		form.Set("ipconfig0", cfg.IPCfg0)
	}
	if cfg.Serial0 {
		form.Set("serial0", "socket")
		form.Set("vga", "serial0")
	}
	if cfg.Tags != "" {
		form.Set("tags", cfg.Tags)
	}

	var upid UPID
	if err := c.post(ctx, fmt.Sprintf("/nodes/%s/qemu", node), form, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// CloneVM implements API.
func (c *Client) CloneVM(ctx context.Context, node string, vmID, newID int, full bool) (UPID, error) {
	form := url.Values{}
	form.Set("newid", strconv.Itoa(newID))
	if full {
		form.Set("full", "1")
	}
	var upid UPID
	if err := c.post(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/clone", node, vmID), form, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// StartVM implements API.
func (c *Client) StartVM(ctx context.Context, node string, vmID int) (UPID, error) {
	var upid UPID
	if err := c.post(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/status/start", node, vmID), url.Values{}, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// StopVM implements API.
func (c *Client) StopVM(ctx context.Context, node string, vmID int) (UPID, error) {
	var upid UPID
	if err := c.post(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/status/stop", node, vmID), url.Values{}, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// DeleteVM implements API.
func (c *Client) DeleteVM(ctx context.Context, node string, vmID int) (UPID, error) {
	var upid UPID
	if err := c.delete(ctx, fmt.Sprintf("/nodes/%s/qemu/%d", node, vmID), &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// VMStatus implements API.
func (c *Client) VMStatus(ctx context.Context, node string, vmID int) (*VMStatus, error) {
	status := &VMStatus{}
	if err := c.get(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/status/current", node, vmID), nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

// VMConfig implements API.
func (c *Client) VMConfig(ctx context.Context, node string, vmID int) (map[string]any, error) {
	var cfg map[string]any
	if err := c.get(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/config", node, vmID), nil, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResizeDisk implements API. The import directive reports source-image
// size, so callers must resize explicitly even when the target size looks
// identical.
func (c *Client) ResizeDisk(ctx context.Context, node string, vmID int, disk, size string) error {
	form := url.Values{}
	form.Set("disk", disk)
	form.Set("size", size)
	return c.put(ctx, fmt.Sprintf("/nodes/%s/qemu/%d/resize", node, vmID), form)
}

// TaskStatus implements API.
func (c *Client) TaskStatus(ctx context.Context, node string, upid UPID) (*TaskStatus, error) {
	status := &TaskStatus{}
	path := fmt.Sprintf("/nodes/%s/tasks/%s/status", node, url.PathEscape(string(upid)))
	if err := c.get(ctx, path, nil, status); err != nil {
		return nil, err
	}
	return status, nil
}
