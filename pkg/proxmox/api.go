// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package proxmox

import (
	"context"
	"strings"
)

// UPID is a hypervisor task handle of the form
// UPID:<node>:<pid>:<pstart>:<starttime>:<type>:<id>:<user>.
type UPID string

// Node extracts the node the task runs on, or "" when the handle is
// malformed.
func (u UPID) Node() string {
	parts := strings.Split(string(u), ":")
	if len(parts) < 2 || parts[0] != "UPID" {
		return ""
	}
	return parts[1]
}

// ResourceKind filters a cluster resources listing.
type ResourceKind string

// Cluster resource kinds.
const (
	ResourceKindNode    ResourceKind = "node"
	ResourceKindVM      ResourceKind = "vm"
	ResourceKindStorage ResourceKind = "storage"
)

// ClusterResource is one row of the cluster resources listing. Fields are
// sparsely populated depending on the resource type.
type ClusterResource struct {
	ID      string       `json:"id"`
	Type    ResourceKind `json:"type"`
	Node    string       `json:"node"`
	Name    string       `json:"name"`
	Status  string       `json:"status"`
	VMID    int          `json:"vmid"`
	CPU     float64      `json:"cpu"`
	MaxCPU  int          `json:"maxcpu"`
	Mem     int64        `json:"mem"`
	MaxMem  int64        `json:"maxmem"`
	Disk    int64        `json:"disk"`
	MaxDisk int64        `json:"maxdisk"`
	Uptime  int64        `json:"uptime"`
}

// Online reports whether a node resource is usable for placement.
func (r ClusterResource) Online() bool {
	return r.Type == ResourceKindNode && r.Status == "online"
}

// VMConfig is the creation payload of a guest. Zero-valued optional fields
// are omitted from the request.
type VMConfig struct {
	VMID     int
	Name     string
	Cores    int
	MemoryMB int64
	// Disk is the scsi0 volume directive including the import-from source,
	// e.g. "local-lvm:0,import-from=/var/lib/vz/images/noble.qcow2".
	Disk string
	// CloudInit is the cicustom directive pointing at the user snippet.
	CloudInit string
	// Net0 is the first NIC directive, e.g.
	// "virtio=BC:24:11:xx:xx:xx,bridge=vnet42,mtu=1450".
	Net0   string
	IPCfg0 string
	// Serial0 attaches a serial console, required for cloud images.
	Serial0 bool
	Tags    string
}

// VMStatus is the current state of a guest.
type VMStatus struct {
	VMID   int     `json:"vmid"`
	Status string  `json:"status"`
	CPU    float64 `json:"cpu"`
	CPUs   int     `json:"cpus"`
	Mem    int64   `json:"mem"`
	MaxMem int64   `json:"maxmem"`
	Disk   int64   `json:"disk"`
	Uptime int64   `json:"uptime"`
	Agent  int     `json:"agent"`
}

// TaskStatus is the state of an asynchronous hypervisor task.
type TaskStatus struct {
	UPID       UPID   `json:"upid"`
	Node       string `json:"node"`
	Status     string `json:"status"`
	ExitStatus string `json:"exitstatus"`
}

// Finished reports whether the task reached a terminal state.
func (t TaskStatus) Finished() bool { return t.Status == "stopped" }

// OK reports whether a finished task succeeded.
func (t TaskStatus) OK() bool { return t.Finished() && t.ExitStatus == "OK" }

// SDNZone is a software-defined-network zone.
type SDNZone struct {
	Zone string `json:"zone"`
	Type string `json:"type"`
	MTU  int    `json:"mtu,omitempty"`
}

// SDNVNet is a virtual network inside a zone.
type SDNVNet struct {
	VNet string `json:"vnet"`
	Zone string `json:"zone"`
	Tag  int    `json:"tag,omitempty"`
}

// SDNSubnet is an address range inside a vnet.
type SDNSubnet struct {
	Subnet  string `json:"subnet"`
	VNet    string `json:"vnet"`
	Type    string `json:"type"`
	Gateway string `json:"gateway,omitempty"`
}

// FirewallRule is one guest firewall rule.
type FirewallRule struct {
	Pos      int    `json:"pos"`
	Type     string `json:"type"`
	Action   string `json:"action"`
	Proto    string `json:"proto,omitempty"`
	Dport    string `json:"dport,omitempty"`
	Source   string `json:"source,omitempty"`
	Dest     string `json:"dest,omitempty"`
	Enable   int    `json:"enable"`
	Comment  string `json:"comment,omitempty"`
	Priority int    `json:"-"`
}

// API is the hypervisor surface the control plane uses. The concrete
// Client implements it; tests substitute the Fake.
type API interface {
	// ClusterNextID returns the next free numeric VM id.
	ClusterNextID(ctx context.Context) (int, error)
	// ClusterResources lists cluster resources, optionally filtered by
	// kind.
	ClusterResources(ctx context.Context, kind ResourceKind) ([]ClusterResource, error)

	// CreateVM creates a guest on the node and returns its task handle.
	CreateVM(ctx context.Context, node string, cfg VMConfig) (UPID, error)
	// CloneVM clones vmID into newID on the node.
	CloneVM(ctx context.Context, node string, vmID, newID int, full bool) (UPID, error)
	// StartVM starts the guest.
	StartVM(ctx context.Context, node string, vmID int) (UPID, error)
	// StopVM stops the guest hard.
	StopVM(ctx context.Context, node string, vmID int) (UPID, error)
	// DeleteVM destroys the guest and its disks.
	DeleteVM(ctx context.Context, node string, vmID int) (UPID, error)
	// VMStatus reads the guest's current state.
	VMStatus(ctx context.Context, node string, vmID int) (*VMStatus, error)
	// VMConfig reads the guest's raw config keys.
	VMConfig(ctx context.Context, node string, vmID int) (map[string]any, error)
	// ResizeDisk grows the given disk to size, e.g. "32G".
	ResizeDisk(ctx context.Context, node string, vmID int, disk, size string) error

	// CreateSDNZone creates a zone; ApplySDN must follow for it to take
	// effect.
	CreateSDNZone(ctx context.Context, zone SDNZone) error
	// DeleteSDNZone removes a zone.
	DeleteSDNZone(ctx context.Context, zone string) error
	// CreateSDNVNet creates a vnet inside a zone.
	CreateSDNVNet(ctx context.Context, vnet SDNVNet) error
	// DeleteSDNVNet removes a vnet.
	DeleteSDNVNet(ctx context.Context, vnet string) error
	// CreateSDNSubnet creates a subnet inside a vnet.
	CreateSDNSubnet(ctx context.Context, subnet SDNSubnet) error
	// DeleteSDNSubnet removes a subnet.
	DeleteSDNSubnet(ctx context.Context, vnet, subnet string) error
	// ApplySDN commits pending SDN changes cluster-wide.
	ApplySDN(ctx context.Context) (UPID, error)

	// EnableFirewall turns the guest firewall on.
	EnableFirewall(ctx context.Context, node string, vmID int) error
	// ListFirewallRules returns the guest firewall rules in table order.
	ListFirewallRules(ctx context.Context, node string, vmID int) ([]FirewallRule, error)
	// CreateFirewallRule inserts a rule at the top of the guest firewall.
	CreateFirewallRule(ctx context.Context, node string, vmID int, rule FirewallRule) error
	// DeleteFirewallRule removes the rule at pos.
	DeleteFirewallRule(ctx context.Context, node string, vmID int, pos int) error

	// TaskStatus reads the state of a task on its node.
	TaskStatus(ctx context.Context, node string, upid UPID) (*TaskStatus, error)
}
