// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package proxmox

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory API implementation for tests. Tasks complete
// immediately and successfully unless FailNext is armed; the call log
// records every mutation in order.
type Fake struct {
	mu sync.Mutex

	nextID          int
	Nodes           []ClusterResource
	VMs             map[int]*VMStatus
	VMNode          map[int]string
	Zones           map[string]SDNZone
	VNets           map[string]SDNVNet
	Subnets         map[string]SDNSubnet
	Firewall        map[int][]FirewallRule
	FirewallEnabled map[int]bool
	taskSeq         int
	failNext        map[string]error
	Calls           []string
}

var _ API = &Fake{}

// NewFake returns a fake with one online node and an empty cluster.
func NewFake() *Fake {
	return &Fake{
		nextID: 100,
		Nodes: []ClusterResource{
			{ID: "node/pve1", Type: ResourceKindNode, Node: "pve1", Status: "online", MaxMem: 64 << 30, MaxCPU: 16},
		},
		VMs:             map[int]*VMStatus{},
		VMNode:          map[int]string{},
		Zones:           map[string]SDNZone{},
		VNets:           map[string]SDNVNet{},
		Subnets:         map[string]SDNSubnet{},
		Firewall:        map[int][]FirewallRule{},
		FirewallEnabled: map[int]bool{},
		failNext:        map[string]error{},
	}
}

// FailNext arms a one-shot failure for the named call, e.g. "CreateVM".
func (f *Fake) FailNext(call string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[call] = err
}

func (f *Fake) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
	if err, ok := f.failNext[call]; ok {
		delete(f.failNext, call)
		return err
	}
	return nil
}

func (f *Fake) newTask() UPID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskSeq++
	return UPID(fmt.Sprintf("UPID:pve1:%08X:fake:", f.taskSeq))
}

// ClusterNextID implements API.
func (f *Fake) ClusterNextID(ctx context.Context) (int, error) {
	if err := f.record("ClusterNextID"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	return id, nil
}

// ClusterResources implements API.
func (f *Fake) ClusterResources(ctx context.Context, kind ResourceKind) ([]ClusterResource, error) {
	if err := f.record("ClusterResources"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ClusterResource
	if kind == "" || kind == ResourceKindNode {
		out = append(out, f.Nodes...)
	}
	if kind == "" || kind == ResourceKindVM {
		for id, vm := range f.VMs {
			out = append(out, ClusterResource{
				ID:     fmt.Sprintf("qemu/%d", id),
				Type:   ResourceKindVM,
				Node:   f.VMNode[id],
				VMID:   id,
				Status: vm.Status,
			})
		}
	}
	return out, nil
}

// CreateVM implements API.
func (f *Fake) CreateVM(ctx context.Context, node string, cfg VMConfig) (UPID, error) {
	if err := f.record("CreateVM"); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.VMs[cfg.VMID] = &VMStatus{VMID: cfg.VMID, Status: "stopped", CPUs: cfg.Cores, MaxMem: cfg.MemoryMB << 20}
	f.VMNode[cfg.VMID] = node
	f.mu.Unlock()
	return f.newTask(), nil
}

// CloneVM implements API.
func (f *Fake) CloneVM(ctx context.Context, node string, vmID, newID int, full bool) (UPID, error) {
	if err := f.record("CloneVM"); err != nil {
		return "", err
	}
	f.mu.Lock()
	src, ok := f.VMs[vmID]
	if !ok {
		f.mu.Unlock()
		return "", &VmNotFoundError{VMID: vmID}
	}
	clone := *src
	clone.VMID = newID
	clone.Status = "stopped"
	f.VMs[newID] = &clone
	f.VMNode[newID] = node
	f.mu.Unlock()
	return f.newTask(), nil
}

func (f *Fake) setStatus(call string, vmID int, status string) (UPID, error) {
	if err := f.record(call); err != nil {
		return "", err
	}
	f.mu.Lock()
	vm, ok := f.VMs[vmID]
	if !ok {
		f.mu.Unlock()
		return "", &VmNotFoundError{VMID: vmID}
	}
	vm.Status = status
	f.mu.Unlock()
	return f.newTask(), nil
}

// StartVM implements API.
func (f *Fake) StartVM(ctx context.Context, node string, vmID int) (UPID, error) {
	return f.setStatus("StartVM", vmID, "running")
}

// StopVM implements API.
func (f *Fake) StopVM(ctx context.Context, node string, vmID int) (UPID, error) {
	return f.setStatus("StopVM", vmID, "stopped")
}

// DeleteVM implements API.
func (f *Fake) DeleteVM(ctx context.Context, node string, vmID int) (UPID, error) {
	if err := f.record("DeleteVM"); err != nil {
		return "", err
	}
	f.mu.Lock()
	if _, ok := f.VMs[vmID]; !ok {
		f.mu.Unlock()
		return "", &VmNotFoundError{VMID: vmID}
	}
	delete(f.VMs, vmID)
	delete(f.VMNode, vmID)
	f.mu.Unlock()
	return f.newTask(), nil
}

// VMStatus implements API.
func (f *Fake) VMStatus(ctx context.Context, node string, vmID int) (*VMStatus, error) {
	if err := f.record("VMStatus"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.VMs[vmID]
	if !ok {
		return nil, &VmNotFoundError{VMID: vmID}
	}
	copied := *vm
	return &copied, nil
}

// VMConfig implements API.
func (f *Fake) VMConfig(ctx context.Context, node string, vmID int) (map[string]any, error) {
	if err := f.record("VMConfig"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.VMs[vmID]
	if !ok {
		return nil, &VmNotFoundError{VMID: vmID}
	}
	return map[string]any{
		"cores":  vm.CPUs,
		"memory": vm.MaxMem >> 20,
	}, nil
}

// ResizeDisk implements API.
func (f *Fake) ResizeDisk(ctx context.Context, node string, vmID int, disk, size string) error {
	if err := f.record("ResizeDisk"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.VMs[vmID]; !ok {
		return &VmNotFoundError{VMID: vmID}
	}
	return nil
}

// CreateSDNZone implements API.
func (f *Fake) CreateSDNZone(ctx context.Context, zone SDNZone) error {
	if err := f.record("CreateSDNZone"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Zones[zone.Zone] = zone
	return nil
}

// DeleteSDNZone implements API.
func (f *Fake) DeleteSDNZone(ctx context.Context, zone string) error {
	if err := f.record("DeleteSDNZone"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Zones, zone)
	return nil
}

// CreateSDNVNet implements API.
func (f *Fake) CreateSDNVNet(ctx context.Context, vnet SDNVNet) error {
	if err := f.record("CreateSDNVNet"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VNets[vnet.VNet] = vnet
	return nil
}

// DeleteSDNVNet implements API.
func (f *Fake) DeleteSDNVNet(ctx context.Context, vnet string) error {
	if err := f.record("DeleteSDNVNet"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.VNets, vnet)
	return nil
}

// CreateSDNSubnet implements API.
func (f *Fake) CreateSDNSubnet(ctx context.Context, subnet SDNSubnet) error {
	if err := f.record("CreateSDNSubnet"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subnets[subnet.Subnet] = subnet
	return nil
}

// DeleteSDNSubnet implements API.
func (f *Fake) DeleteSDNSubnet(ctx context.Context, vnet, subnet string) error {
	if err := f.record("DeleteSDNSubnet"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Subnets, subnet)
	return nil
}

// ApplySDN implements API.
func (f *Fake) ApplySDN(ctx context.Context) (UPID, error) {
	if err := f.record("ApplySDN"); err != nil {
		return "", err
	}
	return f.newTask(), nil
}

// EnableFirewall implements API.
func (f *Fake) EnableFirewall(ctx context.Context, node string, vmID int) error {
	if err := f.record("EnableFirewall"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FirewallEnabled[vmID] = true
	return nil
}

// ListFirewallRules implements API.
func (f *Fake) ListFirewallRules(ctx context.Context, node string, vmID int) ([]FirewallRule, error) {
	if err := f.record("ListFirewallRules"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FirewallRule, len(f.Firewall[vmID]))
	copy(out, f.Firewall[vmID])
	return out, nil
}

// CreateFirewallRule implements API. Like the real endpoint, a new rule
// lands at the top of the table.
func (f *Fake) CreateFirewallRule(ctx context.Context, node string, vmID int, rule FirewallRule) error {
	if err := f.record("CreateFirewallRule"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Firewall[vmID] = append([]FirewallRule{rule}, f.Firewall[vmID]...)
	f.renumberLocked(vmID)
	return nil
}

// DeleteFirewallRule implements API.
func (f *Fake) DeleteFirewallRule(ctx context.Context, node string, vmID int, pos int) error {
	if err := f.record("DeleteFirewallRule"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rules := f.Firewall[vmID]
	for i, r := range rules {
		if r.Pos == pos {
			f.Firewall[vmID] = append(rules[:i:i], rules[i+1:]...)
			f.renumberLocked(vmID)
			return nil
		}
	}
	return fmt.Errorf("no rule at position %d on vm %d", pos, vmID)
}

func (f *Fake) renumberLocked(vmID int) {
	for i := range f.Firewall[vmID] {
		f.Firewall[vmID][i].Pos = i
	}
}

// TaskStatus implements API. Fake tasks are always already finished.
func (f *Fake) TaskStatus(ctx context.Context, node string, upid UPID) (*TaskStatus, error) {
	if err := f.record("TaskStatus"); err != nil {
		return nil, err
	}
	return &TaskStatus{UPID: upid, Node: node, Status: "stopped", ExitStatus: "OK"}, nil
}
