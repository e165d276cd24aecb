// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/ipam"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/operation"
	"github.com/meridian-cloud/meridian/pkg/proxmox"
)

// InstanceService manages the VM lifecycle end to end: placement, cloud
// init snippet, address allocation, hypervisor provisioning and the outbox
// operations that attach the instance to the authorization plane, the
// bastion and the workload cluster.
type InstanceService struct {
	base
}

// List returns the instances of a project.
func (s *InstanceService) List(ctx context.Context, p identity.Principal, projectID id.ProjectID) ([]model.Instance, error) {
	project, err := s.projects.FindByID(ctx, s.db(), projectID)
	if err != nil {
		return nil, notFoundOr(err, "project", projectID.String())
	}
	if err := s.authorize(ctx, p, authz.PermViewOrganization, authz.TypeOrganization, project.OrganizationID.String()); err != nil {
		return nil, err
	}
	return s.instances.ListByProject(ctx, s.db(), projectID)
}

// CreateInstanceRequest is the input of Create.
type CreateInstanceRequest struct {
	ProjectID   id.ProjectID
	VNetID      id.VNetID
	Name        string
	CPUCores    int
	MemoryBytes int64
	DiskBytes   int64
	// ImageVolume is the source image the root disk is imported from,
	// e.g. "/var/lib/vz/images/noble-server.qcow2".
	ImageVolume string
	// UserData is the cloud-init user data written to the snippet volume.
	UserData []byte
	// RequestedIP pins a specific address instead of the next free one.
	RequestedIP string
}

// Create provisions a VM. The order is deliberate: snippet first (cheap,
// verifiable), then the address, then the hypervisor; a failure at any
// step unwinds everything already done, so a failed create leaves no
// snippet file, no held address and no row. The instance row and its
// outbox operations commit only after the hypervisor accepted the VM.
func (s *InstanceService) Create(ctx context.Context, p identity.Principal, req CreateInstanceRequest) (*model.Instance, error) {
	project, err := s.projects.FindByID(ctx, s.db(), req.ProjectID)
	if err != nil {
		return nil, notFoundOr(err, "project", req.ProjectID.String())
	}
	if err := s.authorize(ctx, p, authz.PermCreateInstance, authz.TypeProject, req.ProjectID.String()); err != nil {
		return nil, err
	}
	if err := validateInstanceSpec(req.Name, req.CPUCores, req.MemoryBytes, req.DiskBytes); err != nil {
		return nil, err
	}
	vnet, err := s.vnets.FindByID(ctx, s.db(), req.VNetID)
	if err != nil {
		return nil, notFoundOr(err, "vnet", req.VNetID.String())
	}
	vpc, err := s.vpcs.FindByID(ctx, s.db(), vnet.VpcID)
	if err != nil {
		return nil, err
	}

	hv, node, err := s.schedule(ctx, project.OrganizationID)
	if err != nil {
		return nil, err
	}

	instanceID := id.NewInstanceID()
	distantID, err := s.proxmox.ClusterNextID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.snippets.Write(instanceID, req.UserData); err != nil {
		return nil, err
	}
	undoSnippet := func() {
		if err := s.snippets.Remove(instanceID); err != nil {
			s.log.Error(err, "could not remove snippet during rollback", "instance", instanceID)
		}
	}

	var alloc *ipam.Allocation
	if req.RequestedIP != "" {
		alloc, err = s.allocator.AllocateSpecific(ctx, req.VNetID, req.RequestedIP, instanceID, req.Name)
	} else {
		alloc, err = s.allocator.Allocate(ctx, req.VNetID, instanceID, req.Name)
	}
	if err != nil {
		undoSnippet()
		return nil, err
	}
	undoAddress := func() {
		if err := s.allocator.Release(ctx, alloc.ID); err != nil {
			s.log.Error(err, "could not release address during rollback", "instance", instanceID, "address", alloc.Address)
		}
	}

	cfg := proxmox.VMConfig{
		VMID:      distantID,
		Name:      req.Name,
		Cores:     req.CPUCores,
		MemoryMB:  req.MemoryBytes >> 20,
		Disk:      fmt.Sprintf("%s:0,import-from=%s", hv.StorageName, req.ImageVolume),
		CloudInit: s.snippets.VolumeRef(instanceID),
		Net0:      fmt.Sprintf("virtio=%s,bridge=%s,mtu=%d", alloc.MAC, vnet.VnetBridgeID, vpc.MTU),
		IPCfg0:    fmt.Sprintf("ip=%s/%s,gw=%s", alloc.Address, prefixLenOf(vnet.Subnet), vnet.Gateway),
		Serial0:   true,
		Tags:      "meridian",
	}
	upid, err := s.proxmox.CreateVM(ctx, node, cfg)
	if err != nil {
		undoAddress()
		undoSnippet()
		return nil, err
	}
	if _, err := proxmox.WaitForTask(ctx, s.proxmox, node, upid); err != nil {
		undoAddress()
		undoSnippet()
		return nil, err
	}

	// The import directive sizes the disk after the source image, so an
	// explicit resize is mandatory even when the numbers already match.
	if err := s.proxmox.ResizeDisk(ctx, node, distantID, "scsi0", sizeSpec(req.DiskBytes)); err != nil {
		s.destroyVM(ctx, node, distantID)
		undoAddress()
		undoSnippet()
		return nil, err
	}

	// The guest firewall is armed with the VPC's rule set before the VM
	// ever runs, so the deny-alls hold from the first boot.
	rules, err := s.groups.ListRulesByVPC(ctx, s.db(), vnet.VpcID)
	if err == nil {
		err = s.syncGuestFirewall(ctx, node, distantID, rules)
	}
	if err != nil {
		s.destroyVM(ctx, node, distantID)
		undoAddress()
		undoSnippet()
		return nil, err
	}

	var created *model.Instance
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		instance, err := s.instances.Create(ctx, tx, &model.Instance{
			ID:             instanceID,
			HypervisorID:   hv.ID,
			ProjectID:      req.ProjectID,
			DistantID:      strconv.Itoa(distantID),
			IPv4:           &alloc.Address,
			Name:           req.Name,
			Status:         model.InstanceProvisioning,
			MaxCPUCores:    req.CPUCores,
			MaxMemoryBytes: req.MemoryBytes,
			MaxDiskBytes:   req.DiskBytes,
		})
		if err != nil {
			return err
		}
		if err := s.enqueueAttachOperations(ctx, tx, instance, p, alloc.Address); err != nil {
			return err
		}
		created = instance
		return nil
	})
	if err != nil {
		s.destroyVM(ctx, node, distantID)
		undoAddress()
		undoSnippet()
		return nil, err
	}

	s.log.Info("created instance", "instance", instanceID, "vmid", distantID,
		"node", node, "address", alloc.Address, "by", p.DisplayName())
	return created, nil
}

// enqueueAttachOperations records the outbox work attaching a fresh
// instance to the external planes: its parent relationship, a bastion
// agent plus the creator's SSH connection, and the creator's namespace
// grant.
func (s *InstanceService) enqueueAttachOperations(ctx context.Context, tx *sqlx.Tx, instance *model.Instance, p identity.Principal, address string) error {
	if _, err := s.queue.EnqueueWriteRelationship(ctx, tx, authz.Tuple{
		ObjectType:  authz.TypeInstance,
		ObjectID:    instance.ID.String(),
		Relation:    authz.RelationParent,
		SubjectType: authz.TypeProject,
		SubjectID:   instance.ProjectID.String(),
	}); err != nil {
		return err
	}

	agentInput, err := json.Marshal(operation.BastionAgentInput{
		InstanceID:   instance.ID.String(),
		InstanceName: instance.Name,
		IPv4:         address,
	})
	if err != nil {
		return err
	}
	if _, err := s.queue.Enqueue(ctx, tx, operation.NewOperation{
		OpType:       operation.BastionCreateAgent,
		ResourceType: "instance",
		ResourceID:   instance.ID.String(),
		Input:        agentInput,
	}); err != nil {
		return err
	}

	if p.Kind == identity.KindUser {
		connInput, err := json.Marshal(operation.BastionConnectionInput{
			InstanceID: instance.ID.String(),
			UserEmail:  p.Email(),
		})
		if err != nil {
			return err
		}
		if _, err := s.queue.Enqueue(ctx, tx, operation.NewOperation{
			OpType:       operation.BastionCreateConnection,
			ResourceType: "instance",
			ResourceID:   instance.ID.String(),
			Input:        connInput,
		}); err != nil {
			return err
		}
		if err := enqueueNamespaceGrant(ctx, s.queue, tx, instance.ProjectID, p.Email()); err != nil {
			return err
		}
	}
	return nil
}

// Clone creates a full clone of an existing instance in the same project.
func (s *InstanceService) Clone(ctx context.Context, p identity.Principal, instanceID id.InstanceID, name string) (*model.Instance, error) {
	src, err := s.instances.FindByID(ctx, s.db(), instanceID)
	if err != nil {
		return nil, notFoundOr(err, "instance", instanceID.String())
	}
	if err := s.authorize(ctx, p, authz.PermCreateInstance, authz.TypeProject, src.ProjectID.String()); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &cperrors.InvalidInputError{Field: "name", Reason: "must not be empty"}
	}

	srcVMID, err := strconv.Atoi(src.DistantID)
	if err != nil {
		return nil, &cperrors.InternalError{Message: fmt.Sprintf("instance %s has malformed distant id %q", src.ID, src.DistantID)}
	}
	node, err := proxmox.ExecutionNode(ctx, s.proxmox, srcVMID)
	if err != nil {
		return nil, err
	}
	newVMID, err := s.proxmox.ClusterNextID(ctx)
	if err != nil {
		return nil, err
	}
	upid, err := s.proxmox.CloneVM(ctx, node, srcVMID, newVMID, true)
	if err != nil {
		return nil, err
	}
	if _, err := proxmox.WaitForTask(ctx, s.proxmox, node, upid); err != nil {
		return nil, err
	}

	var created *model.Instance
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		instance, err := s.instances.Create(ctx, tx, &model.Instance{
			ID:             id.NewInstanceID(),
			HypervisorID:   src.HypervisorID,
			ProjectID:      src.ProjectID,
			DistantID:      strconv.Itoa(newVMID),
			Name:           name,
			Status:         model.InstanceStaging,
			MaxCPUCores:    src.MaxCPUCores,
			MaxMemoryBytes: src.MaxMemoryBytes,
			MaxDiskBytes:   src.MaxDiskBytes,
		})
		if err != nil {
			return err
		}
		if err := s.enqueueAttachOperations(ctx, tx, instance, p, ""); err != nil {
			return err
		}
		created = instance
		return nil
	})
	if err != nil {
		s.destroyVM(ctx, node, newVMID)
		return nil, err
	}
	s.log.Info("cloned instance", "source", instanceID, "instance", created.ID, "by", p.DisplayName())
	return created, nil
}

// Start powers an instance on and moves it to Staging until the state
// machine observes it running.
func (s *InstanceService) Start(ctx context.Context, p identity.Principal, instanceID id.InstanceID) error {
	return s.power(ctx, p, instanceID, model.InstanceStaging, func(ctx context.Context, node string, vmID int) (proxmox.UPID, error) {
		return s.proxmox.StartVM(ctx, node, vmID)
	})
}

// Stop powers an instance off and moves it to Stopping until the state
// machine observes it stopped.
func (s *InstanceService) Stop(ctx context.Context, p identity.Principal, instanceID id.InstanceID) error {
	return s.power(ctx, p, instanceID, model.InstanceStopping, func(ctx context.Context, node string, vmID int) (proxmox.UPID, error) {
		return s.proxmox.StopVM(ctx, node, vmID)
	})
}

func (s *InstanceService) power(ctx context.Context, p identity.Principal, instanceID id.InstanceID, next model.InstanceStatus, op func(context.Context, string, int) (proxmox.UPID, error)) error {
	instance, err := s.instances.FindByID(ctx, s.db(), instanceID)
	if err != nil {
		return notFoundOr(err, "instance", instanceID.String())
	}
	if err := s.authorize(ctx, p, authz.PermOperateInstance, authz.TypeProject, instance.ProjectID.String()); err != nil {
		return err
	}
	vmID, node, err := s.locate(ctx, instance)
	if err != nil {
		return err
	}
	upid, err := op(ctx, node, vmID)
	if err != nil {
		return err
	}
	if _, err := proxmox.WaitForTask(ctx, s.proxmox, node, upid); err != nil {
		return err
	}
	return s.instances.UpdateStatus(ctx, s.db(), instanceID, next)
}

// UpdateSpec resizes an instance. Shrinking the disk is refused by the
// hypervisor and surfaces as an invalid request.
func (s *InstanceService) UpdateSpec(ctx context.Context, p identity.Principal, instanceID id.InstanceID, cpuCores int, memoryBytes, diskBytes int64) (*model.Instance, error) {
	instance, err := s.instances.FindByID(ctx, s.db(), instanceID)
	if err != nil {
		return nil, notFoundOr(err, "instance", instanceID.String())
	}
	if err := s.authorize(ctx, p, authz.PermOperateInstance, authz.TypeProject, instance.ProjectID.String()); err != nil {
		return nil, err
	}
	if err := validateInstanceSpec(instance.Name, cpuCores, memoryBytes, diskBytes); err != nil {
		return nil, err
	}
	vmID, node, err := s.locate(ctx, instance)
	if err != nil {
		return nil, err
	}
	if diskBytes > instance.MaxDiskBytes {
		if err := s.proxmox.ResizeDisk(ctx, node, vmID, "scsi0", sizeSpec(diskBytes)); err != nil {
			return nil, err
		}
	}
	if err := s.instances.UpdateSpec(ctx, s.db(), instanceID, cpuCores, memoryBytes, diskBytes); err != nil {
		return nil, err
	}
	return s.instances.FindByID(ctx, s.db(), instanceID)
}

// Delete tears an instance down: the VM, the snippet, its addresses, the
// row, and the outbox operations detaching it from the external planes.
func (s *InstanceService) Delete(ctx context.Context, p identity.Principal, instanceID id.InstanceID) error {
	instance, err := s.instances.FindByID(ctx, s.db(), instanceID)
	if err != nil {
		return notFoundOr(err, "instance", instanceID.String())
	}
	if err := s.authorize(ctx, p, authz.PermDeleteInstance, authz.TypeProject, instance.ProjectID.String()); err != nil {
		return err
	}

	vmID, node, err := s.locate(ctx, instance)
	if err == nil {
		if upid, stopErr := s.proxmox.StopVM(ctx, node, vmID); stopErr == nil {
			_, _ = proxmox.WaitForTask(ctx, s.proxmox, node, upid)
		} else if !proxmox.IsVmNotRunning(stopErr) {
			return stopErr
		}
		upid, err := s.proxmox.DeleteVM(ctx, node, vmID)
		if err != nil {
			return err
		}
		if _, err := proxmox.WaitForTask(ctx, s.proxmox, node, upid); err != nil {
			return err
		}
	} else if !proxmox.IsVmNotFound(err) {
		return err
	}

	if err := s.snippets.Remove(instanceID); err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.allocator.ReleaseByInstance(ctx, tx, instanceID); err != nil {
			return err
		}
		if err := s.instances.Delete(ctx, tx, instanceID); err != nil {
			return err
		}
		if _, err := s.queue.EnqueueDeleteRelationship(ctx, tx, authz.Tuple{
			ObjectType:  authz.TypeInstance,
			ObjectID:    instanceID.String(),
			Relation:    authz.RelationParent,
			SubjectType: authz.TypeProject,
			SubjectID:   instance.ProjectID.String(),
		}); err != nil {
			return err
		}
		agentInput, err := json.Marshal(operation.BastionAgentInput{InstanceID: instanceID.String()})
		if err != nil {
			return err
		}
		_, err = s.queue.Enqueue(ctx, tx, operation.NewOperation{
			OpType:       operation.BastionDeleteAgent,
			ResourceType: "instance",
			ResourceID:   instanceID.String(),
			Input:        agentInput,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info("deleted instance", "instance", instanceID, "by", p.DisplayName())
	return nil
}

// schedule picks the hypervisor hosting a new VM: the first online node of
// the organization's fleet, in listing order.
func (s *InstanceService) schedule(ctx context.Context, orgID id.OrganizationID) (*model.Hypervisor, string, error) {
	fleet, err := s.hypervisors.ListByOrganization(ctx, s.db(), orgID)
	if err != nil {
		return nil, "", err
	}
	if len(fleet) == 0 {
		return nil, "", cperrors.NewNotFound("hypervisor", "organization "+orgID.String())
	}

	resources, err := s.proxmox.ClusterResources(ctx, proxmox.ResourceKindNode)
	if err != nil {
		return nil, "", err
	}
	for _, r := range resources {
		if r.Online() {
			return &fleet[0], r.Node, nil
		}
	}
	return nil, "", &cperrors.InternalError{Message: "no online hypervisor node available"}
}

// locate resolves an instance's numeric VM id and current execution node.
func (s *InstanceService) locate(ctx context.Context, instance *model.Instance) (int, string, error) {
	vmID, err := strconv.Atoi(instance.DistantID)
	if err != nil {
		return 0, "", &cperrors.InternalError{Message: fmt.Sprintf("instance %s has malformed distant id %q", instance.ID, instance.DistantID)}
	}
	node, err := proxmox.ExecutionNode(ctx, s.proxmox, vmID)
	if err != nil {
		return 0, "", err
	}
	return vmID, node, nil
}

// destroyVM removes a VM during rollback, best effort.
func (s *InstanceService) destroyVM(ctx context.Context, node string, vmID int) {
	upid, err := s.proxmox.DeleteVM(ctx, node, vmID)
	if err != nil {
		s.log.Error(err, "could not destroy vm during rollback", "vmid", vmID, "node", node)
		return
	}
	if _, err := proxmox.WaitForTask(ctx, s.proxmox, node, upid); err != nil {
		s.log.Error(err, "vm destruction task failed during rollback", "vmid", vmID, "node", node)
	}
}

func validateInstanceSpec(name string, cpuCores int, memoryBytes, diskBytes int64) error {
	switch {
	case name == "":
		return &cperrors.InvalidInputError{Field: "name", Reason: "must not be empty"}
	case cpuCores < 1:
		return &cperrors.InvalidInputError{Field: "cpu_cores", Reason: "must be at least 1"}
	case memoryBytes < 128<<20:
		return &cperrors.InvalidInputError{Field: "memory_bytes", Reason: "must be at least 128 MiB"}
	case diskBytes < 1<<30:
		return &cperrors.InvalidInputError{Field: "disk_bytes", Reason: "must be at least 1 GiB"}
	}
	return nil
}

// sizeSpec renders a byte count as the hypervisor's size syntax, rounded
// up to whole gibibytes.
func sizeSpec(bytes int64) string {
	gib := (bytes + (1 << 30) - 1) >> 30
	return fmt.Sprintf("%dG", gib)
}

// prefixLenOf extracts the prefix length of a CIDR, e.g. "24" from
// "10.0.0.0/24".
func prefixLenOf(cidr string) string {
	for i := len(cidr) - 1; i >= 0; i-- {
		if cidr[i] == '/' {
			return cidr[i+1:]
		}
	}
	return "32"
}
