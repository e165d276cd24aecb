// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"time"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// InstanceStatus is the lifecycle state of a virtual machine.
type InstanceStatus string

// Instance lifecycle states.
const (
	InstanceProvisioning InstanceStatus = "Provisioning"
	InstanceStaging      InstanceStatus = "Staging"
	InstanceRunning      InstanceStatus = "Running"
	InstanceStopping     InstanceStatus = "Stopping"
	InstanceStopped      InstanceStatus = "Stopped"
	InstanceDeleting     InstanceStatus = "Deleting"
	InstanceUnknown      InstanceStatus = "Unknown"
)

// IsTransient reports whether the status is advanced by the state machine
// poller rather than by user requests.
func (s InstanceStatus) IsTransient() bool {
	switch s {
	case InstanceProvisioning, InstanceStaging, InstanceStopping, InstanceDeleting:
		return true
	}
	return false
}

// Instance is a virtual machine managed on a hypervisor. DistantID is the
// opaque identifier the hypervisor knows the VM by.
type Instance struct {
	ID               id.InstanceID   `db:"id"`
	HypervisorID     id.HypervisorID `db:"hypervisor_id"`
	ProjectID        id.ProjectID    `db:"project_id"`
	DistantID        string          `db:"distant_id"`
	IPv4             *string         `db:"ip_v4"`
	Name             string          `db:"name"`
	Status           InstanceStatus  `db:"status"`
	MaxCPUCores      int             `db:"max_cpu_cores"`
	CPUUsagePercent  float64         `db:"cpu_usage_percent"`
	MaxMemoryBytes   int64           `db:"max_memory_bytes"`
	MemoryUsageBytes int64           `db:"memory_usage_bytes"`
	MaxDiskBytes     int64           `db:"max_disk_bytes"`
	DiskUsageBytes   int64           `db:"disk_usage_bytes"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// InstanceRepository provides CRUD over instances plus the transient-state
// claim used by the state machine poller.
type InstanceRepository struct{}

const instanceColumns = `id, hypervisor_id, project_id, distant_id, ip_v4, name, status,
	max_cpu_cores, cpu_usage_percent, max_memory_bytes, memory_usage_bytes,
	max_disk_bytes, disk_usage_bytes, created_at, updated_at`

// Create inserts the instance and returns the hydrated row.
func (InstanceRepository) Create(ctx context.Context, q Querier, in *Instance) (*Instance, error) {
	var out Instance
	err := get(ctx, q, &out, `
		INSERT INTO instances (id, hypervisor_id, project_id, distant_id, ip_v4, name, status,
			max_cpu_cores, max_memory_bytes, max_disk_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+instanceColumns,
		in.ID, in.HypervisorID, in.ProjectID, in.DistantID, in.IPv4, in.Name, in.Status,
		in.MaxCPUCores, in.MaxMemoryBytes, in.MaxDiskBytes)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateStatus moves the instance to the given status.
func (InstanceRepository) UpdateStatus(ctx context.Context, q Querier, instanceID id.InstanceID, status InstanceStatus) error {
	return exec(ctx, q, `UPDATE instances SET status = $2, updated_at = now() WHERE id = $1`, instanceID, status)
}

// UpdateUsage rewrites the scraped usage counters.
func (InstanceRepository) UpdateUsage(ctx context.Context, q Querier, instanceID id.InstanceID, cpuPercent float64, memoryBytes, diskBytes int64) error {
	return exec(ctx, q, `
		UPDATE instances
		SET cpu_usage_percent = $2, memory_usage_bytes = $3, disk_usage_bytes = $4, updated_at = now()
		WHERE id = $1`,
		instanceID, cpuPercent, memoryBytes, diskBytes)
}

// UpdateSpec rewrites the resource limits after a reconfiguration.
func (InstanceRepository) UpdateSpec(ctx context.Context, q Querier, instanceID id.InstanceID, cpuCores int, memoryBytes, diskBytes int64) error {
	return exec(ctx, q, `
		UPDATE instances
		SET max_cpu_cores = $2, max_memory_bytes = $3, max_disk_bytes = $4, updated_at = now()
		WHERE id = $1`,
		instanceID, cpuCores, memoryBytes, diskBytes)
}

// FindByID returns the instance with the given id.
func (InstanceRepository) FindByID(ctx context.Context, q Querier, instanceID id.InstanceID) (*Instance, error) {
	var out Instance
	if err := get(ctx, q, &out, `SELECT `+instanceColumns+` FROM instances WHERE id = $1`, instanceID); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByDistantID returns the instance the hypervisor knows by distantID.
func (InstanceRepository) FindByDistantID(ctx context.Context, q Querier, hvID id.HypervisorID, distantID string) (*Instance, error) {
	var out Instance
	err := get(ctx, q, &out, `SELECT `+instanceColumns+` FROM instances WHERE hypervisor_id = $1 AND distant_id = $2`, hvID, distantID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByProject returns all instances of a project.
func (InstanceRepository) ListByProject(ctx context.Context, q Querier, projectID id.ProjectID) ([]Instance, error) {
	var out []Instance
	err := selectAll(ctx, q, &out, `SELECT `+instanceColumns+` FROM instances WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByVPC returns the instances holding an address on any vnet of the
// VPC, the guests a firewall sync has to reach.
func (InstanceRepository) ListByVPC(ctx context.Context, q Querier, vpcID id.VPCID) ([]Instance, error) {
	var out []Instance
	err := selectAll(ctx, q, &out, `
		SELECT `+instanceColumns+`
		FROM instances
		WHERE id IN (
			SELECT a.instance_id
			FROM ip_allocations a
			JOIN vnets v ON v.id = a.vnet_id
			WHERE v.vpc_id = $1 AND a.instance_id IS NOT NULL)
		ORDER BY created_at`, vpcID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByHypervisor returns all instances placed on a hypervisor.
func (InstanceRepository) ListByHypervisor(ctx context.Context, q Querier, hvID id.HypervisorID) ([]Instance, error) {
	var out []Instance
	err := selectAll(ctx, q, &out, `SELECT `+instanceColumns+` FROM instances WHERE hypervisor_id = $1 ORDER BY created_at`, hvID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimTransient locks and returns the oldest instance in a transient
// status, skipping rows held by other pollers. Returns store.IsNoRows(err)
// when nothing is claimable. Must run inside a transaction; the lock is
// released on commit or rollback.
func (InstanceRepository) ClaimTransient(ctx context.Context, q Querier) (*Instance, error) {
	var out Instance
	err := get(ctx, q, &out, `
		SELECT `+instanceColumns+`
		FROM instances
		WHERE status IN ('Provisioning', 'Staging', 'Stopping', 'Deleting')
		ORDER BY updated_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the instance row. Only called after the hypervisor has
// acknowledged deletion of the backing VM.
func (InstanceRepository) Delete(ctx context.Context, q Querier, instanceID id.InstanceID) error {
	return exec(ctx, q, `DELETE FROM instances WHERE id = $1`, instanceID)
}
