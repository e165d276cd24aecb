// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"

	"github.com/meridian-cloud/meridian/pkg/ipam"
	"github.com/meridian-cloud/meridian/pkg/metrics"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/proxmox"
	"github.com/meridian-cloud/meridian/pkg/store"
)

// DefaultStatePollInterval is the cadence of the instance state machine.
const DefaultStatePollInterval = 5 * time.Second

// StateMachine reconciles transient instance statuses against the
// hypervisor and keeps usage figures fresh. Rows are claimed with a
// skip-locked select so multiple replicas never fight over an instance.
type StateMachine struct {
	store     *store.Store
	proxmox   proxmox.API
	allocator *ipam.Allocator
	metrics   *metrics.Metrics
	log       logr.Logger
	interval  time.Duration

	instances model.InstanceRepository
}

// NewStateMachine assembles the poller. A non-positive interval selects
// DefaultStatePollInterval.
func NewStateMachine(st *store.Store, api proxmox.API, allocator *ipam.Allocator, m *metrics.Metrics, log logr.Logger, interval time.Duration) *StateMachine {
	if interval <= 0 {
		interval = DefaultStatePollInterval
	}
	return &StateMachine{
		store:     st,
		proxmox:   api,
		allocator: allocator,
		metrics:   m,
		log:       log.WithName("statemachine"),
		interval:  interval,
	}
}

// Run blocks until ctx is cancelled.
func (sm *StateMachine) Run(ctx context.Context) error {
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		sm.step(ctx)
		sm.refreshUsage(ctx)
	}
}

// step advances transient instances one at a time until none are left.
func (sm *StateMachine) step(ctx context.Context) {
	for ctx.Err() == nil {
		advanced := false
		err := sm.store.WithTx(ctx, func(tx *sqlx.Tx) error {
			instance, err := sm.instances.ClaimTransient(ctx, tx)
			if err != nil {
				if store.IsNoRows(err) {
					return nil
				}
				return err
			}
			advanced = true
			return sm.advance(ctx, tx, instance)
		})
		if err != nil {
			if ctx.Err() == nil {
				sm.log.Error(err, "state machine step failed")
			}
			return
		}
		if !advanced {
			return
		}
	}
}

// advance inspects the hypervisor and moves one claimed instance along.
func (sm *StateMachine) advance(ctx context.Context, tx *sqlx.Tx, instance *model.Instance) error {
	log := sm.log.WithValues("instance", instance.ID, "status", instance.Status)

	vmID, err := strconv.Atoi(instance.DistantID)
	if err != nil {
		log.Error(err, "malformed distant id, marking instance unknown", "distantID", instance.DistantID)
		return sm.instances.UpdateStatus(ctx, tx, instance.ID, model.InstanceUnknown)
	}
	node, err := proxmox.ExecutionNode(ctx, sm.proxmox, vmID)
	if proxmox.IsVmNotFound(err) {
		if instance.Status == model.InstanceDeleting {
			if err := sm.allocator.ReleaseByInstance(ctx, tx, instance.ID); err != nil {
				return err
			}
			log.Info("instance gone from hypervisor, removing row")
			return sm.instances.Delete(ctx, tx, instance.ID)
		}
		log.Info("backing vm disappeared, marking instance unknown")
		return sm.instances.UpdateStatus(ctx, tx, instance.ID, model.InstanceUnknown)
	}
	if err != nil {
		return err
	}

	status, err := sm.proxmox.VMStatus(ctx, node, vmID)
	if err != nil {
		return err
	}

	switch instance.Status {
	case model.InstanceProvisioning:
		// Freshly created guests sit stopped until we boot them.
		if status.Status == "stopped" {
			upid, err := sm.proxmox.StartVM(ctx, node, vmID)
			if err != nil {
				return err
			}
			if _, err := proxmox.WaitForTask(ctx, sm.proxmox, node, upid); err != nil {
				return err
			}
			return sm.instances.UpdateStatus(ctx, tx, instance.ID, model.InstanceStaging)
		}
		if status.Status == "running" {
			return sm.instances.UpdateStatus(ctx, tx, instance.ID, model.InstanceStaging)
		}
	case model.InstanceStaging:
		if status.Status == "running" && status.Uptime > 0 {
			log.Info("instance is running")
			return sm.instances.UpdateStatus(ctx, tx, instance.ID, model.InstanceRunning)
		}
	case model.InstanceStopping:
		if status.Status == "stopped" {
			log.Info("instance is stopped")
			return sm.instances.UpdateStatus(ctx, tx, instance.ID, model.InstanceStopped)
		}
	case model.InstanceDeleting:
		// Waits for the VM to disappear; handled above once it does.
	}
	return nil
}

// refreshUsage copies live resource figures from the cluster listing onto
// the instance rows and refreshes the per-status gauge.
func (sm *StateMachine) refreshUsage(ctx context.Context) {
	resources, err := sm.proxmox.ClusterResources(ctx, proxmox.ResourceKindVM)
	if err != nil {
		if ctx.Err() == nil {
			sm.log.Error(err, "could not list cluster vms")
		}
		return
	}
	byDistantID := make(map[string]proxmox.ClusterResource, len(resources))
	for _, r := range resources {
		byDistantID[strconv.Itoa(r.VMID)] = r
	}

	var rows []model.Instance
	err = sm.store.DB().SelectContext(ctx, &rows,
		`SELECT id, distant_id, status FROM instances`)
	if err != nil {
		if ctx.Err() == nil {
			sm.log.Error(err, "could not list instances for usage refresh")
		}
		return
	}

	counts := make(map[model.InstanceStatus]int)
	for _, instance := range rows {
		counts[instance.Status]++
		r, ok := byDistantID[instance.DistantID]
		if !ok || instance.Status != model.InstanceRunning {
			continue
		}
		err := sm.instances.UpdateUsage(ctx, sm.store.DB(), instance.ID,
			r.CPU*100, r.Mem, r.Disk)
		if err != nil && ctx.Err() == nil {
			sm.log.Error(err, "could not update instance usage", "instance", instance.ID)
		}
	}

	sm.metrics.InstancesByStatus.Reset()
	for status, n := range counts {
		sm.metrics.InstancesByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
