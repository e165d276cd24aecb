// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/meridian-cloud/meridian/pkg/ipam"
	"github.com/meridian-cloud/meridian/pkg/metrics"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/proxmox"
	"github.com/meridian-cloud/meridian/pkg/store"
)

func transientRow(instance *model.Instance) *sqlmock.Rows {
	var ip any
	if instance.IPv4 != nil {
		ip = *instance.IPv4
	}
	return sqlmock.NewRows([]string{
		"id", "hypervisor_id", "project_id", "distant_id", "ip_v4", "name", "status",
		"max_cpu_cores", "cpu_usage_percent", "max_memory_bytes", "memory_usage_bytes",
		"max_disk_bytes", "disk_usage_bytes", "created_at", "updated_at",
	}).AddRow(
		instance.ID.String(), instance.HypervisorID.String(), instance.ProjectID.String(),
		instance.DistantID, ip, instance.Name, string(instance.Status),
		instance.MaxCPUCores, instance.CPUUsagePercent, instance.MaxMemoryBytes,
		instance.MemoryUsageBytes, instance.MaxDiskBytes, instance.DiskUsageBytes,
		instance.CreatedAt, instance.UpdatedAt,
	)
}

var _ = Describe("StateMachine", func() {
	var (
		mock sqlmock.Sqlmock
		fake *proxmox.Fake
		sm   *StateMachine
	)

	BeforeEach(func() {
		rawDB, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		mock = m
		st := store.NewFromDB(sqlx.NewDb(rawDB, "sqlmock"), logr.Discard())
		fake = proxmox.NewFake()
		sm = NewStateMachine(st, fake, ipam.New(st, logr.Discard()), metrics.New(prometheus.NewRegistry()), logr.Discard(), 0)
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	// expectEmptyClaim is the trailing loop iteration that finds nothing.
	expectEmptyClaim := func() {
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()
	}

	Describe("step", func() {
		It("boots a freshly provisioned VM and moves the instance to Staging", func() {
			_, err := fake.CreateVM(context.Background(), "pve1", proxmox.VMConfig{VMID: 100})
			Expect(err).NotTo(HaveOccurred())

			instance := model.InstanceFixture() // Provisioning, distant id 100
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(transientRow(instance))
			mock.ExpectExec("UPDATE instances").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()
			expectEmptyClaim()

			sm.step(context.Background())

			Expect(fake.Calls).To(ContainElement("StartVM"))
			Expect(fake.VMs[100].Status).To(Equal("running"))
		})

		It("marks a Staging instance Running once the guest reports uptime", func() {
			_, err := fake.CreateVM(context.Background(), "pve1", proxmox.VMConfig{VMID: 100})
			Expect(err).NotTo(HaveOccurred())
			fake.VMs[100].Status = "running"
			fake.VMs[100].Uptime = 42

			instance := model.InstanceFixture(func(i *model.Instance) { i.Status = model.InstanceStaging })
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(transientRow(instance))
			mock.ExpectExec("UPDATE instances").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()
			expectEmptyClaim()

			sm.step(context.Background())
			Expect(fake.Calls).NotTo(ContainElement("StartVM"))
		})

		It("leaves a Staging instance alone while the guest is still booting", func() {
			_, err := fake.CreateVM(context.Background(), "pve1", proxmox.VMConfig{VMID: 100})
			Expect(err).NotTo(HaveOccurred())
			fake.VMs[100].Status = "running" // uptime still zero

			instance := model.InstanceFixture(func(i *model.Instance) { i.Status = model.InstanceStaging })
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(transientRow(instance))
			mock.ExpectCommit()
			expectEmptyClaim()

			sm.step(context.Background())
		})

		It("releases addresses and removes the row once a deleted VM is gone", func() {
			instance := model.InstanceFixture(func(i *model.Instance) { i.Status = model.InstanceDeleting })
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(transientRow(instance))
			mock.ExpectExec("UPDATE ip_allocations").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec("DELETE FROM instances").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()
			expectEmptyClaim()

			sm.step(context.Background())
		})

		It("marks an instance Unknown when its VM vanished outside deletion", func() {
			instance := model.InstanceFixture(func(i *model.Instance) { i.Status = model.InstanceStopping })
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(transientRow(instance))
			mock.ExpectExec("UPDATE instances").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()
			expectEmptyClaim()

			sm.step(context.Background())
		})

		It("marks an instance with a malformed hypervisor id Unknown without touching the cluster", func() {
			instance := model.InstanceFixture(func(i *model.Instance) { i.DistantID = "not-a-vmid" })
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WillReturnRows(transientRow(instance))
			mock.ExpectExec("UPDATE instances").WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()
			expectEmptyClaim()

			sm.step(context.Background())
			Expect(fake.Calls).To(BeEmpty())
		})

		It("does nothing when no instance is in a transient status", func() {
			expectEmptyClaim()
			sm.step(context.Background())
		})
	})

	Describe("refreshUsage", func() {
		It("copies cluster figures onto running instances and refreshes the gauge", func() {
			_, err := fake.CreateVM(context.Background(), "pve1", proxmox.VMConfig{VMID: 100})
			Expect(err).NotTo(HaveOccurred())
			fake.VMs[100].Status = "running"

			running := model.InstanceFixture(func(i *model.Instance) { i.Status = model.InstanceRunning })
			stopped := model.InstanceFixture(func(i *model.Instance) {
				i.Status = model.InstanceStopped
				i.DistantID = "101"
			})
			mock.ExpectQuery("FROM instances").WillReturnRows(
				sqlmock.NewRows([]string{"id", "distant_id", "status"}).
					AddRow(running.ID.String(), running.DistantID, string(running.Status)).
					AddRow(stopped.ID.String(), stopped.DistantID, string(stopped.Status)))
			mock.ExpectExec("UPDATE instances").WillReturnResult(sqlmock.NewResult(0, 1))

			sm.refreshUsage(context.Background())

			Expect(testutil.ToFloat64(sm.metrics.InstancesByStatus.WithLabelValues("Running"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(sm.metrics.InstancesByStatus.WithLabelValues("Stopped"))).To(Equal(1.0))
		})
	})
})
