// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"os"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/operation"
	"github.com/meridian-cloud/meridian/pkg/proxmox"
)

func projectRow(p *model.Project) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "organization_id", "created_at", "updated_at"}).
		AddRow(p.ID.String(), p.Name, p.OrganizationID.String(), p.CreatedAt, p.UpdatedAt)
}

func vnetRow(v *model.VNet) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "vpc_id", "name", "vnet_bridge_id", "subnet", "gateway", "dhcp_enabled", "dns_servers", "state", "created_at", "updated_at"}).
		AddRow(v.ID.String(), v.VpcID.String(), v.Name, v.VnetBridgeID, v.Subnet, v.Gateway, v.DhcpEnabled, "{}", string(v.State), v.CreatedAt, v.UpdatedAt)
}

func vpcRow(v *model.VPC) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "slug", "organization_id", "region", "sdn_zone_id", "vxlan_tag", "state", "mtu", "created_at", "updated_at"}).
		AddRow(v.ID.String(), v.Name, v.Slug, v.OrganizationID.String(), v.Region, v.SdnZoneID, v.VxlanTag, string(v.State), v.MTU, v.CreatedAt, v.UpdatedAt)
}

func hypervisorRow(hv *model.Hypervisor) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "zone_id", "organization_id", "url", "auth_token", "storage_name", "created_at", "updated_at"}).
		AddRow(hv.ID.String(), hv.ZoneID.String(), hv.OrganizationID.String(), hv.URL, hv.AuthToken, hv.StorageName, hv.CreatedAt, hv.UpdatedAt)
}

var _ = Describe("InstanceService", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv()
	})

	AfterEach(func() {
		env.close()
	})

	Describe("Create", func() {
		var (
			org     *model.Organization
			project *model.Project
			vpc     *model.VPC
			vnet    *model.VNet
			hv      *model.Hypervisor
			request CreateInstanceRequest
		)

		BeforeEach(func() {
			org = model.OrganizationFixture()
			project = model.ProjectFixture(func(p *model.Project) { p.OrganizationID = org.ID })
			vpc = model.VPCFixture(func(v *model.VPC) { v.OrganizationID = org.ID })
			vnet = model.VNetFixture(func(v *model.VNet) { v.VpcID = vpc.ID })
			hv = model.HypervisorFixture(func(h *model.Hypervisor) { h.OrganizationID = org.ID })
			request = CreateInstanceRequest{
				ProjectID:   project.ID,
				VNetID:      vnet.ID,
				Name:        "web-1",
				CPUCores:    2,
				MemoryBytes: 2 << 30,
				DiskBytes:   20 << 30,
				ImageVolume: "local:iso/debian-12.qcow2",
				UserData:    []byte("#cloud-config\n"),
			}
		})

		It("refuses a caller without create_instance on the project", func() {
			env.authz.AllowAll = false
			env.mock.ExpectQuery("FROM projects").WillReturnRows(projectRow(project))

			_, err := env.services.Instances.Create(context.Background(), userPrincipal(), request)
			Expect(cperrors.IsForbidden(err)).To(BeTrue())
		})

		It("validates the specification before touching the hypervisor", func() {
			env.mock.ExpectQuery("FROM projects").WillReturnRows(projectRow(project))

			bad := request
			bad.CPUCores = 0
			_, err := env.services.Instances.Create(context.Background(), userPrincipal(), bad)
			Expect(cperrors.IsInvalidInput(err)).To(BeTrue())
			Expect(env.proxmox.Calls).To(BeEmpty())
		})

		It("unwinds the snippet and the address when the hypervisor refuses the VM", func() {
			allocID := id.NewIPAllocationID()

			env.mock.ExpectQuery("FROM projects").WillReturnRows(projectRow(project))
			env.mock.ExpectQuery("FROM vnets").WillReturnRows(vnetRow(vnet))
			env.mock.ExpectQuery("FROM vpcs").WillReturnRows(vpcRow(vpc))
			env.mock.ExpectQuery("FROM hypervisors").WillReturnRows(hypervisorRow(hv))

			// address claim
			env.mock.ExpectBegin()
			env.mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
				WillReturnRows(sqlmock.NewRows([]string{"id", "address"}).AddRow(allocID.String(), "10.0.0.10"))
			env.mock.ExpectExec("^SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			env.mock.ExpectExec("UPDATE ip_allocations").WillReturnResult(sqlmock.NewResult(0, 1))
			env.mock.ExpectExec("RELEASE SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			env.mock.ExpectCommit()

			// rollback releases the claimed address
			env.mock.ExpectExec("UPDATE ip_allocations").WillReturnResult(sqlmock.NewResult(0, 1))

			refusal := errors.New("storage 'local-lvm' is full")
			env.proxmox.FailNext("CreateVM", refusal)

			_, err := env.services.Instances.Create(context.Background(), userPrincipal(), request)
			Expect(errors.Is(err, refusal)).To(BeTrue())

			// no snippet file and no VM may survive the failed create
			entries, readErr := os.ReadDir(env.services.Instances.snippets.dir)
			Expect(readErr).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
			Expect(env.proxmox.VMs).To(BeEmpty())
		})

		It("places the VM and commits the row with its attach operations", func() {
			allocID := id.NewIPAllocationID()
			instanceRows := sqlmock.NewRows([]string{
				"id", "hypervisor_id", "project_id", "distant_id", "ip_v4", "name", "status",
				"max_cpu_cores", "cpu_usage_percent", "max_memory_bytes", "memory_usage_bytes",
				"max_disk_bytes", "disk_usage_bytes", "created_at", "updated_at",
			}).AddRow(
				id.NewInstanceID().String(), hv.ID.String(), project.ID.String(), "100", "10.0.0.10", "web-1", "Provisioning",
				2, 0.0, int64(2<<30), int64(0), int64(20<<30), int64(0), vnet.CreatedAt, vnet.UpdatedAt,
			)

			env.mock.ExpectQuery("FROM projects").WillReturnRows(projectRow(project))
			env.mock.ExpectQuery("FROM vnets").WillReturnRows(vnetRow(vnet))
			env.mock.ExpectQuery("FROM vpcs").WillReturnRows(vpcRow(vpc))
			env.mock.ExpectQuery("FROM hypervisors").WillReturnRows(hypervisorRow(hv))

			env.mock.ExpectBegin()
			env.mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
				WillReturnRows(sqlmock.NewRows([]string{"id", "address"}).AddRow(allocID.String(), "10.0.0.10"))
			env.mock.ExpectExec("^SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			env.mock.ExpectExec("UPDATE ip_allocations").WillReturnResult(sqlmock.NewResult(0, 1))
			env.mock.ExpectExec("RELEASE SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			env.mock.ExpectCommit()

			env.mock.ExpectQuery("FROM security_rules").WillReturnRows(securityRuleRows())

			env.mock.ExpectBegin()
			env.mock.ExpectQuery("INSERT INTO instances").WillReturnRows(instanceRows)
			expectEnqueue(env.mock, operation.AuthzWriteRel)
			expectEnqueue(env.mock, operation.BastionCreateAgent)
			expectEnqueue(env.mock, operation.BastionCreateConnection)
			expectEnqueue(env.mock, operation.K8sGrantNs)
			env.mock.ExpectCommit()

			created, err := env.services.Instances.Create(context.Background(), userPrincipal(), request)
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Status).To(Equal(model.InstanceProvisioning))

			// the hypervisor holds the VM, resized and firewalled
			Expect(env.proxmox.Calls).To(ContainElement("CreateVM"))
			Expect(env.proxmox.Calls).To(ContainElement("ResizeDisk"))
			Expect(env.proxmox.Calls).To(ContainElement("EnableFirewall"))
			Expect(env.proxmox.VMs).To(HaveLen(1))
			Expect(env.proxmox.FirewallEnabled[100]).To(BeTrue())
		})
	})

	Describe("Start and Stop", func() {
		It("powers the VM on and hands the instance to the state machine", func() {
			instance := model.InstanceFixture(func(i *model.Instance) { i.Status = model.InstanceStopped })
			_, err := env.proxmox.CreateVM(context.Background(), "pve1", proxmox.VMConfig{VMID: 100})
			Expect(err).NotTo(HaveOccurred())

			env.mock.ExpectQuery("FROM instances").WillReturnRows(instanceRow(instance))
			env.mock.ExpectExec("UPDATE instances").WillReturnResult(sqlmock.NewResult(0, 1))

			Expect(env.services.Instances.Start(context.Background(), userPrincipal(), instance.ID)).To(Succeed())
			Expect(env.proxmox.Calls).To(ContainElement("StartVM"))
			Expect(env.proxmox.VMs[100].Status).To(Equal("running"))
		})

		It("reports a vanished VM instead of updating the row", func() {
			instance := model.InstanceFixture()
			env.mock.ExpectQuery("FROM instances").WillReturnRows(instanceRow(instance))

			err := env.services.Instances.Stop(context.Background(), userPrincipal(), instance.ID)
			Expect(proxmox.IsVmNotFound(err)).To(BeTrue())
		})
	})
})

func instanceRow(i *model.Instance) *sqlmock.Rows {
	var ip any
	if i.IPv4 != nil {
		ip = *i.IPv4
	}
	return sqlmock.NewRows([]string{
		"id", "hypervisor_id", "project_id", "distant_id", "ip_v4", "name", "status",
		"max_cpu_cores", "cpu_usage_percent", "max_memory_bytes", "memory_usage_bytes",
		"max_disk_bytes", "disk_usage_bytes", "created_at", "updated_at",
	}).AddRow(
		i.ID.String(), i.HypervisorID.String(), i.ProjectID.String(), i.DistantID, ip, i.Name, string(i.Status),
		i.MaxCPUCores, i.CPUUsagePercent, i.MaxMemoryBytes, i.MemoryUsageBytes,
		i.MaxDiskBytes, i.DiskUsageBytes, i.CreatedAt, i.UpdatedAt,
	)
}
