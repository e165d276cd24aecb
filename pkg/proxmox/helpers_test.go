// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package proxmox_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/proxmox"
)

var _ = Describe("UPID", func() {
	It("extracts the node", func() {
		Expect(proxmox.UPID("UPID:pve1:0001C2A3:qmstart:").Node()).To(Equal("pve1"))
	})

	It("returns empty for malformed identifiers", func() {
		Expect(proxmox.UPID("garbage").Node()).To(BeEmpty())
		Expect(proxmox.UPID("").Node()).To(BeEmpty())
	})
})

var _ = Describe("WaitForTask", func() {
	It("returns the terminal status of a finished task", func() {
		fake := proxmox.NewFake()
		upid, err := fake.StartVM(context.Background(), "pve1", 100)
		Expect(err).To(HaveOccurred()) // no such VM yet

		upid, err = fake.CreateVM(context.Background(), "pve1", proxmox.VMConfig{VMID: 100, Name: "web-1"})
		Expect(err).NotTo(HaveOccurred())

		status, err := proxmox.WaitForTask(context.Background(), fake, "pve1", upid)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.OK()).To(BeTrue())
	})

	It("propagates a poll failure that is not retryable", func() {
		fake := proxmox.NewFake()
		upid, err := fake.ApplySDN(context.Background())
		Expect(err).NotTo(HaveOccurred())

		fake.FailNext("TaskStatus", &proxmox.UnauthorizedError{})
		_, err = proxmox.WaitForTask(context.Background(), fake, "pve1", upid)
		Expect(err).To(HaveOccurred())
		var unauthorized *proxmox.UnauthorizedError
		Expect(errors.As(err, &unauthorized)).To(BeTrue())
	})
})

var _ = Describe("ExecutionNode", func() {
	It("finds the node owning a VM", func() {
		fake := proxmox.NewFake()
		_, err := fake.CreateVM(context.Background(), "pve2", proxmox.VMConfig{VMID: 321})
		Expect(err).NotTo(HaveOccurred())

		node, err := proxmox.ExecutionNode(context.Background(), fake, 321)
		Expect(err).NotTo(HaveOccurred())
		Expect(node).To(Equal("pve2"))
	})

	It("reports unknown VMs as not found", func() {
		fake := proxmox.NewFake()
		_, err := proxmox.ExecutionNode(context.Background(), fake, 999)
		Expect(proxmox.IsVmNotFound(err)).To(BeTrue())
	})
})

var _ = Describe("error predicates", func() {
	It("match their types through wrapping", func() {
		notFound := fmt.Errorf("starting: %w", &proxmox.VmNotFoundError{VMID: 100})
		Expect(proxmox.IsVmNotFound(notFound)).To(BeTrue())
		Expect(proxmox.IsVmNotRunning(notFound)).To(BeFalse())

		notRunning := &proxmox.VmNotRunningError{VMID: 100}
		Expect(proxmox.IsVmNotRunning(notRunning)).To(BeTrue())

		Expect(proxmox.IsRetryable(&proxmox.ConnectivityError{Cause: errors.New("timeout")})).To(BeTrue())
		Expect(proxmox.IsRetryable(&proxmox.InternalError{StatusCode: 500})).To(BeTrue())
		Expect(proxmox.IsRetryable(&proxmox.UnauthorizedError{})).To(BeFalse())
	})
})

var _ = Describe("ClusterResource", func() {
	It("reports node health", func() {
		Expect(proxmox.ClusterResource{Type: proxmox.ResourceKindNode, Status: "online"}.Online()).To(BeTrue())
		Expect(proxmox.ClusterResource{Type: proxmox.ResourceKindNode, Status: "offline"}.Online()).To(BeFalse())
		Expect(proxmox.ClusterResource{Type: proxmox.ResourceKindVM, Status: "online"}.Online()).To(BeFalse())
	})
})
