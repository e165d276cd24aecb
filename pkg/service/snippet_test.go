// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/id"
)

var _ = Describe("SnippetStore", func() {
	var (
		dir        string
		snippets   *SnippetStore
		instanceID id.InstanceID
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		snippets = NewSnippetStore(dir, "local")
		instanceID = id.NewInstanceID()
	})

	It("writes the snippet and reads it back", func() {
		content := []byte("#cloud-config\nhostname: web-1\n")
		Expect(snippets.Write(instanceID, content)).To(Succeed())

		written, err := os.ReadFile(snippets.Path(instanceID))
		Expect(err).NotTo(HaveOccurred())
		Expect(written).To(Equal(content))
	})

	It("refuses to overwrite an existing snippet", func() {
		Expect(snippets.Write(instanceID, []byte("first"))).To(Succeed())
		Expect(snippets.Write(instanceID, []byte("second"))).NotTo(Succeed())

		written, err := os.ReadFile(snippets.Path(instanceID))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(written)).To(Equal("first"))
	})

	It("names files after the instance", func() {
		Expect(snippets.Path(instanceID)).To(Equal(filepath.Join(dir, instanceID.String()+".yaml")))
	})

	It("builds the hypervisor-side volume reference", func() {
		Expect(snippets.VolumeRef(instanceID)).To(Equal("user=local:snippets/" + instanceID.String() + ".yaml"))
	})

	It("removes the snippet", func() {
		Expect(snippets.Write(instanceID, []byte("data"))).To(Succeed())
		Expect(snippets.Remove(instanceID)).To(Succeed())
		_, err := os.Stat(snippets.Path(instanceID))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("treats removing a missing snippet as success", func() {
		Expect(snippets.Remove(instanceID)).To(Succeed())
	})
})
