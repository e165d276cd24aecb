// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
)

var _ = Describe("instance spec validation", func() {
	It("accepts a sane specification", func() {
		Expect(validateInstanceSpec("web-1", 2, 2<<30, 20<<30)).To(Succeed())
	})

	DescribeTable("rejects out-of-range fields",
		func(name string, cpu int, mem, disk int64, field string) {
			err := validateInstanceSpec(name, cpu, mem, disk)
			var invalid *cperrors.InvalidInputError
			Expect(errors.As(err, &invalid)).To(BeTrue())
			Expect(invalid.Field).To(Equal(field))
		},
		Entry("empty name", "", 2, int64(2<<30), int64(20<<30), "name"),
		Entry("zero cores", "web-1", 0, int64(2<<30), int64(20<<30), "cpu_cores"),
		Entry("tiny memory", "web-1", 2, int64(64<<20), int64(20<<30), "memory_bytes"),
		Entry("tiny disk", "web-1", 2, int64(2<<30), int64(512<<20), "disk_bytes"),
	)
})

var _ = Describe("sizeSpec", func() {
	It("rounds up to whole gibibytes", func() {
		Expect(sizeSpec(1 << 30)).To(Equal("1G"))
		Expect(sizeSpec(1<<30 + 1)).To(Equal("2G"))
		Expect(sizeSpec(20 << 30)).To(Equal("20G"))
	})
})

var _ = Describe("prefixLenOf", func() {
	It("extracts the prefix length", func() {
		Expect(prefixLenOf("10.0.0.0/24")).To(Equal("24"))
		Expect(prefixLenOf("192.168.128.0/18")).To(Equal("18"))
	})

	It("falls back to a host route", func() {
		Expect(prefixLenOf("10.0.0.1")).To(Equal("32"))
	})
})

var _ = Describe("NamespaceFor", func() {
	It("derives the workload namespace from the project", func() {
		projectID := id.NewProjectID()
		Expect(NamespaceFor(projectID)).To(Equal("project-" + projectID.String()))
	})
})
