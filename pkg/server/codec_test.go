// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("jsonCodec", func() {
	codec := jsonCodec{}

	It("names the json content subtype", func() {
		Expect(codec.Name()).To(Equal("json"))
	})

	It("round-trips a wire message", func() {
		data, err := codec.Marshal(&CreateOrganizationRequest{Name: "Acme", Slug: "acme"})
		Expect(err).NotTo(HaveOccurred())

		var decoded CreateOrganizationRequest
		Expect(codec.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.Name).To(Equal("Acme"))
		Expect(decoded.Slug).To(Equal("acme"))
	})

	It("accepts an empty payload as the zero message", func() {
		var decoded ListOrganizationsRequest
		Expect(codec.Unmarshal(nil, &decoded)).To(Succeed())
	})

	It("rejects malformed payloads", func() {
		var decoded CreateOrganizationRequest
		Expect(codec.Unmarshal([]byte(`{`), &decoded)).NotTo(Succeed())
	})
})
