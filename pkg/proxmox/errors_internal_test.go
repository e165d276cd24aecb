// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package proxmox

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("classifyResponse", func() {
	idpHosts := map[string]struct{}{"sso.example.com": {}}

	It("recognizes the missing-agent body", func() {
		err := classifyResponse(500, http.Header{}, []byte("No QEMU guest agent configured\n"), idpHosts)
		Expect(err).To(BeAssignableToTypeOf(&MissingAgentError{}))
	})

	It("extracts the VM id from a missing-configuration body", func() {
		body := []byte("Configuration file 'nodes/pve1/qemu-server/123.conf' does not exist\n")
		err := classifyResponse(500, http.Header{}, body, idpHosts)
		Expect(err).To(BeAssignableToTypeOf(&VmNotFoundError{}))
		Expect(err.(*VmNotFoundError).VMID).To(Equal(123))
	})

	It("extracts the VM id from a not-running body", func() {
		err := classifyResponse(500, http.Header{}, []byte("VM 456 is not running\n"), idpHosts)
		Expect(err).To(BeAssignableToTypeOf(&VmNotRunningError{}))
		Expect(err.(*VmNotRunningError).VMID).To(Equal(456))
	})

	It("maps authentication failures", func() {
		err := classifyResponse(http.StatusUnauthorized, http.Header{}, nil, idpHosts)
		Expect(err).To(BeAssignableToTypeOf(&UnauthorizedError{}))
	})

	It("maps bad requests to InvalidError", func() {
		err := classifyResponse(http.StatusBadRequest, http.Header{}, []byte("parameter verification failed"), idpHosts)
		Expect(err).To(BeAssignableToTypeOf(&InvalidError{}))
	})

	It("distinguishes identity-provider redirects from stray ones", func() {
		guarded := http.Header{}
		guarded.Set("Location", "https://sso.example.com/login?rd=x")
		err := classifyResponse(302, guarded, nil, idpHosts)
		Expect(err).To(BeAssignableToTypeOf(&GuardedByIdpError{}))

		stray := http.Header{}
		stray.Set("Location", "https://elsewhere.example.org/")
		err = classifyResponse(302, stray, nil, idpHosts)
		Expect(err).To(BeAssignableToTypeOf(&UnexpectedRedirectError{}))
	})

	It("refuses to match a known first line with trailing content", func() {
		body := []byte("VM 456 is not running\nsome follow-up diagnostics")
		err := classifyResponse(500, http.Header{}, body, idpHosts)
		Expect(err).To(BeAssignableToTypeOf(&InternalError{}))

		body = []byte("No QEMU guest agent configured\nextra")
		err = classifyResponse(500, http.Header{}, body, idpHosts)
		Expect(err).To(BeAssignableToTypeOf(&InternalError{}))
	})

	It("leaves unmatched server noise as InternalError", func() {
		err := classifyResponse(500, http.Header{}, []byte("unexpected disk layout"), idpHosts)
		Expect(err).To(BeAssignableToTypeOf(&InternalError{}))
		Expect(err.(*InternalError).StatusCode).To(Equal(500))
	})
})
