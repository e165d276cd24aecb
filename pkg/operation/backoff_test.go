// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package operation_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/operation"
)

var _ = Describe("Backoff", func() {
	Describe("BackoffFor", func() {
		It("retries authz writes aggressively", func() {
			Expect(operation.BackoffFor(operation.AuthzWriteRel)).To(Equal(operation.AggressiveBackoff))
		})

		It("relaxes the rate-limited backends", func() {
			Expect(operation.BackoffFor(operation.VpnInviteUser)).To(Equal(operation.RelaxedBackoff))
			Expect(operation.BackoffFor(operation.BastionCreateAgent)).To(Equal(operation.RelaxedBackoff))
		})

		It("falls back to the default profile for unknown types", func() {
			Expect(operation.BackoffFor(operation.OpType("Mystery"))).To(Equal(operation.DefaultBackoff))
		})
	})

	Describe("Delay", func() {
		profile := operation.BackoffProfile{Base: time.Second, Max: 8 * time.Second, Jitter: 0.2}

		It("doubles per attempt within the jitter envelope", func() {
			for attempt, base := range map[int]time.Duration{
				1: 1 * time.Second,
				2: 2 * time.Second,
				3: 4 * time.Second,
			} {
				d := profile.Delay(attempt)
				Expect(d).To(BeNumerically(">=", base), "attempt %d", attempt)
				Expect(d).To(BeNumerically("<=", base*12/10), "attempt %d", attempt)
			}
		})

		It("caps at the maximum", func() {
			d := profile.Delay(10)
			Expect(d).To(BeNumerically(">=", 8*time.Second))
			Expect(d).To(BeNumerically("<=", 8*time.Second*12/10))
		})

		It("treats non-positive attempts as the first", func() {
			Expect(profile.Delay(0)).To(BeNumerically(">=", time.Second))
			Expect(profile.Delay(0)).To(BeNumerically("<=", time.Second*12/10))
		})
	})
})
