// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package cperrors_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
)

var _ = Describe("Error taxonomy", func() {
	Describe("IsNotFound", func() {
		It("matches NotFoundError, also when wrapped", func() {
			err := cperrors.NewNotFound("instance", "web-1")
			Expect(cperrors.IsNotFound(err)).To(BeTrue())
			Expect(cperrors.IsNotFound(fmt.Errorf("looking up: %w", err))).To(BeTrue())
		})

		It("does not match other errors", func() {
			Expect(cperrors.IsNotFound(errors.New("boom"))).To(BeFalse())
			Expect(cperrors.IsNotFound(nil)).To(BeFalse())
		})
	})

	Describe("IsForbidden", func() {
		It("matches ForbiddenError", func() {
			err := &cperrors.ForbiddenError{Permission: "create_instance", Resource: "project:p1"}
			Expect(cperrors.IsForbidden(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("create_instance"))
		})

		It("does not claim unauthenticated sentinels", func() {
			Expect(cperrors.IsForbidden(cperrors.ErrUnauthenticated)).To(BeFalse())
		})
	})

	Describe("IsInvalidInput", func() {
		It("covers the whole validation family", func() {
			for _, err := range []error{
				&cperrors.InvalidInputError{Field: "name", Reason: "empty"},
				&cperrors.InvalidCidrError{Cidr: "banana", Reason: "not a CIDR"},
				&cperrors.SlugAlreadyExistsError{Slug: "acme"},
				&cperrors.IPAlreadyInUseError{Address: "10.0.0.5"},
				&cperrors.IPNotInRangeError{Address: "192.168.0.1", Subnet: "10.0.0.0/24"},
				&cperrors.NoAvailableIPsError{VNet: "vn1"},
			} {
				Expect(cperrors.IsInvalidInput(err)).To(BeTrue(), "for %T", err)
			}
		})

		It("does not claim conflicts", func() {
			Expect(cperrors.IsInvalidInput(&cperrors.VpcHasVnetsError{VPC: "v1"})).To(BeFalse())
		})
	})

	Describe("IsConflict", func() {
		It("covers the deletion-refusal family", func() {
			for _, err := range []error{
				&cperrors.VpcHasVnetsError{VPC: "v1"},
				&cperrors.VnetHasAddressesError{VNet: "vn1"},
				&cperrors.NetworkHasAttachedInstancesError{Network: "vn1"},
			} {
				Expect(cperrors.IsConflict(err)).To(BeTrue(), "for %T", err)
			}
		})

		It("matches through wrapping", func() {
			wrapped := fmt.Errorf("deleting: %w", &cperrors.VnetHasAddressesError{VNet: "vn1"})
			Expect(cperrors.IsConflict(wrapped)).To(BeTrue())
		})
	})

	Describe("wrapping errors", func() {
		It("exposes the cause through Unwrap", func() {
			cause := errors.New("connection refused")
			err := &cperrors.AuthorizationServerError{Cause: cause}
			Expect(errors.Is(err, cause)).To(BeTrue())

			dbErr := &cperrors.DatabaseError{Cause: cause}
			Expect(errors.Is(dbErr, cause)).To(BeTrue())
		})
	})
})
