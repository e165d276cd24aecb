// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
)

var _ = Describe("toStatus", func() {
	It("passes a nil error through", func() {
		Expect(toStatus(nil)).To(Succeed())
	})

	It("keeps an already-translated status untouched", func() {
		original := status.Error(codes.ResourceExhausted, "quota spent")
		Expect(toStatus(original)).To(Equal(original))
	})

	DescribeTable("maps error families onto codes",
		func(err error, expected codes.Code) {
			translated := toStatus(err)
			Expect(status.Code(translated)).To(Equal(expected))
		},
		Entry("missing credential", cperrors.ErrUnauthenticated, codes.Unauthenticated),
		Entry("missing header", cperrors.ErrMissingAuthorizationHeader, codes.Unauthenticated),
		Entry("malformed bearer token", cperrors.ErrMalformedBearerToken, codes.Unauthenticated),
		Entry("unregistered user", &cperrors.UserNotRegisteredError{Email: "jane@example.com"}, codes.Unauthenticated),
		Entry("denied permission", &cperrors.ForbiddenError{Permission: "view", Resource: "organization:o1"}, codes.PermissionDenied),
		Entry("unknown resource", cperrors.NewNotFound("instance", "web-1"), codes.NotFound),
		Entry("invalid field", &cperrors.InvalidInputError{Field: "name", Reason: "empty"}, codes.InvalidArgument),
		Entry("taken slug", &cperrors.SlugAlreadyExistsError{Slug: "acme"}, codes.InvalidArgument),
		Entry("bad CIDR", &cperrors.InvalidCidrError{Cidr: "banana", Reason: "not a CIDR"}, codes.InvalidArgument),
		Entry("malformed identifier", &id.MalformedIDError{Kind: "project", Value: "xyz"}, codes.InvalidArgument),
		Entry("vpc with vnets", &cperrors.VpcHasVnetsError{VPC: "v1"}, codes.FailedPrecondition),
		Entry("terminal operation cancel", &cperrors.OperationNotCancellableError{Name: "operations/x", Status: "Succeeded"}, codes.FailedPrecondition),
		Entry("database noise", &cperrors.DatabaseError{Cause: errors.New("broken pipe")}, codes.Internal),
		Entry("anything else", errors.New("boom"), codes.Internal),
	)

	It("preserves the message verbatim", func() {
		err := cperrors.NewNotFound("instance", "web-1")
		translated := toStatus(err)
		st, ok := status.FromError(translated)
		Expect(ok).To(BeTrue())
		Expect(st.Message()).To(Equal(err.Error()))
	})

	It("translates wrapped domain errors", func() {
		wrapped := fmt.Errorf("creating instance: %w", &cperrors.NoAvailableIPsError{VNet: "vn1"})
		Expect(status.Code(toStatus(wrapped))).To(Equal(codes.InvalidArgument))
	})
})
