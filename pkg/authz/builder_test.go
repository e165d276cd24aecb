// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package authz_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/cperrors"
)

var _ = Describe("Check builder", func() {
	var client *authz.FakeClient

	BeforeEach(func() {
		client = authz.NewFakeClient()
	})

	It("allows when the policy server allows", func() {
		err := authz.Check(client).
			Subject(authz.TypeUser, "u1").
			Permission(authz.PermCreateInstance).
			Object(authz.TypeProject, "p1").
			Allowed(context.Background())
		Expect(err).NotTo(HaveOccurred())
	})

	It("translates a denial into ForbiddenError", func() {
		client.AllowAll = false

		err := authz.Check(client).
			Subject(authz.TypeUser, "u1").
			Permission(authz.PermCreateInstance).
			Object(authz.TypeProject, "p1").
			Allowed(context.Background())

		var forbidden *cperrors.ForbiddenError
		Expect(errors.As(err, &forbidden)).To(BeTrue())
		Expect(forbidden.Permission).To(Equal(authz.PermCreateInstance))
		Expect(forbidden.Resource).To(Equal("project:p1"))
	})

	It("consults stored tuples when not allowing everything", func() {
		client.AllowAll = false
		Expect(client.WriteTuple(context.Background(), authz.Tuple{
			ObjectType:  authz.TypeOrganization,
			ObjectID:    "org1",
			Relation:    authz.PermViewOrganization,
			SubjectType: authz.TypeUser,
			SubjectID:   "u1",
		})).To(Succeed())

		decision, err := authz.Check(client).
			Subject(authz.TypeUser, "u1").
			Permission(authz.PermViewOrganization).
			Object(authz.TypeOrganization, "org1").
			Do(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(decision).To(Equal(authz.Allowed))
	})
})

var _ = Describe("Tuple", func() {
	It("renders the relationship form", func() {
		t := authz.Tuple{
			ObjectType:  authz.TypeOrganization,
			ObjectID:    "org1",
			Relation:    authz.RelationMember,
			SubjectType: authz.TypeUser,
			SubjectID:   "u1",
		}
		Expect(t.String()).To(Equal("organization:org1#member@user:u1"))
	})
})

var _ = Describe("FakeClient bookkeeping", func() {
	It("records writes and deletes in order", func() {
		client := authz.NewFakeClient()
		tuple := authz.Tuple{ObjectType: "project", ObjectID: "p1", Relation: "parent", SubjectType: "organization", SubjectID: "o1"}

		Expect(client.WriteTuple(context.Background(), tuple)).To(Succeed())
		Expect(client.DeleteTuple(context.Background(), tuple)).To(Succeed())

		Expect(client.Writes()).To(Equal([]authz.Tuple{tuple}))
		Expect(client.Deletes()).To(Equal([]authz.Tuple{tuple}))
		Expect(client.Tuples()).To(BeEmpty())
	})
})
