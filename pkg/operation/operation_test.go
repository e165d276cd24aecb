// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package operation_test

import (
	"github.com/jmoiron/sqlx/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/operation"
)

var _ = Describe("Operation", func() {
	Describe("BackendOf", func() {
		It("maps every operation type to its backend", func() {
			expected := map[operation.OpType]operation.Backend{
				operation.AuthzWriteRel:           operation.BackendAuthz,
				operation.AuthzDeleteRel:          operation.BackendAuthz,
				operation.VpnInviteUser:           operation.BackendVpn,
				operation.VpnRemoveUser:           operation.BackendVpn,
				operation.VpnUpdateUser:           operation.BackendVpn,
				operation.BastionCreateAgent:      operation.BackendBastion,
				operation.BastionDeleteAgent:      operation.BackendBastion,
				operation.BastionCreateConnection: operation.BackendBastion,
				operation.BastionDeleteConnection: operation.BackendBastion,
				operation.K8sGrantNs:              operation.BackendK8s,
				operation.K8sRevokeNs:             operation.BackendK8s,
			}
			for opType, backend := range expected {
				got, err := opType.BackendOf()
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(backend), "for %s", opType)
			}
		})

		It("rejects unknown types", func() {
			_, err := operation.OpType("FrobnicateWidget").BackendOf()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Status", func() {
		It("marks exactly the completed states terminal", func() {
			Expect(operation.StatusSucceeded.IsTerminal()).To(BeTrue())
			Expect(operation.StatusFailed.IsTerminal()).To(BeTrue())
			Expect(operation.StatusCancelled.IsTerminal()).To(BeTrue())
			Expect(operation.StatusPending.IsTerminal()).To(BeFalse())
			Expect(operation.StatusRunning.IsTerminal()).To(BeFalse())
		})
	})

	Describe("names", func() {
		It("round-trips through the wire name", func() {
			opID := id.NewOperationID()
			op := &operation.Operation{ID: opID}
			Expect(op.Name()).To(Equal("operations/" + opID.String()))

			parsed, err := operation.ParseName(op.Name())
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(opID))
		})

		It("rejects names without the prefix as caller input", func() {
			_, err := operation.ParseName("tasks/123")
			Expect(cperrors.IsInvalidInput(err)).To(BeTrue())
		})

		It("rejects a bare prefix as caller input", func() {
			_, err := operation.ParseName("operations/")
			Expect(cperrors.IsInvalidInput(err)).To(BeTrue())
		})
	})

	Describe("DecodeInput", func() {
		It("unmarshals the stored document", func() {
			op := &operation.Operation{
				ID:    id.NewOperationID(),
				Input: types.JSONText(`{"namespace":"project-x","user_email":"jane@example.com"}`),
			}
			var input operation.K8sNsInput
			Expect(op.DecodeInput(&input)).To(Succeed())
			Expect(input.Namespace).To(Equal("project-x"))
			Expect(input.UserEmail).To(Equal("jane@example.com"))
		})

		It("reports malformed input with the operation name", func() {
			op := &operation.Operation{ID: id.NewOperationID(), Input: types.JSONText(`{`)}
			err := op.DecodeInput(&struct{}{})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(op.Name()))
		})
	})
})
