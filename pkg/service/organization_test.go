// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/ipam"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/operation"
	"github.com/meridian-cloud/meridian/pkg/proxmox"
	"github.com/meridian-cloud/meridian/pkg/store"
)

// testEnv wires the services over sqlmock and the in-memory backends.
type testEnv struct {
	mock     sqlmock.Sqlmock
	db       *sqlx.DB
	authz    *authz.FakeClient
	proxmox  *proxmox.Fake
	services *Services
}

func newTestEnv() *testEnv {
	rawDB, mock, err := sqlmock.New()
	Expect(err).NotTo(HaveOccurred())

	db := sqlx.NewDb(rawDB, "sqlmock")
	st := store.NewFromDB(db, logr.Discard())
	authzClient := authz.NewFakeClient()
	pve := proxmox.NewFake()

	services := New(Deps{
		Store:     st,
		Authz:     authzClient,
		Queue:     operation.NewQueue(st, logr.Discard()),
		Allocator: ipam.New(st, logr.Discard()),
		Proxmox:   pve,
		Snippets:  NewSnippetStore(GinkgoT().TempDir(), "local"),
		Log:       logr.Discard(),
	})
	return &testEnv{mock: mock, db: db, authz: authzClient, proxmox: pve, services: services}
}

func (e *testEnv) close() {
	Expect(e.mock.ExpectationsWereMet()).To(Succeed())
	_ = e.db.Close()
}

func userPrincipal() identity.Principal {
	return identity.Principal{Kind: identity.KindUser, User: model.UserFixture()}
}

// expectEnqueue matches one operation insert with its worker notification.
func expectEnqueue(mock sqlmock.Sqlmock, opType operation.OpType) {
	backend, err := opType.BackendOf()
	Expect(err).NotTo(HaveOccurred())
	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO operations").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "op_type", "backend", "resource_type", "resource_id", "status", "input", "output",
			"error_code", "error_message", "attempt_count", "max_attempts", "next_retry_at", "idempotency_key",
			"created_at", "started_at", "completed_at", "updated_at",
		}).AddRow(
			id.NewOperationID().String(), string(opType), string(backend), "organization", "o1", "Pending", []byte(`{}`), nil,
			nil, nil, 0, 5, nil, nil,
			now, nil, nil, now,
		))
	mock.ExpectExec("pg_notify").WillReturnResult(sqlmock.NewResult(0, 1))
}

func organizationRow(org *model.Organization) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "slug", "parent_id", "created_at", "updated_at"}).
		AddRow(org.ID.String(), org.Name, org.Slug, nil, org.CreatedAt, org.UpdatedAt)
}

var _ = Describe("OrganizationService", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv()
	})

	AfterEach(func() {
		env.close()
	})

	Describe("List", func() {
		It("refuses anonymous callers", func() {
			_, err := env.services.Organizations.List(context.Background(), identity.Anonymous)
			Expect(errors.Is(err, cperrors.ErrUnauthenticated)).To(BeTrue())
		})
	})

	Describe("Create", func() {
		It("refuses anonymous callers", func() {
			_, err := env.services.Organizations.Create(context.Background(), identity.Anonymous, CreateOrganizationRequest{Name: "Acme", Slug: "acme"})
			Expect(errors.Is(err, cperrors.ErrUnauthenticated)).To(BeTrue())
		})

		It("requires name and slug", func() {
			_, err := env.services.Organizations.Create(context.Background(), userPrincipal(), CreateOrganizationRequest{})
			Expect(cperrors.IsInvalidInput(err)).To(BeTrue())
		})

		It("checks admin on the parent before creating a sub-organization", func() {
			env.authz.AllowAll = false
			parentID := id.NewOrganizationID()

			_, err := env.services.Organizations.Create(context.Background(), userPrincipal(), CreateOrganizationRequest{
				Name:     "Sub",
				Slug:     "sub",
				ParentID: &parentID,
			})
			Expect(cperrors.IsForbidden(err)).To(BeTrue())
		})

		It("inserts the row and queues the creator's relationships together", func() {
			org := model.OrganizationFixture()
			env.mock.ExpectBegin()
			env.mock.ExpectQuery("INSERT INTO organizations").
				WillReturnRows(organizationRow(org))
			expectEnqueue(env.mock, operation.AuthzWriteRel) // owner
			expectEnqueue(env.mock, operation.AuthzWriteRel) // member
			env.mock.ExpectCommit()

			created, err := env.services.Organizations.Create(context.Background(), userPrincipal(), CreateOrganizationRequest{
				Name: org.Name,
				Slug: org.Slug,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Slug).To(Equal(org.Slug))
		})
	})
})
