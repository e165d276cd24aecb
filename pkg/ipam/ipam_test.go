// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package ipam_test

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/ipam"
	"github.com/meridian-cloud/meridian/pkg/store"
)

var _ = Describe("GenerateMAC", func() {
	It("uses the fixed vendor prefix", func() {
		mac, err := ipam.GenerateMAC()
		Expect(err).NotTo(HaveOccurred())
		Expect(mac).To(HavePrefix(ipam.OUI + ":"))
	})

	It("produces parsable addresses", func() {
		mac, err := ipam.GenerateMAC()
		Expect(err).NotTo(HaveOccurred())
		parsed, err := net.ParseMAC(mac)
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed).To(HaveLen(6))
	})

	It("renders the suffix in upper case", func() {
		mac, err := ipam.GenerateMAC()
		Expect(err).NotTo(HaveOccurred())
		Expect(mac).To(Equal(strings.ToUpper(mac)))
	})
})

var _ = Describe("Allocator", func() {
	var (
		ctx       context.Context
		mock      sqlmock.Sqlmock
		db        *sqlx.DB
		allocator *ipam.Allocator
	)

	BeforeEach(func() {
		ctx = context.Background()
		rawDB, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		mock = m
		db = sqlx.NewDb(rawDB, "sqlmock")
		allocator = ipam.New(store.NewFromDB(db, logr.Discard()), logr.Discard())
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		_ = db.Close()
	})

	Describe("PrefillPool", func() {
		vnetID := id.NewVNetID()

		It("rejects malformed CIDRs without touching the pool", func() {
			for _, tc := range []struct{ cidr, gateway string }{
				{"banana", "10.0.0.1"},
				{"fd00::/64", "fd00::1"},
				{"10.0.0.0/12", "10.0.0.1"},
				{"10.0.0.0/31", "10.0.0.1"},
				{"10.0.0.0/24", "192.168.0.1"},
				{"10.0.0.0/24", "not-an-ip"},
			} {
				_, err := allocator.PrefillPool(ctx, db, vnetID, tc.cidr, tc.gateway)
				var invalid *cperrors.InvalidCidrError
				Expect(errors.As(err, &invalid)).To(BeTrue(), "for %s", tc.cidr)
			}
		})

		It("creates a gateway row plus one row per usable host", func() {
			// 10.0.0.0/29 has hosts .1 through .6; .1 is the gateway.
			mock.ExpectExec("INSERT INTO ip_allocations").
				WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "10.0.0.1", "Gateway", "InUse").
				WillReturnResult(sqlmock.NewResult(0, 1))
			for _, host := range []string{"10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5", "10.0.0.6"} {
				mock.ExpectExec("INSERT INTO ip_allocations").
					WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), host, "Reserved", "Reserved").
					WillReturnResult(sqlmock.NewResult(0, 1))
			}

			created, err := allocator.PrefillPool(ctx, db, vnetID, "10.0.0.0/29", "10.0.0.1")
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(Equal(5))
		})
	})

	Describe("Allocate", func() {
		vnetID := id.NewVNetID()
		instanceID := id.NewInstanceID()

		It("claims the lowest reserved address and stamps a MAC", func() {
			allocID := id.NewIPAllocationID()
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
				WillReturnRows(sqlmock.NewRows([]string{"id", "address"}).AddRow(allocID.String(), "10.0.0.2"))
			mock.ExpectExec("^SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("UPDATE ip_allocations").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec("RELEASE SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectCommit()

			alloc, err := allocator.Allocate(ctx, vnetID, instanceID, "web-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(alloc.ID).To(Equal(allocID))
			Expect(alloc.Address).To(Equal("10.0.0.2"))
			Expect(alloc.MAC).To(HavePrefix(ipam.OUI))
		})

		It("rolls the attempt back and draws a fresh MAC on a collision", func() {
			allocID := id.NewIPAllocationID()
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
				WillReturnRows(sqlmock.NewRows([]string{"id", "address"}).AddRow(allocID.String(), "10.0.0.2"))

			// first draw hits an address another vnet already holds
			mock.ExpectExec("^SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("UPDATE ip_allocations").
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ip_allocations_mac_key"})
			mock.ExpectExec("ROLLBACK TO SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))

			// second draw sticks
			mock.ExpectExec("^SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("UPDATE ip_allocations").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec("RELEASE SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectCommit()

			alloc, err := allocator.Allocate(ctx, vnetID, instanceID, "web-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(alloc.MAC).To(HavePrefix(ipam.OUI))
		})

		It("surfaces a non-collision constraint failure unchanged", func() {
			allocID := id.NewIPAllocationID()
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
				WillReturnRows(sqlmock.NewRows([]string{"id", "address"}).AddRow(allocID.String(), "10.0.0.2"))
			mock.ExpectExec("^SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("UPDATE ip_allocations").
				WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "ip_allocations_instance_id_fkey"})
			mock.ExpectRollback()

			_, err := allocator.Allocate(ctx, vnetID, instanceID, "web-1")
			Expect(err).To(HaveOccurred())
			Expect(store.IsUniqueViolation(err, "ip_allocations_mac_key")).To(BeFalse())
		})

		It("reports a dry pool", func() {
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
				WillReturnRows(sqlmock.NewRows([]string{"id", "address"}))
			mock.ExpectRollback()

			_, err := allocator.Allocate(ctx, vnetID, instanceID, "web-1")
			var dry *cperrors.NoAvailableIPsError
			Expect(errors.As(err, &dry)).To(BeTrue())
			Expect(dry.VNet).To(Equal(vnetID.String()))
		})
	})

	Describe("AllocateSpecific", func() {
		vnetID := id.NewVNetID()
		instanceID := id.NewInstanceID()

		It("claims the requested address when it is free", func() {
			allocID := id.NewIPAllocationID()
			mock.ExpectBegin()
			mock.ExpectQuery("FROM ip_allocations").
				WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(allocID.String(), "Reserved"))
			mock.ExpectExec("^SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("UPDATE ip_allocations").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec("RELEASE SAVEPOINT").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectCommit()

			alloc, err := allocator.AllocateSpecific(ctx, vnetID, "10.0.0.9", instanceID, "web-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(alloc.Address).To(Equal("10.0.0.9"))
		})

		It("refuses an address that is already held", func() {
			mock.ExpectBegin()
			mock.ExpectQuery("FROM ip_allocations").
				WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(id.NewIPAllocationID().String(), "InUse"))
			mock.ExpectRollback()

			_, err := allocator.AllocateSpecific(ctx, vnetID, "10.0.0.9", instanceID, "web-1")
			var used *cperrors.IPAlreadyInUseError
			Expect(errors.As(err, &used)).To(BeTrue())
		})

		It("refuses an address outside the pool", func() {
			mock.ExpectBegin()
			mock.ExpectQuery("FROM ip_allocations").
				WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))
			mock.ExpectRollback()

			_, err := allocator.AllocateSpecific(ctx, vnetID, "203.0.113.7", instanceID, "web-1")
			var outside *cperrors.IPNotInRangeError
			Expect(errors.As(err, &outside)).To(BeTrue())
		})
	})

	Describe("Release", func() {
		It("returns the address to the pool", func() {
			mock.ExpectExec("UPDATE ip_allocations").
				WillReturnResult(sqlmock.NewResult(0, 1))
			Expect(allocator.Release(ctx, id.NewIPAllocationID())).To(Succeed())
		})
	})
})
