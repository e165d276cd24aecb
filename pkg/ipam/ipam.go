// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package ipam manages the per-VNet address pools. The pool is pre-filled
// at VNet creation, so allocation is a row claim rather than an address
// computation: the next free address is the first Reserved row in address
// order, taken under FOR UPDATE SKIP LOCKED so concurrent allocations on
// the same VNet never collide or block each other.
package ipam

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/store"
)

// OUI is the fixed vendor prefix of every generated MAC address. It is
// part of the wire contract with the hypervisor and must not change.
const OUI = "BC:24:11"

// macRetries bounds the collision retry loop of MAC generation.
const macRetries = 100

// maxPoolSize caps how many rows a pool prefill creates. IPv4 pools stop
// at a /24 worth of hosts regardless of prefix size.
const maxPoolSize = 254

// Allocator manages VNet address pools.
type Allocator struct {
	store *store.Store
	log   logr.Logger
}

// New returns an allocator over the given store.
func New(st *store.Store, log logr.Logger) *Allocator {
	return &Allocator{store: st, log: log.WithName("ipam")}
}

// PrefillPool creates the Reserved address rows for a freshly created VNet
// inside the caller's transaction. The subnet must be IPv4 between /16 and
// /30; the gateway address gets a Gateway row and is excluded from
// allocation.
func (a *Allocator) PrefillPool(ctx context.Context, q model.Querier, vnetID id.VNetID, cidr, gateway string) (int, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return 0, &cperrors.InvalidCidrError{Cidr: cidr, Reason: "not a valid CIDR"}
	}
	if !prefix.Addr().Is4() {
		return 0, &cperrors.InvalidCidrError{Cidr: cidr, Reason: "only IPv4 subnets are supported"}
	}
	if prefix.Bits() < 16 || prefix.Bits() > 30 {
		return 0, &cperrors.InvalidCidrError{Cidr: cidr, Reason: "prefix length must be between /16 and /30"}
	}
	gw, err := netip.ParseAddr(gateway)
	if err != nil || !prefix.Contains(gw) {
		return 0, &cperrors.InvalidCidrError{Cidr: cidr, Reason: fmt.Sprintf("gateway %s is not inside the subnet", gateway)}
	}

	insert := func(addr string, kind model.IPAllocationKind, status model.IPAllocationStatus) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO ip_allocations (id, vnet_id, address, kind, status)
			VALUES ($1, $2, $3, $4, $5)`,
			id.NewIPAllocationID(), vnetID, addr, kind, status)
		return store.ClassifyError(err)
	}
	if err := insert(gw.String(), model.IPGateway, model.IPStatusInUse); err != nil {
		return 0, err
	}

	created := 0
	network := prefix.Masked().Addr()
	broadcast := broadcastOf(prefix)
	for addr := network.Next(); addr.Compare(broadcast) < 0 && created < maxPoolSize; addr = addr.Next() {
		if addr == gw {
			continue
		}
		if err := insert(addr.String(), model.IPReserved, model.IPStatusReserved); err != nil {
			return created, err
		}
		created++
	}
	a.log.V(1).Info("prefilled address pool", "vnet", vnetID, "cidr", cidr, "addresses", created)
	return created, nil
}

// Allocation is a claimed address with its generated MAC.
type Allocation struct {
	ID      id.IPAllocationID
	Address string
	MAC     string
}

// Allocate claims the next free address of the VNet for the instance and
// stamps it with a fresh MAC. Runs in its own transaction; returns
// NoAvailableIPsError when the pool is dry.
func (a *Allocator) Allocate(ctx context.Context, vnetID id.VNetID, instanceID id.InstanceID, hostname string) (*Allocation, error) {
	var out *Allocation
	err := a.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		row := struct {
			ID      id.IPAllocationID `db:"id"`
			Address string            `db:"address"`
		}{}
		err := tx.GetContext(ctx, &row, `
			SELECT id, address FROM ip_allocations
			WHERE vnet_id = $1 AND status = 'Reserved'
			ORDER BY address ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED`, vnetID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &cperrors.NoAvailableIPsError{VNet: vnetID.String()}
			}
			return store.ClassifyError(err)
		}
		mac, err := a.claimMAC(ctx, tx, row.ID, instanceID, hostname)
		if err != nil {
			return err
		}
		out = &Allocation{ID: row.ID, Address: row.Address, MAC: mac}
		return nil
	})
	return out, err
}

// AllocateSpecific claims one requested address. The row must exist in the
// pool and be Reserved; a held address yields IPAlreadyInUseError and an
// address outside the pool yields IPNotInRangeError.
func (a *Allocator) AllocateSpecific(ctx context.Context, vnetID id.VNetID, address string, instanceID id.InstanceID, hostname string) (*Allocation, error) {
	var out *Allocation
	err := a.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		row := struct {
			ID     id.IPAllocationID        `db:"id"`
			Status model.IPAllocationStatus `db:"status"`
		}{}
		err := tx.GetContext(ctx, &row, `
			SELECT id, status FROM ip_allocations
			WHERE vnet_id = $1 AND address = $2
			FOR UPDATE`, vnetID, address)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &cperrors.IPNotInRangeError{Address: address, Subnet: vnetID.String()}
			}
			return store.ClassifyError(err)
		}
		if row.Status != model.IPStatusReserved {
			return &cperrors.IPAlreadyInUseError{Address: address}
		}
		mac, err := a.claimMAC(ctx, tx, row.ID, instanceID, hostname)
		if err != nil {
			return err
		}
		out = &Allocation{ID: row.ID, Address: address, MAC: mac}
		return nil
	})
	return out, err
}

// claimMAC marks the locked row InUse with a freshly generated MAC,
// retrying on the rare collision against the global MAC uniqueness
// constraint. A constraint violation aborts the enclosing transaction, so
// every attempt runs under its own savepoint.
func (a *Allocator) claimMAC(ctx context.Context, tx *sqlx.Tx, allocID id.IPAllocationID, instanceID id.InstanceID, hostname string) (string, error) {
	for attempt := 0; attempt < macRetries; attempt++ {
		mac, err := GenerateMAC()
		if err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, `SAVEPOINT claim_mac`); err != nil {
			return "", store.ClassifyError(err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE ip_allocations
			SET status = 'InUse', instance_id = $2, mac_address = $3, hostname = $4,
			    allocated_at = now(), released_at = NULL, updated_at = now()
			WHERE id = $1`, allocID, instanceID, mac, nullable(hostname))
		if err != nil {
			err = store.ClassifyError(err)
			if store.IsUniqueViolation(err, "ip_allocations_mac_key") {
				if _, err := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT claim_mac`); err != nil {
					return "", store.ClassifyError(err)
				}
				continue
			}
			return "", err
		}
		if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT claim_mac`); err != nil {
			return "", store.ClassifyError(err)
		}
		return mac, nil
	}
	return "", &cperrors.InternalError{Message: fmt.Sprintf("no unique mac address after %d attempts", macRetries)}
}

// Release returns an address to the pool.
func (a *Allocator) Release(ctx context.Context, allocID id.IPAllocationID) error {
	_, err := a.store.DB().ExecContext(ctx, `
		UPDATE ip_allocations
		SET status = 'Reserved', instance_id = NULL, mac_address = NULL, hostname = NULL,
		    released_at = now(), updated_at = now()
		WHERE id = $1 AND kind <> 'Gateway'`, allocID)
	return store.ClassifyError(err)
}

// ReleaseByInstance returns every address held by an instance to the pool.
// Used when an instance is deleted.
func (a *Allocator) ReleaseByInstance(ctx context.Context, q model.Querier, instanceID id.InstanceID) error {
	_, err := q.ExecContext(ctx, `
		UPDATE ip_allocations
		SET status = 'Reserved', instance_id = NULL, mac_address = NULL, hostname = NULL,
		    released_at = now(), updated_at = now()
		WHERE instance_id = $1 AND kind <> 'Gateway'`, instanceID)
	return store.ClassifyError(err)
}

// GenerateMAC returns a MAC address with the fixed OUI prefix and three
// random bytes.
func GenerateMAC() (string, error) {
	var suffix [3]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("could not read random bytes: %w", err)
	}
	return fmt.Sprintf("%s:%02X:%02X:%02X", OUI, suffix[0], suffix[1], suffix[2]), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// broadcastOf returns the highest address of an IPv4 prefix.
func broadcastOf(prefix netip.Prefix) netip.Addr {
	bytes := prefix.Masked().Addr().As4()
	hostBits := 32 - prefix.Bits()
	for i := 0; i < hostBits; i++ {
		bytes[3-i/8] |= 1 << (i % 8)
	}
	return netip.AddrFrom4(bytes)
}
