// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx/types"

	"github.com/meridian-cloud/meridian/pkg/operation"
	"github.com/meridian-cloud/meridian/pkg/vpn"
)

// VpnAPI is the slice of the VPN controller client the executor depends on.
type VpnAPI interface {
	InviteUser(ctx context.Context, orgID string, user vpn.User) error
	RemoveUser(ctx context.Context, orgID, email string) error
	UpdateUser(ctx context.Context, orgID string, user vpn.User) error
}

// Vpn executes user membership operations against the VPN controller. An
// invite for an already-known user and a removal of an unknown user both
// count as success, which makes replays after a lost acknowledgement
// converge.
type Vpn struct {
	client VpnAPI
}

// NewVpn returns the VPN controller executor.
func NewVpn(client VpnAPI) *Vpn {
	return &Vpn{client: client}
}

// Handles implements operation.Executor.
func (e *Vpn) Handles(t operation.OpType) bool {
	return t == operation.VpnInviteUser || t == operation.VpnRemoveUser || t == operation.VpnUpdateUser
}

// Execute implements operation.Executor.
func (e *Vpn) Execute(ctx context.Context, op *operation.Operation) (types.JSONText, error) {
	var input operation.VpnUserInput
	if err := op.DecodeInput(&input); err != nil {
		return nil, operation.NewExecutorError(operation.ErrKindInvalidInput, err, "malformed vpn input")
	}

	var err error
	switch op.OpType {
	case operation.VpnInviteUser:
		err = e.client.InviteUser(ctx, input.OrganizationID, vpn.User{Email: input.Email, Role: input.Role})
		if errors.Is(err, vpn.ErrAlreadyInvited) {
			err = nil
		}
	case operation.VpnRemoveUser:
		err = e.client.RemoveUser(ctx, input.OrganizationID, input.Email)
		if errors.Is(err, vpn.ErrUserNotFound) {
			err = nil
		}
	case operation.VpnUpdateUser:
		err = e.client.UpdateUser(ctx, input.OrganizationID, vpn.User{Email: input.Email, Role: input.Role})
		if errors.Is(err, vpn.ErrUserNotFound) {
			err = operation.NewExecutorError(operation.ErrKindNotFound, err, "vpn user %s not found", input.Email)
		}
	}
	if err != nil {
		return nil, classifyVpnError(err)
	}
	return types.JSONText(`{}`), nil
}

func classifyVpnError(err error) error {
	var ee *operation.ExecutorError
	if errors.As(err, &ee) {
		return ee
	}
	var se *vpn.ServerError
	if errors.As(err, &se) {
		if se.Temporary() {
			return operation.NewExecutorError(operation.ErrKindTemporarilyUnavailable, err, "vpn controller unavailable")
		}
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			return operation.NewExecutorError(operation.ErrKindUnauthorized, err, "vpn controller refused credentials")
		case se.StatusCode == 400 || se.StatusCode == 422:
			return operation.NewExecutorError(operation.ErrKindInvalidInput, err, "vpn controller rejected request")
		}
		return operation.NewExecutorError(operation.ErrKindRejected, err, "vpn controller rejected request")
	}
	// Transport failures surface as plain wrapped errors from the client.
	return operation.NewExecutorError(operation.ErrKindConnectivity, err, "vpn controller unreachable")
}
