// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx/types"

	"github.com/meridian-cloud/meridian/pkg/bastion"
	"github.com/meridian-cloud/meridian/pkg/operation"
)

// BastionAPI is the slice of the bastion client the executor depends on.
type BastionAPI interface {
	CreateAgent(ctx context.Context, agent bastion.Agent) error
	DeleteAgent(ctx context.Context, instanceID string) error
	CreateConnection(ctx context.Context, conn bastion.Connection) error
	DeleteConnection(ctx context.Context, instanceID, userEmail string) error
}

// Bastion executes agent and connection operations against the SSH
// bastion. Create on an existing object and delete on a missing one both
// count as success.
type Bastion struct {
	client BastionAPI
}

// NewBastion returns the bastion executor.
func NewBastion(client BastionAPI) *Bastion {
	return &Bastion{client: client}
}

// Handles implements operation.Executor.
func (e *Bastion) Handles(t operation.OpType) bool {
	switch t {
	case operation.BastionCreateAgent, operation.BastionDeleteAgent,
		operation.BastionCreateConnection, operation.BastionDeleteConnection:
		return true
	}
	return false
}

// Execute implements operation.Executor.
func (e *Bastion) Execute(ctx context.Context, op *operation.Operation) (types.JSONText, error) {
	var err error
	switch op.OpType {
	case operation.BastionCreateAgent, operation.BastionDeleteAgent:
		err = e.executeAgent(ctx, op)
	case operation.BastionCreateConnection, operation.BastionDeleteConnection:
		err = e.executeConnection(ctx, op)
	}
	if err != nil {
		return nil, classifyBastionError(err)
	}
	return types.JSONText(`{}`), nil
}

func (e *Bastion) executeAgent(ctx context.Context, op *operation.Operation) error {
	var input operation.BastionAgentInput
	if err := op.DecodeInput(&input); err != nil {
		return operation.NewExecutorError(operation.ErrKindInvalidInput, err, "malformed bastion agent input")
	}
	switch op.OpType {
	case operation.BastionCreateAgent:
		err := e.client.CreateAgent(ctx, bastion.Agent{
			InstanceID: input.InstanceID,
			Name:       input.InstanceName,
			IPv4:       input.IPv4,
		})
		if errors.Is(err, bastion.ErrAgentExists) {
			return nil
		}
		return err
	default:
		err := e.client.DeleteAgent(ctx, input.InstanceID)
		if errors.Is(err, bastion.ErrAgentNotFound) {
			return nil
		}
		return err
	}
}

func (e *Bastion) executeConnection(ctx context.Context, op *operation.Operation) error {
	var input operation.BastionConnectionInput
	if err := op.DecodeInput(&input); err != nil {
		return operation.NewExecutorError(operation.ErrKindInvalidInput, err, "malformed bastion connection input")
	}
	switch op.OpType {
	case operation.BastionCreateConnection:
		err := e.client.CreateConnection(ctx, bastion.Connection{
			InstanceID: input.InstanceID,
			UserEmail:  input.UserEmail,
			Port:       input.Port,
		})
		switch {
		case errors.Is(err, bastion.ErrConnectionExists):
			return nil
		case errors.Is(err, bastion.ErrAgentNotFound):
			// The agent creation operation may not have run yet; try again
			// once it has.
			return operation.NewExecutorError(operation.ErrKindTemporarilyUnavailable, err,
				"agent for instance %s not registered yet", input.InstanceID)
		}
		return err
	default:
		err := e.client.DeleteConnection(ctx, input.InstanceID, input.UserEmail)
		if errors.Is(err, bastion.ErrConnectionNotFound) {
			return nil
		}
		return err
	}
}

func classifyBastionError(err error) error {
	var ee *operation.ExecutorError
	if errors.As(err, &ee) {
		return ee
	}
	var se *bastion.ServerError
	if errors.As(err, &se) {
		if se.Temporary() {
			return operation.NewExecutorError(operation.ErrKindTemporarilyUnavailable, err, "bastion unavailable")
		}
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			return operation.NewExecutorError(operation.ErrKindUnauthorized, err, "bastion refused credentials")
		case se.StatusCode == 400 || se.StatusCode == 422:
			return operation.NewExecutorError(operation.ErrKindInvalidInput, err, "bastion rejected request")
		}
		return operation.NewExecutorError(operation.ErrKindRejected, err, "bastion rejected request")
	}
	return operation.NewExecutorError(operation.ErrKindConnectivity, err, "bastion unreachable")
}
