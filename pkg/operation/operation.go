// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package operation implements the durable task queue that keeps external
// backends consistent with the authoritative database. A mutation that must
// reach a backend is recorded as an Operation row in the same transaction
// as the resource it concerns; a worker pool later claims rows under
// skip-locked semantics, executes them through the dispatcher and retries
// with exponential backoff until success or exhaustion.
package operation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
)

// Backend names an external system operations are executed against.
type Backend string

// Operation backends.
const (
	BackendAuthz   Backend = "Authz"
	BackendVpn     Backend = "Vpn"
	BackendBastion Backend = "Bastion"
	BackendK8s     Backend = "K8s"
)

// OpType is the closed set of operations the control plane performs against
// external backends.
type OpType string

// Operation types.
const (
	AuthzWriteRel           OpType = "AuthzWriteRel"
	AuthzDeleteRel          OpType = "AuthzDeleteRel"
	VpnInviteUser           OpType = "VpnInviteUser"
	VpnRemoveUser           OpType = "VpnRemoveUser"
	VpnUpdateUser           OpType = "VpnUpdateUser"
	BastionCreateAgent      OpType = "BastionCreateAgent"
	BastionDeleteAgent      OpType = "BastionDeleteAgent"
	BastionCreateConnection OpType = "BastionCreateConnection"
	BastionDeleteConnection OpType = "BastionDeleteConnection"
	K8sGrantNs              OpType = "K8sGrantNs"
	K8sRevokeNs             OpType = "K8sRevokeNs"
)

// BackendOf returns the backend an operation type executes against. The
// stored backend column must always agree with this mapping.
func (t OpType) BackendOf() (Backend, error) {
	switch t {
	case AuthzWriteRel, AuthzDeleteRel:
		return BackendAuthz, nil
	case VpnInviteUser, VpnRemoveUser, VpnUpdateUser:
		return BackendVpn, nil
	case BastionCreateAgent, BastionDeleteAgent, BastionCreateConnection, BastionDeleteConnection:
		return BackendBastion, nil
	case K8sGrantNs, K8sRevokeNs:
		return BackendK8s, nil
	}
	return "", fmt.Errorf("unknown operation type %q", t)
}

// Status is the queue state of an operation.
type Status string

// Operation states. Succeeded, Failed and Cancelled are terminal.
const (
	StatusPending   Status = "Pending"
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
)

// IsTerminal reports whether no further transitions are permitted.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// ErrCodeExhaustedRetries is recorded when an operation fails because its
// attempt budget ran out.
const ErrCodeExhaustedRetries = "EXHAUSTED_RETRIES"

// DefaultMaxAttempts is applied when an enqueue request does not override
// the attempt budget.
const DefaultMaxAttempts = 5

// StalenessHorizon is how long a Running row may sit before it is
// considered abandoned and becomes claimable again.
const StalenessHorizon = 5 * time.Minute

// Operation is a durable, retryable unit of external-system work.
type Operation struct {
	ID             id.OperationID  `db:"id"`
	OpType         OpType          `db:"op_type"`
	Backend        Backend         `db:"backend"`
	ResourceType   string          `db:"resource_type"`
	ResourceID     string          `db:"resource_id"`
	Status         Status          `db:"status"`
	Input          types.JSONText  `db:"input"`
	Output         *types.JSONText `db:"output"`
	ErrorCode      *string         `db:"error_code"`
	ErrorMessage   *string         `db:"error_message"`
	AttemptCount   int             `db:"attempt_count"`
	MaxAttempts    int             `db:"max_attempts"`
	NextRetryAt    *time.Time      `db:"next_retry_at"`
	IdempotencyKey *string         `db:"idempotency_key"`
	CreatedAt      time.Time       `db:"created_at"`
	StartedAt      *time.Time      `db:"started_at"`
	CompletedAt    *time.Time      `db:"completed_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Name returns the stable wire name of the operation.
func (o *Operation) Name() string {
	return "operations/" + o.ID.String()
}

// ParseName extracts the operation id from an "operations/{uuid}" name.
func ParseName(name string) (id.OperationID, error) {
	const prefix = "operations/"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return id.OperationID{}, &cperrors.InvalidInputError{
			Field:  "name",
			Reason: fmt.Sprintf("malformed operation name %q", name),
		}
	}
	return id.ParseOperationID(name[len(prefix):])
}

// DecodeInput unmarshals the operation input into dest.
func (o *Operation) DecodeInput(dest any) error {
	if err := json.Unmarshal(o.Input, dest); err != nil {
		return fmt.Errorf("could not decode input of %s: %w", o.Name(), err)
	}
	return nil
}

// AuthzRelInput is the payload of AuthzWriteRel and AuthzDeleteRel.
type AuthzRelInput struct {
	ObjectType  string `json:"object_type"`
	ObjectID    string `json:"object_id"`
	Relation    string `json:"relation"`
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
}

// VpnUserInput is the payload of the VPN user operations.
type VpnUserInput struct {
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	Role           string `json:"role,omitempty"`
}

// BastionAgentInput is the payload of the bastion agent operations.
type BastionAgentInput struct {
	InstanceID   string `json:"instance_id"`
	InstanceName string `json:"instance_name"`
	IPv4         string `json:"ip_v4,omitempty"`
}

// BastionConnectionInput is the payload of the bastion connection
// operations.
type BastionConnectionInput struct {
	InstanceID string `json:"instance_id"`
	UserEmail  string `json:"user_email"`
	Port       int    `json:"port,omitempty"`
}

// K8sNsInput is the payload of the namespace grant operations.
type K8sNsInput struct {
	Namespace string `json:"namespace"`
	UserEmail string `json:"user_email"`
	Role      string `json:"role,omitempty"`
}
