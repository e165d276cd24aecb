// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"time"

	"github.com/meridian-cloud/meridian/pkg/id"
)

// User is a human principal identified by email.
type User struct {
	ID             id.UserID          `db:"id"`
	Email          string             `db:"email"`
	OrganizationID *id.OrganizationID `db:"organization_id"`
	CreatedAt      time.Time          `db:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at"`
}

// ServiceAccount is a machine principal identified by its bearer key.
type ServiceAccount struct {
	ID        id.ServiceAccountID `db:"id"`
	Name      string              `db:"name"`
	Key       string              `db:"key"`
	CreatedAt time.Time           `db:"created_at"`
	UpdatedAt time.Time           `db:"updated_at"`
}

// InvitationState is the lifecycle state of an invitation.
type InvitationState string

// Invitation states.
const (
	InvitationPending  InvitationState = "Pending"
	InvitationAccepted InvitationState = "Accepted"
	InvitationDeclined InvitationState = "Declined"
	InvitationExpired  InvitationState = "Expired"
)

// Invitation asks a user to join an organization.
type Invitation struct {
	ID             id.InvitationID   `db:"id"`
	OrganizationID id.OrganizationID `db:"organization_id"`
	UserID         id.UserID         `db:"user_id"`
	State          InvitationState   `db:"state"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
}

// UserRepository provides CRUD over users.
type UserRepository struct{}

const userColumns = `id, email, organization_id, created_at, updated_at`

// Create inserts the user and returns the hydrated row.
func (UserRepository) Create(ctx context.Context, q Querier, u *User) (*User, error) {
	var out User
	err := get(ctx, q, &out, `
		INSERT INTO users (id, email, organization_id)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		u.ID, u.Email, u.OrganizationID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID returns the user with the given id.
func (UserRepository) FindByID(ctx context.Context, q Querier, userID id.UserID) (*User, error) {
	var out User
	if err := get(ctx, q, &out, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByEmail returns the user with the given email.
func (UserRepository) FindByEmail(ctx context.Context, q Querier, email string) (*User, error) {
	var out User
	if err := get(ctx, q, &out, `SELECT `+userColumns+` FROM users WHERE email = $1`, email); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByOrganization returns the members of an organization.
func (UserRepository) ListByOrganization(ctx context.Context, q Querier, orgID id.OrganizationID) ([]User, error) {
	var out []User
	if err := selectAll(ctx, q, &out, `SELECT `+userColumns+` FROM users WHERE organization_id = $1 ORDER BY email`, orgID); err != nil {
		return nil, err
	}
	return out, nil
}

// SetOrganization binds (or unbinds, with nil) the user to an organization.
func (UserRepository) SetOrganization(ctx context.Context, q Querier, userID id.UserID, orgID *id.OrganizationID) error {
	return exec(ctx, q, `UPDATE users SET organization_id = $2, updated_at = now() WHERE id = $1`, userID, orgID)
}

// Delete removes the user.
func (UserRepository) Delete(ctx context.Context, q Querier, userID id.UserID) error {
	return exec(ctx, q, `DELETE FROM users WHERE id = $1`, userID)
}

// ServiceAccountRepository provides CRUD over service accounts.
type ServiceAccountRepository struct{}

const serviceAccountColumns = `id, name, key, created_at, updated_at`

// Create inserts the service account and returns the hydrated row.
func (ServiceAccountRepository) Create(ctx context.Context, q Querier, sa *ServiceAccount) (*ServiceAccount, error) {
	var out ServiceAccount
	err := get(ctx, q, &out, `
		INSERT INTO service_accounts (id, name, key)
		VALUES ($1, $2, $3)
		RETURNING `+serviceAccountColumns,
		sa.ID, sa.Name, sa.Key)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByKey returns the service account holding the given bearer key.
func (ServiceAccountRepository) FindByKey(ctx context.Context, q Querier, key string) (*ServiceAccount, error) {
	var out ServiceAccount
	if err := get(ctx, q, &out, `SELECT `+serviceAccountColumns+` FROM service_accounts WHERE key = $1`, key); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByName returns the service account with the given name.
func (ServiceAccountRepository) FindByName(ctx context.Context, q Querier, name string) (*ServiceAccount, error) {
	var out ServiceAccount
	if err := get(ctx, q, &out, `SELECT `+serviceAccountColumns+` FROM service_accounts WHERE name = $1`, name); err != nil {
		return nil, err
	}
	return &out, nil
}

// InvitationRepository provides CRUD over invitations.
type InvitationRepository struct{}

const invitationColumns = `id, organization_id, user_id, state, created_at, updated_at`

// Create inserts the invitation and returns the hydrated row.
func (InvitationRepository) Create(ctx context.Context, q Querier, inv *Invitation) (*Invitation, error) {
	var out Invitation
	err := get(ctx, q, &out, `
		INSERT INTO invitations (id, organization_id, user_id, state)
		VALUES ($1, $2, $3, $4)
		RETURNING `+invitationColumns,
		inv.ID, inv.OrganizationID, inv.UserID, inv.State)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID returns the invitation with the given id.
func (InvitationRepository) FindByID(ctx context.Context, q Querier, invID id.InvitationID) (*Invitation, error) {
	var out Invitation
	if err := get(ctx, q, &out, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, invID); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByOrganization returns the invitations of one organization.
func (InvitationRepository) ListByOrganization(ctx context.Context, q Querier, orgID id.OrganizationID) ([]Invitation, error) {
	var out []Invitation
	if err := selectAll(ctx, q, &out, `SELECT `+invitationColumns+` FROM invitations WHERE organization_id = $1 ORDER BY created_at`, orgID); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByUser returns the invitations addressed to one user.
func (InvitationRepository) ListByUser(ctx context.Context, q Querier, userID id.UserID) ([]Invitation, error) {
	var out []Invitation
	if err := selectAll(ctx, q, &out, `SELECT `+invitationColumns+` FROM invitations WHERE user_id = $1 ORDER BY created_at`, userID); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateState answers the invitation. Only pending invitations move.
func (InvitationRepository) UpdateState(ctx context.Context, q Querier, invID id.InvitationID, state InvitationState) (*Invitation, error) {
	var out Invitation
	err := get(ctx, q, &out, `
		UPDATE invitations SET state = $2, updated_at = now()
		WHERE id = $1 AND state = 'Pending'
		RETURNING `+invitationColumns,
		invID, state)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
