// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/model"
	"github.com/meridian-cloud/meridian/pkg/operation"
	"github.com/meridian-cloud/meridian/pkg/store"
)

// InvitationService manages the onboarding of users into organizations.
// Membership takes effect only when the invited user accepts; the accept
// commits the membership row together with the outbox operations wiring
// the user into the policy server and the VPN.
type InvitationService struct {
	base
}

// List returns an organization's invitations.
func (s *InvitationService) List(ctx context.Context, p identity.Principal, orgID id.OrganizationID) ([]model.Invitation, error) {
	if err := s.authorize(ctx, p, authz.PermViewOrganization, authz.TypeOrganization, orgID.String()); err != nil {
		return nil, err
	}
	return s.invitations.ListByOrganization(ctx, s.db(), orgID)
}

// ListMine returns the pending invitations of the calling user.
func (s *InvitationService) ListMine(ctx context.Context, p identity.Principal) ([]model.Invitation, error) {
	if p.Kind != identity.KindUser {
		return nil, cperrors.ErrUnauthenticated
	}
	return s.invitations.ListByUser(ctx, s.db(), p.User.ID)
}

// Create invites a user, identified by email, into an organization. The
// user row is created on first contact; a user who never signed in can
// still be invited and finds the invitation waiting.
func (s *InvitationService) Create(ctx context.Context, p identity.Principal, orgID id.OrganizationID, email string) (*model.Invitation, error) {
	if err := s.authorize(ctx, p, authz.PermInviteMember, authz.TypeOrganization, orgID.String()); err != nil {
		return nil, err
	}
	if email == "" {
		return nil, &cperrors.InvalidInputError{Field: "email", Reason: "must not be empty"}
	}
	if _, err := s.orgs.FindByID(ctx, s.db(), orgID); err != nil {
		return nil, notFoundOr(err, "organization", orgID.String())
	}

	var created *model.Invitation
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		user, err := s.users.FindByEmail(ctx, tx, email)
		if store.IsNoRows(err) {
			user, err = s.users.Create(ctx, tx, &model.User{ID: id.NewUserID(), Email: email})
		}
		if err != nil {
			return err
		}
		created, err = s.invitations.Create(ctx, tx, &model.Invitation{
			ID:             id.NewInvitationID(),
			OrganizationID: orgID,
			UserID:         user.ID,
			State:          model.InvitationPending,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("created invitation", "invitation", created.ID, "organization", orgID,
		"email", email, "by", p.DisplayName())
	return created, nil
}

// Answer accepts or declines an invitation. Only the invited user may
// answer. Accepting binds the user to the organization and enqueues the
// membership relationship and the VPN invite in the same transaction, so
// the external planes converge on the committed decision.
func (s *InvitationService) Answer(ctx context.Context, p identity.Principal, invID id.InvitationID, accept bool) (*model.Invitation, error) {
	if p.Kind != identity.KindUser {
		return nil, &cperrors.ForbiddenError{Permission: "answer", Resource: "invitations/" + invID.String()}
	}
	inv, err := s.invitations.FindByID(ctx, s.db(), invID)
	if err != nil {
		return nil, notFoundOr(err, "invitation", invID.String())
	}
	if inv.UserID != p.User.ID {
		return nil, &cperrors.ForbiddenError{Permission: "answer", Resource: "invitations/" + invID.String()}
	}
	if inv.State != model.InvitationPending {
		return nil, &cperrors.InvalidInputError{Field: "state", Reason: "invitation already answered"}
	}

	if !accept {
		declined, err := s.invitations.UpdateState(ctx, s.db(), invID, model.InvitationDeclined)
		if err != nil {
			return nil, err
		}
		s.log.Info("declined invitation", "invitation", invID, "by", p.DisplayName())
		return declined, nil
	}

	var accepted *model.Invitation
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		accepted, err = s.invitations.UpdateState(ctx, tx, invID, model.InvitationAccepted)
		if err != nil {
			return err
		}
		if err := s.users.SetOrganization(ctx, tx, p.User.ID, &inv.OrganizationID); err != nil {
			return err
		}
		if _, err := s.queue.EnqueueWriteRelationship(ctx, tx, authz.Tuple{
			ObjectType:  authz.TypeOrganization,
			ObjectID:    inv.OrganizationID.String(),
			Relation:    authz.RelationMember,
			SubjectType: authz.TypeUser,
			SubjectID:   p.User.ID.String(),
		}); err != nil {
			return err
		}
		vpnInput, err := json.Marshal(operation.VpnUserInput{
			OrganizationID: inv.OrganizationID.String(),
			Email:          p.User.Email,
			Role:           "member",
		})
		if err != nil {
			return err
		}
		_, err = s.queue.Enqueue(ctx, tx, operation.NewOperation{
			OpType:       operation.VpnInviteUser,
			ResourceType: "organization",
			ResourceID:   inv.OrganizationID.String(),
			Input:        vpnInput,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("accepted invitation", "invitation", invID, "organization", inv.OrganizationID, "by", p.DisplayName())
	return accepted, nil
}
