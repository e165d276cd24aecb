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
)

// MemberService manages organization membership after onboarding.
type MemberService struct {
	base
}

// List returns the users belonging to an organization.
func (s *MemberService) List(ctx context.Context, p identity.Principal, orgID id.OrganizationID) ([]model.User, error) {
	if err := s.authorize(ctx, p, authz.PermViewOrganization, authz.TypeOrganization, orgID.String()); err != nil {
		return nil, err
	}
	return s.users.ListByOrganization(ctx, s.db(), orgID)
}

// Remove detaches a user from an organization. The row loses its
// organization immediately; the policy server and the VPN catch up
// through the operations committed alongside. Returns the operation
// names so callers can watch the teardown converge.
func (s *MemberService) Remove(ctx context.Context, p identity.Principal, orgID id.OrganizationID, userID id.UserID) ([]string, error) {
	if err := s.authorize(ctx, p, authz.PermRemoveMember, authz.TypeOrganization, orgID.String()); err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, s.db(), userID)
	if err != nil {
		return nil, notFoundOr(err, "user", userID.String())
	}
	if user.OrganizationID == nil || *user.OrganizationID != orgID {
		return nil, &cperrors.InvalidInputError{Field: "user_id", Reason: "user is not a member of the organization"}
	}

	var names []string
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.SetOrganization(ctx, tx, userID, nil); err != nil {
			return err
		}
		rel, err := s.queue.EnqueueDeleteRelationship(ctx, tx, authz.Tuple{
			ObjectType:  authz.TypeOrganization,
			ObjectID:    orgID.String(),
			Relation:    authz.RelationMember,
			SubjectType: authz.TypeUser,
			SubjectID:   userID.String(),
		})
		if err != nil {
			return err
		}
		vpnInput, err := json.Marshal(operation.VpnUserInput{
			OrganizationID: orgID.String(),
			Email:          user.Email,
		})
		if err != nil {
			return err
		}
		vpn, err := s.queue.Enqueue(ctx, tx, operation.NewOperation{
			OpType:       operation.VpnRemoveUser,
			ResourceType: "organization",
			ResourceID:   orgID.String(),
			Input:        vpnInput,
		})
		if err != nil {
			return err
		}
		names = []string{rel.Name(), vpn.Name()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("removed member", "organization", orgID, "user", userID, "by", p.DisplayName())
	return names, nil
}
