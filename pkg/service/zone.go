// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/model"
)

// ZoneService manages placement zones. Zones are platform-level objects;
// creating one is restricted to service accounts.
type ZoneService struct {
	base
}

// List returns all zones.
func (s *ZoneService) List(ctx context.Context, p identity.Principal) ([]model.Zone, error) {
	if p.IsAnonymous() {
		return nil, cperrors.ErrUnauthenticated
	}
	return s.zones.List(ctx, s.db())
}

// Create inserts a zone.
func (s *ZoneService) Create(ctx context.Context, p identity.Principal, name string) (*model.Zone, error) {
	if p.Kind != identity.KindServiceAccount {
		return nil, &cperrors.ForbiddenError{Permission: "create_zone", Resource: "platform"}
	}
	if name == "" {
		return nil, &cperrors.InvalidInputError{Field: "name", Reason: "must not be empty"}
	}
	zone, err := s.zones.Create(ctx, s.db(), &model.Zone{ID: id.NewZoneID(), Name: name})
	if err != nil {
		return nil, err
	}
	s.log.Info("created zone", "zone", zone.ID, "name", name)
	return zone, nil
}
