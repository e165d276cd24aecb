// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"

	"github.com/meridian-cloud/meridian/pkg/authz"
	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/model"
)

// HypervisorService manages hypervisor registrations.
type HypervisorService struct {
	base
}

// List returns the hypervisors registered to an organization.
func (s *HypervisorService) List(ctx context.Context, p identity.Principal, orgID id.OrganizationID) ([]model.Hypervisor, error) {
	if err := s.authorize(ctx, p, authz.PermViewOrganization, authz.TypeOrganization, orgID.String()); err != nil {
		return nil, err
	}
	return s.hypervisors.ListByOrganization(ctx, s.db(), orgID)
}

// RegisterHypervisorRequest is the input of Register.
type RegisterHypervisorRequest struct {
	OrganizationID id.OrganizationID
	ZoneID         id.ZoneID
	URL            string
	AuthToken      string
	StorageName    string
}

// Register records a hypervisor under an organization and zone.
func (s *HypervisorService) Register(ctx context.Context, p identity.Principal, req RegisterHypervisorRequest) (*model.Hypervisor, error) {
	if err := s.authorize(ctx, p, authz.PermRegisterHypervisor, authz.TypeOrganization, req.OrganizationID.String()); err != nil {
		return nil, err
	}
	if req.URL == "" {
		return nil, &cperrors.InvalidInputError{Field: "url", Reason: "must not be empty"}
	}
	if _, err := s.zones.FindByID(ctx, s.db(), req.ZoneID); err != nil {
		return nil, notFoundOr(err, "zone", req.ZoneID.String())
	}

	hv, err := s.hypervisors.Create(ctx, s.db(), &model.Hypervisor{
		ID:             id.NewHypervisorID(),
		ZoneID:         req.ZoneID,
		OrganizationID: req.OrganizationID,
		URL:            req.URL,
		AuthToken:      req.AuthToken,
		StorageName:    req.StorageName,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("registered hypervisor", "hypervisor", hv.ID, "zone", req.ZoneID, "by", p.DisplayName())
	return hv, nil
}

// Detach removes a hypervisor registration. Instances still running on it
// block the detach.
func (s *HypervisorService) Detach(ctx context.Context, p identity.Principal, hvID id.HypervisorID) error {
	hv, err := s.hypervisors.FindByID(ctx, s.db(), hvID)
	if err != nil {
		return notFoundOr(err, "hypervisor", hvID.String())
	}
	if err := s.authorize(ctx, p, authz.PermRegisterHypervisor, authz.TypeOrganization, hv.OrganizationID.String()); err != nil {
		return err
	}

	instances, err := s.instances.ListByHypervisor(ctx, s.db(), hvID)
	if err != nil {
		return err
	}
	if len(instances) > 0 {
		return &cperrors.NetworkHasAttachedInstancesError{Network: hvID.String()}
	}
	if err := s.hypervisors.Delete(ctx, s.db(), hvID); err != nil {
		return err
	}
	s.log.Info("detached hypervisor", "hypervisor", hvID, "by", p.DisplayName())
	return nil
}
