// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/service"
)

type hypervisorsHandler struct {
	svc *service.HypervisorService
}

// ListHypervisorsRequest scopes the listing to one organization.
type ListHypervisorsRequest struct {
	OrganizationID string `json:"organization_id"`
}

// ListHypervisorsResponse carries the organization's fleet.
type ListHypervisorsResponse struct {
	Hypervisors []Hypervisor `json:"hypervisors"`
}

// RegisterHypervisorRequest attaches a hypervisor to an organization and
// zone. The auth token is accepted here and never echoed back.
type RegisterHypervisorRequest struct {
	OrganizationID string `json:"organization_id"`
	ZoneID         string `json:"zone_id"`
	URL            string `json:"url"`
	AuthToken      string `json:"auth_token"`
	StorageName    string `json:"storage_name"`
}

// DetachHypervisorRequest removes a hypervisor from the fleet.
type DetachHypervisorRequest struct {
	ID string `json:"id"`
}

// Empty is the response of methods that return nothing.
type Empty struct{}

func (h hypervisorsHandler) list(ctx context.Context, req *ListHypervisorsRequest) (any, error) {
	orgID, err := id.ParseOrganizationID(req.OrganizationID)
	if err != nil {
		return nil, toStatus(err)
	}
	fleet, err := h.svc.List(ctx, PrincipalFrom(ctx), orgID)
	if err != nil {
		return nil, toStatus(err)
	}
	res := &ListHypervisorsResponse{Hypervisors: []Hypervisor{}}
	for i := range fleet {
		res.Hypervisors = append(res.Hypervisors, *wireHypervisor(&fleet[i]))
	}
	return res, nil
}

func (h hypervisorsHandler) register(ctx context.Context, req *RegisterHypervisorRequest) (any, error) {
	orgID, err := id.ParseOrganizationID(req.OrganizationID)
	if err != nil {
		return nil, toStatus(err)
	}
	zoneID, err := id.ParseZoneID(req.ZoneID)
	if err != nil {
		return nil, toStatus(err)
	}
	hv, err := h.svc.Register(ctx, PrincipalFrom(ctx), service.RegisterHypervisorRequest{
		OrganizationID: orgID,
		ZoneID:         zoneID,
		URL:            req.URL,
		AuthToken:      req.AuthToken,
		StorageName:    req.StorageName,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return wireHypervisor(hv), nil
}

func (h hypervisorsHandler) detach(ctx context.Context, req *DetachHypervisorRequest) (any, error) {
	hvID, err := id.ParseHypervisorID(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := h.svc.Detach(ctx, PrincipalFrom(ctx), hvID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func hypervisorsDesc(svc *service.HypervisorService) *grpc.ServiceDesc {
	h := hypervisorsHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.Hypervisors",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "List", Handler: unary("/meridian.v1.Hypervisors/List", h.list)},
			{MethodName: "Register", Handler: unary("/meridian.v1.Hypervisors/Register", h.register)},
			{MethodName: "Detach", Handler: unary("/meridian.v1.Hypervisors/Detach", h.detach)},
		},
		Metadata: "meridian/v1/hypervisors",
	}
}
