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

type organizationsHandler struct {
	svc *service.OrganizationService
}

// ListOrganizationsRequest has no fields; the result is scoped by the
// caller's visibility.
type ListOrganizationsRequest struct{}

// ListOrganizationsResponse carries the visible organizations.
type ListOrganizationsResponse struct {
	Organizations []Organization `json:"organizations"`
}

// CreateOrganizationRequest creates a tenant, optionally under a parent.
type CreateOrganizationRequest struct {
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	ParentID *string `json:"parent_id,omitempty"`
}

func (h organizationsHandler) list(ctx context.Context, _ *ListOrganizationsRequest) (any, error) {
	orgs, err := h.svc.List(ctx, PrincipalFrom(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	res := &ListOrganizationsResponse{Organizations: []Organization{}}
	for i := range orgs {
		res.Organizations = append(res.Organizations, *wireOrganization(&orgs[i]))
	}
	return res, nil
}

func (h organizationsHandler) create(ctx context.Context, req *CreateOrganizationRequest) (any, error) {
	in := service.CreateOrganizationRequest{Name: req.Name, Slug: req.Slug}
	if req.ParentID != nil {
		parentID, err := id.ParseOrganizationID(*req.ParentID)
		if err != nil {
			return nil, toStatus(err)
		}
		in.ParentID = &parentID
	}
	org, err := h.svc.Create(ctx, PrincipalFrom(ctx), in)
	if err != nil {
		return nil, toStatus(err)
	}
	return wireOrganization(org), nil
}

func organizationsDesc(svc *service.OrganizationService) *grpc.ServiceDesc {
	h := organizationsHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.Organizations",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "List", Handler: unary("/meridian.v1.Organizations/List", h.list)},
			{MethodName: "Create", Handler: unary("/meridian.v1.Organizations/Create", h.create)},
		},
		Metadata: "meridian/v1/organizations",
	}
}
