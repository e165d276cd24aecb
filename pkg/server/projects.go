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

type projectsHandler struct {
	svc *service.ProjectService
}

// ListProjectsRequest scopes the listing to one organization.
type ListProjectsRequest struct {
	OrganizationID string `json:"organization_id"`
}

// ListProjectsResponse carries the organization's projects.
type ListProjectsResponse struct {
	Projects []Project `json:"projects"`
}

// CreateProjectRequest creates a project under an organization.
type CreateProjectRequest struct {
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
}

func (h projectsHandler) list(ctx context.Context, req *ListProjectsRequest) (any, error) {
	orgID, err := id.ParseOrganizationID(req.OrganizationID)
	if err != nil {
		return nil, toStatus(err)
	}
	projects, err := h.svc.List(ctx, PrincipalFrom(ctx), orgID)
	if err != nil {
		return nil, toStatus(err)
	}
	res := &ListProjectsResponse{Projects: []Project{}}
	for i := range projects {
		res.Projects = append(res.Projects, *wireProject(&projects[i]))
	}
	return res, nil
}

func (h projectsHandler) create(ctx context.Context, req *CreateProjectRequest) (any, error) {
	orgID, err := id.ParseOrganizationID(req.OrganizationID)
	if err != nil {
		return nil, toStatus(err)
	}
	project, err := h.svc.Create(ctx, PrincipalFrom(ctx), orgID, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return wireProject(project), nil
}

func projectsDesc(svc *service.ProjectService) *grpc.ServiceDesc {
	h := projectsHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.Projects",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "List", Handler: unary("/meridian.v1.Projects/List", h.list)},
			{MethodName: "Create", Handler: unary("/meridian.v1.Projects/Create", h.create)},
		},
		Metadata: "meridian/v1/projects",
	}
}
