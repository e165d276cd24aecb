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

type invitationsHandler struct {
	svc *service.InvitationService
}

// ListInvitationsRequest scopes the listing. An empty organization id
// lists the caller's own pending invitations.
type ListInvitationsRequest struct {
	OrganizationID string `json:"organization_id,omitempty"`
}

// ListInvitationsResponse carries the matching invitations.
type ListInvitationsResponse struct {
	Invitations []Invitation `json:"invitations"`
}

// CreateInvitationRequest invites an email address into an organization.
type CreateInvitationRequest struct {
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
}

// AnswerInvitationRequest accepts or declines an invitation.
type AnswerInvitationRequest struct {
	ID     string `json:"id"`
	Accept bool   `json:"accept"`
}

func (h invitationsHandler) list(ctx context.Context, req *ListInvitationsRequest) (any, error) {
	p := PrincipalFrom(ctx)
	var (
		invitations []Invitation
		err         error
	)
	if req.OrganizationID == "" {
		mine, lerr := h.svc.ListMine(ctx, p)
		err = lerr
		for i := range mine {
			invitations = append(invitations, *wireInvitation(&mine[i]))
		}
	} else {
		orgID, perr := id.ParseOrganizationID(req.OrganizationID)
		if perr != nil {
			return nil, toStatus(perr)
		}
		all, lerr := h.svc.List(ctx, p, orgID)
		err = lerr
		for i := range all {
			invitations = append(invitations, *wireInvitation(&all[i]))
		}
	}
	if err != nil {
		return nil, toStatus(err)
	}
	if invitations == nil {
		invitations = []Invitation{}
	}
	return &ListInvitationsResponse{Invitations: invitations}, nil
}

func (h invitationsHandler) create(ctx context.Context, req *CreateInvitationRequest) (any, error) {
	orgID, err := id.ParseOrganizationID(req.OrganizationID)
	if err != nil {
		return nil, toStatus(err)
	}
	inv, err := h.svc.Create(ctx, PrincipalFrom(ctx), orgID, req.Email)
	if err != nil {
		return nil, toStatus(err)
	}
	return wireInvitation(inv), nil
}

func (h invitationsHandler) answer(ctx context.Context, req *AnswerInvitationRequest) (any, error) {
	invID, err := id.ParseInvitationID(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	inv, err := h.svc.Answer(ctx, PrincipalFrom(ctx), invID, req.Accept)
	if err != nil {
		return nil, toStatus(err)
	}
	return wireInvitation(inv), nil
}

func invitationsDesc(svc *service.InvitationService) *grpc.ServiceDesc {
	h := invitationsHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.Invitations",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "List", Handler: unary("/meridian.v1.Invitations/List", h.list)},
			{MethodName: "Create", Handler: unary("/meridian.v1.Invitations/Create", h.create)},
			{MethodName: "Answer", Handler: unary("/meridian.v1.Invitations/Answer", h.answer)},
		},
		Metadata: "meridian/v1/invitations",
	}
}

type membersHandler struct {
	svc *service.MemberService
}

// ListMembersRequest scopes the listing to one organization.
type ListMembersRequest struct {
	OrganizationID string `json:"organization_id"`
}

// ListMembersResponse carries the organization's users.
type ListMembersResponse struct {
	Members []User `json:"members"`
}

// RemoveMemberRequest detaches a user from an organization.
type RemoveMemberRequest struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
}

// RemoveMemberResponse returns the names of the teardown operations so
// the caller can watch them converge.
type RemoveMemberResponse struct {
	OperationNames []string `json:"operation_names"`
}

func (h membersHandler) list(ctx context.Context, req *ListMembersRequest) (any, error) {
	orgID, err := id.ParseOrganizationID(req.OrganizationID)
	if err != nil {
		return nil, toStatus(err)
	}
	users, err := h.svc.List(ctx, PrincipalFrom(ctx), orgID)
	if err != nil {
		return nil, toStatus(err)
	}
	res := &ListMembersResponse{Members: []User{}}
	for i := range users {
		res.Members = append(res.Members, wireUser(&users[i]))
	}
	return res, nil
}

func (h membersHandler) remove(ctx context.Context, req *RemoveMemberRequest) (any, error) {
	orgID, err := id.ParseOrganizationID(req.OrganizationID)
	if err != nil {
		return nil, toStatus(err)
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	names, err := h.svc.Remove(ctx, PrincipalFrom(ctx), orgID, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RemoveMemberResponse{OperationNames: names}, nil
}

func membersDesc(svc *service.MemberService) *grpc.ServiceDesc {
	h := membersHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.OrganizationMembers",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "List", Handler: unary("/meridian.v1.OrganizationMembers/List", h.list)},
			{MethodName: "Remove", Handler: unary("/meridian.v1.OrganizationMembers/Remove", h.remove)},
		},
		Metadata: "meridian/v1/members",
	}
}
