// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/meridian-cloud/meridian/pkg/service"
)

type operationsHandler struct {
	svc *service.OperationService
}

// GetOperationRequest addresses one operation by its stable name,
// "operations/<uuid>".
type GetOperationRequest struct {
	Name string `json:"name"`
}

// ListOperationsRequest scopes the listing to one resource.
type ListOperationsRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}

// ListOperationsResponse carries the resource's operations, newest first.
type ListOperationsResponse struct {
	Operations []Operation `json:"operations"`
}

// CancelOperationRequest aborts a pending or running operation.
type CancelOperationRequest struct {
	Name string `json:"name"`
}

func (h operationsHandler) get(ctx context.Context, req *GetOperationRequest) (any, error) {
	op, err := h.svc.Get(ctx, PrincipalFrom(ctx), req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return wireOperation(op), nil
}

func (h operationsHandler) list(ctx context.Context, req *ListOperationsRequest) (any, error) {
	ops, err := h.svc.List(ctx, PrincipalFrom(ctx), req.ResourceType, req.ResourceID)
	if err != nil {
		return nil, toStatus(err)
	}
	res := &ListOperationsResponse{Operations: []Operation{}}
	for i := range ops {
		res.Operations = append(res.Operations, *wireOperation(&ops[i]))
	}
	return res, nil
}

func (h operationsHandler) cancel(ctx context.Context, req *CancelOperationRequest) (any, error) {
	op, err := h.svc.Cancel(ctx, PrincipalFrom(ctx), req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return wireOperation(op), nil
}

func operationsDesc(svc *service.OperationService) *grpc.ServiceDesc {
	h := operationsHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.Operations",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Get", Handler: unary("/meridian.v1.Operations/Get", h.get)},
			{MethodName: "List", Handler: unary("/meridian.v1.Operations/List", h.list)},
			{MethodName: "Cancel", Handler: unary("/meridian.v1.Operations/Cancel", h.cancel)},
		},
		Metadata: "meridian/v1/operations",
	}
}
