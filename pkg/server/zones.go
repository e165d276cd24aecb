// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/meridian-cloud/meridian/pkg/service"
)

type zonesHandler struct {
	svc *service.ZoneService
}

// ListZonesRequest has no fields.
type ListZonesRequest struct{}

// ListZonesResponse carries all placement zones.
type ListZonesResponse struct {
	Zones []Zone `json:"zones"`
}

// CreateZoneRequest creates a placement zone.
type CreateZoneRequest struct {
	Name string `json:"name"`
}

func (h zonesHandler) list(ctx context.Context, _ *ListZonesRequest) (any, error) {
	zones, err := h.svc.List(ctx, PrincipalFrom(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	res := &ListZonesResponse{Zones: []Zone{}}
	for i := range zones {
		res.Zones = append(res.Zones, *wireZone(&zones[i]))
	}
	return res, nil
}

func (h zonesHandler) create(ctx context.Context, req *CreateZoneRequest) (any, error) {
	zone, err := h.svc.Create(ctx, PrincipalFrom(ctx), req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return wireZone(zone), nil
}

func zonesDesc(svc *service.ZoneService) *grpc.ServiceDesc {
	h := zonesHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.Zones",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "List", Handler: unary("/meridian.v1.Zones/List", h.list)},
			{MethodName: "Create", Handler: unary("/meridian.v1.Zones/Create", h.create)},
		},
		Metadata: "meridian/v1/zones",
	}
}
