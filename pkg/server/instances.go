// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/meridian-cloud/meridian/pkg/id"
	"github.com/meridian-cloud/meridian/pkg/identity"
	"github.com/meridian-cloud/meridian/pkg/service"
)

type instancesHandler struct {
	svc *service.InstanceService
}

// ListInstancesRequest scopes the listing to one project.
type ListInstancesRequest struct {
	ProjectID string `json:"project_id"`
}

// ListInstancesResponse carries the project's instances.
type ListInstancesResponse struct {
	Instances []Instance `json:"instances"`
}

// CreateInstanceRequest provisions a VM on the organization's fleet.
type CreateInstanceRequest struct {
	ProjectID   string `json:"project_id"`
	VnetID      string `json:"vnet_id"`
	Name        string `json:"name"`
	CPUCores    int    `json:"cpu_cores"`
	MemoryBytes int64  `json:"memory_bytes,string"`
	DiskBytes   int64  `json:"disk_bytes,string"`
	ImageVolume string `json:"image_volume"`
	UserData    string `json:"user_data"`
	RequestedIP string `json:"requested_ip,omitempty"`
}

// CloneInstanceRequest full-clones an instance under a new name.
type CloneInstanceRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InstanceRequest addresses one instance by id.
type InstanceRequest struct {
	ID string `json:"id"`
}

// UpdateInstanceRequest resizes an instance.
type UpdateInstanceRequest struct {
	ID          string `json:"id"`
	CPUCores    int    `json:"cpu_cores"`
	MemoryBytes int64  `json:"memory_bytes,string"`
	DiskBytes   int64  `json:"disk_bytes,string"`
}

func (h instancesHandler) list(ctx context.Context, req *ListInstancesRequest) (any, error) {
	projectID, err := id.ParseProjectID(req.ProjectID)
	if err != nil {
		return nil, toStatus(err)
	}
	instances, err := h.svc.List(ctx, PrincipalFrom(ctx), projectID)
	if err != nil {
		return nil, toStatus(err)
	}
	res := &ListInstancesResponse{Instances: []Instance{}}
	for i := range instances {
		res.Instances = append(res.Instances, *wireInstance(&instances[i]))
	}
	return res, nil
}

func (h instancesHandler) create(ctx context.Context, req *CreateInstanceRequest) (any, error) {
	projectID, err := id.ParseProjectID(req.ProjectID)
	if err != nil {
		return nil, toStatus(err)
	}
	vnetID, err := id.ParseVNetID(req.VnetID)
	if err != nil {
		return nil, toStatus(err)
	}
	instance, err := h.svc.Create(ctx, PrincipalFrom(ctx), service.CreateInstanceRequest{
		ProjectID:   projectID,
		VNetID:      vnetID,
		Name:        req.Name,
		CPUCores:    req.CPUCores,
		MemoryBytes: req.MemoryBytes,
		DiskBytes:   req.DiskBytes,
		ImageVolume: req.ImageVolume,
		UserData:    []byte(req.UserData),
		RequestedIP: req.RequestedIP,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return wireInstance(instance), nil
}

func (h instancesHandler) clone(ctx context.Context, req *CloneInstanceRequest) (any, error) {
	instanceID, err := id.ParseInstanceID(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	instance, err := h.svc.Clone(ctx, PrincipalFrom(ctx), instanceID, req.Name)
	if err != nil {
		return nil, toStatus(err)
	}
	return wireInstance(instance), nil
}

func (h instancesHandler) start(ctx context.Context, req *InstanceRequest) (any, error) {
	return h.power(ctx, req.ID, h.svc.Start)
}

func (h instancesHandler) stop(ctx context.Context, req *InstanceRequest) (any, error) {
	return h.power(ctx, req.ID, h.svc.Stop)
}

func (h instancesHandler) power(ctx context.Context, rawID string, op func(context.Context, identity.Principal, id.InstanceID) error) (any, error) {
	instanceID, err := id.ParseInstanceID(rawID)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := op(ctx, PrincipalFrom(ctx), instanceID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (h instancesHandler) delete(ctx context.Context, req *InstanceRequest) (any, error) {
	instanceID, err := id.ParseInstanceID(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := h.svc.Delete(ctx, PrincipalFrom(ctx), instanceID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (h instancesHandler) update(ctx context.Context, req *UpdateInstanceRequest) (any, error) {
	instanceID, err := id.ParseInstanceID(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	instance, err := h.svc.UpdateSpec(ctx, PrincipalFrom(ctx), instanceID, req.CPUCores, req.MemoryBytes, req.DiskBytes)
	if err != nil {
		return nil, toStatus(err)
	}
	return wireInstance(instance), nil
}

func instancesDesc(svc *service.InstanceService) *grpc.ServiceDesc {
	h := instancesHandler{svc: svc}
	return &grpc.ServiceDesc{
		ServiceName: "meridian.v1.Instances",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "List", Handler: unary("/meridian.v1.Instances/List", h.list)},
			{MethodName: "Create", Handler: unary("/meridian.v1.Instances/Create", h.create)},
			{MethodName: "Clone", Handler: unary("/meridian.v1.Instances/Clone", h.clone)},
			{MethodName: "Start", Handler: unary("/meridian.v1.Instances/Start", h.start)},
			{MethodName: "Stop", Handler: unary("/meridian.v1.Instances/Stop", h.stop)},
			{MethodName: "Delete", Handler: unary("/meridian.v1.Instances/Delete", h.delete)},
			{MethodName: "Update", Handler: unary("/meridian.v1.Instances/Update", h.update)},
		},
		Metadata: "meridian/v1/instances",
	}
}
