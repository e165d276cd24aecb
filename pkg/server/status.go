// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/id"
)

// toStatus translates a domain error into a gRPC status. Messages are
// preserved verbatim; only the code is derived from the error family.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && status.Code(err) != codes.Unknown {
		return err
	}

	var malformed *id.MalformedIDError
	switch {
	case errors.Is(err, cperrors.ErrUnauthenticated),
		errors.Is(err, cperrors.ErrMissingAuthorizationHeader),
		errors.Is(err, cperrors.ErrMalformedBearerToken),
		isUserNotRegistered(err):
		return status.Error(codes.Unauthenticated, err.Error())
	case cperrors.IsForbidden(err):
		return status.Error(codes.PermissionDenied, err.Error())
	case cperrors.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case cperrors.IsInvalidInput(err), errors.As(err, &malformed):
		return status.Error(codes.InvalidArgument, err.Error())
	case cperrors.IsConflict(err), isNotCancellable(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func isNotCancellable(err error) bool {
	var onc *cperrors.OperationNotCancellableError
	return errors.As(err, &onc)
}

func isUserNotRegistered(err error) bool {
	var unr *cperrors.UserNotRegisteredError
	return errors.As(err, &unr)
}
