// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"strings"

	grpc_auth "github.com/grpc-ecosystem/go-grpc-middleware/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/meridian-cloud/meridian/pkg/cperrors"
	"github.com/meridian-cloud/meridian/pkg/identity"
)

type principalKey struct{}

// PrincipalFrom returns the principal the auth interceptor bound to the
// call, or the anonymous principal when none was bound.
func PrincipalFrom(ctx context.Context) identity.Principal {
	if p, ok := ctx.Value(principalKey{}).(identity.Principal); ok {
		return p
	}
	return identity.Anonymous
}

// authInterceptor resolves the bearer token into a principal before the
// handler runs. A missing token binds the anonymous principal; the
// services decide whether a call accepts that. A present but invalid
// token fails the call up front.
func authInterceptor(binder *identity.Binder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		token, err := bearerToken(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		p := identity.Anonymous
		if token != "" {
			p, err = binder.PrincipalFromToken(ctx, token)
			if err != nil {
				return nil, toStatus(err)
			}
		}
		return handler(context.WithValue(ctx, principalKey{}, p), req)
	}
}

// bearerToken extracts the bearer token from the call metadata. An absent
// authorization entry is not an error here; a malformed one is.
func bearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok || len(md.Get("authorization")) == 0 {
		return "", nil
	}
	token, err := grpc_auth.AuthFromMD(ctx, "bearer")
	if err != nil {
		return "", cperrors.ErrMalformedBearerToken
	}
	if strings.TrimSpace(token) == "" {
		return "", cperrors.ErrMalformedBearerToken
	}
	return token, nil
}
