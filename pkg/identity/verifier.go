// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Token verification failures, classified by which stage of the OIDC
// machinery broke.

// UnreachableProviderError reports that the issuer could not be contacted.
type UnreachableProviderError struct {
	Issuer string
	Cause  error
}

func (e *UnreachableProviderError) Error() string {
	return fmt.Sprintf("oidc provider %s unreachable: %v", e.Issuer, e.Cause)
}

func (e *UnreachableProviderError) Unwrap() error { return e.Cause }

// UnparsableMetadataError reports broken provider discovery metadata.
type UnparsableMetadataError struct {
	Issuer string
	Cause  error
}

func (e *UnparsableMetadataError) Error() string {
	return fmt.Sprintf("oidc metadata of %s unparsable: %v", e.Issuer, e.Cause)
}

func (e *UnparsableMetadataError) Unwrap() error { return e.Cause }

// UnparsableJwksError reports a key set that could not be decoded.
type UnparsableJwksError struct {
	Cause error
}

func (e *UnparsableJwksError) Error() string {
	return fmt.Sprintf("jwks unparsable: %v", e.Cause)
}

func (e *UnparsableJwksError) Unwrap() error { return e.Cause }

// MissingKidError reports a token signed with a key id absent from the key
// set.
type MissingKidError struct {
	Cause error
}

func (e *MissingKidError) Error() string {
	return fmt.Sprintf("no key matches the token's key id: %v", e.Cause)
}

func (e *MissingKidError) Unwrap() error { return e.Cause }

// InvalidTokenError reports a token that failed validation itself:
// signature, expiry, audience or missing claims.
type InvalidTokenError struct {
	Cause error
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("invalid token: %v", e.Cause)
}

func (e *InvalidTokenError) Unwrap() error { return e.Cause }

// Claims are the verified token claims the binder consumes.
type Claims struct {
	Email string
	// Expiry is the token's exp claim. Cached verification verdicts must
	// not outlive it.
	Expiry time.Time
}

// TokenVerifier validates a raw bearer token and extracts the claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (Claims, error)
}

// OIDCConfig locates the identity provider.
type OIDCConfig struct {
	// IssuerURL is the OIDC issuer; discovery metadata and JWKS are
	// fetched from it and cached by the verifier.
	IssuerURL string
	// ClientID is the expected audience. Empty skips the audience check,
	// for providers that issue plain access tokens.
	ClientID string
}

type oidcVerifier struct {
	issuer   string
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider and returns a verifier over its
// key set. Keys are fetched lazily and cached between verifications.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (TokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		if strings.Contains(err.Error(), "unable to unmarshal") || strings.Contains(err.Error(), "issuer did not match") {
			return nil, &UnparsableMetadataError{Issuer: cfg.IssuerURL, Cause: err}
		}
		return nil, &UnreachableProviderError{Issuer: cfg.IssuerURL, Cause: err}
	}
	oidcCfg := &oidc.Config{ClientID: cfg.ClientID}
	if cfg.ClientID == "" {
		oidcCfg.SkipClientIDCheck = true
	}
	return &oidcVerifier{
		issuer:   cfg.IssuerURL,
		verifier: provider.Verifier(oidcCfg),
	}, nil
}

// Verify implements TokenVerifier.
func (v *oidcVerifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Claims{}, classifyVerifyError(err)
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&claims); err != nil {
		return Claims{}, &InvalidTokenError{Cause: fmt.Errorf("could not decode claims: %w", err)}
	}
	if claims.Email == "" {
		return Claims{}, &InvalidTokenError{Cause: fmt.Errorf("token carries no email claim")}
	}
	return Claims{Email: claims.Email, Expiry: token.Expiry}, nil
}

func classifyVerifyError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "fetching keys"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "context deadline exceeded"):
		return &UnreachableProviderError{Cause: err}
	case strings.Contains(msg, "unable to parse key"), strings.Contains(msg, "decode keys"):
		return &UnparsableJwksError{Cause: err}
	case strings.Contains(msg, "no keys match"), strings.Contains(msg, "kid"):
		return &MissingKidError{Cause: err}
	}
	return &InvalidTokenError{Cause: err}
}
