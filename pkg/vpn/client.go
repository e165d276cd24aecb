// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package vpn wraps the VPN controller's management REST API in a typed
// client. Only the user membership surface the control plane drives is
// covered.
package vpn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Membership errors the executor translates rather than retries.
var (
	// ErrAlreadyInvited reports that the controller already knows the user.
	ErrAlreadyInvited = errors.New("user already invited")
	// ErrUserNotFound reports that the controller has no such user.
	ErrUserNotFound = errors.New("user not found")
)

// ServerError carries a non-2xx controller response.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("vpn controller returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the failure is worth retrying.
func (e *ServerError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config locates and authenticates the controller.
type Config struct {
	Endpoint string
	APIToken string
	Timeout  time.Duration
}

// Client is a typed VPN controller client.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New returns a client for the controller at cfg.Endpoint.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid vpn endpoint %q: %w", cfg.Endpoint, err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:  base,
		token: cfg.APIToken,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

// User is a controller-side member record.
type User struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	Group string `json:"group,omitempty"`
}

// InviteUser invites email into the organization's VPN group. Inviting an
// already-known user returns ErrAlreadyInvited.
func (c *Client) InviteUser(ctx context.Context, orgID string, user User) error {
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/orgs/%s/users", orgID), user, nil)
	var se *ServerError
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		return ErrAlreadyInvited
	}
	return err
}

// RemoveUser removes email from the organization's VPN group. Removing an
// unknown user returns ErrUserNotFound.
func (c *Client) RemoveUser(ctx context.Context, orgID, email string) error {
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/orgs/%s/users/%s", orgID, url.PathEscape(email)), nil, nil)
	var se *ServerError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	return err
}

// UpdateUser replaces the membership record of email.
func (c *Client) UpdateUser(ctx context.Context, orgID string, user User) error {
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/orgs/%s/users/%s", orgID, url.PathEscape(user.Email)), user, nil)
	var se *ServerError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	u := *c.base
	u.Path, _ = url.JoinPath(c.base.Path, path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vpn controller unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ServerError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("could not decode vpn controller response: %w", err)
		}
	}
	return nil
}
