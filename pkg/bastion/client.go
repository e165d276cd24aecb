// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package bastion wraps the SSH bastion's management REST API in a typed
// client. An agent represents a reachable instance; a connection grants a
// user SSH access through the bastion to one agent.
package bastion

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

// Errors the executor treats as already-converged rather than failures.
var (
	// ErrAgentExists reports that an agent for the instance already exists.
	ErrAgentExists = errors.New("agent already exists")
	// ErrAgentNotFound reports that the bastion has no such agent.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrConnectionExists reports an already-present user connection.
	ErrConnectionExists = errors.New("connection already exists")
	// ErrConnectionNotFound reports a missing user connection.
	ErrConnectionNotFound = errors.New("connection not found")
)

// ServerError carries a non-2xx bastion response.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("bastion returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the failure is worth retrying.
func (e *ServerError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config locates and authenticates the bastion.
type Config struct {
	Endpoint string
	APIToken string
	Timeout  time.Duration
}

// Client is a typed bastion client.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New returns a client for the bastion at cfg.Endpoint.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid bastion endpoint %q: %w", cfg.Endpoint, err)
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

// Agent registers an instance with the bastion.
type Agent struct {
	InstanceID string `json:"instance_id"`
	Name       string `json:"name"`
	IPv4       string `json:"ip_v4,omitempty"`
}

// Connection grants a user SSH access to one agent.
type Connection struct {
	InstanceID string `json:"instance_id"`
	UserEmail  string `json:"user_email"`
	Port       int    `json:"port,omitempty"`
}

// CreateAgent registers an agent for an instance.
func (c *Client) CreateAgent(ctx context.Context, agent Agent) error {
	err := c.do(ctx, http.MethodPost, "/api/v1/agents", agent)
	var se *ServerError
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		return ErrAgentExists
	}
	return err
}

// DeleteAgent removes the agent of an instance along with its connections.
func (c *Client) DeleteAgent(ctx context.Context, instanceID string) error {
	err := c.do(ctx, http.MethodDelete, "/api/v1/agents/"+url.PathEscape(instanceID), nil)
	var se *ServerError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return ErrAgentNotFound
	}
	return err
}

// CreateConnection grants a user access to an instance's agent.
func (c *Client) CreateConnection(ctx context.Context, conn Connection) error {
	err := c.do(ctx, http.MethodPost, "/api/v1/connections", conn)
	var se *ServerError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusConflict:
			return ErrConnectionExists
		case http.StatusNotFound:
			return ErrAgentNotFound
		}
	}
	return err
}

// DeleteConnection revokes a user's access to an instance's agent.
func (c *Client) DeleteConnection(ctx context.Context, instanceID, userEmail string) error {
	path := fmt.Sprintf("/api/v1/connections/%s/%s", url.PathEscape(instanceID), url.PathEscape(userEmail))
	err := c.do(ctx, http.MethodDelete, path, nil)
	var se *ServerError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return ErrConnectionNotFound
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any) error {
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
		return fmt.Errorf("bastion unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ServerError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}
