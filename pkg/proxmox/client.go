// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package proxmox wraps the hypervisor's HTTP API in a typed client. Every
// response is unwrapped from the `{"data": ...}` envelope and every failure
// is classified into the typed errors of this package, which the services
// and the instance state machine use to decide between retry, rollback and
// terminal failure.
package proxmox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Config locates and authenticates the hypervisor API.
type Config struct {
	// Endpoint is the API base, e.g. https://pve.example.com:8006.
	Endpoint string
	// TokenID is the API token id, e.g. root@pam!meridian.
	TokenID string
	// Secret is the API token secret.
	Secret string
	// IdpHosts lists identity-provider hostnames; a redirect to one of
	// them is classified as GuardedByIdp.
	IdpHosts []string
	// Timeout bounds a single API call. Task polling applies its own
	// overall deadline on top.
	Timeout time.Duration
	// InsecureSkipVerify disables TLS verification for self-signed lab
	// clusters.
	InsecureSkipVerify bool
}

// Client is a typed hypervisor API client.
type Client struct {
	base     *url.URL
	auth     string
	http     *http.Client
	idpHosts map[string]struct{}
	log      logr.Logger
}

var _ API = &Client{}

// NewClient returns a client for the hypervisor at cfg.Endpoint.
func NewClient(cfg Config, log logr.Logger) (*Client, error) {
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid hypervisor endpoint %q: %w", cfg.Endpoint, err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	idpHosts := make(map[string]struct{}, len(cfg.IdpHosts))
	for _, h := range cfg.IdpHosts {
		idpHosts[h] = struct{}{}
	}
	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- lab clusters only, opt-in
		transport = t
	}
	return &Client{
		base: base,
		auth: fmt.Sprintf("PVEAPIToken=%s=%s", cfg.TokenID, cfg.Secret),
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			// Redirects carry classification meaning and must surface.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		idpHosts: idpHosts,
		log:      log.WithName("proxmox"),
	}, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// get performs a GET and decodes the data envelope into result.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, result)
}

// post performs a form-encoded POST and decodes the data envelope into
// result when given.
func (c *Client) post(ctx context.Context, path string, form url.Values, result any) error {
	return c.do(ctx, http.MethodPost, path, nil, form, result)
}

// put performs a form-encoded PUT.
func (c *Client) put(ctx context.Context, path string, form url.Values) error {
	return c.do(ctx, http.MethodPut, path, nil, form, nil)
}

// delete performs a DELETE and decodes the data envelope into result when
// given.
func (c *Client) delete(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, result)
}

func (c *Client) do(ctx context.Context, method, path string, query, form url.Values, result any) error {
	u := *c.base
	u.Path, _ = url.JoinPath(c.base.Path, "/api2/json", path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.auth)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ConnectivityError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ConnectivityError{Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := classifyResponse(resp.StatusCode, resp.Header, raw, c.idpHosts)
		c.log.V(1).Info("hypervisor call failed", "method", method, "path", path,
			"status", resp.StatusCode, "error", err)
		return err
	}
	if result == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("could not decode hypervisor response for %s: %w", path, err)
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("could not decode hypervisor payload for %s: %w", path, err)
	}
	return nil
}

// decodeQuotedInt exists for payloads that arrive double-encoded, which the
// next-id endpoint does: data is the string "100", not the number 100.
func decodeQuotedInt(raw json.RawMessage) (int, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var n int
		if _, err := fmt.Sscanf(asString, "%d", &n); err != nil {
			return 0, fmt.Errorf("unparsable numeric payload %q", asString)
		}
		return n, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("unparsable numeric payload %s", bytes.TrimSpace(raw))
	}
	return n, nil
}
