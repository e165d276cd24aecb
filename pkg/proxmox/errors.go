// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package proxmox

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
)

// The hypervisor reports most guest-level conditions as 500s with a
// well-known first body line. These patterns are the authoritative mapping
// from that noise to typed errors; the capture group holds the VM id where
// one applies.
var (
	missingAgentPattern = regexp.MustCompile(`^No QEMU guest agent configured\n$`)
	vmNotFoundPattern   = regexp.MustCompile(`^Configuration file '.*/qemu-server/(\d+)\.conf' does not exist\n$`)
	vmNotRunningPattern = regexp.MustCompile(`^VM (\d+) is not running\n$`)
)

// InvalidError reports a request the hypervisor rejected as malformed.
type InvalidError struct {
	Message     string
	FieldErrors map[string]string
}

func (e *InvalidError) Error() string {
	if len(e.FieldErrors) == 0 {
		return fmt.Sprintf("hypervisor rejected request: %s", e.Message)
	}
	return fmt.Sprintf("hypervisor rejected request: %s (%d field errors)", e.Message, len(e.FieldErrors))
}

// UnauthorizedError reports refused API credentials.
type UnauthorizedError struct{}

func (e *UnauthorizedError) Error() string { return "hypervisor refused credentials" }

// GuardedByIdpError reports a redirect to a known identity provider, which
// means the API endpoint sits behind an authentication proxy the token
// cannot pass.
type GuardedByIdpError struct {
	Location string
}

func (e *GuardedByIdpError) Error() string {
	return fmt.Sprintf("hypervisor endpoint is guarded by an identity provider at %s", e.Location)
}

// UnexpectedRedirectError reports a redirect to anywhere else.
type UnexpectedRedirectError struct {
	Location string
}

func (e *UnexpectedRedirectError) Error() string {
	return fmt.Sprintf("hypervisor redirected unexpectedly to %s", e.Location)
}

// MissingAgentError reports a guest without a configured QEMU agent.
type MissingAgentError struct{}

func (e *MissingAgentError) Error() string { return "no QEMU guest agent configured" }

// VmNotFoundError reports an operation on a VM id the hypervisor does not
// know.
type VmNotFoundError struct {
	VMID int
}

func (e *VmNotFoundError) Error() string { return fmt.Sprintf("vm %d not found", e.VMID) }

// VmNotRunningError reports an operation that requires a running guest.
type VmNotRunningError struct {
	VMID int
}

func (e *VmNotRunningError) Error() string { return fmt.Sprintf("vm %d is not running", e.VMID) }

// InternalError reports an unclassified hypervisor failure.
type InternalError struct {
	StatusCode int
	Message    string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("hypervisor error (%d): %s", e.StatusCode, e.Message)
}

// ConnectivityError wraps a transport-level failure; no response was
// received at all.
type ConnectivityError struct {
	Cause error
}

func (e *ConnectivityError) Error() string { return fmt.Sprintf("hypervisor unreachable: %v", e.Cause) }

func (e *ConnectivityError) Unwrap() error { return e.Cause }

// classifyResponse turns a non-2xx hypervisor response into a typed error.
// idpHosts identifies redirect targets that mean "guarded by identity
// provider" rather than a misconfigured endpoint.
func classifyResponse(statusCode int, header http.Header, body []byte, idpHosts map[string]struct{}) error {
	switch {
	case statusCode >= 300 && statusCode < 400:
		location := header.Get("Location")
		if u, err := url.Parse(location); err == nil {
			if _, known := idpHosts[u.Hostname()]; known {
				return &GuardedByIdpError{Location: location}
			}
		}
		return &UnexpectedRedirectError{Location: location}
	case statusCode == http.StatusBadRequest:
		return &InvalidError{Message: string(body)}
	case statusCode == http.StatusUnauthorized:
		return &UnauthorizedError{}
	case statusCode >= 500:
		if missingAgentPattern.Match(body) {
			return &MissingAgentError{}
		}
		if m := vmNotFoundPattern.FindSubmatch(body); m != nil {
			id, _ := strconv.Atoi(string(m[1]))
			return &VmNotFoundError{VMID: id}
		}
		if m := vmNotRunningPattern.FindSubmatch(body); m != nil {
			id, _ := strconv.Atoi(string(m[1]))
			return &VmNotRunningError{VMID: id}
		}
	}
	return &InternalError{StatusCode: statusCode, Message: string(body)}
}

// IsVmNotFound reports whether err is (or wraps) a VmNotFoundError.
func IsVmNotFound(err error) bool {
	var nf *VmNotFoundError
	return errors.As(err, &nf)
}

// IsVmNotRunning reports whether err is (or wraps) a VmNotRunningError.
func IsVmNotRunning(err error) bool {
	var nr *VmNotRunningError
	return errors.As(err, &nr)
}

// IsRetryable reports whether the failure is transient from the caller's
// point of view: transport failures and unclassified 5xx noise.
func IsRetryable(err error) bool {
	var (
		conn     *ConnectivityError
		internal *InternalError
	)
	return errors.As(err, &conn) || errors.As(err, &internal)
}
