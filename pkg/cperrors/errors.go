// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package cperrors carries the control plane's error taxonomy. Services
// translate persistence conflicts and backend noise into these types; the
// gRPC facade translates them into status codes.
package cperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions that carry no further context.
var (
	// ErrUnauthenticated is returned when no usable credential accompanies
	// a call that requires one.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMissingAuthorizationHeader is returned when the authorization
	// metadata entry is absent entirely.
	ErrMissingAuthorizationHeader = errors.New("missing authorization header")
	// ErrMalformedBearerToken is returned when the authorization metadata
	// entry is present but not a well-formed bearer token.
	ErrMalformedBearerToken = errors.New("malformed bearer token")
)

// NotFoundError reports that a named resource does not exist.
type NotFoundError struct {
	Resource string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Name)
}

// NewNotFound returns a NotFoundError for the given resource kind and name.
func NewNotFound(resource, name string) *NotFoundError {
	return &NotFoundError{Resource: resource, Name: name}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ForbiddenError reports a denied authorization check.
type ForbiddenError struct {
	Permission string
	Resource   string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("permission %q denied on %s", e.Permission, e.Resource)
}

// IsForbidden reports whether err is (or wraps) a ForbiddenError.
func IsForbidden(err error) bool {
	var f *ForbiddenError
	return errors.As(err, &f)
}

// UserNotRegisteredError reports that a verified token maps to no local
// user or service account.
type UserNotRegisteredError struct {
	Email string
}

func (e *UserNotRegisteredError) Error() string {
	return fmt.Sprintf("user %q is not registered", e.Email)
}

// SlugAlreadyExistsError reports a duplicate globally-unique slug.
type SlugAlreadyExistsError struct {
	Slug string
}

func (e *SlugAlreadyExistsError) Error() string {
	return fmt.Sprintf("slug %q already exists", e.Slug)
}

// InvalidInputError reports a request field that fails validation.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// OperationNotCancellableError refuses a cancel on an already-terminal
// operation.
type OperationNotCancellableError struct {
	Name   string
	Status string
}

func (e *OperationNotCancellableError) Error() string {
	return fmt.Sprintf("%s is %s and can no longer be cancelled", e.Name, e.Status)
}

// InvalidCidrError reports a subnet specification outside the accepted range.
type InvalidCidrError struct {
	Cidr   string
	Reason string
}

func (e *InvalidCidrError) Error() string {
	return fmt.Sprintf("invalid CIDR %q: %s", e.Cidr, e.Reason)
}

// IPAlreadyInUseError reports an address that is held by another allocation.
type IPAlreadyInUseError struct {
	Address string
}

func (e *IPAlreadyInUseError) Error() string {
	return fmt.Sprintf("ip address %s already in use", e.Address)
}

// IPNotInRangeError reports an address outside its VNet's subnet.
type IPNotInRangeError struct {
	Address string
	Subnet  string
}

func (e *IPNotInRangeError) Error() string {
	return fmt.Sprintf("ip address %s is not in subnet %s", e.Address, e.Subnet)
}

// NoAvailableIPsError reports an exhausted address pool.
type NoAvailableIPsError struct {
	VNet string
}

func (e *NoAvailableIPsError) Error() string {
	return fmt.Sprintf("no available ip addresses in vnet %s", e.VNet)
}

// VpcHasVnetsError refuses a VPC deletion while VNets remain.
type VpcHasVnetsError struct {
	VPC string
}

func (e *VpcHasVnetsError) Error() string {
	return fmt.Sprintf("vpc %s still has vnets", e.VPC)
}

// VnetHasAddressesError refuses a VNet deletion while addresses are in use.
type VnetHasAddressesError struct {
	VNet string
}

func (e *VnetHasAddressesError) Error() string {
	return fmt.Sprintf("vnet %s still has allocated addresses", e.VNet)
}

// NetworkHasAttachedInstancesError refuses a network teardown while
// instances are attached.
type NetworkHasAttachedInstancesError struct {
	Network string
}

func (e *NetworkHasAttachedInstancesError) Error() string {
	return fmt.Sprintf("network %s still has attached instances", e.Network)
}

// AuthorizationServerError wraps a failure of the external policy server.
type AuthorizationServerError struct {
	Cause error
}

func (e *AuthorizationServerError) Error() string {
	return fmt.Sprintf("authorization server: %v", e.Cause)
}

func (e *AuthorizationServerError) Unwrap() error { return e.Cause }

// DatabaseError wraps an unclassified persistence failure.
type DatabaseError struct {
	Cause error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database: %v", e.Cause)
}

func (e *DatabaseError) Unwrap() error { return e.Cause }

// InternalError wraps a failure that has no domain meaning.
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal: %s", e.Message)
}

func (e *InternalError) Unwrap() error { return e.Cause }

// IsInvalidInput reports whether err belongs to the input-validation family.
func IsInvalidInput(err error) bool {
	var (
		field *InvalidInputError
		cidr  *InvalidCidrError
		slug  *SlugAlreadyExistsError
		used  *IPAlreadyInUseError
		rng   *IPNotInRangeError
		dry   *NoAvailableIPsError
	)
	return errors.As(err, &field) || errors.As(err, &cidr) || errors.As(err, &slug) ||
		errors.As(err, &used) || errors.As(err, &rng) || errors.As(err, &dry)
}

// IsConflict reports whether err refuses a deletion because of remaining
// children.
func IsConflict(err error) bool {
	var (
		vnets *VpcHasVnetsError
		addrs *VnetHasAddressesError
		insts *NetworkHasAttachedInstancesError
	)
	return errors.As(err, &vnets) || errors.As(err, &addrs) || errors.As(err, &insts)
}
