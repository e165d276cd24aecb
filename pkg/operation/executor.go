// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package operation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx/types"
)

// ErrorKind classifies an execution failure and decides whether the
// operation is retried.
type ErrorKind string

// Execution failure kinds. Connectivity and TemporarilyUnavailable are
// retryable; everything else fails the operation immediately.
const (
	ErrKindConnectivity           ErrorKind = "CONNECTIVITY"
	ErrKindTemporarilyUnavailable ErrorKind = "TEMPORARILY_UNAVAILABLE"
	ErrKindUnauthorized           ErrorKind = "UNAUTHORIZED"
	ErrKindInvalidInput           ErrorKind = "INVALID_INPUT"
	ErrKindNotFound               ErrorKind = "NOT_FOUND"
	ErrKindRejected               ErrorKind = "REJECTED"
	ErrKindInternal               ErrorKind = "INTERNAL"
	ErrKindNotHandled             ErrorKind = "NOT_HANDLED"
)

// Retryable reports whether a failure of this kind should be tried again.
func (k ErrorKind) Retryable() bool {
	return k == ErrKindConnectivity || k == ErrKindTemporarilyUnavailable
}

// ExecutorError is the classified outcome of a failed execution.
type ExecutorError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ExecutorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExecutorError) Unwrap() error { return e.Cause }

// NewExecutorError builds a classified execution failure.
func NewExecutorError(kind ErrorKind, cause error, format string, args ...any) *ExecutorError {
	return &ExecutorError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Executor performs operations against one external backend.
type Executor interface {
	// Handles reports whether this executor executes the given type.
	Handles(t OpType) bool
	// Execute performs the operation and returns its output document.
	// Failures should be *ExecutorError so the worker can classify them;
	// anything else is treated as ErrKindInternal.
	Execute(ctx context.Context, op *Operation) (types.JSONText, error)
}

// Dispatcher routes a claimed operation to the first registered executor
// that handles its type.
type Dispatcher struct {
	executors []Executor
}

// NewDispatcher returns a dispatcher over the given executors, consulted in
// order.
func NewDispatcher(executors ...Executor) *Dispatcher {
	return &Dispatcher{executors: executors}
}

// Register appends an executor to the routing order.
func (d *Dispatcher) Register(e Executor) {
	d.executors = append(d.executors, e)
}

// Dispatch executes op through its executor. An operation type no executor
// claims fails with ErrKindNotHandled, which is not retryable.
func (d *Dispatcher) Dispatch(ctx context.Context, op *Operation) (types.JSONText, error) {
	for _, e := range d.executors {
		if e.Handles(op.OpType) {
			return e.Execute(ctx, op)
		}
	}
	return nil, NewExecutorError(ErrKindNotHandled, nil, "no executor handles %s", op.OpType)
}

// Classify coerces any execution failure into an ExecutorError.
func Classify(err error) *ExecutorError {
	var ee *ExecutorError
	if errors.As(err, &ee) {
		return ee
	}
	return &ExecutorError{Kind: ErrKindInternal, Message: err.Error(), Cause: err}
}
