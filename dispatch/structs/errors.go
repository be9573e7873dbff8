// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package structs

import (
	"errors"
	"fmt"
)

// ErrorKind partitions every failure the core can surface. The HTTP agent
// maps kinds onto status codes; callers branch on kind, never on message
// text.
type ErrorKind string

const (
	// ErrKindNotFound means the identified entity is absent.
	ErrKindNotFound ErrorKind = "not_found"

	// ErrKindValidation means the request is malformed or violates a field
	// constraint.
	ErrKindValidation ErrorKind = "validation"

	// ErrKindStateRejection means the target entity is in a state that
	// forbids the operation.
	ErrKindStateRejection ErrorKind = "state_rejection"

	// ErrKindInfeasible means the solver could not place a job without hard
	// violations within the budget.
	ErrKindInfeasible ErrorKind = "infeasible"

	// ErrKindTransient means the caller may retry: contention, pool
	// exhaustion, timeout.
	ErrKindTransient ErrorKind = "transient"
)

// Error is the structured failure shape surfaced to callers. Code is stable
// and machine readable; Message is for humans; Details carries optional
// context such as constraint violation lists.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details []string  `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on kind so errors.Is(err, &Error{Kind: ...}) works for
// kind-level branching.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// NewErrNotFound builds a not-found error for an entity kind and id.
func NewErrNotFound(entity, id string) *Error {
	return &Error{
		Kind:    ErrKindNotFound,
		Code:    entity + "_not_found",
		Message: fmt.Sprintf("%s %q not found", entity, id),
	}
}

// NewErrValidation builds a field-constraint failure.
func NewErrValidation(code, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    ErrKindValidation,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewErrStateRejection builds an illegal-state failure.
func NewErrStateRejection(code, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    ErrKindStateRejection,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewErrInfeasible builds a solver infeasibility failure with the violated
// constraints attached.
func NewErrInfeasible(code, msg string, violations []string) *Error {
	return &Error{
		Kind:    ErrKindInfeasible,
		Code:    code,
		Message: msg,
		Details: violations,
	}
}

// NewErrTransient builds a retryable failure.
func NewErrTransient(code, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    ErrKindTransient,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindOf extracts the ErrorKind from err, defaulting to transient for
// unrecognized errors so unexpected faults stay retry-safe at the edge.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindTransient
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
