// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package pointer provides helper functions related to Go pointers.
package pointer

// Of returns a pointer to a.
func Of[A any](a A) *A {
	return &a
}

// Copy returns a pointer to a shallow copy of *a, or nil when a is nil.
func Copy[A any](a *A) *A {
	if a == nil {
		return nil
	}
	na := *a
	return &na
}

// Eq reports whether a and b are both nil or point at equal values.
func Eq[A comparable](a, b *A) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ValueOr dereferences a, falling back to def when a is nil.
func ValueOr[A any](a *A, def A) A {
	if a == nil {
		return def
	}
	return *a
}
