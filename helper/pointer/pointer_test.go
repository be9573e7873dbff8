// Copyright (c) Greenvale Systems, Inc.
// SPDX-License-Identifier: MPL-2.0

package pointer

import (
	"testing"

	"github.com/shoenig/test/must"
)

func Test_Of(t *testing.T) {
	s := "hello"
	sPtr := Of(s)

	must.Eq(t, s, *sPtr)

	b := "bye"
	sPtr = &b
	must.NotEq(t, s, *sPtr)
}

func Test_Copy(t *testing.T) {
	must.Nil(t, Copy[int](nil))

	n := 7
	c := Copy(&n)
	must.Eq(t, 7, *c)

	n = 9
	must.Eq(t, 7, *c)
}

func Test_Eq(t *testing.T) {
	must.True(t, Eq[int](nil, nil))
	must.False(t, Eq(Of(1), nil))
	must.True(t, Eq(Of(1), Of(1)))
	must.False(t, Eq(Of(1), Of(2)))
}

func Test_ValueOr(t *testing.T) {
	must.Eq(t, 5, ValueOr[int](nil, 5))
	must.Eq(t, 3, ValueOr(Of(3), 5))
}
