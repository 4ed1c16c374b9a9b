// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

const maxUint64 uint64 = math.MaxUint64

func TestAdd(t *testing.T) {
	require := require.New(t)

	sum, err := Add(0, maxUint64)
	require.NoError(err)
	require.Equal(maxUint64, sum)

	_, err = Add(1, maxUint64)
	require.ErrorIs(err, ErrOverflow)

	_, err = Add(maxUint64, maxUint64)
	require.ErrorIs(err, ErrOverflow)
}

func TestSub(t *testing.T) {
	require := require.New(t)

	got, err := Sub(uint64(2), 1)
	require.NoError(err)
	require.Equal(uint64(1), got)

	_, err = Sub(uint64(1), 2)
	require.ErrorIs(err, ErrUnderflow)
}

func TestMul(t *testing.T) {
	require := require.New(t)

	got, err := Mul(maxUint64, 1)
	require.NoError(err)
	require.Equal(maxUint64, got)

	_, err = Mul(maxUint64/2+1, 2)
	require.ErrorIs(err, ErrOverflow)
}

func TestAbsDiff(t *testing.T) {
	require := require.New(t)

	require.Equal(maxUint64, AbsDiff(0, maxUint64))
	require.Equal(uint64(3), AbsDiff(uint64(5), 2))
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name        string
		a, b, c     uint64
		expected    uint64
		expectedErr error
	}{
		{name: "simple", a: 10, b: 3, c: 4, expected: 7},
		{name: "wide intermediate", a: maxUint64, b: 3, c: 3, expected: maxUint64},
		{name: "zero divisor", a: 1, b: 1, c: 0, expectedErr: ErrDivideByZero},
		{name: "result overflow", a: maxUint64, b: 2, c: 1, expectedErr: ErrOverflow},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)
			got, err := MulDiv(test.a, test.b, test.c)
			require.ErrorIs(err, test.expectedErr)
			require.Equal(test.expected, got)
		})
	}
}

func TestSqrt(t *testing.T) {
	tests := []struct {
		n, expected uint64
	}{
		{0, 0},
		{1, 1},
		{3, 1},
		{4, 2},
		{1000, 31},
		{1_000_000, 1000},
		{maxUint64, 4294967295},
	}
	for _, test := range tests {
		require.Equal(t, test.expected, Sqrt(test.n), "sqrt(%d)", test.n)
	}
}
