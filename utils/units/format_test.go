// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package units

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatLOS(t *testing.T) {
	tests := []struct {
		cil      uint64
		expected string
	}{
		{0, "0.00000000000"},
		{1, "0.00000000001"},
		{LOS, "1.00000000000"},
		{5000 * LOS, "5000.00000000000"},
		{500_000*LOS - 1, "499999.99999999999"},
		{21_936_236 * LOS, "21936236.00000000000"},
	}
	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			require.Equal(t, test.expected, FormatLOS(test.cil))
		})
	}
}

func TestParseLOS(t *testing.T) {
	tests := []struct {
		in          string
		expected    uint64
		expectedErr error
	}{
		{in: "10", expected: 10 * LOS},
		{in: "0.5", expected: LOS / 2},
		{in: ".00000000001", expected: 1},
		{in: "5000.00000000000", expected: 5000 * LOS},
		{in: "1.000000000001", expectedErr: ErrTooManyDecimal},
		{in: "-1", expectedErr: ErrInvalidAmount},
		{in: "abc", expectedErr: ErrInvalidAmount},
		{in: "", expectedErr: ErrInvalidAmount},
		{in: "1.", expectedErr: ErrInvalidAmount},
		{in: "999999999999999", expectedErr: ErrAmountOverflow},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			require := require.New(t)
			cil, err := ParseLOS(test.in)
			require.ErrorIs(err, test.expectedErr)
			require.Equal(test.expected, cil)
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, cil := range []uint64{0, 1, 123456789012345, 21_936_236 * LOS} {
		parsed, err := ParseLOS(FormatLOS(cil))
		require.NoError(t, err)
		require.Equal(t, cil, parsed)
	}
}
