// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package units

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrTooManyDecimal = errors.New("too many decimal places")
	ErrAmountOverflow = errors.New("amount overflows uint64")
)

// FormatLOS renders a CIL amount as an exact decimal LOS string, always with
// all 11 fractional digits (e.g. "5000.00000000000").
func FormatLOS(cil uint64) string {
	return fmt.Sprintf("%d.%0*d", cil/LOS, Decimals, cil%LOS)
}

// WholeLOS returns the integer LOS part of a CIL amount.
func WholeLOS(cil uint64) uint64 {
	return cil / LOS
}

// ParseLOS converts a decimal LOS string such as "10" or "0.5" into CIL
// without any floating point arithmetic.
func ParseLOS(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && frac == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > Decimals {
		return 0, fmt.Errorf("%w: %q", ErrTooManyDecimal, s)
	}

	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if w > ^uint64(0)/LOS {
		return 0, ErrAmountOverflow
	}
	cil := w * LOS

	if frac != "" {
		f, err := strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		for i := len(frac); i < Decimals; i++ {
			f *= 10
		}
		if cil > ^uint64(0)-f {
			return 0, ErrAmountOverflow
		}
		cil += f
	}
	return cil, nil
}
