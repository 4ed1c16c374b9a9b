// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package json provides JSON helpers for amounts that must never pass through
// floating point.
package json

import (
	"strconv"

	"github.com/luxfi/los/utils/units"
)

const Null = "null"

// Uint64 is a uint64 that unmarshals from either a JSON number or a string.
type Uint64 uint64

func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(u), 10)), nil
}

func (u *Uint64) UnmarshalJSON(b []byte) error {
	str := unquote(string(b))
	if str == Null {
		return nil
	}
	val, err := strconv.ParseUint(str, 10, 64)
	*u = Uint64(val)
	return err
}

// LOS is an amount expressed in CIL that is read from and written as a decimal
// LOS value. "10", 10 and "10.0" all decode to 10 * 10^11 CIL.
type LOS uint64

func (l LOS) MarshalJSON() ([]byte, error) {
	return []byte(`"` + units.FormatLOS(uint64(l)) + `"`), nil
}

func (l *LOS) UnmarshalJSON(b []byte) error {
	str := unquote(string(b))
	if str == Null {
		return nil
	}
	cil, err := units.ParseLOS(str)
	if err != nil {
		return err
	}
	*l = LOS(cil)
	return nil
}

func unquote(str string) string {
	if len(str) >= 2 {
		if lastIndex := len(str) - 1; str[0] == '"' && str[lastIndex] == '"' {
			return str[1:lastIndex]
		}
	}
	return str
}
