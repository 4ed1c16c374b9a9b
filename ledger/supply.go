// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"fmt"

	"github.com/luxfi/los/utils/units"
)

const (
	// TotalSupply is the fixed number of CIL that will ever exist.
	TotalSupply = 21_936_236 * units.LOS
	// RewardPool is the part of the remaining supply reserved for validator
	// rewards.
	RewardPool = 500_000 * units.LOS
)

// Supply is the global accounting of CIL. Circulating + Remaining == Total at
// every observable instant.
type Supply struct {
	Total       uint64 `json:"total"`
	Circulating uint64 `json:"circulating"`
	Remaining   uint64 `json:"remaining"`

	// RewardReserve is the undistributed reward pool. It is part of Remaining
	// and may only be minted through reward distribution.
	RewardReserve uint64 `json:"rewardReserve"`

	// BurnedUSD is the accumulated USD value of accepted burns, in
	// micro-dollars.
	BurnedUSD uint64 `json:"burnedUSD"`
}

func (s Supply) verify() error {
	if s.Circulating+s.Remaining != s.Total || s.Circulating > s.Total {
		return fmt.Errorf("%w: circulating %d + remaining %d != total %d",
			ErrConservation, s.Circulating, s.Remaining, s.Total)
	}
	if s.RewardReserve > s.Remaining {
		return fmt.Errorf("%w: reward reserve %d exceeds remaining %d",
			ErrConservation, s.RewardReserve, s.Remaining)
	}
	return nil
}

// mint moves amount from remaining to circulating. Non reward mints may not
// dip into the reward reserve.
func (s Supply) mint(amount uint64, reward bool) (Supply, error) {
	if reward {
		if amount > s.RewardReserve {
			return s, fmt.Errorf("%w: reward %d exceeds reserve %d", ErrSupplyExhausted, amount, s.RewardReserve)
		}
		s.RewardReserve -= amount
	} else if amount > s.Remaining-s.RewardReserve {
		return s, fmt.Errorf("%w: mint %d exceeds mintable %d", ErrSupplyExhausted, amount, s.Remaining-s.RewardReserve)
	}
	s.Remaining -= amount
	s.Circulating += amount
	return s, nil
}

// retire moves amount back from circulating to remaining.
func (s Supply) retire(amount uint64) Supply {
	s.Circulating -= amount
	s.Remaining += amount
	return s
}
