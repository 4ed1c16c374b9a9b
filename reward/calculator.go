// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reward implements the epoch reward schedule: a fixed pool paid out
// at a halving rate, split between eligible validators by the square root of
// their stake.
package reward

import (
	"time"

	"github.com/luxfi/los/utils/math"
	"github.com/luxfi/los/utils/units"
)

// PercentDenominator is the scale of MinUptimePct.
const PercentDenominator = 100

type Config struct {
	PoolSize          uint64        `json:"poolSize"`
	InitialRate       uint64        `json:"initialRate"`
	HalvingInterval   uint64        `json:"halvingInterval"`
	EpochDuration     time.Duration `json:"epochDuration"`
	HeartbeatInterval time.Duration `json:"heartbeatInterval"`
	MinUptimePct      uint64        `json:"minUptimePct"`
	ProbationEpochs   uint64        `json:"probationEpochs"`
	MinStake          uint64        `json:"minStake"`
}

// DefaultConfig is the mainnet schedule.
var DefaultConfig = Config{
	PoolSize:          500_000 * units.LOS,
	InitialRate:       5_000 * units.LOS,
	HalvingInterval:   48,
	EpochDuration:     30 * 24 * time.Hour,
	HeartbeatInterval: time.Minute,
	MinUptimePct:      95,
	ProbationEpochs:   1,
	MinStake:          1_000 * units.LOS,
}

// TestnetConfig shortens epochs so the schedule can be observed quickly.
var TestnetConfig = func() Config {
	c := DefaultConfig
	c.EpochDuration = 2 * time.Minute
	c.HeartbeatInterval = 10 * time.Second
	return c
}()

type Calculator struct {
	config Config
}

func NewCalculator(c Config) Calculator {
	return Calculator{config: c}
}

func (c Calculator) Config() Config {
	return c.config
}

// Halvings is the number of halvings applied at epoch.
func (c Calculator) Halvings(epoch uint64) uint64 {
	if c.config.HalvingInterval == 0 {
		return 0
	}
	return epoch / c.config.HalvingInterval
}

// Rate is the CIL budget of epoch: InitialRate >> (epoch / HalvingInterval).
func (c Calculator) Rate(epoch uint64) uint64 {
	halvings := c.Halvings(epoch)
	if halvings >= 64 {
		return 0
	}
	return c.config.InitialRate >> halvings
}

// ExpectedHeartbeats is the number of heartbeats a validator online for the
// whole of elapsed should have sent. It scales with elapsed so a validator
// is never judged against heartbeats it had no chance to send.
func (c Calculator) ExpectedHeartbeats(elapsed time.Duration) uint64 {
	if c.config.HeartbeatInterval <= 0 {
		return 1
	}
	elapsed = min(max(elapsed, 0), c.config.EpochDuration)
	return max(uint64(elapsed/c.config.HeartbeatInterval), 1)
}

// MaxHeartbeats is the most heartbeats a counter accepts from one validator
// in elapsed, given that signals closer than half an interval are ignored.
func (c Calculator) MaxHeartbeats(elapsed time.Duration) uint64 {
	if c.config.HeartbeatInterval <= 0 {
		return ^uint64(0)
	}
	return 2*uint64(max(elapsed, 0)/c.config.HeartbeatInterval) + 1
}

// UptimePct is min(100, 100*heartbeats/expected).
func (c Calculator) UptimePct(heartbeats, expected uint64) uint64 {
	if expected == 0 {
		return PercentDenominator
	}
	pct, err := math.MulDiv(heartbeats, PercentDenominator, expected)
	if err != nil {
		return PercentDenominator
	}
	return min(pct, PercentDenominator)
}

// MeetsUptime reports whether heartbeats/expected >= MinUptimePct%.
func (c Calculator) MeetsUptime(heartbeats, expected uint64) bool {
	return heartbeats*PercentDenominator >= expected*c.config.MinUptimePct
}

// Weight is the distribution weight of a stake: isqrt(stake in whole LOS).
func (c Calculator) Weight(stake uint64) uint64 {
	return math.Sqrt(stake / units.LOS)
}

// Split divides budget proportionally to weights, rounding down. The
// undistributed remainder is returned separately.
func (c Calculator) Split(budget uint64, weights []uint64) ([]uint64, uint64) {
	shares := make([]uint64, len(weights))
	var total uint64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return shares, budget
	}
	var paid uint64
	for i, w := range weights {
		// budget*w/total <= budget, so this cannot overflow
		shares[i], _ = math.MulDiv(budget, w, total)
		paid += shares[i]
	}
	return shares, budget - paid
}
