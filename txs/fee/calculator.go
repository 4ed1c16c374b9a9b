// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fee implements the anti-whale fee schedule: a fixed base fee that
// doubles for every transaction a sender submits past the per window limit.
package fee

import (
	"sync"
	"time"

	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/utils/timer/mockable"
)

// BpsDenominator is the basis point scale of MultiplierBps.
const BpsDenominator = 10_000

// Config of the anti-whale schedule.
type Config struct {
	BaseFee        uint64        `json:"baseFee"`
	Window         time.Duration `json:"window"`
	MaxTxPerWindow uint64        `json:"maxTxPerWindow"`
	// MaxMultiplier caps the progressive multiplier.
	MaxMultiplier uint64 `json:"maxMultiplier"`
}

var DefaultConfig = Config{
	BaseFee:        100_000,
	Window:         time.Minute,
	MaxTxPerWindow: 10,
	MaxMultiplier:  1 << 20,
}

// Estimate is the fee a sender would pay for its next transaction.
type Estimate struct {
	Address             keys.Address `json:"address"`
	BaseFee             uint64       `json:"base_fee_cil"`
	EstimatedFee        uint64       `json:"estimated_fee_cil"`
	Multiplier          uint64       `json:"fee_multiplier"`
	MultiplierBps       uint64       `json:"fee_multiplier_bps"`
	TxCountInWindow     uint64       `json:"tx_count_in_window"`
	MaxTxPerWindow      uint64       `json:"max_tx_per_window"`
	WindowRemainingSecs uint64       `json:"window_remaining_secs"`
	WindowDurationSecs  uint64       `json:"window_duration_secs"`
}

// Calculator tracks per sender submissions inside a sliding window.
type Calculator struct {
	config Config
	clock  *mockable.Clock

	lock    sync.Mutex
	senders map[keys.Address][]time.Time
}

func NewCalculator(config Config, clock *mockable.Clock) *Calculator {
	return &Calculator{
		config:  config,
		clock:   clock,
		senders: make(map[keys.Address][]time.Time),
	}
}

// Multiplier returns the fee multiplier for a sender that already has count
// transactions in the current window.
func (c *Calculator) Multiplier(count uint64) uint64 {
	if count < c.config.MaxTxPerWindow {
		return 1
	}
	excess := count - c.config.MaxTxPerWindow + 1
	if excess >= 63 {
		return c.config.MaxMultiplier
	}
	return min(uint64(1)<<excess, c.config.MaxMultiplier)
}

// Estimate returns the fee for the next transaction of addr. Inputs that are
// not addresses are rejected.
func (c *Calculator) Estimate(addr string) (Estimate, error) {
	parsed, err := keys.ParseAddress(addr)
	if err != nil {
		return Estimate{}, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.clock.Time()
	window := c.prune(parsed, now)
	count := uint64(len(window))
	multiplier := c.Multiplier(count)

	var remaining time.Duration
	if count > 0 {
		remaining = window[0].Add(c.config.Window).Sub(now)
	}
	return Estimate{
		Address:             parsed,
		BaseFee:             c.config.BaseFee,
		EstimatedFee:        c.config.BaseFee * multiplier,
		Multiplier:          multiplier,
		MultiplierBps:       multiplier * BpsDenominator,
		TxCountInWindow:     count,
		MaxTxPerWindow:      c.config.MaxTxPerWindow,
		WindowRemainingSecs: uint64(max(remaining, 0) / time.Second),
		WindowDurationSecs:  uint64(c.config.Window / time.Second),
	}, nil
}

// Record counts one submitted transaction of addr and returns the fee it was
// charged.
func (c *Calculator) Record(addr keys.Address) uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.clock.Time()
	window := c.prune(addr, now)
	fee := c.config.BaseFee * c.Multiplier(uint64(len(window)))
	c.senders[addr] = append(window, now)
	return fee
}

// Charge counts one transaction of addr that offers to pay offered. An offer
// below the current fee of addr is refused and not counted. The current fee
// is returned either way.
func (c *Calculator) Charge(addr keys.Address, offered uint64) (uint64, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.clock.Time()
	window := c.prune(addr, now)
	fee := c.config.BaseFee * c.Multiplier(uint64(len(window)))
	if offered < fee {
		return fee, false
	}
	c.senders[addr] = append(window, now)
	return fee, true
}

// Next returns the fee addr would be charged for its next transaction.
func (c *Calculator) Next(addr keys.Address) uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()

	window := c.prune(addr, c.clock.Time())
	return c.config.BaseFee * c.Multiplier(uint64(len(window)))
}

// Max is the highest fee the schedule ever charges.
func (c Config) Max() uint64 {
	return c.BaseFee * c.MaxMultiplier
}

// Prune drops senders without submissions in the current window.
func (c *Calculator) Prune() {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.clock.Time()
	for addr := range c.senders {
		c.prune(addr, now)
	}
}

func (c *Calculator) prune(addr keys.Address, now time.Time) []time.Time {
	window := c.senders[addr]
	cutoff := now.Add(-c.config.Window)
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	window = window[i:]
	if len(window) == 0 {
		delete(c.senders, addr)
		return nil
	}
	c.senders[addr] = window
	return window
}
