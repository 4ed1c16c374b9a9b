// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reward

import (
	"sync"
	"time"

	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/utils/timer/mockable"
)

// Heartbeats counts the liveness signals received from validators during the
// current epoch. Signals closer together than half an interval are ignored.
type Heartbeats struct {
	clock    *mockable.Clock
	interval time.Duration

	lock   sync.Mutex
	epoch  uint64
	counts map[keys.Address]uint64
	last   map[keys.Address]time.Time
}

func NewHeartbeats(interval time.Duration, clock *mockable.Clock) *Heartbeats {
	return &Heartbeats{
		clock:    clock,
		interval: interval,
		counts:   make(map[keys.Address]uint64),
		last:     make(map[keys.Address]time.Time),
	}
}

// Record counts a heartbeat from addr for epoch. It returns false if the
// heartbeat was ignored.
func (h *Heartbeats) Record(addr keys.Address, epoch uint64) bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	if epoch != h.epoch {
		if epoch < h.epoch {
			return false
		}
		h.reset(epoch)
	}
	now := h.clock.Time()
	if last, ok := h.last[addr]; ok && now.Sub(last) < h.interval/2 {
		return false
	}
	h.last[addr] = now
	h.counts[addr]++
	return true
}

// Count returns the heartbeats of addr in epoch.
func (h *Heartbeats) Count(addr keys.Address, epoch uint64) uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	if epoch != h.epoch {
		return 0
	}
	return h.counts[addr]
}

// Counts returns a copy of every count in epoch.
func (h *Heartbeats) Counts(epoch uint64) map[keys.Address]uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()

	counts := make(map[keys.Address]uint64, len(h.counts))
	if epoch != h.epoch {
		return counts
	}
	for addr, n := range h.counts {
		counts[addr] = n
	}
	return counts
}

// Advance starts counting epoch from zero.
func (h *Heartbeats) Advance(epoch uint64) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if epoch > h.epoch {
		h.reset(epoch)
	}
}

func (h *Heartbeats) reset(epoch uint64) {
	h.epoch = epoch
	clear(h.counts)
	clear(h.last)
}
