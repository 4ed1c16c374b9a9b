// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/luxfi/ids"

	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/txs"
	"github.com/luxfi/los/utils/timer/mockable"
)

const btreeDegree = 32

var (
	ErrDuplicateTx       = errors.New("duplicate transaction")
	ErrMempoolFull       = errors.New("mempool is full")
	ErrInsufficientFunds = errors.New("insufficient funds for pending spend")
)

// BalanceFunc returns the confirmed balance of an account.
type BalanceFunc func(keys.Address) uint64

// Stats are the lifetime counters of the mempool.
type Stats struct {
	Pending       int    `json:"pending"`
	TotalReceived uint64 `json:"total_received"`
	TotalAccepted uint64 `json:"total_accepted"`
	TotalRejected uint64 `json:"total_rejected"`
	TotalExpired  uint64 `json:"total_expired"`
	UniqueSenders int    `json:"unique_senders"`
}

type entry struct {
	tx    *txs.Tx
	id    ids.ID
	fee   uint64
	seq   uint64
	added time.Time
}

// higher fee first, then first come first served
func less(a, b *entry) bool {
	if a.fee != b.fee {
		return a.fee > b.fee
	}
	return a.seq < b.seq
}

// Mempool holds admitted transactions until they are finalized. A sender can
// never have more pending spend than its confirmed balance.
type Mempool struct {
	clock   *mockable.Clock
	balance BalanceFunc
	maxSize int
	metrics *Metrics

	lock    sync.Mutex
	ordered *btree.BTreeG[*entry]
	byID    map[ids.ID]*entry
	pending map[keys.Address]uint64
	nextSeq uint64
	stats   Stats
}

func New(maxSize int, balance BalanceFunc, clock *mockable.Clock, m *Metrics) *Mempool {
	return &Mempool{
		clock:   clock,
		balance: balance,
		maxSize: maxSize,
		metrics: m,
		ordered: btree.NewG(btreeDegree, less),
		byID:    make(map[ids.ID]*entry),
		pending: make(map[keys.Address]uint64),
	}
}

// Add admits tx. The sender's balance check and the pending spend reservation
// happen under one lock so concurrent submissions cannot over-commit.
func (m *Mempool) Add(tx *txs.Tx) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.stats.TotalReceived++
	if err := m.add(tx); err != nil {
		m.stats.TotalRejected++
		m.metrics.rejected.Inc()
		return err
	}
	m.stats.TotalAccepted++
	m.metrics.accepted.Inc()
	m.updateGauges()
	return nil
}

func (m *Mempool) add(tx *txs.Tx) error {
	id := tx.ID()
	if _, ok := m.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTx, id)
	}
	if len(m.byID) >= m.maxSize {
		return ErrMempoolFull
	}
	if sender := tx.Sender(); sender != "" {
		spend := tx.Spend() + m.pending[sender]
		if balance := m.balance(sender); spend > balance {
			return fmt.Errorf("%w: %s has %d, pending spend would be %d", ErrInsufficientFunds, sender, balance, spend)
		}
		m.pending[sender] = spend
	}

	e := &entry{
		tx:    tx,
		id:    id,
		fee:   tx.Fee(),
		seq:   m.nextSeq,
		added: m.clock.Time(),
	}
	m.nextSeq++
	m.byID[id] = e
	m.ordered.ReplaceOrInsert(e)
	return nil
}

// Has reports whether a transaction is pending.
func (m *Mempool) Has(id ids.ID) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	_, ok := m.byID[id]
	return ok
}

// Peek returns up to n pending transactions in priority order.
func (m *Mempool) Peek(n int) []*txs.Tx {
	m.lock.Lock()
	defer m.lock.Unlock()

	out := make([]*txs.Tx, 0, min(n, len(m.byID)))
	m.ordered.Ascend(func(e *entry) bool {
		out = append(out, e.tx)
		return len(out) < n
	})
	return out
}

// Remove drops finalized or invalid transactions.
func (m *Mempool) Remove(txIDs ...ids.ID) {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, id := range txIDs {
		m.remove(id)
	}
	m.updateGauges()
}

func (m *Mempool) remove(id ids.ID) {
	e, ok := m.byID[id]
	if !ok {
		return
	}
	delete(m.byID, id)
	m.ordered.Delete(e)
	if sender := e.tx.Sender(); sender != "" {
		left := m.pending[sender] - min(m.pending[sender], e.tx.Spend())
		if left == 0 {
			delete(m.pending, sender)
		} else {
			m.pending[sender] = left
		}
	}
}

// Expire drops transactions older than ttl and returns how many were dropped.
func (m *Mempool) Expire(ttl time.Duration) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	cutoff := m.clock.Time().Add(-ttl)
	var expired []ids.ID
	for id, e := range m.byID {
		if e.added.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		m.remove(id)
	}
	m.stats.TotalExpired += uint64(len(expired))
	m.metrics.expired.Add(float64(len(expired)))
	m.updateGauges()
	return len(expired)
}

// Len is the number of pending transactions.
func (m *Mempool) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.byID)
}

// Stats returns the mempool counters.
func (m *Mempool) Stats() Stats {
	m.lock.Lock()
	defer m.lock.Unlock()

	s := m.stats
	s.Pending = len(m.byID)
	senders := make(map[keys.Address]struct{})
	for _, e := range m.byID {
		if sender := e.tx.Sender(); sender != "" {
			senders[sender] = struct{}{}
		}
	}
	s.UniqueSenders = len(senders)
	return s
}

func (m *Mempool) updateGauges() {
	m.metrics.pending.Set(float64(len(m.byID)))
}
