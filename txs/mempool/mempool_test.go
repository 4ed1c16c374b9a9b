// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/txs"
	"github.com/luxfi/los/utils/timer/mockable"
	"github.com/luxfi/los/utils/units"
)

var (
	alice = keys.AddressFromPublicKey([]byte("alice"))
	bob   = keys.AddressFromPublicKey([]byte("bob"))
)

func newMempool(t *testing.T, balances map[keys.Address]uint64) (*Mempool, *mockable.Clock) {
	t.Helper()
	m, err := NewMetrics("los", prometheus.NewRegistry())
	require.NoError(t, err)
	clk := &mockable.Clock{}
	clk.Set(time.Unix(1_700_000_000, 0))
	return New(16, func(addr keys.Address) uint64 { return balances[addr] }, clk, m), clk
}

// transfer builds an unsigned transfer; the mempool does not verify
// signatures.
func transfer(from, to keys.Address, amount, fee uint64, nonce int64) *txs.Tx {
	return &txs.Tx{
		Kind: txs.KindTransfer,
		Transfer: &txs.Transfer{
			From:   from,
			To:     to,
			Amount: amount,
			Fee:    fee,
			Nonce:  nonce,
		},
	}
}

func TestAddPeekRemove(t *testing.T) {
	require := require.New(t)

	m, _ := newMempool(t, map[keys.Address]uint64{alice: 100 * units.LOS, bob: 100 * units.LOS})
	low := transfer(alice, bob, units.LOS, 100_000, 1)
	high := transfer(bob, alice, units.LOS, 400_000, 2)
	faucet := &txs.Tx{Kind: txs.KindFaucet, Faucet: &txs.Faucet{Address: bob, Amount: 1}}

	require.NoError(m.Add(low))
	require.NoError(m.Add(high))
	require.NoError(m.Add(faucet))
	require.ErrorIs(m.Add(low), ErrDuplicateTx)

	peeked := m.Peek(10)
	require.Equal([]*txs.Tx{high, low, faucet}, peeked)
	require.Len(m.Peek(1), 1)

	m.Remove(high.ID(), low.ID())
	require.Equal([]*txs.Tx{faucet}, m.Peek(10))
	require.False(m.Has(low.ID()))

	stats := m.Stats()
	require.Equal(Stats{
		Pending:       1,
		TotalReceived: 4,
		TotalAccepted: 3,
		TotalRejected: 1,
		UniqueSenders: 0,
	}, stats)
}

func TestPendingSpendBoundedByBalance(t *testing.T) {
	require := require.New(t)

	m, _ := newMempool(t, map[keys.Address]uint64{alice: 10 * units.LOS})
	require.NoError(m.Add(transfer(alice, bob, 6*units.LOS, 0, 1)))
	require.ErrorIs(m.Add(transfer(alice, bob, 5*units.LOS, 0, 2)), ErrInsufficientFunds)
	require.NoError(m.Add(transfer(alice, bob, 4*units.LOS, 0, 3)))

	m.Remove(transfer(alice, bob, 6*units.LOS, 0, 1).ID())
	require.NoError(m.Add(transfer(alice, bob, 5*units.LOS, 0, 4)))
}

func TestConcurrentAddNeverOverCommits(t *testing.T) {
	require := require.New(t)

	m, _ := newMempool(t, map[keys.Address]uint64{alice: 10 * units.LOS})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Add(transfer(alice, bob, 3*units.LOS, 0, int64(i)))
		}(i)
	}
	wg.Wait()
	require.Equal(3, m.Len())
	require.Equal(1, m.Stats().UniqueSenders)
}

func TestExpire(t *testing.T) {
	require := require.New(t)

	m, clk := newMempool(t, map[keys.Address]uint64{alice: 10 * units.LOS})
	require.NoError(m.Add(transfer(alice, bob, units.LOS, 0, 1)))
	clk.Advance(time.Minute)
	require.NoError(m.Add(transfer(alice, bob, units.LOS, 0, 2)))

	clk.Advance(30 * time.Second)
	require.Equal(1, m.Expire(time.Minute))
	require.Equal(1, m.Len())
	require.Equal(uint64(1), m.Stats().TotalExpired)
}

func TestFull(t *testing.T) {
	require := require.New(t)

	m, _ := newMempool(t, nil)
	for i := 0; i < 16; i++ {
		require.NoError(m.Add(&txs.Tx{Kind: txs.KindFaucet, Timestamp: int64(i), Faucet: &txs.Faucet{Address: bob, Amount: 1}}))
	}
	err := m.Add(&txs.Tx{Kind: txs.KindFaucet, Timestamp: 99, Faucet: &txs.Faucet{Address: bob, Amount: 1}})
	require.ErrorIs(err, ErrMempoolFull)
}
