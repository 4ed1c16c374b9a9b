// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/utils/units"
)

const (
	testTime = 1_700_000_000
	baseFee  = 100_000
)

func testAddress(i byte) keys.Address {
	return keys.AddressFromPublicKey([]byte{'t', 'e', 's', 't', i})
}

var (
	alice = testAddress(1)
	bob   = testAddress(2)
	carol = testAddress(3)
	val   = testAddress(4)
)

func newTestLedger(t *testing.T, db database.Database) *Ledger {
	t.Helper()
	l, err := New(db, DefaultConfig, log.NewNoOpLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	return l
}

func newGenesisLedger(t *testing.T) *Ledger {
	t.Helper()
	l := newTestLedger(t, memdb.New())
	require.NoError(t, l.ApplyGenesis([]Allocation{
		{Address: alice, Amount: 1000 * units.LOS},
		{Address: val, Amount: 2000 * units.LOS, Validator: &ValidatorProfile{PublicKey: []byte{1}}},
	}, testTime))
	return l
}

func requireConserved(t *testing.T, l *Ledger) {
	t.Helper()
	s := l.Supply()
	require.Equal(t, s.Total, s.Circulating+s.Remaining)
	require.Equal(t, TotalSupply, s.Total)

	var sum uint64
	for _, acct := range l.Accounts() {
		sum += acct.Balance
	}
	require.Equal(t, s.Circulating, sum)
}

func requireReplay(t *testing.T, l *Ledger, addr keys.Address) {
	t.Helper()
	history, err := l.History(addr)
	require.NoError(t, err)

	var (
		running int64
		prev    ids.ID
	)
	for i, blk := range history {
		require.Equal(t, uint64(i), blk.Height)
		require.Equal(t, prev, blk.Previous)
		require.Equal(t, blk.computeHash(), blk.Hash)
		running += blk.Delta()
		require.Equal(t, uint64(running), blk.Balance)
		prev = blk.Hash
	}
	require.Equal(t, l.Balance(addr), uint64(running))
}

func TestGenesis(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	require.True(l.Initialized())
	require.Equal(1000*units.LOS, l.Balance(alice))

	acct, ok := l.Account(val)
	require.True(ok)
	require.True(acct.IsValidator())
	require.True(acct.Validator.IsGenesis)

	s := l.Supply()
	require.Equal(3000*units.LOS, s.Circulating)
	require.Equal(RewardPool, s.RewardReserve)
	requireConserved(t, l)

	err := l.ApplyGenesis(nil, testTime)
	require.ErrorIs(err, ErrAlreadyInitialized)
}

func TestUnknownAccount(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	require.Zero(l.Balance(carol))
	acct, ok := l.Account(carol)
	require.False(ok)
	require.Zero(acct.BlockCount)
	history, err := l.History(carol)
	require.NoError(err)
	require.Empty(history)
}

func TestApplyTransfer(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	txID := ids.GenerateTestID()
	send, receive, err := l.ApplyTransfer(Transfer{
		TxID:      txID,
		From:      alice,
		To:        bob,
		Amount:    10 * units.LOS,
		Fee:       baseFee,
		FeeSink:   val,
		Timestamp: testTime + 1,
	})
	require.NoError(err)

	require.Equal(990*units.LOS-baseFee, l.Balance(alice))
	require.Equal(10*units.LOS, l.Balance(bob))
	require.Equal(2000*units.LOS+baseFee, l.Balance(val))

	require.Equal(Send, send.Type)
	require.Equal(Receive, receive.Type)
	require.Equal(send.Hash, receive.Link)
	require.Equal(alice, receive.Counterparty)

	paired, err := l.Paired(send.Hash)
	require.NoError(err)
	require.Equal(receive.Hash, paired.Hash)

	byTx, err := l.BlockByTx(txID)
	require.NoError(err)
	require.Equal(send.Hash, byTx.Hash)

	for _, addr := range []keys.Address{alice, bob, val} {
		requireReplay(t, l, addr)
	}
	requireConserved(t, l)
}

func TestApplyTransferWithoutFeeSink(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	before := l.Supply()
	_, _, err := l.ApplyTransfer(Transfer{From: alice, To: bob, Amount: units.LOS, Fee: baseFee})
	require.NoError(err)

	after := l.Supply()
	require.Equal(before.Circulating-baseFee, after.Circulating)
	require.Equal(before.Remaining+baseFee, after.Remaining)
	requireConserved(t, l)
}

func TestApplyTransferErrors(t *testing.T) {
	tests := []struct {
		name        string
		transfer    Transfer
		expectedErr error
	}{
		{
			name:        "self transfer",
			transfer:    Transfer{From: alice, To: alice, Amount: units.LOS},
			expectedErr: ErrSelfTransfer,
		},
		{
			name:        "zero amount",
			transfer:    Transfer{From: alice, To: bob},
			expectedErr: ErrZeroAmount,
		},
		{
			name:        "insufficient funds",
			transfer:    Transfer{From: alice, To: bob, Amount: 1000 * units.LOS, Fee: baseFee},
			expectedErr: ErrInsufficientFunds,
		},
		{
			name:        "unknown sender",
			transfer:    Transfer{From: carol, To: bob, Amount: 1},
			expectedErr: ErrInsufficientFunds,
		},
		{
			name:        "malformed recipient",
			transfer:    Transfer{From: alice, To: "bob", Amount: 1},
			expectedErr: keys.ErrInvalidAddress,
		},
		{
			name:        "malformed sender",
			transfer:    Transfer{From: "0xdeadbeef", To: bob, Amount: 1},
			expectedErr: keys.ErrInvalidAddress,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			l := newGenesisLedger(t)
			before := l.Stats()
			_, _, err := l.ApplyTransfer(test.transfer)
			require.ErrorIs(err, test.expectedErr)
			require.Equal(before, l.Stats())
			require.Equal(1000*units.LOS, l.Balance(alice))
		})
	}
}

func TestApplyMint(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	blk, err := l.ApplyMint(MintRequest{To: carol, Amount: 5000 * units.LOS, Reason: ReasonFaucet, Timestamp: testTime})
	require.NoError(err)
	require.Equal(Mint, blk.Type)
	require.Equal(5000*units.LOS, l.Balance(carol))

	blk, err = l.ApplyMint(MintRequest{To: val, Amount: 100 * units.LOS, Reason: ReasonReward, Timestamp: testTime})
	require.NoError(err)
	require.Equal(Reward, blk.Type)
	require.Equal(RewardPool-100*units.LOS, l.Supply().RewardReserve)

	_, err = l.ApplyMint(MintRequest{To: carol, Reason: ReasonFaucet})
	require.ErrorIs(err, ErrZeroAmount)

	requireConserved(t, l)
	requireReplay(t, l, carol)
}

func TestMintCannotConsumeRewardReserve(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	s := l.Supply()
	mintable := s.Remaining - s.RewardReserve

	_, err := l.ApplyMint(MintRequest{To: carol, Amount: mintable + 1, Reason: ReasonFaucet})
	require.ErrorIs(err, ErrSupplyExhausted)

	_, err = l.ApplyMint(MintRequest{To: carol, Amount: mintable, Reason: ReasonFaucet})
	require.NoError(err)
	require.Equal(s.RewardReserve, l.Supply().Remaining)

	_, err = l.ApplyMint(MintRequest{To: val, Amount: RewardPool + 1, Reason: ReasonReward})
	require.ErrorIs(err, ErrSupplyExhausted)
	requireConserved(t, l)
}

func TestApplySlash(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	slashed, err := l.ApplySlash(val, 200*units.LOS, ids.Empty, "double_sign", testTime)
	require.NoError(err)
	require.Equal(200*units.LOS, slashed)
	require.Equal(1800*units.LOS, l.Balance(val))

	slashed, err = l.ApplySlash(carol, units.LOS, ids.Empty, "downtime", testTime)
	require.NoError(err)
	require.Zero(slashed)

	requireConserved(t, l)
	requireReplay(t, l, val)
}

func TestSetValidator(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	require.NoError(l.SetValidator(alice, &ValidatorProfile{PublicKey: []byte{2}}, ids.Empty, testTime))
	require.Len(l.Validators(), 2)

	require.NoError(l.SetValidator(alice, nil, ids.Empty, testTime))
	require.Len(l.Validators(), 1)
	require.Equal(1000*units.LOS, l.Balance(alice))
	requireReplay(t, l, alice)
}

func TestBurnMintOnce(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	claim := BurnClaim{Coin: "eth", TxID: "0xABCDEF", Recipient: carol, Amount: 42 * units.LOS, USD: 1_000_000}
	_, err := l.ApplyBurnMint(claim, ids.GenerateTestID())
	require.NoError(err)
	require.True(l.BurnClaimed("ETH", "abcdef"))

	_, err = l.ApplyBurnMint(claim, ids.GenerateTestID())
	require.ErrorIs(err, ErrBurnAlreadyClaimed)
	require.Equal(42*units.LOS, l.Balance(carol))
	require.Equal(uint64(1_000_000), l.Supply().BurnedUSD)

	stored, err := l.Burn("eth", "abcdef")
	require.NoError(err)
	require.Equal(carol, stored.Recipient)

	reset, err := l.ResetBurn("eth", "0xabcdef")
	require.NoError(err)
	require.True(reset)
	require.False(l.BurnClaimed("eth", "abcdef"))
	requireConserved(t, l)
}

func TestReload(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	l := newTestLedger(t, db)
	require.NoError(l.ApplyGenesis([]Allocation{{Address: alice, Amount: 100 * units.LOS}}, testTime))
	_, _, err := l.ApplyTransfer(Transfer{From: alice, To: bob, Amount: units.LOS, Fee: baseFee, FeeSink: val})
	require.NoError(err)

	reloaded := newTestLedger(t, db)
	require.Equal(l.Supply(), reloaded.Supply())
	require.Equal(l.Stats(), reloaded.Stats())
	for _, addr := range []keys.Address{alice, bob, val} {
		a, _ := l.Account(addr)
		b, _ := reloaded.Account(addr)
		require.Equal(a, b)
		requireReplay(t, reloaded, addr)
	}
}

func TestRecentBlocks(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	send, receive, err := l.ApplyTransfer(Transfer{From: alice, To: bob, Amount: units.LOS})
	require.NoError(err)

	recent, err := l.RecentBlocks(2)
	require.NoError(err)
	require.Len(recent, 2)
	require.Equal(receive.Hash, recent[0].Hash)
	require.Equal(send.Hash, recent[1].Hash)

	all, err := l.RecentBlocks(100)
	require.NoError(err)
	require.Len(all, 4)
}

func TestFailedCommitKeepsSequenceDense(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	l := newTestLedger(t, db)
	require.NoError(l.ApplyGenesis([]Allocation{{Address: alice, Amount: 100 * units.LOS}}, testTime))
	_, _, err := l.ApplyTransfer(Transfer{From: alice, To: bob, Amount: units.LOS})
	require.NoError(err)
	require.Equal(uint64(3), l.Stats().Blocks)

	// Blocks staged by an update that is never written take no sequence
	// numbers.
	l.halt(errors.New("disk failure"))
	_, _, err = l.ApplyTransfer(Transfer{From: alice, To: carol, Amount: units.LOS})
	require.ErrorIs(err, ErrHalted)
	require.Equal(uint64(3), l.Stats().Blocks)

	// A reloaded ledger continues the sequence without overwriting blocks.
	reloaded := newTestLedger(t, db)
	require.Equal(l.Stats(), reloaded.Stats())
	send, receive, err := reloaded.ApplyTransfer(Transfer{From: bob, To: carol, Amount: units.LOS / 2})
	require.NoError(err)

	recent, err := reloaded.RecentBlocks(100)
	require.NoError(err)
	require.Len(recent, 5)
	require.Equal(receive.Hash, recent[0].Hash)
	require.Equal(send.Hash, recent[1].Hash)
	seen := make(map[ids.ID]bool, len(recent))
	for _, blk := range recent {
		require.False(seen[blk.Hash])
		seen[blk.Hash] = true
	}
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	const (
		workers = 16
		amount  = 100 * units.LOS
	)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := bob
			if i%2 == 0 {
				to = carol
			}
			if _, _, err := l.ApplyTransfer(Transfer{From: alice, To: to, Amount: amount, Fee: baseFee, FeeSink: val}); err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// 1000 LOS covers nine transfers of 100 LOS plus fee.
	require.Equal(9, applied)
	require.Equal(1000*units.LOS-9*(amount+baseFee), l.Balance(alice))
	requireConserved(t, l)
	requireReplay(t, l, alice)
}

func TestHaltedLedgerRejectsWrites(t *testing.T) {
	require := require.New(t)

	l := newGenesisLedger(t)
	l.halt(ErrConservation)
	require.True(l.Halted())

	_, _, err := l.ApplyTransfer(Transfer{From: alice, To: bob, Amount: units.LOS})
	require.ErrorIs(err, ErrHalted)
	require.Equal(1000*units.LOS, l.Balance(alice))
}
