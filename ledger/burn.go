// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"

	"github.com/luxfi/los/keys"
)

// BurnClaim records a consumed foreign chain burn.
type BurnClaim struct {
	Coin      string       `json:"coin"`
	TxID      string       `json:"txid"`
	Recipient keys.Address `json:"recipient"`
	Amount    uint64       `json:"amount"`
	USD       uint64       `json:"usd"`
	Block     ids.ID       `json:"block"`
	Timestamp int64        `json:"timestamp"`
}

// ApplyBurnMint consumes (Coin, TxID) and mints Amount to Recipient in one
// atomic write. A pair can only ever be consumed once.
func (l *Ledger) ApplyBurnMint(claim BurnClaim, txID ids.ID) (*Block, error) {
	if _, err := keys.ParseAddress(claim.Recipient.String()); err != nil {
		return nil, err
	}
	if claim.Amount == 0 {
		return nil, ErrZeroAmount
	}

	l.burnLock.Lock()
	defer l.burnLock.Unlock()
	if l.BurnClaimed(claim.Coin, claim.TxID) {
		return nil, fmt.Errorf("%w: %s %s", ErrBurnAlreadyClaimed, claim.Coin, claim.TxID)
	}

	unlock := l.locks.lock(claim.Recipient)
	defer unlock()
	l.supplyLock.Lock()
	defer l.supplyLock.Unlock()

	supply, err := l.supply.mint(claim.Amount, false)
	if err != nil {
		return nil, err
	}
	supply.BurnedUSD += claim.USD

	u := l.newUpdate()
	blk := &Block{
		Type:      Mint,
		Amount:    claim.Amount,
		Reason:    ReasonBurn,
		TxID:      txID,
		Timestamp: claim.Timestamp,
	}
	if err := u.append(claim.Recipient, blk); err != nil {
		return nil, err
	}
	claim.Block = blk.Hash
	claimBytes, err := json.Marshal(&claim)
	if err != nil {
		return nil, err
	}
	u.batchPut(burnKey(claim.Coin, claim.TxID), claimBytes)
	u.supply = &supply
	if err := u.commit(); err != nil {
		return nil, err
	}
	l.metrics.mints.WithLabelValues(ReasonBurn).Inc()
	return blk, nil
}

// BurnClaimed reports whether (coin, txid) has already been consumed.
func (l *Ledger) BurnClaimed(coin, txid string) bool {
	has, err := l.db.Has(burnKey(coin, txid))
	return err == nil && has
}

// Burn returns the claim recorded for (coin, txid).
func (l *Ledger) Burn(coin, txid string) (*BurnClaim, error) {
	b, err := l.db.Get(burnKey(coin, txid))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: burn %s %s", ErrNotFound, coin, txid)
	}
	if err != nil {
		return nil, err
	}
	claim := &BurnClaim{}
	return claim, json.Unmarshal(b, claim)
}

// ResetBurn forgets a consumed burn so it can be replayed on test networks.
// Minted funds are not reverted.
func (l *Ledger) ResetBurn(coin, txid string) (bool, error) {
	l.burnLock.Lock()
	defer l.burnLock.Unlock()
	if l.halted.Load() {
		return false, ErrHalted
	}
	if !l.BurnClaimed(coin, txid) {
		return false, nil
	}
	return true, l.db.Delete(burnKey(coin, txid))
}
