// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/los/keys"
)

// update stages the blocks and account heads of one mutation and writes them
// in a single database batch. In-memory state only changes once the batch
// has been written.
type update struct {
	l        *Ledger
	batch    database.Batch
	accounts map[keys.Address]*Account
	order    []keys.Address
	blocks   []*Block
	supply   *Supply
}

func (l *Ledger) newUpdate() *update {
	return &update{
		l:        l,
		batch:    l.db.NewBatch(),
		accounts: make(map[keys.Address]*Account),
	}
}

// account returns the staged copy of addr, creating an empty account for
// addresses that have never been seen.
func (u *update) account(addr keys.Address) *Account {
	if acct, ok := u.accounts[addr]; ok {
		return acct
	}
	acct, _ := u.l.Account(addr)
	u.accounts[addr] = acct
	u.order = append(u.order, addr)
	return acct
}

// append links blk onto the chain of addr and applies its balance delta.
func (u *update) append(addr keys.Address, blk *Block) error {
	acct := u.account(addr)
	delta := blk.Delta()
	switch {
	case delta < 0 && uint64(-delta) > acct.Balance:
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, addr, acct.Balance, -delta)
	case delta < 0:
		acct.Balance -= uint64(-delta)
	default:
		acct.Balance += uint64(delta)
	}

	blk.Account = addr
	blk.Previous = acct.Head
	blk.Height = acct.BlockCount
	blk.Balance = acct.Balance
	blk.Hash = blk.computeHash()

	acct.Head = blk.Hash
	acct.BlockCount++

	blkBytes, err := json.Marshal(blk)
	if err != nil {
		return err
	}
	u.batchPut(blockKey(blk.Hash), blkBytes)
	u.batchPut(chainKey(addr, blk.Height), blk.Hash[:])
	if blk.TxID != ids.Empty {
		u.batchPut(txKey(blk.TxID), blk.Hash[:])
	}
	u.blocks = append(u.blocks, blk)
	return nil
}

func (u *update) batchPut(key, value []byte) {
	// Batch.Put only fails once the batch is written.
	_ = u.batch.Put(key, value)
}

// commit verifies the staged supply, writes the batch and publishes the new
// account heads.
func (u *update) commit() error {
	l := u.l
	if l.halted.Load() {
		return ErrHalted
	}

	if u.supply != nil {
		if err := u.supply.verify(); err != nil {
			l.halt(err)
			return err
		}
		supplyBytes, err := json.Marshal(u.supply)
		if err != nil {
			return err
		}
		u.batchPut(keySupply, supplyBytes)
	}
	for _, addr := range u.order {
		acctBytes, err := json.Marshal(u.accounts[addr])
		if err != nil {
			return err
		}
		u.batchPut(accountKey(addr), acctBytes)
	}

	// Sequence numbers are only taken by updates that are written, so the
	// sequence stays dense across failed mutations and reloads.
	l.seqLock.Lock()
	next := l.numBlocks.Load()
	for i, blk := range u.blocks {
		u.batchPut(seqKey(next+uint64(i)), blk.Hash[:])
	}
	if err := u.batch.Write(); err != nil {
		l.seqLock.Unlock()
		err = fmt.Errorf("failed to write ledger batch: %w", err)
		l.halt(err)
		return err
	}
	l.numBlocks.Store(next + uint64(len(u.blocks)))
	l.seqLock.Unlock()

	l.accountsLock.Lock()
	for _, addr := range u.order {
		l.accounts[addr] = u.accounts[addr]
	}
	numAccounts := len(l.accounts)
	l.accountsLock.Unlock()

	if u.supply != nil {
		l.supply = *u.supply
		l.metrics.circulating.Set(float64(l.supply.Circulating))
		l.metrics.remaining.Set(float64(l.supply.Remaining))
	}
	for _, blk := range u.blocks {
		l.blockCache.Add(blk.Hash, blk)
		l.log.Debug("block appended",
			log.Stringer("hash", blk.Hash),
			log.String("account", blk.Account.String()),
			log.String("type", string(blk.Type)),
			log.Uint64("amount", blk.Amount),
		)
	}
	l.metrics.accounts.Set(float64(numAccounts))
	l.metrics.blocks.Set(float64(l.numBlocks.Load()))
	return nil
}
