// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger implements the block lattice: one append-only chain per
// account, cross linked by send/receive pairs, together with the global
// supply accounting every mutation must conserve.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/los/keys"
)

// Config parameterizes a ledger.
type Config struct {
	TotalSupply    uint64 `json:"totalSupply"`
	RewardPool     uint64 `json:"rewardPool"`
	BlockCacheSize int    `json:"blockCacheSize"`
}

var DefaultConfig = Config{
	TotalSupply:    TotalSupply,
	RewardPool:     RewardPool,
	BlockCacheSize: 4096,
}

// Allocation is a genesis balance.
type Allocation struct {
	Address   keys.Address      `json:"address"`
	Amount    uint64            `json:"amount"`
	Validator *ValidatorProfile `json:"validator,omitempty"`
}

// Stats summarizes the ledger for health reporting.
type Stats struct {
	Accounts int    `json:"accounts"`
	Blocks   uint64 `json:"blocks"`
}

type Ledger struct {
	log     log.Logger
	config  Config
	db      database.Database
	metrics *metrics
	locks   accountLocks

	accountsLock sync.RWMutex
	accounts     map[keys.Address]*Account

	// supplyLock serializes every mutation that moves CIL between
	// circulating and remaining supply.
	supplyLock sync.Mutex
	supply     Supply
	burnLock   sync.Mutex

	// seqLock orders the block sequence numbers of concurrent updates.
	seqLock   sync.Mutex
	numBlocks atomic.Uint64
	halted    atomic.Bool

	blockCache *lru.Cache
}

// New opens the ledger stored in db, loading any existing state.
func New(
	db database.Database,
	config Config,
	logger log.Logger,
	registerer prometheus.Registerer,
) (*Ledger, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register ledger metrics: %w", err)
	}
	cache, err := lru.New(max(config.BlockCacheSize, 1))
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		log:        logger,
		config:     config,
		db:         db,
		metrics:    m,
		accounts:   make(map[keys.Address]*Account),
		blockCache: cache,
		supply: Supply{
			Total:         config.TotalSupply,
			Remaining:     config.TotalSupply,
			RewardReserve: config.RewardPool,
		},
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	supplyBytes, err := l.db.Get(keySupply)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return l.supply.verify()
	case err != nil:
		return fmt.Errorf("failed to load supply: %w", err)
	}
	if err := json.Unmarshal(supplyBytes, &l.supply); err != nil {
		return fmt.Errorf("failed to parse supply: %w", err)
	}
	if err := l.supply.verify(); err != nil {
		l.halt(err)
		return err
	}

	it := l.db.NewIteratorWithPrefix(prefixAccount)
	defer it.Release()
	var circulating uint64
	for it.Next() {
		acct := &Account{}
		if err := json.Unmarshal(it.Value(), acct); err != nil {
			return fmt.Errorf("failed to parse account %q: %w", it.Key(), err)
		}
		l.accounts[acct.Address] = acct
		circulating += acct.Balance
		l.numBlocks.Add(acct.BlockCount)
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("failed to iterate accounts: %w", err)
	}
	if circulating != l.supply.Circulating {
		err := fmt.Errorf("%w: balances sum to %d but circulating is %d", ErrConservation, circulating, l.supply.Circulating)
		l.halt(err)
		return err
	}

	l.metrics.accounts.Set(float64(len(l.accounts)))
	l.metrics.blocks.Set(float64(l.numBlocks.Load()))
	l.metrics.circulating.Set(float64(l.supply.Circulating))
	l.metrics.remaining.Set(float64(l.supply.Remaining))
	l.log.Info("ledger loaded",
		log.Int("accounts", len(l.accounts)),
		log.Uint64("blocks", l.numBlocks.Load()),
		log.Uint64("circulating", l.supply.Circulating),
	)
	return nil
}

// Initialized reports whether genesis has been applied.
func (l *Ledger) Initialized() bool {
	has, err := l.db.Has(keySupply)
	return err == nil && has
}

// ApplyGenesis mints the genesis allocations. It may only run once.
func (l *Ledger) ApplyGenesis(allocs []Allocation, timestamp int64) error {
	if l.Initialized() {
		return ErrAlreadyInitialized
	}
	l.supplyLock.Lock()
	defer l.supplyLock.Unlock()

	u := l.newUpdate()
	supply := l.supply
	for _, alloc := range allocs {
		if _, err := keys.ParseAddress(alloc.Address.String()); err != nil {
			return err
		}
		var err error
		supply, err = supply.mint(alloc.Amount, false)
		if err != nil {
			return err
		}
		if err := u.append(alloc.Address, &Block{
			Type:      Mint,
			Amount:    alloc.Amount,
			Reason:    ReasonGenesis,
			Timestamp: timestamp,
		}); err != nil {
			return err
		}
		if alloc.Validator != nil {
			v := *alloc.Validator
			v.IsGenesis = true
			v.RegisteredAt = timestamp
			u.account(alloc.Address).Validator = &v
		}
	}
	u.supply = &supply
	return u.commit()
}

// Transfer moves Amount from From to To, charging Fee to From. The fee is
// credited to FeeSink, or returned to the remaining supply when FeeSink is
// empty.
type Transfer struct {
	TxID      ids.ID
	From      keys.Address
	To        keys.Address
	Amount    uint64
	Fee       uint64
	FeeSink   keys.Address
	Timestamp int64
}

// ApplyTransfer atomically appends the send block to the sender's chain and
// the matching receive block to the recipient's chain.
func (l *Ledger) ApplyTransfer(t Transfer) (send *Block, receive *Block, err error) {
	if err := ValidateTransfer(t.From, t.To, t.Amount); err != nil {
		return nil, nil, err
	}

	unlock := l.locks.lock(t.From, t.To, t.FeeSink)
	defer unlock()

	if l.Balance(t.From) < t.Amount+t.Fee || t.Amount+t.Fee < t.Amount {
		return nil, nil, fmt.Errorf("%w: %s has %d, needs %d",
			ErrInsufficientFunds, t.From, l.Balance(t.From), t.Amount+t.Fee)
	}

	u := l.newUpdate()
	send = &Block{
		Type:         Send,
		Amount:       t.Amount,
		Fee:          t.Fee,
		Counterparty: t.To,
		TxID:         t.TxID,
		Timestamp:    t.Timestamp,
	}
	if err := u.append(t.From, send); err != nil {
		return nil, nil, err
	}
	receive = &Block{
		Type:         Receive,
		Amount:       t.Amount,
		Counterparty: t.From,
		Link:         send.Hash,
		Timestamp:    t.Timestamp,
	}
	if err := u.append(t.To, receive); err != nil {
		return nil, nil, err
	}
	u.batchPut(pairKey(send.Hash), receive.Hash[:])

	if t.Fee > 0 {
		if t.FeeSink != "" {
			if err := u.append(t.FeeSink, &Block{
				Type:         Reward,
				Amount:       t.Fee,
				Counterparty: t.From,
				Link:         send.Hash,
				Reason:       ReasonFee,
				Timestamp:    t.Timestamp,
			}); err != nil {
				return nil, nil, err
			}
		} else {
			l.supplyLock.Lock()
			defer l.supplyLock.Unlock()
			supply := l.supply.retire(t.Fee)
			u.supply = &supply
		}
	}

	if err := u.commit(); err != nil {
		return nil, nil, err
	}
	l.metrics.transfers.Inc()
	return send, receive, nil
}

// ValidateTransfer performs the stateless checks of a transfer.
func ValidateTransfer(from, to keys.Address, amount uint64) error {
	if _, err := keys.ParseAddress(from.String()); err != nil {
		return err
	}
	if _, err := keys.ParseAddress(to.String()); err != nil {
		return err
	}
	if from == to {
		return ErrSelfTransfer
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	return nil
}

// MintRequest credits newly minted CIL to an account.
type MintRequest struct {
	TxID      ids.ID
	To        keys.Address
	Amount    uint64
	Reason    string
	Timestamp int64
}

// ApplyMint mints Amount to To. Reward mints draw down the reward reserve,
// every other reason is limited to the supply outside the reserve.
func (l *Ledger) ApplyMint(m MintRequest) (*Block, error) {
	if _, err := keys.ParseAddress(m.To.String()); err != nil {
		return nil, err
	}
	if m.Amount == 0 {
		return nil, ErrZeroAmount
	}

	unlock := l.locks.lock(m.To)
	defer unlock()
	l.supplyLock.Lock()
	defer l.supplyLock.Unlock()

	return l.mintLocked(l.newUpdate(), m)
}

func (l *Ledger) mintLocked(u *update, m MintRequest) (*Block, error) {
	isReward := m.Reason == ReasonReward
	supply, err := l.supply.mint(m.Amount, isReward)
	if err != nil {
		return nil, err
	}
	typ := Mint
	if isReward {
		typ = Reward
	}
	blk := &Block{
		Type:      typ,
		Amount:    m.Amount,
		Reason:    m.Reason,
		TxID:      m.TxID,
		Timestamp: m.Timestamp,
	}
	if err := u.append(m.To, blk); err != nil {
		return nil, err
	}
	u.supply = &supply
	if err := u.commit(); err != nil {
		return nil, err
	}
	l.metrics.mints.WithLabelValues(m.Reason).Inc()
	return blk, nil
}

// ApplySlash debits up to amount from addr and returns it to the remaining
// supply. The slashed amount is returned.
func (l *Ledger) ApplySlash(addr keys.Address, amount uint64, txID ids.ID, reason string, timestamp int64) (uint64, error) {
	unlock := l.locks.lock(addr)
	defer unlock()
	l.supplyLock.Lock()
	defer l.supplyLock.Unlock()

	amount = min(amount, l.Balance(addr))
	if amount == 0 {
		return 0, nil
	}
	u := l.newUpdate()
	if err := u.append(addr, &Block{
		Type:      Slash,
		Amount:    amount,
		Reason:    reason,
		TxID:      txID,
		Timestamp: timestamp,
	}); err != nil {
		return 0, err
	}
	supply := l.supply.retire(amount)
	u.supply = &supply
	return amount, u.commit()
}

// SetValidator attaches (or with a nil profile, detaches) the validator
// capability of an account, recording a change block.
func (l *Ledger) SetValidator(addr keys.Address, profile *ValidatorProfile, txID ids.ID, timestamp int64) error {
	if _, err := keys.ParseAddress(addr.String()); err != nil {
		return err
	}
	unlock := l.locks.lock(addr)
	defer unlock()

	reason := "register_validator"
	if profile == nil {
		reason = "unregister_validator"
	}
	u := l.newUpdate()
	if err := u.append(addr, &Block{
		Type:      Change,
		Reason:    reason,
		TxID:      txID,
		Timestamp: timestamp,
	}); err != nil {
		return err
	}
	u.account(addr).Validator = profile
	return u.commit()
}

// Balance returns the balance of addr, zero for unknown accounts.
func (l *Ledger) Balance(addr keys.Address) uint64 {
	l.accountsLock.RLock()
	defer l.accountsLock.RUnlock()
	if acct, ok := l.accounts[addr]; ok {
		return acct.Balance
	}
	return 0
}

// Account returns a copy of the account state. Unknown addresses return an
// empty account and false.
func (l *Ledger) Account(addr keys.Address) (*Account, bool) {
	l.accountsLock.RLock()
	defer l.accountsLock.RUnlock()
	if acct, ok := l.accounts[addr]; ok {
		return acct.clone(), true
	}
	return &Account{Address: addr}, false
}

// Accounts returns copies of every account ordered by address.
func (l *Ledger) Accounts() []*Account {
	l.accountsLock.RLock()
	accts := make([]*Account, 0, len(l.accounts))
	for _, acct := range l.accounts {
		accts = append(accts, acct.clone())
	}
	l.accountsLock.RUnlock()

	sort.Slice(accts, func(i, j int) bool { return accts[i].Address < accts[j].Address })
	return accts
}

// Validators returns the accounts currently carrying a validator profile.
func (l *Ledger) Validators() []*Account {
	var validators []*Account
	for _, acct := range l.Accounts() {
		if acct.IsValidator() {
			validators = append(validators, acct)
		}
	}
	return validators
}

// History returns the chain of addr, oldest first.
func (l *Ledger) History(addr keys.Address) ([]*Block, error) {
	it := l.db.NewIteratorWithPrefix(chainPrefix(addr))
	defer it.Release()

	var blocks []*Block
	for it.Next() {
		hash, err := ids.ToID(it.Value())
		if err != nil {
			return nil, err
		}
		blk, err := l.Block(hash)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}
	return blocks, it.Error()
}

// Block returns the block with the given hash.
func (l *Ledger) Block(hash ids.ID) (*Block, error) {
	if cached, ok := l.blockCache.Get(hash); ok {
		return cached.(*Block), nil
	}
	b, err := l.db.Get(blockKey(hash))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: block %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	blk := &Block{}
	if err := json.Unmarshal(b, blk); err != nil {
		return nil, err
	}
	l.blockCache.Add(hash, blk)
	return blk, nil
}

// BlockByTx returns the block created for a transaction ID.
func (l *Ledger) BlockByTx(txID ids.ID) (*Block, error) {
	b, err := l.db.Get(txKey(txID))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, txID)
	}
	if err != nil {
		return nil, err
	}
	hash, err := ids.ToID(b)
	if err != nil {
		return nil, err
	}
	return l.Block(hash)
}

// Paired returns the receive block matching a send block.
func (l *Ledger) Paired(send ids.ID) (*Block, error) {
	b, err := l.db.Get(pairKey(send))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: pair of %s", ErrNotFound, send)
	}
	if err != nil {
		return nil, err
	}
	hash, err := ids.ToID(b)
	if err != nil {
		return nil, err
	}
	return l.Block(hash)
}

// RecentBlocks returns up to n blocks, newest first.
func (l *Ledger) RecentBlocks(n int) ([]*Block, error) {
	total := l.numBlocks.Load()
	blocks := make([]*Block, 0, min(uint64(n), total))
	for seq := total; seq > 0 && len(blocks) < n; seq-- {
		b, err := l.db.Get(seqKey(seq - 1))
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		hash, err := ids.ToID(b)
		if err != nil {
			return nil, err
		}
		blk, err := l.Block(hash)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}
	return blocks, nil
}

// Supply returns a snapshot of the supply accounting.
func (l *Ledger) Supply() Supply {
	l.supplyLock.Lock()
	defer l.supplyLock.Unlock()
	return l.supply
}

// Stats returns account and block counts.
func (l *Ledger) Stats() Stats {
	l.accountsLock.RLock()
	defer l.accountsLock.RUnlock()
	return Stats{
		Accounts: len(l.accounts),
		Blocks:   l.numBlocks.Load(),
	}
}

// Halted reports whether a fatal invariant violation stopped the write path.
func (l *Ledger) Halted() bool {
	return l.halted.Load()
}

func (l *Ledger) halt(err error) {
	if l.halted.CompareAndSwap(false, true) {
		l.metrics.halted.Set(1)
		l.log.Error("halting ledger writes", log.Err(err))
	}
}
