// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/los/consensus/bft"
	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/ledger"
	"github.com/luxfi/los/reward"
	"github.com/luxfi/los/slashing"
	"github.com/luxfi/los/txs"
	"github.com/luxfi/los/txs/mempool"
	"github.com/luxfi/los/utils/timer/mockable"
	"github.com/luxfi/los/validators"
)

var (
	ErrTestnetOnly        = errors.New("only available on testnet")
	ErrFaucetCooldown     = errors.New("faucet cooldown active")
	ErrFeeTooLow          = errors.New("fee too low")
	ErrFeeTooHigh         = errors.New("fee above the maximum fee")
	ErrAlreadyExecuted    = errors.New("transaction already executed")
	ErrInvalidEvidence    = errors.New("invalid slashing evidence")
	ErrEpochMismatch      = errors.New("epoch close does not match the current epoch")
	ErrProposalTimestamp  = errors.New("proposal timestamp too far from local time")
	ErrAttestationChanged = errors.New("burn attestation does not match")
	ErrHeartbeatsExceeded = errors.New("heartbeat count exceeds the epoch bound")

	errFatal = errors.New("fatal execution error")
)

func fatal(err error) error {
	return fmt.Errorf("%w: %w", errFatal, err)
}

var _ bft.App = (*executor)(nil)

// executor is the replicated state machine driven by consensus. Every node
// applies the same decisions in the same order and reaches the same state.
type executor struct {
	log   log.Logger
	n     *Node
	clock *mockable.Clock

	ledger     *ledger.Ledger
	pool       *reward.Pool
	slashing   *slashing.Engine
	validators *validators.Manager
	mempool    *mempool.Mempool

	stateDB *versiondb.Database
	nodeDB  database.Database

	// lock serializes decisions with local writes to the versioned state.
	lock    sync.Mutex
	applied uint64
}

func (e *executor) loadApplied() error {
	b, err := e.nodeDB.Get(appliedKey)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	if len(b) != 8 {
		return fmt.Errorf("malformed applied marker of %d bytes", len(b))
	}
	e.applied = binary.BigEndian.Uint64(b)
	return nil
}

// Applied returns the sequence of the last applied decision.
func (e *executor) Applied() uint64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.applied
}

func (e *executor) Propose(_ context.Context, maxTxs int) ([][]byte, error) {
	now := int64(e.clock.Unix())
	var out [][]byte
	if e.pool.EpochEnded(now) {
		epoch, _ := e.pool.Epoch()
		heartbeats := e.validators.Heartbeats(epoch)
		bound := e.heartbeatBound(now)
		for addr, count := range heartbeats {
			heartbeats[addr] = min(count, bound)
		}
		tx := &txs.Tx{
			Kind:      txs.KindEpochClose,
			Timestamp: e.clock.Time().UnixNano(),
			EpochClose: &txs.EpochClose{
				Epoch:      epoch,
				Heartbeats: heartbeats,
			},
		}
		out = append(out, tx.Bytes())
	}

	var invalid []ids.ID
	for _, tx := range e.mempool.Peek(maxTxs - len(out)) {
		if err := e.check(tx, now); err != nil {
			e.log.Debug("dropping invalid transaction",
				log.Stringer("txID", tx.ID()),
				log.Err(err),
			)
			invalid = append(invalid, tx.ID())
			continue
		}
		out = append(out, tx.Bytes())
	}
	e.mempool.Remove(invalid...)
	return out, nil
}

func (e *executor) Verify(p *bft.Proposal) error {
	now := int64(e.clock.Unix())
	if d := p.Timestamp - now; d > txs.MaxTimestampDrift || d < -txs.MaxTimestampDrift {
		return fmt.Errorf("%w: %ds", ErrProposalTimestamp, d)
	}
	for _, b := range p.Txs {
		tx, err := txs.Parse(b)
		if err != nil {
			return fmt.Errorf("%w: %w", bft.ErrMalformedMessage, err)
		}
		if err := e.check(tx, p.Timestamp); err != nil {
			return fmt.Errorf("tx %s: %w", tx.ID(), err)
		}
	}
	return nil
}

// check performs the checks that do not depend on the order of transactions
// within a decision.
func (e *executor) check(tx *txs.Tx, timestamp int64) error {
	if err := tx.SyntacticVerify(); err != nil {
		return err
	}
	switch tx.Kind {
	case txs.KindTransfer:
		return e.checkFee(tx.Transfer.Fee)
	case txs.KindResetBurn:
		if !e.n.config.Testnet {
			return ErrTestnetOnly
		}
	case txs.KindFaucet:
		if !e.n.config.Testnet {
			return ErrTestnetOnly
		}
		if tx.Faucet.Amount > e.n.config.FaucetAmount {
			return fmt.Errorf("faucet amount %d exceeds %d", tx.Faucet.Amount, e.n.config.FaucetAmount)
		}
	case txs.KindBurn:
		return e.n.checkBurn(tx.Burn)
	case txs.KindSlash:
		return e.checkSlash(tx.Slash)
	case txs.KindEpochClose:
		epoch, _ := e.pool.Epoch()
		if tx.EpochClose.Epoch != epoch {
			return fmt.Errorf("%w: %d during %d", ErrEpochMismatch, tx.EpochClose.Epoch, epoch)
		}
		if !e.pool.EpochEnded(timestamp) {
			return reward.ErrEpochNotOver
		}
		return e.checkHeartbeats(tx.EpochClose, timestamp)
	}
	return nil
}

// heartbeatBound is the largest heartbeat count an epoch close at timestamp
// may report for one validator.
func (e *executor) heartbeatBound(timestamp int64) uint64 {
	return e.pool.MaxHeartbeats(timestamp, txs.MaxTimestampDrift*time.Second)
}

// checkHeartbeats rejects counts the heartbeat counter could not have
// recorded. Counts within the bound are taken from the proposing leader.
func (e *executor) checkHeartbeats(c *txs.EpochClose, timestamp int64) error {
	bound := e.heartbeatBound(timestamp)
	for addr, count := range c.Heartbeats {
		if count > bound {
			return fmt.Errorf("%w: %d for %s, at most %d", ErrHeartbeatsExceeded, count, addr, bound)
		}
	}
	return nil
}

// checkFee bounds a signed transfer fee by the anti-whale schedule.
func (e *executor) checkFee(fee uint64) error {
	c := e.n.config.Fee
	switch {
	case fee < c.BaseFee:
		return fmt.Errorf("%w: %d < %d", ErrFeeTooLow, fee, c.BaseFee)
	case fee > c.Max():
		return fmt.Errorf("%w: %d > %d", ErrFeeTooHigh, fee, c.Max())
	}
	return nil
}

func (e *executor) checkSlash(s *txs.Slash) error {
	if slashing.Fault(s.Fault) != slashing.DoubleSign {
		return fmt.Errorf("%w: %q faults are not accepted from the network", ErrInvalidEvidence, s.Fault)
	}
	ev, err := bft.ParseEvidence(s.Evidence)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvidence, err)
	}
	if ev.Offender() != s.Validator {
		return fmt.Errorf("%w: evidence names %s", ErrInvalidEvidence, ev.Offender())
	}
	acct, ok := e.ledger.Account(s.Validator)
	if !ok || !acct.IsValidator() {
		return fmt.Errorf("%w: %s", validators.ErrNotRegistered, s.Validator)
	}
	if err := ev.Verify(acct.Validator.PublicKey); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvidence, err)
	}
	return nil
}

func (e *executor) Execute(d *bft.Decision) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	p := d.Proposal
	if p.Sequence <= e.applied {
		return nil
	}

	executed := make([]ids.ID, 0, len(p.Txs))
	results := make(map[ids.ID]error, len(p.Txs))
	for _, b := range p.Txs {
		tx, err := txs.Parse(b)
		if err != nil {
			e.log.Warn("skipping malformed transaction",
				log.Uint64("sequence", p.Sequence),
				log.Err(err),
			)
			continue
		}
		txID := tx.ID()
		err = e.apply(tx, txID, p)
		if errors.Is(err, errFatal) || e.ledger.Halted() {
			e.stateDB.Abort()
			return fmt.Errorf("failed to execute %s at %d: %w", txID, p.Sequence, err)
		}
		if err != nil {
			e.log.Debug("transaction rejected",
				log.Stringer("txID", txID),
				log.String("kind", string(tx.Kind)),
				log.Err(err),
			)
		}
		executed = append(executed, txID)
		results[txID] = err
	}

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], p.Sequence)
	if err := e.nodeDB.Put(appliedKey, seq[:]); err != nil {
		return err
	}
	if err := e.stateDB.Commit(); err != nil {
		return fmt.Errorf("failed to commit state at %d: %w", p.Sequence, err)
	}
	e.applied = p.Sequence

	e.mempool.Remove(executed...)
	e.n.finish(results)
	return nil
}

func (e *executor) Pending() bool {
	return e.mempool.Len() > 0 || e.pool.EpochEnded(int64(e.clock.Unix()))
}

func (e *executor) apply(tx *txs.Tx, txID ids.ID, p *bft.Proposal) error {
	if err := tx.SyntacticVerify(); err != nil {
		return err
	}
	if _, err := e.ledger.BlockByTx(txID); err == nil {
		return ErrAlreadyExecuted
	}

	ts := p.Timestamp
	switch tx.Kind {
	case txs.KindTransfer:
		t := tx.Transfer
		if err := e.checkFee(t.Fee); err != nil {
			return err
		}
		_, _, err := e.ledger.ApplyTransfer(ledger.Transfer{
			TxID:      txID,
			From:      t.From,
			To:        t.To,
			Amount:    t.Amount,
			Fee:       t.Fee,
			FeeSink:   p.Proposer,
			Timestamp: ts,
		})
		return err
	case txs.KindFaucet:
		return e.applyFaucet(tx.Faucet, txID, ts)
	case txs.KindBurn:
		// The attestation was checked before the decision was voted on.
		// Execution depends only on the decision so replicas cannot diverge.
		b := tx.Burn
		if _, _, err := canonicalBurn(b); err != nil {
			return err
		}
		_, err := e.ledger.ApplyBurnMint(ledger.BurnClaim{
			Coin:      b.Coin,
			TxID:      b.TxID,
			Recipient: b.Recipient,
			Amount:    b.Amount,
			USD:       b.USD,
			Timestamp: ts,
		}, txID)
		return err
	case txs.KindRegisterValidator:
		if err := e.validators.CheckRegister(tx.Register, ts); err != nil {
			return err
		}
		if err := e.validators.Register(tx.Register, txID, ts); err != nil {
			return fatal(err)
		}
		return nil
	case txs.KindUnregisterValidator:
		if err := e.validators.VerifyUnregister(tx.Unregister); err != nil {
			return err
		}
		if err := e.validators.Unregister(tx.Unregister, txID, ts); err != nil {
			return fatal(err)
		}
		return nil
	case txs.KindSlash:
		return e.applySlash(tx.Slash, txID, ts)
	case txs.KindEpochClose:
		return e.applyEpochClose(tx.EpochClose, txID, ts)
	case txs.KindResetBurn:
		if !e.n.config.Testnet {
			return ErrTestnetOnly
		}
		reset, err := e.ledger.ResetBurn(tx.ResetBurn.Coin, tx.ResetBurn.TxID)
		if err != nil {
			return fatal(err)
		}
		if !reset {
			return fmt.Errorf("%w: %s", ledger.ErrNotFound, tx.ResetBurn.TxID)
		}
		return nil
	default:
		return txs.ErrUnknownKind
	}
}

func (e *executor) applyFaucet(f *txs.Faucet, txID ids.ID, ts int64) error {
	if !e.n.config.Testnet {
		return ErrTestnetOnly
	}
	last, err := e.lastFaucet(f.Address)
	if err != nil {
		return fatal(err)
	}
	cooldown := int64(e.n.config.FaucetCooldown.Seconds())
	if last != 0 && ts < last+cooldown {
		return fmt.Errorf("%w: %ds left", ErrFaucetCooldown, last+cooldown-ts)
	}
	if _, err := e.ledger.ApplyMint(ledger.MintRequest{
		TxID:      txID,
		To:        f.Address,
		Amount:    min(f.Amount, e.n.config.FaucetAmount),
		Reason:    ledger.ReasonFaucet,
		Timestamp: ts,
	}); err != nil {
		return err
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(ts))
	if err := e.nodeDB.Put(faucetKey(f.Address), b[:]); err != nil {
		return fatal(err)
	}
	return nil
}

// lastFaucet returns the unix time of the last faucet claim of addr, zero if
// it never claimed.
func (e *executor) lastFaucet(addr keys.Address) (int64, error) {
	b, err := e.nodeDB.Get(faucetKey(addr))
	switch {
	case errors.Is(err, database.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	case len(b) != 8:
		return 0, fmt.Errorf("malformed faucet record of %d bytes", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func faucetKey(addr keys.Address) []byte {
	return append(append([]byte{}, faucetPrefix...), addr...)
}

func (e *executor) applySlash(s *txs.Slash, txID ids.ID, ts int64) error {
	if err := e.checkSlash(s); err != nil {
		return err
	}
	profile := e.slashing.Profile(s.Validator)
	if profile.Banned {
		return slashing.ErrBanned
	}
	for _, ev := range profile.Events {
		if ev.TxID == txID {
			return ErrAlreadyExecuted
		}
	}

	fault := slashing.Fault(s.Fault)
	penalty, err := e.slashing.Penalty(fault, e.ledger.Balance(s.Validator))
	if err != nil {
		return err
	}
	slashed, err := e.ledger.ApplySlash(s.Validator, penalty, txID, string(fault), ts)
	if err != nil {
		return err
	}
	epoch, _ := e.pool.Epoch()
	if _, err := e.slashing.Record(s.Validator, slashing.Event{
		Fault:     fault,
		Amount:    slashed,
		Epoch:     epoch,
		Timestamp: ts,
		TxID:      txID,
	}); err != nil {
		return fatal(err)
	}
	return nil
}

func (e *executor) applyEpochClose(c *txs.EpochClose, txID ids.ID, ts int64) error {
	if err := e.checkHeartbeats(c, ts); err != nil {
		return err
	}
	result, err := e.pool.CloseEpoch(c.Epoch, ts, e.validators.Candidates(c.Heartbeats))
	switch {
	case errors.Is(err, reward.ErrWrongEpoch), errors.Is(err, reward.ErrEpochNotOver):
		return err
	case err != nil:
		return fatal(err)
	}
	for _, payout := range result.Payouts {
		if _, err := e.ledger.ApplyMint(ledger.MintRequest{
			TxID:      txID,
			To:        payout.Address,
			Amount:    payout.Amount,
			Reason:    ledger.ReasonReward,
			Timestamp: ts,
		}); err != nil {
			return fatal(err)
		}
	}
	e.validators.AdvanceEpoch(result.NextEpoch)
	return nil
}
