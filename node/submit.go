// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/los/consensus/bft"
	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/ledger"
	"github.com/luxfi/los/network"
	"github.com/luxfi/los/txs"
)

var ErrForeignSender = errors.New("node can only sign for its own address")

// Receipt is the outcome of a submission. A transaction that did not
// finalize within the confirmation timeout is still pending and may be
// applied later.
type Receipt struct {
	TxID      ids.ID `json:"tx_id"`
	Confirmed bool   `json:"confirmed"`
}

// Submit admits tx to the mempool, gossips it to the validators and waits
// for it to be finalized.
func (n *Node) Submit(ctx context.Context, tx *txs.Tx) (Receipt, error) {
	if !n.consensus.Available() {
		return Receipt{}, bft.ErrConsensusUnavailable
	}
	if err := n.admit(tx); err != nil {
		return Receipt{}, err
	}

	id := tx.ID()
	done := n.wait(id)
	defer n.unwait(id, done)

	if err := n.mempool.Add(tx); err != nil {
		return Receipt{}, err
	}
	n.network.MarkSeen(id)
	n.network.Gossip(network.TxPath, tx.Bytes())
	n.log.Debug("submitted transaction",
		log.Stringer("txID", id),
		log.String("kind", string(tx.Kind)),
	)

	ctx, cancel := context.WithTimeout(ctx, n.config.ConfirmTimeout)
	defer cancel()
	select {
	case err := <-done:
		if err != nil {
			return Receipt{TxID: id}, err
		}
		return Receipt{TxID: id, Confirmed: true}, nil
	case <-ctx.Done():
		return Receipt{TxID: id}, nil
	}
}

// admit checks tx against the current state before it enters the mempool.
func (n *Node) admit(tx *txs.Tx) error {
	now := int64(n.clock.Unix())
	if err := n.exec.check(tx, now); err != nil {
		return err
	}
	if _, err := n.ledger.BlockByTx(tx.ID()); err == nil {
		return ErrAlreadyExecuted
	}
	switch tx.Kind {
	case txs.KindRegisterValidator:
		return n.validators.CheckRegister(tx.Register, now)
	case txs.KindUnregisterValidator:
		return n.validators.VerifyUnregister(tx.Unregister)
	case txs.KindFaucet:
		return n.reserveFaucet(tx.Faucet.Address, now)
	case txs.KindEpochClose:
		// only ever proposed by the leader
		return fmt.Errorf("%w: %s", txs.ErrUnknownKind, tx.Kind)
	}
	return nil
}

// wait registers interest in the execution result of id.
func (n *Node) wait(id ids.ID) chan error {
	ch := make(chan error, 1)
	n.waitersLock.Lock()
	n.waiters[id] = append(n.waiters[id], ch)
	n.waitersLock.Unlock()
	return ch
}

func (n *Node) unwait(id ids.ID, ch chan error) {
	n.waitersLock.Lock()
	defer n.waitersLock.Unlock()
	chans := n.waiters[id]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(n.waiters, id)
		return
	}
	n.waiters[id] = chans
}

// finish delivers execution results to waiting submitters.
func (n *Node) finish(results map[ids.ID]error) {
	n.waitersLock.Lock()
	defer n.waitersLock.Unlock()
	for id, err := range results {
		for _, ch := range n.waiters[id] {
			select {
			case ch <- err:
			default:
			}
		}
		delete(n.waiters, id)
	}
}

// SignTransfer builds a transfer from the node's own account, offering the
// current anti-whale fee.
func (n *Node) SignTransfer(to keys.Address, amount uint64, nonce int64) *txs.Transfer {
	t := &txs.Transfer{
		From:      n.keys.Address,
		To:        to,
		Amount:    amount,
		Fee:       n.fees.Next(n.keys.Address),
		Nonce:     nonce,
		PublicKey: n.keys.PublicKey,
	}
	t.Signature = n.keys.Sign(t.SigningMessage())
	return t
}

// Send submits a signed transfer. The signed fee must cover the sender's
// anti-whale estimate; an accepted transfer counts against its window.
func (n *Node) Send(ctx context.Context, t *txs.Transfer) (Receipt, error) {
	if err := ledger.ValidateTransfer(t.From, t.To, t.Amount); err != nil {
		return Receipt{}, err
	}
	tx := &txs.Tx{
		Kind:      txs.KindTransfer,
		Timestamp: n.clock.Time().UnixNano(),
		Transfer:  t,
	}
	if err := tx.SyntacticVerify(); err != nil {
		return Receipt{}, err
	}
	if err := n.exec.checkFee(t.Fee); err != nil {
		return Receipt{}, err
	}
	if required, ok := n.fees.Charge(t.From, t.Fee); !ok {
		return Receipt{}, fmt.Errorf("%w: signed %d, estimate %d", ErrFeeTooLow, t.Fee, required)
	}
	return n.Submit(ctx, tx)
}

// Register adds a validator through consensus.
func (n *Node) Register(ctx context.Context, r *txs.RegisterValidator) (Receipt, error) {
	return n.Submit(ctx, &txs.Tx{
		Kind:      txs.KindRegisterValidator,
		Timestamp: n.clock.Time().UnixNano(),
		Register:  r,
	})
}

// Unregister removes a validator through consensus.
func (n *Node) Unregister(ctx context.Context, u *txs.UnregisterValidator) (Receipt, error) {
	return n.Submit(ctx, &txs.Tx{
		Kind:       txs.KindUnregisterValidator,
		Timestamp:  n.clock.Time().UnixNano(),
		Unregister: u,
	})
}
