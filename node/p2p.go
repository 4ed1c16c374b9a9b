// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/los/consensus/bft"
	"github.com/luxfi/los/network"
	"github.com/luxfi/los/slashing"
	"github.com/luxfi/los/txs"
	"github.com/luxfi/los/txs/mempool"
	"github.com/luxfi/los/validators"
)

var ErrStaleHeartbeat = errors.New("heartbeat for another epoch")

// HandleTx admits a transaction gossiped by a peer and relays it.
func (n *Node) HandleTx(b []byte) error {
	tx, err := txs.Parse(b)
	if err != nil {
		return fmt.Errorf("%w: %w", bft.ErrMalformedMessage, err)
	}
	id := tx.ID()
	if n.network.MarkSeen(id) {
		return nil
	}
	if err := n.admit(tx); err != nil {
		return err
	}
	if err := n.mempool.Add(tx); err != nil && !errors.Is(err, mempool.ErrDuplicateTx) {
		return err
	}
	n.network.Gossip(network.TxPath, b)
	return nil
}

// HandleConsensus delivers a consensus message from a peer to the engine
// and relays it.
func (n *Node) HandleConsensus(ctx context.Context, b []byte) error {
	msg, err := bft.ParseMessage(b)
	if err != nil {
		return err
	}
	if n.network.MarkSeen(sha256.Sum256(b)) {
		return nil
	}
	n.network.Gossip(network.ConsensusPath, b)
	return n.consensus.Receive(ctx, msg)
}

// HandleHeartbeat records a liveness signal of a validator and relays it.
func (n *Node) HandleHeartbeat(b []byte) error {
	h := &network.Heartbeat{}
	if err := json.Unmarshal(b, h); err != nil {
		return fmt.Errorf("%w: %w", bft.ErrMalformedMessage, err)
	}
	if n.network.MarkSeen(h.ID()) {
		return nil
	}
	if err := txs.CheckTimestamp(h.Timestamp, int64(n.clock.Unix())); err != nil {
		return err
	}
	acct, ok := n.ledger.Account(h.Address)
	if !ok || !acct.IsValidator() {
		return fmt.Errorf("%w: %s", validators.ErrNotRegistered, h.Address)
	}
	if err := h.Verify(acct.Validator.PublicKey); err != nil {
		return err
	}
	if epoch, _ := n.rewards.Epoch(); h.Epoch != epoch {
		return fmt.Errorf("%w: %d during %d", ErrStaleHeartbeat, h.Epoch, epoch)
	}
	n.validators.Heartbeat(h.Address)
	n.network.Gossip(network.HeartbeatPath, b)
	return nil
}

// runHeartbeats signals the liveness of this validator every heartbeat
// interval.
func (n *Node) runHeartbeats(ctx context.Context) error {
	ticker := time.NewTicker(n.config.Reward.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.heartbeat()
		}
	}
}

func (n *Node) heartbeat() {
	if !n.validators.IsMember(n.keys.Address) {
		return
	}
	epoch, _ := n.rewards.Epoch()
	n.validators.Heartbeat(n.keys.Address)
	h := network.NewHeartbeat(n.keys, epoch, int64(n.clock.Unix()))
	n.network.MarkSeen(h.ID())
	n.network.Gossip(network.HeartbeatPath, h.Bytes())
}

// onEvidence turns an equivocation caught by consensus into a slash
// transaction. It runs with the engine locked. The evidence is put in a
// canonical order so every validator that caught it proposes the same
// transaction.
func (n *Node) onEvidence(ev *bft.Evidence) {
	offender := ev.Offender()
	if n.slashing.IsBanned(offender) {
		return
	}
	canonical := &bft.Evidence{First: ev.First, Second: ev.Second}
	if bytes.Compare(canonical.First.Digest[:], canonical.Second.Digest[:]) > 0 {
		canonical.First, canonical.Second = canonical.Second, canonical.First
	}
	tx := &txs.Tx{
		Kind: txs.KindSlash,
		Slash: &txs.Slash{
			Validator: offender,
			Fault:     string(slashing.DoubleSign),
			Evidence:  canonical.Bytes(),
		},
	}
	id := tx.ID()
	n.log.Warn("validator equivocated",
		log.String("validator", offender.String()),
		log.Uint64("view", ev.First.View),
		log.Uint64("sequence", ev.First.Sequence),
		log.Stringer("txID", id),
	)
	if err := n.mempool.Add(tx); err != nil {
		if !errors.Is(err, mempool.ErrDuplicateTx) {
			n.log.Warn("failed to queue slash", log.Err(err))
		}
		return
	}
	n.network.MarkSeen(id)
	n.network.Gossip(network.TxPath, tx.Bytes())
}
