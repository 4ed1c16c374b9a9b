// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/los/consensus/bft"
	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/txs"
)

// Faucet mints the configured faucet amount to addr. Test networks only.
func (n *Node) Faucet(ctx context.Context, addr keys.Address) (Receipt, uint64, error) {
	if !n.config.Testnet {
		return Receipt{}, 0, ErrTestnetOnly
	}
	if _, err := keys.ParseAddress(addr.String()); err != nil {
		return Receipt{}, 0, err
	}
	amount := n.config.FaucetAmount
	receipt, err := n.Submit(ctx, &txs.Tx{
		Kind:      txs.KindFaucet,
		Timestamp: n.clock.Time().UnixNano(),
		Faucet: &txs.Faucet{
			Address: addr,
			Amount:  amount,
		},
	})
	if err != nil && !errors.Is(err, ErrFaucetCooldown) && !errors.Is(err, bft.ErrConsensusUnavailable) {
		n.releaseFaucet(addr)
	}
	return receipt, amount, err
}

// FaucetCooldown returns the seconds addr has to wait before claiming again.
func (n *Node) FaucetCooldown(addr keys.Address) (int64, error) {
	last, err := n.exec.lastFaucet(addr)
	if err != nil {
		return 0, err
	}
	n.faucetLock.Lock()
	if pending, ok := n.faucetPending[addr]; ok {
		last = max(last, pending)
	}
	n.faucetLock.Unlock()
	if last == 0 {
		return 0, nil
	}
	left := last + int64(n.config.FaucetCooldown.Seconds()) - int64(n.clock.Unix())
	return max(left, 0), nil
}

// reserveFaucet refuses claims during the cooldown of addr, counting claims
// that are admitted but not yet finalized.
func (n *Node) reserveFaucet(addr keys.Address, now int64) error {
	n.faucetLock.Lock()
	defer n.faucetLock.Unlock()

	last, err := n.exec.lastFaucet(addr)
	if err != nil {
		return err
	}
	if pending, ok := n.faucetPending[addr]; ok {
		last = max(last, pending)
	}
	cooldown := int64(n.config.FaucetCooldown.Seconds())
	if last != 0 && now < last+cooldown {
		return fmt.Errorf("%w: %ds left", ErrFaucetCooldown, last+cooldown-now)
	}
	n.faucetPending[addr] = now
	return nil
}

func (n *Node) releaseFaucet(addr keys.Address) {
	n.faucetLock.Lock()
	delete(n.faucetPending, addr)
	n.faucetLock.Unlock()
}

func (n *Node) pruneFaucet() {
	now := int64(n.clock.Unix())
	cooldown := int64(n.config.FaucetCooldown.Seconds())
	n.faucetLock.Lock()
	defer n.faucetLock.Unlock()
	for addr, at := range n.faucetPending {
		if now >= at+cooldown {
			delete(n.faucetPending, addr)
		}
	}
}
