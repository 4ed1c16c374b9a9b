// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package burn

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

var _ Oracle = (*StaticOracle)(nil)

// StaticOracle attests a fixed set of burns. It backs test networks that have
// no access to foreign chain explorers.
type StaticOracle struct {
	lock   sync.RWMutex
	burns  map[string]*Attestation
	prices map[Coin]uint64
}

func NewStaticOracle(prices map[Coin]uint64) *StaticOracle {
	return &StaticOracle{
		burns:  make(map[string]*Attestation),
		prices: prices,
	}
}

// Add registers a burn of amount smallest units.
func (o *StaticOracle) Add(coin Coin, txid string, amount *uint256.Int) error {
	id, err := NormalizeTxID(txid)
	if err != nil {
		return err
	}
	o.lock.Lock()
	defer o.lock.Unlock()
	o.burns[string(coin)+"/"+id] = &Attestation{Coin: coin, TxID: id, Amount: amount}
	return nil
}

func (o *StaticOracle) Verify(_ context.Context, coin Coin, txid string) (*Attestation, error) {
	id, err := NormalizeTxID(txid)
	if err != nil {
		return nil, err
	}
	o.lock.RLock()
	defer o.lock.RUnlock()
	a, ok := o.burns[string(coin)+"/"+id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrTxNotFound, coin, id)
	}
	price, ok := o.prices[coin]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, coin)
	}
	return &Attestation{Coin: a.Coin, TxID: a.TxID, Amount: a.Amount.Clone(), Price: price}, nil
}
