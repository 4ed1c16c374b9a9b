// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package burn verifies foreign chain burns and prices the LOS they mint.
package burn

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/holiman/uint256"

	"github.com/luxfi/los/utils/units"
)

// Coin is a supported foreign chain.
type Coin string

const (
	BTC Coin = "btc"
	ETH Coin = "eth"
)

var (
	ErrUnsupportedCoin = errors.New("unsupported coin")
	ErrInvalidTxID     = errors.New("invalid txid")
	ErrTxNotFound      = errors.New("burn transaction not found")
	ErrNotBurned       = errors.New("transaction does not burn funds")
	ErrUnconfirmed     = errors.New("burn transaction unconfirmed")
	ErrNoPrice         = errors.New("no price available")
	ErrZeroMint        = errors.New("burn too small to mint")

	hexTxID = regexp.MustCompile(`^[0-9a-f]{64}$`)

	decimals = map[Coin]uint64{
		BTC: 8,
		ETH: 18,
	}
)

// Coins returns the supported coins in a stable order.
func Coins() []Coin {
	return slices.Sorted(maps.Keys(decimals))
}

// ParseCoin normalizes a coin name.
func ParseCoin(s string) (Coin, error) {
	c := Coin(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := decimals[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCoin, s)
	}
	return c, nil
}

// NormalizeTxID lower cases txid and strips a 0x prefix after checking it is
// a 32 byte hex hash.
func NormalizeTxID(txid string) (string, error) {
	id := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(txid)), "0x")
	if !hexTxID.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTxID, txid)
	}
	return id, nil
}

// Attestation is a verified burn: Amount is in the coin's smallest unit
// (satoshi, wei) and Price is micro-USD per whole coin.
type Attestation struct {
	Coin   Coin
	TxID   string
	Amount *uint256.Int
	Price  uint64
}

// Oracle verifies burns on foreign chains.
type Oracle interface {
	// Verify returns the attested burn of txid or ErrTxNotFound.
	Verify(ctx context.Context, coin Coin, txid string) (*Attestation, error)
}

// Pricing converts attested burns into LOS.
type Pricing struct {
	// LOSPrice is micro-USD per LOS.
	LOSPrice uint64 `json:"losPriceMicroUSD"`
}

var DefaultPricing = Pricing{LOSPrice: 10_000}

// USD is the micro-USD value of a.
func (a *Attestation) USD() (uint64, error) {
	d, ok := decimals[a.Coin]
	if !ok {
		return 0, ErrUnsupportedCoin
	}
	if a.Price == 0 {
		return 0, ErrNoPrice
	}
	v := new(uint256.Int).Mul(a.Amount, uint256.NewInt(a.Price))
	v.Div(v, new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(d)))
	if !v.IsUint64() {
		return 0, fmt.Errorf("burn value overflows: %s", v)
	}
	return v.Uint64(), nil
}

// Mint returns the CIL minted for a and its micro-USD value.
func (p Pricing) Mint(a *Attestation) (cil uint64, usd uint64, err error) {
	usd, err = a.USD()
	if err != nil {
		return 0, 0, err
	}
	if p.LOSPrice == 0 {
		return 0, 0, ErrNoPrice
	}
	v := new(uint256.Int).Mul(uint256.NewInt(usd), uint256.NewInt(units.LOS))
	v.Div(v, uint256.NewInt(p.LOSPrice))
	if !v.IsUint64() {
		return 0, 0, fmt.Errorf("mint amount overflows: %s", v)
	}
	if v.IsZero() {
		return 0, 0, ErrZeroMint
	}
	return v.Uint64(), usd, nil
}
