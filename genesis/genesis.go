// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package genesis defines the initial state of a LOS network.
package genesis

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/ledger"
	"github.com/luxfi/los/utils/units"
)

var (
	ErrNoValidators       = errors.New("genesis has no validators")
	ErrDuplicateAddress   = errors.New("duplicate genesis address")
	ErrZeroAllocation     = errors.New("genesis allocation must be positive")
	ErrValidatorKey       = errors.New("validator public key does not match address")
	ErrExceedsTotalSupply = errors.New("genesis allocations exceed total supply")
)

// Validator is a bootstrap validator.
type Validator struct {
	Address   keys.Address `json:"address"`
	PublicKey string       `json:"publicKey"`
	Stake     uint64       `json:"stake"`
}

// Allocation is a plain genesis balance.
type Allocation struct {
	Address keys.Address `json:"address"`
	Amount  uint64       `json:"amount"`
}

// Genesis represents the genesis state.
type Genesis struct {
	NetworkName string       `json:"networkName"`
	Timestamp   int64        `json:"timestamp"`
	Validators  []Validator  `json:"validators"`
	Allocations []Allocation `json:"allocations"`
}

// Parse decodes and verifies a genesis document.
func Parse(b []byte) (*Genesis, error) {
	g := &Genesis{}
	if err := json.Unmarshal(b, g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis: %w", err)
	}
	return g, g.Verify()
}

// Verify checks addresses, keys and amounts.
func (g *Genesis) Verify() error {
	if len(g.Validators) == 0 {
		return ErrNoValidators
	}
	seen := make(map[keys.Address]struct{})
	var total uint64
	add := func(addr keys.Address, amount uint64) error {
		if _, err := keys.ParseAddress(addr.String()); err != nil {
			return err
		}
		if _, ok := seen[addr]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateAddress, addr)
		}
		seen[addr] = struct{}{}
		if amount == 0 {
			return fmt.Errorf("%w: %s", ErrZeroAllocation, addr)
		}
		if total+amount < total || total+amount > ledger.TotalSupply-ledger.RewardPool {
			return ErrExceedsTotalSupply
		}
		total += amount
		return nil
	}
	for _, v := range g.Validators {
		pk, err := keys.ParsePublicKeyHex(v.PublicKey)
		if err != nil {
			return fmt.Errorf("validator %s: %w", v.Address, err)
		}
		if keys.AddressFromPublicKey(pk) != v.Address {
			return fmt.Errorf("%w: %s", ErrValidatorKey, v.Address)
		}
		if err := add(v.Address, v.Stake); err != nil {
			return err
		}
	}
	for _, a := range g.Allocations {
		if err := add(a.Address, a.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (g *Genesis) Bytes() []byte {
	b, _ := json.MarshalIndent(g, "", "  ")
	return b
}

// ID identifies the network. It is the parent of the first decision.
func (g *Genesis) ID() ids.ID {
	b, _ := json.Marshal(g)
	return sha256.Sum256(b)
}

// LedgerAllocations returns the balances to mint at genesis, validators
// first.
func (g *Genesis) LedgerAllocations() ([]ledger.Allocation, error) {
	out := make([]ledger.Allocation, 0, len(g.Validators)+len(g.Allocations))
	for _, v := range g.Validators {
		pk, err := keys.ParsePublicKeyHex(v.PublicKey)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.Allocation{
			Address:   v.Address,
			Amount:    v.Stake,
			Validator: &ledger.ValidatorProfile{PublicKey: pk},
		})
	}
	for _, a := range g.Allocations {
		out = append(out, ledger.Allocation{Address: a.Address, Amount: a.Amount})
	}
	return out, nil
}

// Wallet is a generated genesis key.
type Wallet struct {
	Address    keys.Address `json:"address"`
	PublicKey  string       `json:"public_key"`
	SecretKey  string       `json:"private_key"`
	SeedPhrase string       `json:"seed_phrase"`
}

// Testnet layout.
const (
	TestnetValidatorStake = 1_000 * units.LOS
	TestnetDevAllocation  = 191_942 * units.LOS
)

// NewTestnet generates a test network with numValidators bootstrap
// validators and numDev funded developer wallets. The last developer wallet
// funds the validator stakes so the allocated total stays fixed.
func NewTestnet(numValidators, numDev int, timestamp int64) (*Genesis, []Wallet, []Wallet, error) {
	g := &Genesis{
		NetworkName: "los-testnet",
		Timestamp:   timestamp,
	}
	validators := make([]Wallet, 0, numValidators)
	for range numValidators {
		w, err := newWallet()
		if err != nil {
			return nil, nil, nil, err
		}
		validators = append(validators, w)
		g.Validators = append(g.Validators, Validator{
			Address:   w.Address,
			PublicKey: w.PublicKey,
			Stake:     TestnetValidatorStake,
		})
	}
	devs := make([]Wallet, 0, numDev)
	for i := range numDev {
		w, err := newWallet()
		if err != nil {
			return nil, nil, nil, err
		}
		devs = append(devs, w)
		amount := uint64(TestnetDevAllocation)
		if i == numDev-1 {
			amount -= min(amount-1, uint64(numValidators)*TestnetValidatorStake)
		}
		g.Allocations = append(g.Allocations, Allocation{Address: w.Address, Amount: amount})
	}
	return g, validators, devs, g.Verify()
}

func newWallet() (Wallet, error) {
	kp, err := keys.Generate()
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{
		Address:    kp.Address,
		PublicKey:  kp.PublicKeyHex(),
		SecretKey:  kp.SecretKeyHex(),
		SeedPhrase: kp.Mnemonic,
	}, nil
}
