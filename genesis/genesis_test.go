// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package genesis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/ledger"
)

const genesisTime = 1_700_000_000

func TestNewTestnet(t *testing.T) {
	require := require.New(t)

	g, validators, devs, err := NewTestnet(4, 2, genesisTime)
	require.NoError(err)
	require.Len(validators, 4)
	require.Len(devs, 2)
	require.Len(g.Validators, 4)

	var total uint64
	for _, v := range g.Validators {
		total += v.Stake
	}
	for _, a := range g.Allocations {
		total += a.Amount
	}
	require.Equal(2*TestnetDevAllocation, total)

	for _, w := range validators {
		kp, err := keys.FromMnemonic(w.SeedPhrase)
		require.NoError(err)
		require.Equal(w.Address, kp.Address)
	}

	parsed, err := Parse(g.Bytes())
	require.NoError(err)
	require.Equal(g, parsed)
	require.Equal(g.ID(), parsed.ID())

	allocs, err := g.LedgerAllocations()
	require.NoError(err)
	require.Len(allocs, 6)
	require.NotNil(allocs[0].Validator)
	require.Nil(allocs[5].Validator)
}

func TestVerify(t *testing.T) {
	kp, err := keys.Generate()
	require.NoError(t, err)
	other, err := keys.Generate()
	require.NoError(t, err)

	validator := Validator{Address: kp.Address, PublicKey: kp.PublicKeyHex(), Stake: 1}

	tests := []struct {
		name    string
		genesis Genesis
		wantErr error
	}{
		{
			name:    "valid",
			genesis: Genesis{Validators: []Validator{validator}},
		},
		{
			name:    "no validators",
			genesis: Genesis{Allocations: []Allocation{{Address: kp.Address, Amount: 1}}},
			wantErr: ErrNoValidators,
		},
		{
			name: "key mismatch",
			genesis: Genesis{Validators: []Validator{
				{Address: other.Address, PublicKey: kp.PublicKeyHex(), Stake: 1},
			}},
			wantErr: ErrValidatorKey,
		},
		{
			name: "duplicate",
			genesis: Genesis{
				Validators:  []Validator{validator},
				Allocations: []Allocation{{Address: kp.Address, Amount: 1}},
			},
			wantErr: ErrDuplicateAddress,
		},
		{
			name: "zero allocation",
			genesis: Genesis{
				Validators:  []Validator{validator},
				Allocations: []Allocation{{Address: other.Address}},
			},
			wantErr: ErrZeroAllocation,
		},
		{
			name: "reward pool is reserved",
			genesis: Genesis{
				Validators:  []Validator{validator},
				Allocations: []Allocation{{Address: other.Address, Amount: ledger.TotalSupply - ledger.RewardPool}},
			},
			wantErr: ErrExceedsTotalSupply,
		},
		{
			name: "malformed address",
			genesis: Genesis{
				Validators: []Validator{validator},
				Allocations: []Allocation{
					{Address: keys.Address("LOSnotanaddress"), Amount: 1},
				},
			},
			wantErr: keys.ErrInvalidAddress,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.ErrorIs(t, test.genesis.Verify(), test.wantErr)
		})
	}
}
