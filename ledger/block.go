// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/luxfi/ids"

	"github.com/luxfi/los/keys"
)

// BlockType tags an entry of an account chain.
type BlockType string

const (
	Send    BlockType = "send"
	Receive BlockType = "receive"
	Mint    BlockType = "mint"
	Reward  BlockType = "reward"
	Slash   BlockType = "slash"
	Change  BlockType = "change"
)

// Mint reasons.
const (
	ReasonGenesis = "genesis"
	ReasonFaucet  = "faucet"
	ReasonBurn    = "burn"
	ReasonReward  = "reward"
	ReasonFee     = "fee"
)

// Block is one entry of an account's chain. Previous is ids.Empty for the
// first block of a chain. A receive block's Link is the hash of the matching
// send block.
type Block struct {
	Hash         ids.ID       `json:"hash"`
	Previous     ids.ID       `json:"previous"`
	Account      keys.Address `json:"account"`
	Height       uint64       `json:"height"`
	Type         BlockType    `json:"type"`
	Amount       uint64       `json:"amount"`
	Fee          uint64       `json:"fee"`
	Balance      uint64       `json:"balance"`
	Counterparty keys.Address `json:"counterparty,omitempty"`
	Link         ids.ID       `json:"link"`
	TxID         ids.ID       `json:"txID"`
	Reason       string       `json:"reason,omitempty"`
	Timestamp    int64        `json:"timestamp"`
}

// Delta is the signed balance change this block applied to its account.
func (b *Block) Delta() int64 {
	switch b.Type {
	case Send:
		return -int64(b.Amount + b.Fee)
	case Slash:
		return -int64(b.Amount)
	case Receive, Mint, Reward:
		return int64(b.Amount)
	default:
		return 0
	}
}

func (b *Block) computeHash() ids.ID {
	unhashed := *b
	unhashed.Hash = ids.Empty
	bytes, _ := json.Marshal(&unhashed) // plain struct, cannot fail
	return sha256.Sum256(bytes)
}

// ValidatorProfile is attached to accounts that are registered validators.
type ValidatorProfile struct {
	PublicKey    []byte `json:"publicKey"`
	IsGenesis    bool   `json:"isGenesis"`
	RegisteredAt int64  `json:"registeredAt"`
}

// Account is the head state of one account chain.
type Account struct {
	Address    keys.Address      `json:"address"`
	Balance    uint64            `json:"balance"`
	Head       ids.ID            `json:"head"`
	BlockCount uint64            `json:"blockCount"`
	Validator  *ValidatorProfile `json:"validator,omitempty"`
}

// IsValidator reports whether the account carries a validator profile.
func (a *Account) IsValidator() bool {
	return a.Validator != nil
}

func (a *Account) clone() *Account {
	c := *a
	if a.Validator != nil {
		v := *a.Validator
		c.Validator = &v
	}
	return &c
}
