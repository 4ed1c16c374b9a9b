// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package txs defines the transactions ordered by consensus.
package txs

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/luxfi/ids"

	"github.com/luxfi/los/keys"
)

// Kind identifies the payload of a transaction.
type Kind string

const (
	KindTransfer            Kind = "transfer"
	KindFaucet              Kind = "faucet"
	KindBurn                Kind = "burn"
	KindRegisterValidator   Kind = "register_validator"
	KindUnregisterValidator Kind = "unregister_validator"
	KindSlash               Kind = "slash"
	KindEpochClose          Kind = "epoch_close"
	KindResetBurn           Kind = "reset_burn"
)

var (
	ErrUnknownKind      = errors.New("unknown transaction kind")
	ErrMissingPayload   = errors.New("missing transaction payload")
	ErrInvalidSignature = errors.New("signature invalid")
	ErrStaleTimestamp   = errors.New("timestamp outside allowed drift")
	ErrZeroAmount       = errors.New("amount must be positive")
	ErrSelfTransfer     = errors.New("self transfer not allowed")
)

// MaxTimestampDrift bounds how far a signed timestamp may be from the
// validator's clock, in seconds.
const MaxTimestampDrift = 300

// Tx is the envelope of every consensus ordered operation. Exactly one
// payload matching Kind is set.
type Tx struct {
	Kind Kind `json:"kind"`
	// Timestamp is the submission time in unix nanoseconds. It tells apart
	// otherwise identical submissions.
	Timestamp int64 `json:"timestamp"`

	Transfer   *Transfer            `json:"transfer,omitempty"`
	Faucet     *Faucet              `json:"faucet,omitempty"`
	Burn       *Burn                `json:"burn,omitempty"`
	Register   *RegisterValidator   `json:"register,omitempty"`
	Unregister *UnregisterValidator `json:"unregister,omitempty"`
	Slash      *Slash               `json:"slash,omitempty"`
	EpochClose *EpochClose          `json:"epochClose,omitempty"`
	ResetBurn  *ResetBurn           `json:"resetBurn,omitempty"`
}

// Transfer is a signed payment. The sender signs the fee it offers, taken
// from the anti-whale estimate of the admitting node.
type Transfer struct {
	From      keys.Address `json:"from"`
	To        keys.Address `json:"to"`
	Amount    uint64       `json:"amount"`
	Fee       uint64       `json:"fee"`
	Nonce     int64        `json:"nonce"`
	PublicKey []byte       `json:"publicKey"`
	Signature []byte       `json:"signature"`
}

// SigningMessage is the byte string a sender signs.
func (t *Transfer) SigningMessage() []byte {
	return []byte("SEND:" + t.From.String() + ":" + t.To.String() + ":" +
		strconv.FormatUint(t.Amount, 10) + ":" + strconv.FormatUint(t.Fee, 10) + ":" +
		strconv.FormatInt(t.Nonce, 10))
}

// Faucet mints test funds.
type Faucet struct {
	Address keys.Address `json:"address"`
	Amount  uint64       `json:"amount"`
}

// Burn mints LOS against an attested foreign chain burn.
type Burn struct {
	Coin      string       `json:"coin"`
	TxID      string       `json:"txid"`
	Recipient keys.Address `json:"recipient"`
	Amount    uint64       `json:"amount"`
	USD       uint64       `json:"usd"`
}

// RegisterValidator adds the signer to the validator set.
type RegisterValidator struct {
	Address   keys.Address `json:"address"`
	PublicKey []byte       `json:"publicKey"`
	Signature []byte       `json:"signature"`
	Timestamp int64        `json:"timestamp"`
}

// RegisterMessage is the message signed to register a validator.
func RegisterMessage(addr keys.Address, timestamp int64) []byte {
	return []byte("REGISTER_VALIDATOR:" + addr.String() + ":" + strconv.FormatInt(timestamp, 10))
}

// UnregisterValidator removes the signer from the validator set.
type UnregisterValidator struct {
	Address   keys.Address `json:"address"`
	PublicKey []byte       `json:"publicKey"`
	Signature []byte       `json:"signature"`
}

// UnregisterMessage is the message signed to unregister a validator.
func UnregisterMessage(addr keys.Address) []byte {
	return []byte("UNREGISTER_VALIDATOR:" + addr.String())
}

// Slash penalizes a validator for a detected fault. Evidence is checked by
// the node before voting for a proposal that carries it.
type Slash struct {
	Validator keys.Address `json:"validator"`
	Fault     string       `json:"fault"`
	Evidence  []byte       `json:"evidence,omitempty"`
}

// EpochClose ends an epoch with the heartbeat counts observed by the
// proposing leader.
type EpochClose struct {
	Epoch      uint64                  `json:"epoch"`
	Heartbeats map[keys.Address]uint64 `json:"heartbeats"`
}

// ResetBurn releases a consumed burn so it can be claimed again. Test
// networks only.
type ResetBurn struct {
	Coin string `json:"coin"`
	TxID string `json:"txid"`
}

// ID uniquely identifies the transaction. A transfer is identified by its
// signed content so it cannot be replayed with a different fee.
func (tx *Tx) ID() ids.ID {
	if tx.Kind == KindTransfer && tx.Transfer != nil {
		return sha256.Sum256(tx.Transfer.SigningMessage())
	}
	b, _ := json.Marshal(tx) // plain data, cannot fail
	return sha256.Sum256(b)
}

// Bytes returns the canonical encoding of tx.
func (tx *Tx) Bytes() []byte {
	b, _ := json.Marshal(tx)
	return b
}

// Parse decodes a transaction produced by Bytes.
func Parse(b []byte) (*Tx, error) {
	tx := &Tx{}
	if err := json.Unmarshal(b, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Sender is the account whose balance funds the transaction, if any.
func (tx *Tx) Sender() keys.Address {
	if tx.Kind == KindTransfer && tx.Transfer != nil {
		return tx.Transfer.From
	}
	return ""
}

// Spend is the amount the sender commits, including fee.
func (tx *Tx) Spend() uint64 {
	if tx.Kind == KindTransfer && tx.Transfer != nil {
		return tx.Transfer.Amount + tx.Transfer.Fee
	}
	return 0
}

// Fee paid by the transaction.
func (tx *Tx) Fee() uint64 {
	if tx.Kind == KindTransfer && tx.Transfer != nil {
		return tx.Transfer.Fee
	}
	return 0
}

// SyntacticVerify checks everything that does not depend on state.
func (tx *Tx) SyntacticVerify() error {
	switch tx.Kind {
	case KindTransfer:
		t := tx.Transfer
		if t == nil {
			return ErrMissingPayload
		}
		if err := verifyAddresses(t.From, t.To); err != nil {
			return err
		}
		if t.From == t.To {
			return ErrSelfTransfer
		}
		if t.Amount == 0 {
			return ErrZeroAmount
		}
		if err := keys.VerifyAddressSignature(t.From, t.PublicKey, t.SigningMessage(), t.Signature); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
	case KindFaucet:
		if tx.Faucet == nil {
			return ErrMissingPayload
		}
		if tx.Faucet.Amount == 0 {
			return ErrZeroAmount
		}
		return verifyAddresses(tx.Faucet.Address)
	case KindBurn:
		if tx.Burn == nil {
			return ErrMissingPayload
		}
		if tx.Burn.Amount == 0 {
			return ErrZeroAmount
		}
		return verifyAddresses(tx.Burn.Recipient)
	case KindRegisterValidator:
		r := tx.Register
		if r == nil {
			return ErrMissingPayload
		}
		if err := verifyAddresses(r.Address); err != nil {
			return err
		}
		if err := keys.VerifyAddressSignature(r.Address, r.PublicKey, RegisterMessage(r.Address, r.Timestamp), r.Signature); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
	case KindUnregisterValidator:
		u := tx.Unregister
		if u == nil {
			return ErrMissingPayload
		}
		if err := verifyAddresses(u.Address); err != nil {
			return err
		}
		if err := keys.VerifyAddressSignature(u.Address, u.PublicKey, UnregisterMessage(u.Address), u.Signature); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
	case KindSlash:
		if tx.Slash == nil {
			return ErrMissingPayload
		}
		return verifyAddresses(tx.Slash.Validator)
	case KindEpochClose:
		if tx.EpochClose == nil {
			return ErrMissingPayload
		}
		for addr := range tx.EpochClose.Heartbeats {
			if err := verifyAddresses(addr); err != nil {
				return err
			}
		}
	case KindResetBurn:
		if tx.ResetBurn == nil || tx.ResetBurn.TxID == "" {
			return ErrMissingPayload
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, tx.Kind)
	}
	return nil
}

// CheckTimestamp rejects signed timestamps more than MaxTimestampDrift
// seconds away from now.
func CheckTimestamp(timestamp, now int64) error {
	if d := now - timestamp; d > MaxTimestampDrift || d < -MaxTimestampDrift {
		return fmt.Errorf("%w: %ds from local time", ErrStaleTimestamp, d)
	}
	return nil
}

func verifyAddresses(addrs ...keys.Address) error {
	for _, addr := range addrs {
		if _, err := keys.ParseAddress(addr.String()); err != nil {
			return err
		}
	}
	return nil
}
