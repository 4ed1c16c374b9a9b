// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/luxfi/ids"

	"github.com/luxfi/los/keys"
)

// Heartbeat is the signed liveness signal validators gossip every heartbeat
// interval.
type Heartbeat struct {
	Address   keys.Address `json:"address"`
	Epoch     uint64       `json:"epoch"`
	Timestamp int64        `json:"timestamp"`
	Signature []byte       `json:"signature"`
}

func NewHeartbeat(kp *keys.KeyPair, epoch uint64, timestamp int64) *Heartbeat {
	h := &Heartbeat{
		Address:   kp.Address,
		Epoch:     epoch,
		Timestamp: timestamp,
	}
	h.Signature = kp.Sign(h.SigningBytes())
	return h
}

func (h *Heartbeat) SigningBytes() []byte {
	return []byte("HEARTBEAT:" + h.Address.String() + ":" +
		strconv.FormatUint(h.Epoch, 10) + ":" +
		strconv.FormatInt(h.Timestamp, 10))
}

// ID identifies the heartbeat for gossip deduplication.
func (h *Heartbeat) ID() ids.ID {
	return sha256.Sum256(h.SigningBytes())
}

// Verify checks the heartbeat was signed by the key of its address.
func (h *Heartbeat) Verify(publicKey []byte) error {
	if err := keys.VerifyAddressSignature(h.Address, publicKey, h.SigningBytes(), h.Signature); err != nil {
		return fmt.Errorf("invalid heartbeat from %s: %w", h.Address.Short(), err)
	}
	return nil
}

func (h *Heartbeat) Bytes() []byte {
	b, _ := json.Marshal(h)
	return b
}
