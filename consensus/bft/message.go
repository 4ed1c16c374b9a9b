// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bft

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/luxfi/ids"

	"github.com/luxfi/los/keys"
)

// MessageType is the phase a consensus message belongs to.
type MessageType string

const (
	PrePrepare MessageType = "preprepare"
	Prepare    MessageType = "prepare"
	Commit     MessageType = "commit"
	ViewChange MessageType = "viewchange"
)

// Proposal is an ordered batch of transactions for one sequence number.
type Proposal struct {
	Sequence  uint64       `json:"sequence"`
	Parent    ids.ID       `json:"parent"`
	Proposer  keys.Address `json:"proposer"`
	Timestamp int64        `json:"timestamp"`
	Txs       [][]byte     `json:"txs"`
}

// Digest commits to every field of the proposal.
func (p *Proposal) Digest() ids.ID {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], p.Sequence)
	h.Write(buf[:])
	h.Write(p.Parent[:])
	h.Write([]byte(p.Proposer))
	binary.BigEndian.PutUint64(buf[:], uint64(p.Timestamp))
	h.Write(buf[:])
	for _, tx := range p.Txs {
		binary.BigEndian.PutUint64(buf[:], uint64(len(tx)))
		h.Write(buf[:])
		h.Write(tx)
	}
	var id ids.ID
	copy(id[:], h.Sum(nil))
	return id
}

// Message is a signed consensus message. PrePrepare messages carry the
// proposal, ViewChange messages carry the highest prepared proposal of the
// sender if it has one.
//
// Prepares and ViewChanges are certificates made of messages signed by other
// validators, so they are checked on their own and not covered by Signature.
type Message struct {
	Type         MessageType `json:"type"`
	View         uint64      `json:"view"`
	Sequence     uint64      `json:"sequence"`
	Digest       ids.ID      `json:"digest"`
	PreparedView uint64      `json:"preparedView,omitempty"`
	Proposal     *Proposal   `json:"proposal,omitempty"`
	// Prepares prove that Proposal was prepared by a quorum in PreparedView.
	Prepares []Vote `json:"prepares,omitempty"`
	// ViewChanges justify the first PrePrepare of a view entered by a view
	// change.
	ViewChanges []*Message   `json:"viewChanges,omitempty"`
	Sender      keys.Address `json:"sender"`
	Signature   []byte       `json:"signature"`
}

func signingBytes(t MessageType, view, seq uint64, digest ids.ID) []byte {
	return []byte("LOS-BFT:" + string(t) + ":" +
		strconv.FormatUint(view, 10) + ":" +
		strconv.FormatUint(seq, 10) + ":" +
		hex.EncodeToString(digest[:]))
}

// SigningBytes is the byte string the sender signs.
func (m *Message) SigningBytes() []byte {
	return signingBytes(m.Type, m.View, m.Sequence, m.Digest)
}

// Verify checks the signature of m against publicKey and that an attached
// proposal matches the digest.
func (m *Message) Verify(publicKey []byte) error {
	if m.Proposal != nil && m.Proposal.Digest() != m.Digest {
		return ErrDigestMismatch
	}
	if !keys.Verify(publicKey, m.SigningBytes(), m.Signature) {
		return fmt.Errorf("%w: %s from %s", ErrInvalidSignature, m.Type, m.Sender.Short())
	}
	return nil
}

// verifyPrepared checks the prepare certificate of a view change. A view
// change without a proposal has nothing to prove.
func (m *Message) verifyPrepared(members []Member) error {
	if m.Proposal == nil {
		return nil
	}
	if m.Proposal.Sequence != m.Sequence || m.PreparedView >= m.View {
		return fmt.Errorf("%w: prepared in view %d for view %d", ErrInvalidCertificate, m.PreparedView, m.View)
	}
	return verifyVotes(members, signingBytes(Prepare, m.PreparedView, m.Sequence, m.Digest), m.Prepares)
}

func (m *Message) Bytes() []byte {
	b, _ := json.Marshal(m)
	return b
}

// ParseMessage decodes a message produced by Bytes.
func ParseMessage(b []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	switch m.Type {
	case PrePrepare:
		if m.Proposal == nil {
			return nil, fmt.Errorf("%w: preprepare without proposal", ErrMalformedMessage)
		}
	case Prepare, Commit, ViewChange:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, m.Type)
	}
	return m, nil
}

// Vote is one signature of a prepare or commit certificate.
type Vote struct {
	Signer    keys.Address `json:"signer"`
	Signature []byte       `json:"signature"`
}

// Decision is a finalized proposal with the commit certificate proving it.
type Decision struct {
	Proposal *Proposal `json:"proposal"`
	View     uint64    `json:"view"`
	Commits  []Vote    `json:"commits"`
}

// Verify checks that a quorum of members signed a commit for the decision.
func (d *Decision) Verify(members []Member) error {
	if d.Proposal == nil {
		return fmt.Errorf("%w: missing proposal", ErrInvalidCertificate)
	}
	return verifyVotes(members, signingBytes(Commit, d.View, d.Proposal.Sequence, d.Proposal.Digest()), d.Commits)
}

// verifyVotes checks that a quorum of members signed msg.
func verifyVotes(members []Member, msg []byte, votes []Vote) error {
	pks := make(map[keys.Address][]byte, len(members))
	for _, m := range members {
		pks[m.Address] = m.PublicKey
	}
	signed := 0
	for _, v := range votes {
		pk, ok := pks[v.Signer]
		if !ok || !verify(pk, msg, v.Signature) {
			continue
		}
		// Count each signer once.
		delete(pks, v.Signer)
		signed++
	}
	if q := Quorum(len(members)); signed < q {
		return fmt.Errorf("%w: %d of %d required signatures", ErrInvalidCertificate, signed, q)
	}
	return nil
}

// Evidence proves a validator signed two different digests in the same
// phase, view and sequence.
type Evidence struct {
	First  *Message `json:"first"`
	Second *Message `json:"second"`
}

func (ev *Evidence) Offender() keys.Address {
	return ev.First.Sender
}

func (ev *Evidence) Bytes() []byte {
	b, _ := json.Marshal(ev)
	return b
}

// ParseEvidence decodes evidence produced by Bytes.
func ParseEvidence(b []byte) (*Evidence, error) {
	ev := &Evidence{}
	if err := json.Unmarshal(b, ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvidence, err)
	}
	if ev.First == nil || ev.Second == nil {
		return nil, fmt.Errorf("%w: missing message", ErrInvalidEvidence)
	}
	return ev, nil
}

// Verify checks that both messages are validly signed by publicKey and
// conflict.
func (ev *Evidence) Verify(publicKey []byte) error {
	a, b := ev.First, ev.Second
	switch {
	case a.Sender != b.Sender:
		return fmt.Errorf("%w: different senders", ErrInvalidEvidence)
	case a.Type != b.Type || a.View != b.View || a.Sequence != b.Sequence:
		return fmt.Errorf("%w: messages do not conflict", ErrInvalidEvidence)
	case a.Type == ViewChange:
		return fmt.Errorf("%w: view changes cannot equivocate", ErrInvalidEvidence)
	case a.Digest == b.Digest:
		return fmt.Errorf("%w: same digest", ErrInvalidEvidence)
	case keys.AddressFromPublicKey(publicKey) != a.Sender:
		return fmt.Errorf("%w: key does not match sender", ErrInvalidEvidence)
	}
	if !verify(publicKey, a.SigningBytes(), a.Signature) || !verify(publicKey, b.SigningBytes(), b.Signature) {
		return fmt.Errorf("%w: bad signature", ErrInvalidEvidence)
	}
	return nil
}

func verify(publicKey, msg, sig []byte) bool {
	return keys.Verify(publicKey, msg, sig)
}
