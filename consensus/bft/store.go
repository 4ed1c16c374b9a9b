// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bft

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/database"
)

var (
	decisionPrefix = []byte("d/")
	lastKey        = []byte("last")
)

// store is the append-only log of decisions, keyed by sequence.
type store struct {
	db database.Database
}

func decisionKey(seq uint64) []byte {
	k := make([]byte, len(decisionPrefix)+8)
	copy(k, decisionPrefix)
	binary.BigEndian.PutUint64(k[len(decisionPrefix):], seq)
	return k
}

func (s *store) put(d *Decision) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	var last [8]byte
	binary.BigEndian.PutUint64(last[:], d.Proposal.Sequence)

	batch := s.db.NewBatch()
	if err := batch.Put(decisionKey(d.Proposal.Sequence), b); err != nil {
		return err
	}
	if err := batch.Put(lastKey, last[:]); err != nil {
		return err
	}
	return batch.Write()
}

func (s *store) get(seq uint64) (*Decision, error) {
	b, err := s.db.Get(decisionKey(seq))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDecision, seq)
	}
	if err != nil {
		return nil, err
	}
	d := &Decision{}
	if err := json.Unmarshal(b, d); err != nil {
		return nil, fmt.Errorf("failed to parse decision %d: %w", seq, err)
	}
	return d, nil
}

// last returns the highest decided sequence, zero if none.
func (s *store) last() (uint64, error) {
	b, err := s.db.Get(lastKey)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	case len(b) != 8:
		return 0, fmt.Errorf("corrupt last decision key: %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// list returns up to limit decisions starting at from.
func (s *store) list(from uint64, limit int) ([]*Decision, error) {
	it := s.db.NewIteratorWithStartAndPrefix(decisionKey(from), decisionPrefix)
	defer it.Release()

	var out []*Decision
	for len(out) < limit && it.Next() {
		d := &Decision{}
		if err := json.Unmarshal(it.Value(), d); err != nil {
			return nil, fmt.Errorf("failed to parse decision: %w", err)
		}
		out = append(out, d)
	}
	return out, it.Error()
}
