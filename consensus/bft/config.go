// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bft

import (
	"errors"
	"time"

	"github.com/luxfi/ids"
)

var (
	ErrInvalidTickInterval = errors.New("tick interval must be positive")
	ErrInvalidViewTimeout  = errors.New("view timeout must exceed tick interval")
)

type Config struct {
	// Genesis is the parent of the first proposal.
	Genesis ids.ID `json:"genesis"`
	// TickInterval is how often the leader checks for work to propose.
	TickInterval time.Duration `json:"tickInterval"`
	// ViewTimeout is how long a replica waits for progress on pending work
	// before voting to replace the leader.
	ViewTimeout time.Duration `json:"viewTimeout"`
	// MaxProposalTxs bounds the size of one proposal.
	MaxProposalTxs int `json:"maxProposalTxs"`
	// MaxFutureMessages bounds messages buffered for later sequences.
	MaxFutureMessages int `json:"maxFutureMessages"`
}

var DefaultConfig = Config{
	TickInterval:      250 * time.Millisecond,
	ViewTimeout:       5 * time.Second,
	MaxProposalTxs:    512,
	MaxFutureMessages: 1024,
}

func (c Config) Verify() error {
	switch {
	case c.TickInterval <= 0:
		return ErrInvalidTickInterval
	case c.ViewTimeout <= c.TickInterval:
		return ErrInvalidViewTimeout
	}
	return nil
}
