// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import "errors"

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSelfTransfer       = errors.New("self transfer not allowed")
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrNotFound           = errors.New("not found")
	ErrSupplyExhausted    = errors.New("supply exhausted")
	ErrBurnAlreadyClaimed = errors.New("burn already claimed")
	ErrConservation       = errors.New("supply conservation violated")
	ErrHalted             = errors.New("ledger write path halted")
	ErrAlreadyInitialized = errors.New("ledger already initialized")
)
