// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"errors"
	"net/http"

	"github.com/luxfi/los/api/ratelimit"
	"github.com/luxfi/los/burn"
	"github.com/luxfi/los/consensus/bft"
	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/ledger"
	"github.com/luxfi/los/node"
	"github.com/luxfi/los/reward"
	"github.com/luxfi/los/slashing"
	"github.com/luxfi/los/txs"
	"github.com/luxfi/los/txs/mempool"
	"github.com/luxfi/los/utils/units"
	"github.com/luxfi/los/validators"
)

var (
	ErrMalformedBody        = errors.New("malformed request body")
	ErrMissingField         = errors.New("missing required field")
	ErrUnknownRoute         = errors.New("unknown route")
	ErrMethodNotAllowed     = errors.New("method not allowed")
	ErrContractsUnsupported = errors.New("smart contracts are not supported on this network")
	ErrSignatureRequired    = errors.New("signature and public_key required for foreign sender")
)

// statusCodes is checked in order; the first sentinel matched by errors.Is
// decides the response code.
var statusCodes = []struct {
	err  error
	code int
}{
	// validation
	{ErrMalformedBody, http.StatusBadRequest},
	{ErrMissingField, http.StatusBadRequest},
	{ErrSignatureRequired, http.StatusBadRequest},
	{keys.ErrInvalidAddress, http.StatusBadRequest},
	{keys.ErrInvalidKeyFormat, http.StatusBadRequest},
	{keys.ErrInvalidMnemonic, http.StatusBadRequest},
	{keys.ErrInvalidSignature, http.StatusUnauthorized},
	{txs.ErrInvalidSignature, http.StatusUnauthorized},
	{validators.ErrKeyMismatch, http.StatusUnauthorized},
	{txs.ErrStaleTimestamp, http.StatusBadRequest},
	{txs.ErrZeroAmount, http.StatusBadRequest},
	{txs.ErrSelfTransfer, http.StatusBadRequest},
	{txs.ErrMissingPayload, http.StatusBadRequest},
	{txs.ErrUnknownKind, http.StatusBadRequest},
	{ledger.ErrZeroAmount, http.StatusBadRequest},
	{ledger.ErrSelfTransfer, http.StatusBadRequest},
	{units.ErrInvalidAmount, http.StatusBadRequest},
	{units.ErrTooManyDecimal, http.StatusBadRequest},
	{units.ErrAmountOverflow, http.StatusBadRequest},
	{burn.ErrUnsupportedCoin, http.StatusBadRequest},
	{burn.ErrInvalidTxID, http.StatusBadRequest},
	{burn.ErrNotBurned, http.StatusBadRequest},
	{burn.ErrUnconfirmed, http.StatusBadRequest},
	{burn.ErrZeroMint, http.StatusBadRequest},
	{node.ErrFeeTooLow, http.StatusBadRequest},
	{node.ErrFeeTooHigh, http.StatusBadRequest},
	{node.ErrForeignSender, http.StatusBadRequest},
	{node.ErrInvalidEvidence, http.StatusBadRequest},
	{validators.ErrInsufficientStake, http.StatusBadRequest},
	{validators.ErrNotRegistered, http.StatusBadRequest},
	{reward.ErrWrongEpoch, http.StatusBadRequest},

	// peer messages
	{bft.ErrMalformedMessage, http.StatusBadRequest},
	{bft.ErrInvalidSignature, http.StatusUnauthorized},
	{bft.ErrNotValidator, http.StatusForbidden},
	{bft.ErrDigestMismatch, http.StatusBadRequest},
	{bft.ErrInvalidCertificate, http.StatusBadRequest},
	{bft.ErrInvalidEvidence, http.StatusBadRequest},
	{bft.ErrEquivocation, http.StatusBadRequest},
	{bft.ErrWrongLeader, http.StatusBadRequest},
	{bft.ErrWrongView, http.StatusConflict},
	{bft.ErrWrongParent, http.StatusConflict},
	{bft.ErrFutureDecision, http.StatusConflict},
	{bft.ErrUnknownDecision, http.StatusNotFound},
	{node.ErrStaleHeartbeat, http.StatusConflict},

	// funds
	{ledger.ErrInsufficientFunds, http.StatusBadRequest},
	{mempool.ErrInsufficientFunds, http.StatusBadRequest},
	{ledger.ErrSupplyExhausted, http.StatusBadRequest},

	// lookups
	{ErrUnknownRoute, http.StatusNotFound},
	{ledger.ErrNotFound, http.StatusNotFound},
	{burn.ErrTxNotFound, http.StatusNotFound},

	{ErrMethodNotAllowed, http.StatusMethodNotAllowed},
	{node.ErrTestnetOnly, http.StatusForbidden},
	{slashing.ErrBanned, http.StatusForbidden},

	// conflicts
	{ledger.ErrBurnAlreadyClaimed, http.StatusConflict},
	{validators.ErrAlreadyRegistered, http.StatusConflict},
	{mempool.ErrDuplicateTx, http.StatusConflict},
	{node.ErrAlreadyExecuted, http.StatusConflict},

	{node.ErrFaucetCooldown, http.StatusTooManyRequests},
	{ratelimit.ErrRateLimited, http.StatusTooManyRequests},

	// availability
	{bft.ErrConsensusUnavailable, http.StatusServiceUnavailable},
	{bft.ErrHalted, http.StatusServiceUnavailable},
	{ledger.ErrHalted, http.StatusServiceUnavailable},
	{mempool.ErrMempoolFull, http.StatusServiceUnavailable},
	{burn.ErrNoPrice, http.StatusServiceUnavailable},

	{ErrContractsUnsupported, http.StatusNotImplemented},
}

// StatusCode returns the HTTP status code reported for err.
func StatusCode(err error) int {
	for _, s := range statusCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Status string `json:"status"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}
