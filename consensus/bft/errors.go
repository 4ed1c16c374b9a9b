// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bft

import "errors"

var (
	ErrConsensusUnavailable = errors.New("consensus unavailable: not enough active validators")
	ErrHalted               = errors.New("consensus halted")
	ErrNotValidator         = errors.New("sender is not a validator")
	ErrInvalidSignature     = errors.New("invalid message signature")
	ErrDigestMismatch       = errors.New("proposal does not match digest")
	ErrMalformedMessage     = errors.New("malformed consensus message")
	ErrInvalidCertificate   = errors.New("invalid commit certificate")
	ErrInvalidEvidence      = errors.New("invalid equivocation evidence")
	ErrEquivocation         = errors.New("validator equivocated")
	ErrWrongLeader          = errors.New("proposal from wrong leader")
	ErrWrongView            = errors.New("message for another view")
	ErrWrongParent          = errors.New("proposal does not extend last decision")
	ErrFutureDecision       = errors.New("decision is ahead of local state")
	ErrUnknownDecision      = errors.New("unknown decision")
	ErrInvalidNewView       = errors.New("view change quorum missing from new view")
	ErrIgnoredPrepared      = errors.New("new view ignores a prepared proposal")
)
