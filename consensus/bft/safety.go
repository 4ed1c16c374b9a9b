// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bft

// MaxFaulty is the number of byzantine validators n validators tolerate.
func MaxFaulty(n int) int {
	if n <= 0 {
		return 0
	}
	return (n - 1) / 3
}

// Quorum is the number of votes that finalizes a decision among n
// validators. Any two quorums share more than MaxFaulty(n) validators, and
// with n = 3f+1 it is 2f+1.
func Quorum(n int) int {
	if n <= 0 {
		return 1
	}
	return n - MaxFaulty(n)
}

// Safety reports the fault tolerance of the current validator set.
type Safety struct {
	TotalValidators  int  `json:"total_validators"`
	ActiveValidators int  `json:"active_validators"`
	ByzantineSafe    bool `json:"byzantine_safe"`
	MaxFaulty        int  `json:"max_faulty"`
	QuorumThreshold  int  `json:"quorum_threshold"`
}

// NewSafety derives the safety report of total validators of which active
// are live.
func NewSafety(total, active int) Safety {
	f := MaxFaulty(active)
	quorum := Quorum(total)
	return Safety{
		TotalValidators:  total,
		ActiveValidators: active,
		ByzantineSafe:    active > 0 && active >= 3*f+1 && active >= quorum,
		MaxFaulty:        f,
		QuorumThreshold:  quorum,
	}
}
