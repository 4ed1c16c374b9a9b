// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reward

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/log"

	"github.com/luxfi/los/keys"
)

var (
	ErrWrongEpoch   = errors.New("wrong epoch")
	ErrEpochNotOver = errors.New("epoch has not ended")

	stateKey = []byte("state")
)

// ValidatorState is the reward bookkeeping of one validator.
type ValidatorState struct {
	JoinEpoch  uint64 `json:"joinEpoch"`
	Cumulative uint64 `json:"cumulative"`
	IsGenesis  bool   `json:"isGenesis"`
}

// State is the persisted pool state. Remaining + Distributed == PoolSize.
type State struct {
	Remaining   uint64                           `json:"remaining"`
	Distributed uint64                           `json:"distributed"`
	Epoch       uint64                           `json:"epoch"`
	EpochStart  int64                            `json:"epochStart"`
	Validators  map[keys.Address]*ValidatorState `json:"validators"`
	LastResult  *EpochResult                     `json:"lastResult,omitempty"`
}

// Candidate is a validator considered at epoch close.
type Candidate struct {
	Address    keys.Address
	Stake      uint64
	Heartbeats uint64
	Banned     bool
}

// Payout is the reward of one validator.
type Payout struct {
	Address keys.Address `json:"address"`
	Amount  uint64       `json:"amount"`
}

// EpochResult summarizes a closed epoch.
type EpochResult struct {
	Epoch       uint64   `json:"epoch"`
	NextEpoch   uint64   `json:"nextEpoch"`
	Budget      uint64   `json:"budget"`
	Distributed uint64   `json:"distributed"`
	Expected    uint64   `json:"expectedHeartbeats"`
	Eligible    int      `json:"eligible"`
	Skipped     uint64   `json:"skippedEpochs"`
	Payouts     []Payout `json:"payouts"`
}

// Eligibility explains whether a validator earns rewards this epoch.
type Eligibility struct {
	Eligible    bool   `json:"eligible"`
	InProbation bool   `json:"in_probation"`
	HasMinStake bool   `json:"has_min_stake"`
	MeetsUptime bool   `json:"meets_uptime"`
	UptimePct   uint64 `json:"uptime_pct"`
	Expected    uint64 `json:"expected_heartbeats"`
	Heartbeats  uint64 `json:"heartbeats"`
	Banned      bool   `json:"banned"`
	JoinEpoch   uint64 `json:"join_epoch"`
	Cumulative  uint64 `json:"cumulative_rewards_cil"`
	IsGenesis   bool   `json:"is_genesis"`
}

// Pool owns the reward pool state. It is only mutated by consensus ordered
// operations, so every node computes identical payouts.
type Pool struct {
	log  log.Logger
	calc Calculator
	db   database.Database

	lock  sync.RWMutex
	state State
}

// NewPool loads the pool from db or starts a fresh one at genesisTime.
func NewPool(db database.Database, calc Calculator, genesisTime int64, logger log.Logger) (*Pool, error) {
	p := &Pool{
		log:  logger,
		calc: calc,
		db:   db,
		state: State{
			Remaining:  calc.config.PoolSize,
			EpochStart: genesisTime,
			Validators: make(map[keys.Address]*ValidatorState),
		},
	}
	b, err := db.Get(stateKey)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return p, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load reward pool: %w", err)
	}
	if err := json.Unmarshal(b, &p.state); err != nil {
		return nil, fmt.Errorf("failed to parse reward pool: %w", err)
	}
	if p.state.Validators == nil {
		p.state.Validators = make(map[keys.Address]*ValidatorState)
	}
	return p, nil
}

func (p *Pool) Calculator() Calculator {
	return p.calc
}

// Register starts tracking a validator. Its probation starts at the current
// epoch. Registering a tracked validator is a no-op.
func (p *Pool) Register(addr keys.Address, isGenesis bool) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.state.Validators[addr]; ok {
		return nil
	}
	p.state.Validators[addr] = &ValidatorState{
		JoinEpoch: p.state.Epoch,
		IsGenesis: isGenesis,
	}
	return p.persist()
}

// Unregister stops tracking a validator.
func (p *Pool) Unregister(addr keys.Address) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.state.Validators[addr]; !ok {
		return nil
	}
	delete(p.state.Validators, addr)
	return p.persist()
}

// Epoch returns the current epoch and the unix time it started.
func (p *Pool) Epoch() (uint64, int64) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.state.Epoch, p.state.EpochStart
}

// EpochEnded reports whether the current epoch is over at now.
func (p *Pool) EpochEnded(now int64) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return now >= p.state.EpochStart+int64(p.calc.config.EpochDuration/time.Second)
}

// Snapshot returns a deep copy of the pool state.
func (p *Pool) Snapshot() State {
	p.lock.RLock()
	defer p.lock.RUnlock()

	s := p.state
	s.Validators = make(map[keys.Address]*ValidatorState, len(p.state.Validators))
	for addr, v := range p.state.Validators {
		vc := *v
		s.Validators[addr] = &vc
	}
	return s
}

// Eligibility evaluates c against the current epoch at now.
func (p *Pool) Eligibility(c Candidate, now int64) Eligibility {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.eligibility(c, p.calc.ExpectedHeartbeats(p.elapsed(now)))
}

// MaxHeartbeats bounds the heartbeat count of any validator when the current
// epoch is closed at timestamp. slack widens the window by the tolerated
// clock drift.
func (p *Pool) MaxHeartbeats(timestamp int64, slack time.Duration) uint64 {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.calc.MaxHeartbeats(p.elapsed(timestamp) + slack)
}

func (p *Pool) elapsed(now int64) time.Duration {
	return time.Duration(now-p.state.EpochStart) * time.Second
}

func (p *Pool) eligibility(c Candidate, expected uint64) Eligibility {
	e := Eligibility{
		HasMinStake: c.Stake >= p.calc.config.MinStake,
		MeetsUptime: p.calc.MeetsUptime(c.Heartbeats, expected),
		UptimePct:   p.calc.UptimePct(c.Heartbeats, expected),
		Expected:    expected,
		Heartbeats:  c.Heartbeats,
		Banned:      c.Banned,
		InProbation: true,
	}
	if v, ok := p.state.Validators[c.Address]; ok {
		e.JoinEpoch = v.JoinEpoch
		e.Cumulative = v.Cumulative
		e.IsGenesis = v.IsGenesis
		e.InProbation = p.state.Epoch-v.JoinEpoch < p.calc.config.ProbationEpochs
	}
	e.Eligible = !e.InProbation && e.HasMinStake && e.MeetsUptime && !e.Banned
	return e
}

// CloseEpoch ends epoch at timestamp and returns the payouts to mint. Fully
// missed epochs are skipped without rewards.
func (p *Pool) CloseEpoch(epoch uint64, timestamp int64, candidates []Candidate) (*EpochResult, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if epoch != p.state.Epoch {
		return nil, fmt.Errorf("%w: closing %d during %d", ErrWrongEpoch, epoch, p.state.Epoch)
	}
	duration := int64(p.calc.config.EpochDuration / time.Second)
	elapsed := timestamp - p.state.EpochStart
	if duration <= 0 || elapsed < duration {
		return nil, fmt.Errorf("%w: %ds of %ds elapsed", ErrEpochNotOver, elapsed, duration)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Address < candidates[j].Address })

	expected := p.calc.ExpectedHeartbeats(p.elapsed(timestamp))
	var (
		eligible []Candidate
		weights  []uint64
	)
	for _, c := range candidates {
		if !p.eligibility(c, expected).Eligible {
			continue
		}
		eligible = append(eligible, c)
		weights = append(weights, p.calc.Weight(c.Stake))
	}

	budget := min(p.calc.Rate(epoch), p.state.Remaining)
	shares, _ := p.calc.Split(budget, weights)

	passed := uint64(elapsed / duration)
	result := &EpochResult{
		Epoch:     epoch,
		NextEpoch: epoch + passed,
		Budget:    budget,
		Expected:  expected,
		Eligible:  len(eligible),
		Skipped:   passed - 1,
	}
	for i, c := range eligible {
		if shares[i] == 0 {
			continue
		}
		result.Payouts = append(result.Payouts, Payout{Address: c.Address, Amount: shares[i]})
		result.Distributed += shares[i]
		p.state.Validators[c.Address].Cumulative += shares[i]
	}

	p.state.Remaining -= result.Distributed
	p.state.Distributed += result.Distributed
	p.state.Epoch = result.NextEpoch
	p.state.EpochStart += int64(passed) * duration
	p.state.LastResult = result

	p.log.Info("epoch closed",
		log.Uint64("epoch", epoch),
		log.Uint64("nextEpoch", result.NextEpoch),
		log.Uint64("distributed", result.Distributed),
		log.Int("eligible", result.Eligible),
		log.Uint64("skipped", result.Skipped),
	)
	return result, p.persist()
}

func (p *Pool) persist() error {
	if p.state.Remaining+p.state.Distributed != p.calc.config.PoolSize {
		return fmt.Errorf("reward pool out of balance: remaining %d + distributed %d != %d",
			p.state.Remaining, p.state.Distributed, p.calc.config.PoolSize)
	}
	b, err := json.Marshal(&p.state)
	if err != nil {
		return err
	}
	return p.db.Put(stateKey, b)
}
