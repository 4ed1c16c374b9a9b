// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package slashing records validator faults and decides penalties and bans.
// Bans are permanent: a banned address can never rejoin the validator set.
package slashing

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/los/keys"
)

// Fault is a category of validator misbehavior.
type Fault string

const (
	DoubleSign  Fault = "double_sign"
	InvalidVote Fault = "invalid_vote"
	Downtime    Fault = "downtime"

	BpsDenominator = 10_000
)

var (
	ErrUnknownFault = errors.New("unknown fault")
	ErrBanned       = errors.New("validator is banned")

	profilePrefix = []byte("profile/")
)

// Config sets the penalty of each fault in basis points of stake and the
// number of events after which a validator is banned.
type Config struct {
	DoubleSignBps  uint64 `json:"doubleSignBps"`
	InvalidVoteBps uint64 `json:"invalidVoteBps"`
	DowntimeBps    uint64 `json:"downtimeBps"`
	BanThreshold   uint64 `json:"banThreshold"`
}

var DefaultConfig = Config{
	DoubleSignBps:  1_000,
	InvalidVoteBps: 500,
	DowntimeBps:    100,
	BanThreshold:   3,
}

// Event is one applied penalty.
type Event struct {
	Fault     Fault  `json:"fault"`
	Amount    uint64 `json:"amount_cil"`
	Epoch     uint64 `json:"epoch"`
	Timestamp int64  `json:"timestamp"`
	TxID      ids.ID `json:"tx_id"`
}

// Profile is the slashing history of one validator.
type Profile struct {
	Address      keys.Address `json:"address"`
	Status       string       `json:"status"`
	SlashCount   uint64       `json:"slash_count"`
	TotalSlashed uint64       `json:"total_slashed_cil"`
	Banned       bool         `json:"is_banned"`
	BannedAt     int64        `json:"banned_at,omitempty"`
	Events       []Event      `json:"events"`
}

// Stats aggregates every profile.
type Stats struct {
	TotalSlashEvents uint64 `json:"total_slash_events"`
	BannedCount      uint64 `json:"banned_count"`
	SlashedCount     uint64 `json:"slashed_count"`
	TotalSlashed     uint64 `json:"total_slashed_cil"`
}

type Engine struct {
	log    log.Logger
	config Config
	db     database.Database

	lock     sync.RWMutex
	profiles map[keys.Address]*Profile
}

// New loads the slashing state from db.
func New(db database.Database, config Config, logger log.Logger) (*Engine, error) {
	e := &Engine{
		log:      logger,
		config:   config,
		db:       db,
		profiles: make(map[keys.Address]*Profile),
	}
	it := db.NewIteratorWithPrefix(profilePrefix)
	defer it.Release()
	for it.Next() {
		p := &Profile{}
		if err := json.Unmarshal(it.Value(), p); err != nil {
			return nil, fmt.Errorf("failed to parse slashing profile: %w", err)
		}
		e.profiles[p.Address] = p
	}
	return e, it.Error()
}

// Penalty is the CIL taken from stake for fault.
func (e *Engine) Penalty(fault Fault, stake uint64) (uint64, error) {
	var bps uint64
	switch fault {
	case DoubleSign:
		bps = e.config.DoubleSignBps
	case InvalidVote:
		bps = e.config.InvalidVoteBps
	case Downtime:
		bps = e.config.DowntimeBps
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFault, fault)
	}
	return stake / BpsDenominator * bps, nil
}

// Record appends an event to the profile of addr, banning it on a double
// sign or once the ban threshold is reached.
func (e *Engine) Record(addr keys.Address, ev Event) (Profile, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	p, ok := e.profiles[addr]
	if !ok {
		p = &Profile{Address: addr}
	}
	p.Events = append(p.Events, ev)
	p.SlashCount++
	p.TotalSlashed += ev.Amount
	if !p.Banned && (ev.Fault == DoubleSign || p.SlashCount >= e.config.BanThreshold) {
		p.Banned = true
		p.BannedAt = ev.Timestamp
		e.log.Warn("validator banned",
			log.String("validator", addr.String()),
			log.String("fault", string(ev.Fault)),
			log.Uint64("events", p.SlashCount),
		)
	}
	p.Status = status(p)

	b, err := json.Marshal(p)
	if err != nil {
		return Profile{}, err
	}
	if err := e.db.Put(append(append([]byte{}, profilePrefix...), addr...), b); err != nil {
		return Profile{}, err
	}
	e.profiles[addr] = p
	return copyProfile(p), nil
}

// IsBanned reports whether addr has been banned.
func (e *Engine) IsBanned(addr keys.Address) bool {
	e.lock.RLock()
	defer e.lock.RUnlock()
	p, ok := e.profiles[addr]
	return ok && p.Banned
}

// Profile returns the profile of addr. Validators that were never slashed get
// a clean profile.
func (e *Engine) Profile(addr keys.Address) Profile {
	e.lock.RLock()
	defer e.lock.RUnlock()
	if p, ok := e.profiles[addr]; ok {
		return copyProfile(p)
	}
	return Profile{Address: addr, Status: "clean", Events: []Event{}}
}

// Profiles returns every recorded profile.
func (e *Engine) Profiles() []Profile {
	e.lock.RLock()
	defer e.lock.RUnlock()
	out := make([]Profile, 0, len(e.profiles))
	for _, p := range e.profiles {
		out = append(out, copyProfile(p))
	}
	return out
}

func (e *Engine) Stats() Stats {
	e.lock.RLock()
	defer e.lock.RUnlock()

	var s Stats
	for _, p := range e.profiles {
		s.TotalSlashEvents += p.SlashCount
		s.TotalSlashed += p.TotalSlashed
		if p.SlashCount > 0 {
			s.SlashedCount++
		}
		if p.Banned {
			s.BannedCount++
		}
	}
	return s
}

func status(p *Profile) string {
	switch {
	case p.Banned:
		return "banned"
	case p.SlashCount > 0:
		return "slashed"
	default:
		return "clean"
	}
}

func copyProfile(p *Profile) Profile {
	c := *p
	c.Events = append([]Event{}, p.Events...)
	return c
}
