// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validators tracks the validator set: membership recorded in the
// ledger, liveness observed through heartbeats and bans from slashing.
package validators

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/ledger"
	"github.com/luxfi/los/reward"
	"github.com/luxfi/los/slashing"
	"github.com/luxfi/los/txs"
	"github.com/luxfi/los/utils/timer/mockable"
)

// LivenessTimeout is the number of heartbeat intervals after which a silent
// validator is reported inactive.
const LivenessTimeout = 3

var (
	ErrAlreadyRegistered = errors.New("validator already registered")
	ErrNotRegistered     = errors.New("not a registered validator")
	ErrInsufficientStake = errors.New("insufficient stake")
	ErrKeyMismatch       = errors.New("public key does not match address")
)

// State is the ledger view validators are derived from.
type State interface {
	Account(addr keys.Address) (*ledger.Account, bool)
	Validators() []*ledger.Account
	SetValidator(addr keys.Address, profile *ledger.ValidatorProfile, txID ids.ID, timestamp int64) error
}

// Bans reports validators removed by slashing.
type Bans interface {
	IsBanned(addr keys.Address) bool
}

// Member is a validator taking part in consensus.
type Member struct {
	Address   keys.Address
	PublicKey []byte
}

// Info describes a validator for the API.
type Info struct {
	Address       keys.Address       `json:"address"`
	Stake         uint64             `json:"stake_cil"`
	UptimePct     uint64             `json:"uptime_percentage"`
	IsActive      bool               `json:"is_active"`
	HasMinStake   bool               `json:"has_min_stake"`
	IsGenesis     bool               `json:"is_genesis"`
	Banned        bool               `json:"banned"`
	LastHeartbeat int64              `json:"last_heartbeat"`
	Reward        reward.Eligibility `json:"reward"`
}

type Manager struct {
	log        log.Logger
	state      State
	bans       Bans
	pool       *reward.Pool
	heartbeats *reward.Heartbeats
	clock      *mockable.Clock
	self       keys.Address

	lock     sync.RWMutex
	lastSeen map[keys.Address]time.Time
}

// NewManager returns a manager reporting self as always live.
func NewManager(
	state State,
	bans Bans,
	pool *reward.Pool,
	clock *mockable.Clock,
	self keys.Address,
	logger log.Logger,
) *Manager {
	return &Manager{
		log:        logger,
		state:      state,
		bans:       bans,
		pool:       pool,
		heartbeats: reward.NewHeartbeats(pool.Calculator().Config().HeartbeatInterval, clock),
		clock:      clock,
		self:       self,
		lastSeen:   make(map[keys.Address]time.Time),
	}
}

// Members returns the registered, unbanned validators ordered by address.
// Every node derives the same list from the same ledger state.
func (m *Manager) Members() []Member {
	accts := m.state.Validators()
	members := make([]Member, 0, len(accts))
	for _, a := range accts {
		if m.bans.IsBanned(a.Address) {
			continue
		}
		members = append(members, Member{Address: a.Address, PublicKey: a.Validator.PublicKey})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Address < members[j].Address })
	return members
}

// IsMember reports whether addr currently takes part in consensus.
func (m *Manager) IsMember(addr keys.Address) bool {
	a, ok := m.state.Account(addr)
	return ok && a.IsValidator() && !m.bans.IsBanned(addr)
}

// Heartbeat records a liveness signal from addr. Signals from non members
// and signals arriving faster than the heartbeat interval are ignored.
func (m *Manager) Heartbeat(addr keys.Address) bool {
	if !m.IsMember(addr) {
		return false
	}
	epoch, _ := m.pool.Epoch()
	if !m.heartbeats.Record(addr, epoch) {
		return false
	}
	m.lock.Lock()
	m.lastSeen[addr] = m.clock.Time()
	m.lock.Unlock()
	return true
}

// Heartbeats returns the counts observed during epoch.
func (m *Manager) Heartbeats(epoch uint64) map[keys.Address]uint64 {
	return m.heartbeats.Counts(epoch)
}

// AdvanceEpoch resets heartbeat counting for epoch.
func (m *Manager) AdvanceEpoch(epoch uint64) {
	m.heartbeats.Advance(epoch)
}

// IsActive reports whether addr was heard from recently.
func (m *Manager) IsActive(addr keys.Address) bool {
	if !m.IsMember(addr) {
		return false
	}
	if addr == m.self {
		return true
	}
	m.lock.RLock()
	last, ok := m.lastSeen[addr]
	m.lock.RUnlock()
	timeout := LivenessTimeout * m.pool.Calculator().Config().HeartbeatInterval
	return ok && m.clock.Time().Sub(last) <= timeout
}

// ActiveCount returns the number of live members.
func (m *Manager) ActiveCount() int {
	n := 0
	for _, mem := range m.Members() {
		if m.IsActive(mem.Address) {
			n++
		}
	}
	return n
}

// Candidates returns the reward candidates of the current validator set
// given the heartbeat counts agreed on for the closing epoch.
func (m *Manager) Candidates(heartbeats map[keys.Address]uint64) []reward.Candidate {
	accts := m.state.Validators()
	out := make([]reward.Candidate, 0, len(accts))
	for _, a := range accts {
		out = append(out, reward.Candidate{
			Address:    a.Address,
			Stake:      a.Balance,
			Heartbeats: heartbeats[a.Address],
			Banned:     m.bans.IsBanned(a.Address),
		})
	}
	return out
}

// Info describes addr, or returns false if it is not a validator.
func (m *Manager) Info(addr keys.Address) (Info, bool) {
	a, ok := m.state.Account(addr)
	if !ok || !a.IsValidator() {
		return Info{}, false
	}
	return m.info(a), true
}

// List describes every registered validator ordered by address.
func (m *Manager) List() []Info {
	accts := m.state.Validators()
	sort.Slice(accts, func(i, j int) bool { return accts[i].Address < accts[j].Address })
	out := make([]Info, 0, len(accts))
	for _, a := range accts {
		out = append(out, m.info(a))
	}
	return out
}

func (m *Manager) info(a *ledger.Account) Info {
	epoch, _ := m.pool.Epoch()
	banned := m.bans.IsBanned(a.Address)
	e := m.pool.Eligibility(reward.Candidate{
		Address:    a.Address,
		Stake:      a.Balance,
		Heartbeats: m.heartbeats.Count(a.Address, epoch),
		Banned:     banned,
	}, int64(m.clock.Unix()))

	info := Info{
		Address:     a.Address,
		Stake:       a.Balance,
		UptimePct:   e.UptimePct,
		IsActive:    m.IsActive(a.Address),
		HasMinStake: e.HasMinStake,
		IsGenesis:   a.Validator.IsGenesis,
		Banned:      banned,
		Reward:      e,
	}
	m.lock.RLock()
	if last, ok := m.lastSeen[a.Address]; ok {
		info.LastHeartbeat = last.Unix()
	}
	m.lock.RUnlock()
	return info
}

// CheckRegister validates a registration before it is admitted. The signed
// timestamp must be close to now.
func (m *Manager) CheckRegister(r *txs.RegisterValidator, now int64) error {
	if err := txs.CheckTimestamp(r.Timestamp, now); err != nil {
		return err
	}
	return m.VerifyRegister(r)
}

// VerifyRegister checks a registration against the current state.
func (m *Manager) VerifyRegister(r *txs.RegisterValidator) error {
	if keys.AddressFromPublicKey(r.PublicKey) != r.Address {
		return ErrKeyMismatch
	}
	if m.bans.IsBanned(r.Address) {
		return fmt.Errorf("%w: %s", slashing.ErrBanned, r.Address)
	}
	a, ok := m.state.Account(r.Address)
	if ok && a.IsValidator() {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, r.Address)
	}
	minStake := m.pool.Calculator().Config().MinStake
	var balance uint64
	if ok {
		balance = a.Balance
	}
	if balance < minStake {
		return fmt.Errorf("%w: %d < %d", ErrInsufficientStake, balance, minStake)
	}
	return nil
}

// Register applies an admitted registration.
func (m *Manager) Register(r *txs.RegisterValidator, txID ids.ID, timestamp int64) error {
	if err := m.VerifyRegister(r); err != nil {
		return err
	}
	profile := &ledger.ValidatorProfile{
		PublicKey:    bytes.Clone(r.PublicKey),
		RegisteredAt: timestamp,
	}
	if err := m.state.SetValidator(r.Address, profile, txID, timestamp); err != nil {
		return err
	}
	if err := m.pool.Register(r.Address, false); err != nil {
		return err
	}
	m.log.Info("validator registered", log.String("address", r.Address.String()))
	return nil
}

// VerifyUnregister checks an unregistration against the current state.
func (m *Manager) VerifyUnregister(u *txs.UnregisterValidator) error {
	if keys.AddressFromPublicKey(u.PublicKey) != u.Address {
		return ErrKeyMismatch
	}
	a, ok := m.state.Account(u.Address)
	if !ok || !a.IsValidator() {
		return fmt.Errorf("%w: %s", ErrNotRegistered, u.Address)
	}
	return nil
}

// Unregister applies an admitted unregistration.
func (m *Manager) Unregister(u *txs.UnregisterValidator, txID ids.ID, timestamp int64) error {
	if err := m.VerifyUnregister(u); err != nil {
		return err
	}
	if err := m.state.SetValidator(u.Address, nil, txID, timestamp); err != nil {
		return err
	}
	if err := m.pool.Unregister(u.Address); err != nil {
		return err
	}
	m.lock.Lock()
	delete(m.lastSeen, u.Address)
	m.lock.Unlock()
	m.log.Info("validator unregistered", log.String("address", u.Address.String()))
	return nil
}
