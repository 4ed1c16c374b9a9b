// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bft orders transactions with a PBFT style protocol. The leader of
// a view proposes a batch for the next sequence number, replicas prepare and
// commit it, and a quorum of commit signatures finalizes it. A leader that
// stops making progress is replaced through a view change.
package bft

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/utils/timer/mockable"
	"github.com/luxfi/los/validators"
)

// Member is a validator taking part in consensus.
type Member = validators.Member

// Membership is the validator set. It must only change as a result of
// executed decisions so every node sees the same set for a sequence.
type Membership interface {
	Members() []Member
	ActiveCount() int
}

// App is the replicated state machine.
type App interface {
	// Propose returns up to max transactions to order next, nil if there is
	// nothing to do.
	Propose(ctx context.Context, max int) ([][]byte, error)
	// Verify checks a proposal before this node votes for it.
	Verify(p *Proposal) error
	// Execute applies a decision. It is called exactly once per sequence,
	// in sequence order. An error halts consensus.
	Execute(d *Decision) error
	// Pending reports whether work is waiting to be ordered.
	Pending() bool
}

// Transport delivers messages to the other validators.
type Transport interface {
	Broadcast(ctx context.Context, msg *Message)
}

// Status describes the progress of the engine.
type Status struct {
	View           uint64       `json:"view"`
	LastDecided    uint64       `json:"last_decided"`
	Leader         keys.Address `json:"leader"`
	Decisions      uint64       `json:"decisions"`
	ViewChanges    uint64       `json:"view_changes"`
	LastDecisionAt int64        `json:"last_decision_at"`
}

type voteKey struct {
	view   uint64
	digest ids.ID
}

type seenKey struct {
	typ    MessageType
	view   uint64
	sender keys.Address
}

// round is the voting state of the next sequence number.
type round struct {
	proposals      map[ids.ID]*Proposal
	accepted       map[uint64]ids.ID
	prepares       map[voteKey]map[keys.Address][]byte
	commits        map[voteKey]map[keys.Address][]byte
	sentCommit     map[uint64]bool
	seen           map[seenKey]*Message
	viewChanges    map[uint64]map[keys.Address]*Message
	sentViewChange uint64
	prepared       *Proposal
	preparedView   uint64
	preparedCert   []Vote
	// justification holds the view change quorum of each view entered.
	justification map[uint64][]*Message
}

func newRound() *round {
	return &round{
		proposals:     make(map[ids.ID]*Proposal),
		accepted:      make(map[uint64]ids.ID),
		prepares:      make(map[voteKey]map[keys.Address][]byte),
		commits:       make(map[voteKey]map[keys.Address][]byte),
		sentCommit:    make(map[uint64]bool),
		seen:          make(map[seenKey]*Message),
		viewChanges:   make(map[uint64]map[keys.Address]*Message),
		justification: make(map[uint64][]*Message),
	}
}

type Engine struct {
	log       log.Logger
	config    Config
	self      *keys.KeyPair
	members   Membership
	app       App
	transport Transport
	clock     *mockable.Clock
	store     store
	metrics   *metrics

	onEvidence func(*Evidence)

	lock           sync.Mutex
	halted         bool
	view           uint64
	decidedView    uint64
	next           uint64
	parent         ids.ID
	round          *round
	future         []*Message
	proposing      bool
	progressAt     time.Time
	decisions      uint64
	viewChanges    uint64
	lastDecisionAt time.Time
}

// New returns an engine resuming after the last decision in db.
func New(
	config Config,
	self *keys.KeyPair,
	members Membership,
	app App,
	transport Transport,
	db database.Database,
	clock *mockable.Clock,
	logger log.Logger,
	registerer prometheus.Registerer,
) (*Engine, error) {
	if err := config.Verify(); err != nil {
		return nil, err
	}
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register consensus metrics: %w", err)
	}
	e := &Engine{
		log:        logger,
		config:     config,
		self:       self,
		members:    members,
		app:        app,
		transport:  transport,
		clock:      clock,
		store:      store{db: db},
		metrics:    m,
		next:       1,
		parent:     config.Genesis,
		round:      newRound(),
		progressAt: clock.Time(),
	}

	last, err := e.store.last()
	if err != nil {
		return nil, fmt.Errorf("failed to load decision log: %w", err)
	}
	if last > 0 {
		d, err := e.store.get(last)
		if err != nil {
			return nil, err
		}
		e.next = last + 1
		e.parent = d.Proposal.Digest()
		e.view = d.View
		e.decidedView = d.View
	}
	e.metrics.sequence.Set(float64(e.next - 1))
	e.metrics.view.Set(float64(e.view))
	return e, nil
}

// OnEvidence registers a handler called, with the engine locked, whenever a
// validator is caught equivocating.
func (e *Engine) OnEvidence(f func(*Evidence)) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.onEvidence = f
}

// Replay executes the logged decisions after applied. It is used on start
// when the application state lags the decision log.
func (e *Engine) Replay(applied uint64) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	for seq := applied + 1; seq < e.next; seq++ {
		d, err := e.store.get(seq)
		if err != nil {
			return err
		}
		if err := e.app.Execute(d); err != nil {
			e.halt(err)
			return err
		}
	}
	if applied+1 < e.next {
		e.log.Info("replayed decisions",
			log.Uint64("from", applied+1),
			log.Uint64("to", e.next-1),
		)
	}
	return nil
}

// Run drives proposals and timeouts until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick proposes pending work when this node leads the current view, and
// starts a view change when pending work has not progressed in time.
func (e *Engine) Tick(ctx context.Context) {
	e.lock.Lock()
	if e.halted {
		e.lock.Unlock()
		return
	}
	members := e.members.Members()
	if !isMember(members, e.self.Address) {
		e.lock.Unlock()
		return
	}

	var out []*Message
	_, accepted := e.round.accepted[e.view]
	if leader(members, e.view) == e.self.Address && !accepted && !e.proposing {
		e.proposing = true
		view, seq, parent := e.view, e.next, e.parent
		e.lock.Unlock()

		txs, err := e.app.Propose(ctx, e.config.MaxProposalTxs)

		e.lock.Lock()
		e.proposing = false
		_, accepted = e.round.accepted[e.view]
		switch {
		case err != nil:
			e.log.Warn("failed to build proposal", log.Err(err))
		case len(txs) == 0 || accepted || view != e.view || seq != e.next:
		default:
			p := &Proposal{
				Sequence:  seq,
				Parent:    parent,
				Proposer:  e.self.Address,
				Timestamp: e.clock.Time().Unix(),
				Txs:       txs,
			}
			m := e.sign(PrePrepare, view, seq, p.Digest(), p)
			if view > e.decidedView {
				m.ViewChanges = e.round.justification[view]
			}
			out = append(out, m)
		}
	}

	now := e.clock.Time()
	if len(out) == 0 && now.Sub(e.progressAt) >= e.config.ViewTimeout && (len(e.round.proposals) > 0 || e.app.Pending()) {
		target := max(e.view, e.round.sentViewChange) + 1
		e.log.Info("view timed out",
			log.Uint64("view", e.view),
			log.Uint64("sequence", e.next),
			log.Uint64("target", target),
		)
		out = append(out, e.viewChange(target))
		e.progressAt = now
	}
	e.lock.Unlock()
	e.dispatch(ctx, out)
}

// Receive handles a message from the network.
func (e *Engine) Receive(ctx context.Context, msg *Message) error {
	e.lock.Lock()
	out, err := e.handle(msg)
	e.lock.Unlock()
	e.dispatch(ctx, out)
	return err
}

// ImportDecision applies a certified decision fetched from a peer. Decisions
// at or below the last decided sequence are ignored.
func (e *Engine) ImportDecision(ctx context.Context, d *Decision) error {
	if d == nil || d.Proposal == nil {
		return fmt.Errorf("%w: missing proposal", ErrInvalidCertificate)
	}
	e.lock.Lock()
	if e.halted {
		e.lock.Unlock()
		return ErrHalted
	}
	seq := d.Proposal.Sequence
	switch {
	case seq < e.next:
		e.lock.Unlock()
		return nil
	case seq > e.next:
		next := e.next
		e.lock.Unlock()
		return fmt.Errorf("%w: got %d, expected %d", ErrFutureDecision, seq, next)
	case d.Proposal.Parent != e.parent:
		e.lock.Unlock()
		return ErrWrongParent
	}
	if err := d.Verify(e.members.Members()); err != nil {
		e.lock.Unlock()
		return err
	}
	out, err := e.decide(d)
	e.lock.Unlock()
	e.dispatch(ctx, out)
	return err
}

// Decisions returns up to limit logged decisions starting at from.
func (e *Engine) Decisions(from uint64, limit int) ([]*Decision, error) {
	return e.store.list(max(from, 1), limit)
}

// Decision returns the decision of seq.
func (e *Engine) Decision(seq uint64) (*Decision, error) {
	return e.store.get(seq)
}

// LastDecided returns the sequence of the last decision.
func (e *Engine) LastDecided() uint64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.next - 1
}

// Available reports whether enough validators are live to finalize.
func (e *Engine) Available() bool {
	return e.members.ActiveCount() >= Quorum(len(e.members.Members()))
}

func (e *Engine) Safety() Safety {
	return NewSafety(len(e.members.Members()), e.members.ActiveCount())
}

func (e *Engine) Status() Status {
	members := e.members.Members()

	e.lock.Lock()
	defer e.lock.Unlock()
	s := Status{
		View:        e.view,
		LastDecided: e.next - 1,
		Leader:      leader(members, e.view),
		Decisions:   e.decisions,
		ViewChanges: e.viewChanges,
	}
	if !e.lastDecisionAt.IsZero() {
		s.LastDecisionAt = e.lastDecisionAt.Unix()
	}
	return s
}

// Halted reports whether a failed execution stopped the engine.
func (e *Engine) Halted() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.halted
}

// dispatch broadcasts and locally handles messages produced by this node,
// and handles buffered messages that became current.
func (e *Engine) dispatch(ctx context.Context, out []*Message) {
	for len(out) > 0 {
		msg := out[0]
		out = out[1:]
		if msg.Sender == e.self.Address {
			e.transport.Broadcast(ctx, msg)
		}
		e.lock.Lock()
		more, err := e.handle(msg)
		e.lock.Unlock()
		if err != nil {
			e.log.Debug("dropped consensus message",
				log.String("type", string(msg.Type)),
				log.Uint64("sequence", msg.Sequence),
				log.Err(err),
			)
		}
		out = append(out, more...)
	}
}

func (e *Engine) handle(m *Message) ([]*Message, error) {
	if e.halted {
		return nil, ErrHalted
	}
	switch {
	case m.Sequence < e.next:
		return nil, nil
	case m.Sequence > e.next:
		if len(e.future) < e.config.MaxFutureMessages {
			e.future = append(e.future, m)
		}
		return nil, nil
	}

	members := e.members.Members()
	pk, ok := publicKey(members, m.Sender)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotValidator, m.Sender.Short())
	}
	if err := m.Verify(pk); err != nil {
		return nil, err
	}

	switch m.Type {
	case PrePrepare:
		return e.onPrePrepare(m, members)
	case Prepare:
		return e.onVote(m, members, e.round.prepares)
	case Commit:
		return e.onVote(m, members, e.round.commits)
	case ViewChange:
		return e.onViewChange(m, members)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, m.Type)
	}
}

// checkEquivocation remembers m and reports whether an identical message was
// already seen. A conflicting message is reported as evidence.
func (e *Engine) checkEquivocation(m *Message) (bool, error) {
	k := seenKey{typ: m.Type, view: m.View, sender: m.Sender}
	prev, ok := e.round.seen[k]
	if !ok {
		e.round.seen[k] = m
		return false, nil
	}
	if prev.Digest == m.Digest {
		return true, nil
	}
	ev := &Evidence{First: prev, Second: m}
	e.metrics.evidence.Inc()
	e.log.Warn("validator equivocated",
		log.String("validator", m.Sender.String()),
		log.String("type", string(m.Type)),
		log.Uint64("view", m.View),
		log.Uint64("sequence", m.Sequence),
	)
	if e.onEvidence != nil {
		e.onEvidence(ev)
	}
	return false, fmt.Errorf("%w: %s", ErrEquivocation, m.Sender.Short())
}

func (e *Engine) onPrePrepare(m *Message, members []Member) ([]*Message, error) {
	p := m.Proposal
	switch {
	case p == nil || p.Sequence != m.Sequence:
		return nil, fmt.Errorf("%w: bad proposal", ErrMalformedMessage)
	case m.View > e.view:
		// Handled again once this node enters the view.
		if len(e.future) < e.config.MaxFutureMessages {
			e.future = append(e.future, m)
		}
		return nil, nil
	case m.View < e.view:
		return nil, fmt.Errorf("%w: %d during %d", ErrWrongView, m.View, e.view)
	case leader(members, m.View) != m.Sender:
		return nil, fmt.Errorf("%w: %s", ErrWrongLeader, m.Sender.Short())
	case p.Parent != e.parent:
		return nil, ErrWrongParent
	}
	if m.View > e.decidedView {
		if err := e.verifyNewView(m, members); err != nil {
			return nil, err
		}
	}
	dup, err := e.checkEquivocation(m)
	if dup || err != nil {
		return nil, err
	}
	if err := e.app.Verify(p); err != nil {
		return nil, fmt.Errorf("rejected proposal %d: %w", p.Sequence, err)
	}

	e.round.proposals[m.Digest] = p
	e.round.accepted[m.View] = m.Digest
	e.progressAt = e.clock.Time()

	var out []*Message
	if isMember(members, e.self.Address) {
		out = append(out, e.sign(Prepare, m.View, m.Sequence, m.Digest, nil))
	}
	more, err := e.checkQuorums(members, m.View, m.Digest)
	return append(out, more...), err
}

func (e *Engine) onVote(m *Message, members []Member, votes map[voteKey]map[keys.Address][]byte) ([]*Message, error) {
	dup, err := e.checkEquivocation(m)
	if dup || err != nil {
		return nil, err
	}
	k := voteKey{view: m.View, digest: m.Digest}
	if votes[k] == nil {
		votes[k] = make(map[keys.Address][]byte)
	}
	votes[k][m.Sender] = m.Signature
	return e.checkQuorums(members, m.View, m.Digest)
}

func (e *Engine) checkQuorums(members []Member, view uint64, digest ids.ID) ([]*Message, error) {
	q := Quorum(len(members))
	k := voteKey{view: view, digest: digest}

	var out []*Message
	accepted, ok := e.round.accepted[view]
	if ok && accepted == digest && view == e.view && !e.round.sentCommit[view] && len(e.round.prepares[k]) >= q {
		e.round.sentCommit[view] = true
		e.round.prepared = e.round.proposals[digest]
		e.round.preparedView = view
		e.round.preparedCert = votes(e.round.prepares[k])
		if isMember(members, e.self.Address) {
			out = append(out, e.sign(Commit, view, e.next, digest, nil))
		}
	}

	p, ok := e.round.proposals[digest]
	if !ok || len(e.round.commits[k]) < q {
		return out, nil
	}
	d := &Decision{Proposal: p, View: view, Commits: votes(e.round.commits[k])}
	more, err := e.decide(d)
	return append(out, more...), err
}

func (e *Engine) decide(d *Decision) ([]*Message, error) {
	if err := e.store.put(d); err != nil {
		e.halt(err)
		return nil, err
	}
	if err := e.app.Execute(d); err != nil {
		e.halt(err)
		return nil, err
	}

	now := e.clock.Time()
	e.next = d.Proposal.Sequence + 1
	e.parent = d.Proposal.Digest()
	e.view = max(e.view, d.View)
	e.decidedView = d.View
	e.round = newRound()
	e.progressAt = now
	e.lastDecisionAt = now
	e.decisions++

	e.metrics.decided.Inc()
	e.metrics.txs.Add(float64(len(d.Proposal.Txs)))
	e.metrics.sequence.Set(float64(d.Proposal.Sequence))
	e.metrics.view.Set(float64(e.view))
	e.log.Debug("decided",
		log.Uint64("sequence", d.Proposal.Sequence),
		log.Uint64("view", d.View),
		log.Int("txs", len(d.Proposal.Txs)),
	)

	return e.release(), nil
}

// release returns the buffered messages that became current and drops the
// stale ones.
func (e *Engine) release() []*Message {
	var out []*Message
	future := e.future
	e.future = nil
	for _, m := range future {
		switch {
		case m.Sequence < e.next:
		case m.Sequence == e.next && (m.Type != PrePrepare || m.View <= e.view):
			out = append(out, m)
		default:
			e.future = append(e.future, m)
		}
	}
	return out
}

func (e *Engine) onViewChange(m *Message, members []Member) ([]*Message, error) {
	if m.View <= e.view {
		return nil, nil
	}
	if err := m.verifyPrepared(members); err != nil {
		return nil, err
	}
	vcs := e.round.viewChanges[m.View]
	if vcs == nil {
		vcs = make(map[keys.Address]*Message)
		e.round.viewChanges[m.View] = vcs
	}
	vcs[m.Sender] = m

	var out []*Message
	// Join a view change that at least one honest validator asked for.
	if len(vcs) > MaxFaulty(len(members)) && e.round.sentViewChange < m.View && isMember(members, e.self.Address) {
		out = append(out, e.viewChange(m.View))
	}
	if len(vcs) >= Quorum(len(members)) {
		out = append(out, e.enterView(m.View, vcs, members)...)
	}
	return out, nil
}

func (e *Engine) viewChange(target uint64) *Message {
	e.round.sentViewChange = target
	var digest ids.ID
	if e.round.prepared != nil {
		digest = e.round.prepared.Digest()
	}
	m := e.sign(ViewChange, target, e.next, digest, e.round.prepared)
	m.PreparedView = e.round.preparedView
	m.Prepares = e.round.preparedCert
	return m
}

func (e *Engine) enterView(view uint64, vcs map[keys.Address]*Message, members []Member) []*Message {
	e.view = view
	e.viewChanges++
	e.progressAt = e.clock.Time()
	e.metrics.viewChanges.Inc()
	e.metrics.view.Set(float64(view))

	justification := make([]*Message, 0, len(vcs))
	for _, vc := range vcs {
		justification = append(justification, vc)
	}
	sort.Slice(justification, func(i, j int) bool { return justification[i].Sender < justification[j].Sender })
	e.round.justification[view] = justification

	next := leader(members, view)
	e.log.Info("entered view",
		log.Uint64("view", view),
		log.Uint64("sequence", e.next),
		log.String("leader", next.String()),
	)
	out := e.release()
	if next != e.self.Address {
		return out
	}

	// A proposal prepared by a quorum in an earlier view may have been
	// committed somewhere, so the new leader must propose it again.
	best := highestPrepared(justification, e.next, e.parent)
	if best == nil {
		return out
	}
	p := *best.Proposal
	m := e.sign(PrePrepare, view, e.next, p.Digest(), &p)
	m.ViewChanges = justification
	return append(out, m)
}

// verifyNewView checks that the first PrePrepare of a view carries a quorum
// of view changes for it and re-proposes the highest prepared proposal among
// them.
func (e *Engine) verifyNewView(m *Message, members []Member) error {
	var (
		valid   []*Message
		senders = make(map[keys.Address]struct{}, len(m.ViewChanges))
	)
	for _, vc := range m.ViewChanges {
		if vc == nil || vc.Type != ViewChange || vc.View != m.View || vc.Sequence != m.Sequence {
			continue
		}
		if _, ok := senders[vc.Sender]; ok {
			continue
		}
		pk, ok := publicKey(members, vc.Sender)
		if !ok || vc.Verify(pk) != nil || vc.verifyPrepared(members) != nil {
			continue
		}
		senders[vc.Sender] = struct{}{}
		valid = append(valid, vc)
	}
	if q := Quorum(len(members)); len(valid) < q {
		return fmt.Errorf("%w: %d of %d view changes for view %d", ErrInvalidNewView, len(valid), q, m.View)
	}
	if best := highestPrepared(valid, m.Sequence, e.parent); best != nil && best.Digest != m.Digest {
		return fmt.Errorf("%w: expected %s, got %s", ErrIgnoredPrepared, best.Digest, m.Digest)
	}
	return nil
}

// highestPrepared returns the view change carrying the proposal for seq
// prepared in the latest view, nil if none of vcs prepared one.
func highestPrepared(vcs []*Message, seq uint64, parent ids.ID) *Message {
	var best *Message
	for _, vc := range vcs {
		p := vc.Proposal
		if p == nil || p.Sequence != seq || p.Parent != parent {
			continue
		}
		if best == nil || vc.PreparedView > best.PreparedView {
			best = vc
		}
	}
	return best
}

// votes returns the signatures of a vote set ordered by signer.
func votes(signatures map[keys.Address][]byte) []Vote {
	out := make([]Vote, 0, len(signatures))
	for signer, sig := range signatures {
		out = append(out, Vote{Signer: signer, Signature: sig})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signer < out[j].Signer })
	return out
}

func (e *Engine) sign(t MessageType, view, seq uint64, digest ids.ID, p *Proposal) *Message {
	m := &Message{
		Type:     t,
		View:     view,
		Sequence: seq,
		Digest:   digest,
		Proposal: p,
		Sender:   e.self.Address,
	}
	m.Signature = e.self.Sign(m.SigningBytes())
	return m
}

func (e *Engine) halt(err error) {
	e.halted = true
	e.log.Error("consensus halted", log.Err(err))
}

func leader(members []Member, view uint64) keys.Address {
	if len(members) == 0 {
		return ""
	}
	return members[view%uint64(len(members))].Address
}

func publicKey(members []Member, addr keys.Address) ([]byte, bool) {
	for _, m := range members {
		if m.Address == addr {
			return m.PublicKey, true
		}
	}
	return nil, false
}

func isMember(members []Member, addr keys.Address) bool {
	_, ok := publicKey(members, addr)
	return ok
}
