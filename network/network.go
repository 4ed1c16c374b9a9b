// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package network gossips transactions, consensus messages and heartbeats to
// peer nodes over HTTP and pulls finalized decisions from them.
package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/los/utils/retry"
	"github.com/luxfi/los/utils/timer/mockable"
)

// Gossip paths served by every node.
const (
	ConsensusPath = "/p2p/consensus"
	TxPath        = "/p2p/tx"
	HeartbeatPath = "/p2p/heartbeat"
	SyncPath      = "/sync"
)

// priorityQueueSize bounds the heartbeats waiting for one peer.
const priorityQueueSize = 256

var ErrInvalidPeer = errors.New("invalid peer url")

type Config struct {
	Peers []string `json:"peers"`
	// SOCKS5 proxy used for every peer connection, empty for direct.
	Proxy          string        `json:"proxy"`
	RequestTimeout time.Duration `json:"requestTimeout"`
	Retry          retry.Config  `json:"retry"`
	SeenCacheSize  int           `json:"seenCacheSize"`
	// QueueSize bounds the messages waiting for one peer.
	QueueSize int `json:"queueSize"`
	// A peer that failed is skipped for PeerBackoff, doubling on every
	// further failure up to MaxPeerBackoff.
	PeerBackoff    time.Duration `json:"peerBackoff"`
	MaxPeerBackoff time.Duration `json:"maxPeerBackoff"`
	SyncInterval   time.Duration `json:"syncInterval"`
	SyncBatch      int           `json:"syncBatch"`
}

var DefaultConfig = Config{
	RequestTimeout: 5 * time.Second,
	Retry:          retry.DefaultConfig,
	SeenCacheSize:  16384,
	QueueSize:      4096,
	PeerBackoff:    time.Second,
	MaxPeerBackoff: 30 * time.Second,
	SyncInterval:   2 * time.Second,
	SyncBatch:      256,
}

// PeerStatus is the outcome of the last exchange with a peer.
type PeerStatus string

const (
	PeerUnknown   PeerStatus = "unknown"
	PeerConnected PeerStatus = "connected"
	PeerFailed    PeerStatus = "failed"
)

// Peer describes a peer endpoint.
type Peer struct {
	URL       string     `json:"url"`
	Status    PeerStatus `json:"status"`
	LastSeen  int64      `json:"last_seen,omitempty"`
	Failures  uint64     `json:"failures"`
	LastError string     `json:"last_error,omitempty"`
	// RetryAt is the unix time before which gossip to a failed peer is
	// skipped.
	RetryAt int64 `json:"retry_at,omitempty"`

	backoff time.Duration
	retryAt time.Time
}

type outbound struct {
	path string
	body []byte
}

// peerQueue holds the gossip waiting for one peer. Heartbeats have their own
// queue and are always sent first.
type peerQueue struct {
	url      string
	priority chan outbound
	normal   chan outbound
}

type Network struct {
	log     log.Logger
	config  Config
	client  *http.Client
	clock   *mockable.Clock
	seen    *lru.Cache
	metrics *metrics

	lock   sync.RWMutex
	peers  map[string]*Peer
	queues map[string]*peerQueue
	// set while Run delivers gossip, so peers added later get a worker
	runCtx context.Context
	group  *errgroup.Group
}

func New(config Config, client *http.Client, clock *mockable.Clock, logger log.Logger, registerer prometheus.Registerer) (*Network, error) {
	seen, err := lru.New(config.SeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create seen cache: %w", err)
	}
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register network metrics: %w", err)
	}
	n := &Network{
		log:     logger,
		config:  config,
		client:  client,
		clock:   clock,
		seen:    seen,
		metrics: m,
		peers:   make(map[string]*Peer),
		queues:  make(map[string]*peerQueue),
	}
	for _, p := range config.Peers {
		if err := n.AddPeer(p); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// AddPeer adds a peer base URL such as http://abc.onion:3030.
func (n *Network) AddPeer(raw string) error {
	u, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(raw), "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPeer, raw)
	}
	n.lock.Lock()
	defer n.lock.Unlock()
	if _, ok := n.peers[u.String()]; ok {
		return nil
	}
	n.peers[u.String()] = &Peer{URL: u.String(), Status: PeerUnknown}
	q := &peerQueue{
		url:      u.String(),
		priority: make(chan outbound, priorityQueueSize),
		normal:   make(chan outbound, max(n.config.QueueSize, 1)),
	}
	n.queues[q.url] = q
	if n.group != nil {
		n.startWorker(q)
	}
	n.metrics.peers.Set(float64(len(n.peers)))
	return nil
}

// Peers returns every known peer ordered by URL.
func (n *Network) Peers() []Peer {
	n.lock.RLock()
	defer n.lock.RUnlock()
	out := make([]Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// MarkSeen records id and reports whether it had been seen before.
func (n *Network) MarkSeen(id ids.ID) bool {
	seen, _ := n.seen.ContainsOrAdd(id, struct{}{})
	return seen
}

// Gossip queues body for delivery to every peer. It never blocks; a message
// that does not fit in the queue of a peer is dropped for that peer and left
// to sync.
func (n *Network) Gossip(path string, body []byte) {
	msg := outbound{path: path, body: body}
	n.lock.RLock()
	defer n.lock.RUnlock()
	for _, q := range n.queues {
		queue := q.normal
		if path == HeartbeatPath {
			queue = q.priority
		}
		select {
		case queue <- msg:
		default:
			n.metrics.dropped.Inc()
		}
	}
}

// Run delivers queued gossip until ctx is done. Every peer is served by its
// own worker, so a slow or dead peer never delays delivery to the others.
func (n *Network) Run(ctx context.Context) error {
	var g errgroup.Group
	n.lock.Lock()
	n.runCtx, n.group = ctx, &g
	for _, q := range n.queues {
		n.startWorker(q)
	}
	n.lock.Unlock()

	<-ctx.Done()
	n.lock.Lock()
	n.runCtx, n.group = nil, nil
	n.lock.Unlock()
	return g.Wait()
}

// startWorker must be called with the lock held while Run is active.
func (n *Network) startWorker(q *peerQueue) {
	ctx := n.runCtx
	n.group.Go(func() error {
		n.deliver(ctx, q)
		return nil
	})
}

func (n *Network) deliver(ctx context.Context, q *peerQueue) {
	for {
		var msg outbound
		select {
		case <-ctx.Done():
			return
		case msg = <-q.priority:
		default:
			select {
			case <-ctx.Done():
				return
			case msg = <-q.priority:
			case msg = <-q.normal:
			}
		}
		n.send(ctx, q.url, msg.path, msg.body)
	}
}

// Broadcast posts body to path on every peer concurrently and waits for the
// outcome. Failures are recorded on the peer and never returned.
func (n *Network) Broadcast(ctx context.Context, path string, body []byte) {
	var g errgroup.Group
	for _, p := range n.Peers() {
		g.Go(func() error {
			n.send(ctx, p.URL, path, body)
			return nil
		})
	}
	_ = g.Wait()
}

// send posts body to one peer unless the peer is backing off after a
// failure.
func (n *Network) send(ctx context.Context, peer, path string, body []byte) {
	if n.backingOff(peer) {
		n.metrics.skipped.Inc()
		return
	}
	ctx, cancel := context.WithTimeout(ctx, n.config.RequestTimeout)
	defer cancel()

	err := post(ctx, n.client, n.config.Retry, peer+path, body)
	n.observe(peer, err)
	if err != nil {
		n.metrics.failed.Inc()
		n.log.Debug("gossip failed",
			log.String("peer", peer),
			log.String("path", path),
			log.Err(err),
		)
		return
	}
	n.metrics.sent.Inc()
}

func (n *Network) backingOff(peer string) bool {
	n.lock.RLock()
	defer n.lock.RUnlock()
	p, ok := n.peers[peer]
	return ok && n.clock.Time().Before(p.retryAt)
}

func (n *Network) observe(peer string, err error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	p, ok := n.peers[peer]
	if !ok {
		return
	}
	now := n.clock.Time()
	if err != nil {
		p.Status = PeerFailed
		p.Failures++
		p.LastError = err.Error()
		p.backoff = min(max(2*p.backoff, n.config.PeerBackoff), max(n.config.MaxPeerBackoff, n.config.PeerBackoff))
		p.retryAt = now.Add(p.backoff)
		p.RetryAt = p.retryAt.Unix()
		return
	}
	p.Status = PeerConnected
	p.LastSeen = now.Unix()
	p.LastError = ""
	p.backoff = 0
	p.retryAt = time.Time{}
	p.RetryAt = 0
}
