// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/los/api"
	"github.com/luxfi/los/config"
	"github.com/luxfi/los/genesis"
	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/node"
	"github.com/luxfi/los/txs"
	"github.com/luxfi/los/utils/timer/mockable"
	"github.com/luxfi/los/utils/units"
	"github.com/luxfi/los/validators"
)

// testPeer is one validator process. Its HTTP server outlives the node so a
// stopped validator looks like an unreachable peer.
type testPeer struct {
	kp     *keys.KeyPair
	db     database.Database
	server *httptest.Server

	lock    sync.RWMutex
	node    *node.Node
	handler http.Handler
	stop    func()
}

func (p *testPeer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.lock.RLock()
	h := p.handler
	p.lock.RUnlock()
	if h == nil {
		http.Error(w, "validator down", http.StatusServiceUnavailable)
		return
	}
	h.ServeHTTP(w, r)
}

func (p *testPeer) current() *node.Node {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.node
}

type cluster struct {
	t       *testing.T
	genesis *genesis.Genesis
	peers   []*testPeer
	devs    []*keys.KeyPair
}

func clusterConfig() config.Config {
	c := config.TestnetConfig()
	c.DBType = config.MemDB
	c.Consensus.TickInterval = 10 * time.Millisecond
	c.Consensus.ViewTimeout = 400 * time.Millisecond
	c.Reward.HeartbeatInterval = 100 * time.Millisecond
	c.Network.SyncInterval = 50 * time.Millisecond
	c.Network.RequestTimeout = time.Second
	c.Network.PeerBackoff = 50 * time.Millisecond
	c.Network.MaxPeerBackoff = 200 * time.Millisecond
	c.ConfirmTimeout = 10 * time.Second
	return c
}

func newCluster(t *testing.T, size int) *cluster {
	t.Helper()
	require := require.New(t)

	g, vals, devs, err := genesis.NewTestnet(size, 2, time.Now().Unix())
	require.NoError(err)
	c := &cluster{
		t:       t,
		genesis: g,
	}
	for _, w := range devs {
		kp, err := keys.FromSecretKeyHex(w.SecretKey)
		require.NoError(err)
		c.devs = append(c.devs, kp)
	}
	for _, w := range vals {
		kp, err := keys.FromSecretKeyHex(w.SecretKey)
		require.NoError(err)
		p := &testPeer{
			kp: kp,
			db: memdb.New(),
		}
		p.server = httptest.NewServer(p)
		t.Cleanup(p.server.Close)
		c.peers = append(c.peers, p)
	}
	t.Cleanup(func() {
		for i := range c.peers {
			c.stop(i)
		}
	})
	for i := range c.peers {
		c.start(i)
	}
	return c
}

// start opens the node of peer i over its database, which survives restarts.
func (c *cluster) start(i int) {
	require := require.New(c.t)

	p := c.peers[i]
	conf := clusterConfig()
	for j, other := range c.peers {
		if j != i {
			conf.Network.Peers = append(conf.Network.Peers, other.server.URL)
		}
	}
	registry := prometheus.NewRegistry()
	n, err := node.New(conf, c.genesis, p.kp, p.db, &mockable.Clock{}, log.NewNoOpLogger(), registry)
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- n.Run(ctx)
	}()

	p.lock.Lock()
	p.node = n
	p.handler = api.NewHandler(n, log.NewNoOpLogger(), registry)
	p.stop = func() {
		cancel()
		require.NoError(<-done)
	}
	p.lock.Unlock()
}

func (c *cluster) stop(i int) {
	p := c.peers[i]
	p.lock.Lock()
	stop := p.stop
	p.handler = nil
	p.stop = nil
	p.lock.Unlock()
	if stop != nil {
		stop()
	}
}

func (c *cluster) waitAvailable(nodes ...int) {
	require.Eventually(c.t, func() bool {
		for _, i := range nodes {
			if !c.peers[i].current().Consensus().Available() {
				return false
			}
		}
		return true
	}, 20*time.Second, 20*time.Millisecond)
}

func (c *cluster) post(i int, path string, body any) (int, map[string]any) {
	c.t.Helper()
	require := require.New(c.t)

	b, err := json.Marshal(body)
	require.NoError(err)
	resp, err := http.Post(c.peers[i].server.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(err)
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var out map[string]any
	require.NoError(dec.Decode(&out))
	return resp.StatusCode, out
}

func (c *cluster) send(i int, from *keys.KeyPair, to keys.Address, amount uint64) {
	c.t.Helper()

	est, err := c.peers[i].current().Fees().Estimate(from.Address.String())
	require.NoError(c.t, err)

	nonce := time.Now().UnixNano()
	t := &txs.Transfer{
		From:   from.Address,
		To:     to,
		Amount: amount,
		Fee:    est.EstimatedFee,
		Nonce:  nonce,
	}
	code, out := c.post(i, "/send", map[string]any{
		"from":       from.Address,
		"to":         to,
		"amount_cil": strconv.FormatUint(amount, 10),
		"fee_cil":    strconv.FormatUint(t.Fee, 10),
		"nonce":      nonce,
		"public_key": from.PublicKeyHex(),
		"signature":  hex.EncodeToString(from.Sign(t.SigningMessage())),
	})
	require.Equal(c.t, http.StatusOK, code, out)
	require.Equal(c.t, "success", out["status"])
}

// converged reports whether every listed node agrees with node ref on the
// accounts of addrs.
func (c *cluster) converged(ref int, nodes []int, addrs ...keys.Address) bool {
	want := c.peers[ref].current().Ledger()
	for _, i := range nodes {
		got := c.peers[i].current().Ledger()
		for _, addr := range addrs {
			a, ok := want.Account(addr)
			b, ok2 := got.Account(addr)
			if ok != ok2 {
				return false
			}
			if ok && (a.Balance != b.Balance || a.BlockCount != b.BlockCount || a.Head != b.Head) {
				return false
			}
		}
		if want.Supply() != got.Supply() {
			return false
		}
	}
	return true
}

func TestClusterConvergence(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a four validator network")
	}
	require := require.New(t)

	c := newCluster(t, 4)
	all := []int{0, 1, 2, 3}
	c.waitAvailable(all...)

	sender, recipient := c.devs[0], c.devs[1]

	// A faucet claim served by one node shows up everywhere.
	kp, err := keys.Generate()
	require.NoError(err)
	code, out := c.post(0, "/faucet", map[string]string{"address": kp.Address.String()})
	require.Equal(http.StatusOK, code, out)
	require.Equal("success", out["status"])
	require.Eventually(func() bool {
		for _, i := range all {
			if c.peers[i].current().Ledger().Balance(kp.Address) != 5_000*units.LOS {
				return false
			}
		}
		return true
	}, 10*time.Second, 20*time.Millisecond)

	c.send(1, sender, recipient.Address, 10*units.LOS)
	require.Eventually(func() bool {
		return c.converged(0, all, sender.Address, recipient.Address)
	}, 10*time.Second, 20*time.Millisecond)

	// The remaining quorum keeps finalizing while one validator is down.
	c.stop(3)
	before := c.peers[0].current().Ledger().Balance(recipient.Address)
	for i := 0; i < 3; i++ {
		c.send(i%3, sender, recipient.Address, units.LOS)
	}
	require.Eventually(func() bool {
		return c.peers[0].current().Ledger().Balance(recipient.Address) == before+3*units.LOS
	}, 10*time.Second, 20*time.Millisecond)

	// Once the stopped validator has dropped out of the liveness window the
	// others still see each other as active.
	window := validators.LivenessTimeout * clusterConfig().Reward.HeartbeatInterval
	require.Eventually(func() bool {
		return c.peers[0].current().Validators().ActiveCount() == 3
	}, 10*time.Second, 20*time.Millisecond)
	require.Never(func() bool {
		for _, i := range all[:3] {
			if !c.peers[i].current().Consensus().Available() {
				return true
			}
		}
		return false
	}, 2*window, 20*time.Millisecond)
	c.send(2, sender, recipient.Address, units.LOS)

	// After a restart the validator catches up from its peers.
	c.start(3)
	require.Eventually(func() bool {
		return c.converged(0, all, sender.Address, recipient.Address, kp.Address)
	}, 20*time.Second, 50*time.Millisecond)

	last := c.peers[0].current().Consensus().LastDecided()
	require.GreaterOrEqual(c.peers[3].current().Consensus().LastDecided(), last)
	for _, i := range all {
		s := c.peers[i].current().Ledger().Supply()
		require.Equal(s.Total, s.Circulating+s.Remaining)
	}
}
