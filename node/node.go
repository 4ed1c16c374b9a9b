// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package node wires the ledger, consensus and networking of a LOS validator
// together.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/los/burn"
	"github.com/luxfi/los/config"
	"github.com/luxfi/los/consensus/bft"
	"github.com/luxfi/los/genesis"
	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/ledger"
	"github.com/luxfi/los/network"
	"github.com/luxfi/los/reward"
	"github.com/luxfi/los/slashing"
	"github.com/luxfi/los/txs/fee"
	"github.com/luxfi/los/txs/mempool"
	"github.com/luxfi/los/utils/timer/mockable"
	"github.com/luxfi/los/validators"
)

// Version of the node software.
const Version = "1.0.0"

const (
	burnCacheSize   = 1024
	metricNamespace = "los"
)

var ErrGenesisMismatch = errors.New("database was initialized with a different genesis")

var genesisKey = []byte("genesis")

// Node is a LOS validator.
type Node struct {
	log     log.Logger
	config  config.Config
	genesis *genesis.Genesis
	keys    *keys.KeyPair
	clock   *mockable.Clock
	started time.Time

	db      database.Database
	stateDB *versiondb.Database
	nodeDB  database.Database

	ledger     *ledger.Ledger
	rewards    *reward.Pool
	slashing   *slashing.Engine
	validators *validators.Manager
	fees       *fee.Calculator
	mempool    *mempool.Mempool
	network    *network.Network
	consensus  *bft.Engine
	oracle     burn.Oracle
	burnCache  *lru.Cache
	exec       *executor

	waitersLock sync.Mutex
	waiters     map[ids.ID][]chan error

	faucetLock    sync.Mutex
	faucetPending map[keys.Address]int64
}

// New opens the node state in db, applying g if the database is empty.
func New(
	c config.Config,
	g *genesis.Genesis,
	kp *keys.KeyPair,
	db database.Database,
	clock *mockable.Clock,
	logger log.Logger,
	registerer prometheus.Registerer,
) (*Node, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := g.Verify(); err != nil {
		return nil, err
	}
	n := &Node{
		log:           logger,
		config:        c,
		genesis:       g,
		keys:          kp,
		clock:         clock,
		started:       clock.Time(),
		db:            db,
		stateDB:       versiondb.New(prefixdb.New(statePrefix, db)),
		waiters:       make(map[ids.ID][]chan error),
		faucetPending: make(map[keys.Address]int64),
	}
	n.nodeDB = prefixdb.New(nodePrefix, n.stateDB)

	var err error
	n.ledger, err = ledger.New(prefixdb.New(ledgerPrefix, n.stateDB), c.Ledger, logger, registerer)
	if err != nil {
		return nil, err
	}
	n.rewards, err = reward.NewPool(prefixdb.New(rewardPrefix, n.stateDB), reward.NewCalculator(c.Reward), g.Timestamp, logger)
	if err != nil {
		return nil, err
	}
	n.slashing, err = slashing.New(prefixdb.New(slashingPrefix, n.stateDB), c.Slashing, logger)
	if err != nil {
		return nil, err
	}
	if err := n.initGenesis(); err != nil {
		return nil, err
	}

	n.validators = validators.NewManager(n.ledger, n.slashing, n.rewards, clock, kp.Address, logger)
	n.fees = fee.NewCalculator(c.Fee, clock)
	mm, err := mempool.NewMetrics(metricNamespace, registerer)
	if err != nil {
		return nil, err
	}
	n.mempool = mempool.New(c.MempoolSize, n.ledger.Balance, clock, mm)

	client, err := network.NewClient(c.Network.Proxy, c.Network.RequestTimeout)
	if err != nil {
		return nil, err
	}
	n.network, err = network.New(c.Network, client, clock, logger, registerer)
	if err != nil {
		return nil, err
	}
	n.oracle, err = newOracle(c, logger)
	if err != nil {
		return nil, err
	}
	n.burnCache, err = lru.New(burnCacheSize)
	if err != nil {
		return nil, err
	}

	n.exec = &executor{
		log:        logger,
		n:          n,
		clock:      clock,
		ledger:     n.ledger,
		pool:       n.rewards,
		slashing:   n.slashing,
		validators: n.validators,
		mempool:    n.mempool,
		stateDB:    n.stateDB,
		nodeDB:     n.nodeDB,
	}
	if err := n.exec.loadApplied(); err != nil {
		return nil, fmt.Errorf("failed to load applied sequence: %w", err)
	}

	bc := c.Consensus
	bc.Genesis = g.ID()
	n.consensus, err = bft.New(
		bc,
		kp,
		n.validators,
		n.exec,
		&network.Transport{Network: n.network},
		prefixdb.New(consensusPrefix, db),
		clock,
		logger,
		registerer,
	)
	if err != nil {
		return nil, err
	}
	n.consensus.OnEvidence(n.onEvidence)
	if err := n.consensus.Replay(n.exec.Applied()); err != nil {
		return nil, fmt.Errorf("failed to replay decisions: %w", err)
	}

	n.log.Info("node initialized",
		log.String("address", kp.Address.String()),
		log.String("network", c.NetworkName),
		log.Stringer("genesis", g.ID()),
		log.Uint64("lastDecided", n.consensus.LastDecided()),
		log.Bool("validator", n.validators.IsMember(kp.Address)),
	)
	return n, nil
}

// initGenesis applies the genesis allocations to an empty database, or checks
// that an existing database belongs to the same genesis.
func (n *Node) initGenesis() error {
	id := n.genesis.ID()
	if n.ledger.Initialized() {
		stored, err := n.nodeDB.Get(genesisKey)
		if err != nil {
			return fmt.Errorf("failed to read genesis id: %w", err)
		}
		storedID, err := ids.ToID(stored)
		if err != nil {
			return err
		}
		if storedID != id {
			return fmt.Errorf("%w: %s", ErrGenesisMismatch, storedID)
		}
		return nil
	}

	allocs, err := n.genesis.LedgerAllocations()
	if err != nil {
		return err
	}
	if err := n.ledger.ApplyGenesis(allocs, n.genesis.Timestamp); err != nil {
		return fmt.Errorf("failed to apply genesis: %w", err)
	}
	for _, v := range n.genesis.Validators {
		if err := n.rewards.Register(v.Address, true); err != nil {
			return err
		}
	}
	if err := n.nodeDB.Put(genesisKey, id[:]); err != nil {
		return err
	}
	if err := n.stateDB.Commit(); err != nil {
		return fmt.Errorf("failed to commit genesis: %w", err)
	}
	n.log.Info("applied genesis",
		log.Stringer("id", id),
		log.Int("validators", len(n.genesis.Validators)),
		log.Int("allocations", len(allocs)),
	)
	return nil
}

// newOracle attests burns against the configured explorers. Without
// explorers, only the burns listed in the config are attested.
func newOracle(c config.Config, logger log.Logger) (burn.Oracle, error) {
	if c.Burn.HTTP.BTCExplorer != "" || c.Burn.HTTP.ETHRPC != "" {
		client, err := network.NewClient(c.Network.Proxy, c.Burn.VerifyTimeout)
		if err != nil {
			return nil, err
		}
		return burn.NewHTTPOracle(c.Burn.HTTP, client, logger), nil
	}
	o := burn.NewStaticOracle(c.Burn.HTTP.Prices)
	for _, b := range c.Burn.Static {
		coin, err := burn.ParseCoin(b.Coin)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("static burn %s: %w", b.TxID, err)
		}
		if err := o.Add(coin, b.TxID, amount); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Run drives consensus, gossip, sync and the periodic maintenance loops until
// ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.consensus.Run(ctx)
	})
	g.Go(func() error {
		return n.network.Run(ctx)
	})
	g.Go(func() error {
		return n.network.RunSync(ctx, n.consensus)
	})
	g.Go(func() error {
		return n.runHeartbeats(ctx)
	})
	g.Go(func() error {
		return n.runMaintenance(ctx)
	})
	return g.Wait()
}

func (n *Node) runMaintenance(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if expired := n.mempool.Expire(n.config.MempoolTTL); expired > 0 {
				n.log.Debug("expired transactions", log.Int("count", expired))
			}
			n.fees.Prune()
			n.pruneFaucet()
		}
	}
}

// Close releases the database.
func (n *Node) Close() error {
	return n.db.Close()
}

func (n *Node) Address() keys.Address           { return n.keys.Address }
func (n *Node) Keys() *keys.KeyPair             { return n.keys }
func (n *Node) Config() config.Config           { return n.config }
func (n *Node) Genesis() *genesis.Genesis       { return n.genesis }
func (n *Node) Ledger() *ledger.Ledger          { return n.ledger }
func (n *Node) Rewards() *reward.Pool           { return n.rewards }
func (n *Node) Slashing() *slashing.Engine      { return n.slashing }
func (n *Node) Validators() *validators.Manager { return n.validators }
func (n *Node) Fees() *fee.Calculator           { return n.fees }
func (n *Node) Mempool() *mempool.Mempool       { return n.mempool }
func (n *Node) Network() *network.Network       { return n.network }
func (n *Node) Consensus() *bft.Engine          { return n.consensus }
func (n *Node) Clock() *mockable.Clock          { return n.clock }

// Uptime is the time since the node started.
func (n *Node) Uptime() time.Duration {
	return n.clock.Time().Sub(n.started)
}

// DiskSize estimates the size of the database in bytes. Backends that
// cannot report it return zero.
func (n *Node) DiskSize() uint64 {
	type sizer interface {
		Size() (uint64, error)
	}
	s, ok := n.db.(sizer)
	if !ok {
		return 0
	}
	size, err := s.Size()
	if err != nil {
		return 0
	}
	return size
}
