// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"

	"github.com/luxfi/los/config"
)

// Database namespaces. The decision log lives outside the versioned state so
// a decision is durable before it is applied.
var (
	consensusPrefix = []byte("consensus")
	statePrefix     = []byte("state")

	ledgerPrefix   = []byte("ledger")
	rewardPrefix   = []byte("reward")
	slashingPrefix = []byte("slashing")
	nodePrefix     = []byte("node")

	appliedKey   = []byte("applied")
	faucetPrefix = []byte("faucet/")
)

// OpenDB opens the database selected by c.
func OpenDB(c config.Config) (database.Database, error) {
	switch c.DBType {
	case config.MemDB:
		return memdb.New(), nil
	case config.BadgerDB:
		dir := filepath.Join(c.DataDir, "db")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err := badgerdb.New(dir, nil, "", nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open badgerdb at %s: %w", dir, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidDBType, c.DBType)
	}
}
