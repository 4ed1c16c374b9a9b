// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/los/api/ratelimit"
	"github.com/luxfi/los/api/server"
	"github.com/luxfi/los/burn"
	"github.com/luxfi/los/consensus/bft"
	"github.com/luxfi/los/ledger"
	"github.com/luxfi/los/network"
	"github.com/luxfi/los/reward"
	"github.com/luxfi/los/slashing"
	"github.com/luxfi/los/txs/fee"
	"github.com/luxfi/los/utils/profiler"
	"github.com/luxfi/los/utils/units"
)

// Supported database backends.
const (
	MemDB    = "memdb"
	BadgerDB = "badgerdb"
)

var (
	ErrInvalidDBType      = errors.New("invalid database type")
	ErrInvalidMempoolSize = errors.New("mempool size must be positive")
	ErrInvalidFaucet      = errors.New("invalid faucet configuration")
	ErrInvalidNetworkName = errors.New("network name must be set")
)

// StaticBurn is a foreign chain burn attested by configuration. Amount is a
// decimal count of the coin's smallest unit.
type StaticBurn struct {
	Coin   string `json:"coin"`
	TxID   string `json:"txid"`
	Amount string `json:"amount"`
}

type BurnConfig struct {
	// Explorer endpoints. When unset, burns are only attested by Static.
	HTTP    burn.HTTPConfig `json:"http"`
	Pricing burn.Pricing    `json:"pricing"`
	Static  []StaticBurn    `json:"static"`
	// VerifyTimeout bounds one oracle lookup.
	VerifyTimeout time.Duration `json:"verifyTimeout"`
}

// Config holds the configuration of a LOS node.
type Config struct {
	NetworkName string `json:"networkName"`
	// Testnet enables the faucet and the burn reset endpoint.
	Testnet bool `json:"testnet"`

	// Storage
	DataDir string `json:"dataDir"`
	DBType  string `json:"dbType"`

	HTTPAddr  string            `json:"httpAddr"`
	HTTP      server.HTTPConfig `json:"http"`
	RateLimit ratelimit.Config  `json:"rateLimit"`

	Ledger    ledger.Config   `json:"ledger"`
	Reward    reward.Config   `json:"reward"`
	Slashing  slashing.Config `json:"slashing"`
	Fee       fee.Config      `json:"fee"`
	Consensus bft.Config      `json:"consensus"`
	Network   network.Config  `json:"network"`
	Burn      BurnConfig      `json:"burn"`

	MempoolSize int           `json:"mempoolSize"`
	MempoolTTL  time.Duration `json:"mempoolTTL"`

	FaucetAmount   uint64        `json:"faucetAmount"`
	FaucetCooldown time.Duration `json:"faucetCooldown"`

	Profiler profiler.Config `json:"profiler"`

	// ConfirmTimeout is how long a submission waits for finality before
	// being reported as pending.
	ConfirmTimeout time.Duration `json:"confirmTimeout"`
}

// DefaultConfig returns the mainnet configuration.
func DefaultConfig() Config {
	return Config{
		NetworkName: "los-mainnet",
		DataDir:     "data",
		DBType:      BadgerDB,
		HTTPAddr:    "127.0.0.1:3030",
		HTTP: server.HTTPConfig{
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			AllowedOrigins:    []string{"*"},
		},
		RateLimit: ratelimit.DefaultConfig(),
		Ledger:    ledger.DefaultConfig,
		Reward:    reward.DefaultConfig,
		Slashing:  slashing.DefaultConfig,
		Fee:       fee.DefaultConfig,
		Consensus: bft.DefaultConfig,
		Network:   network.DefaultConfig,
		Burn: BurnConfig{
			HTTP: burn.HTTPConfig{
				Prices: map[burn.Coin]uint64{
					burn.BTC: 60_000_000_000,
					burn.ETH: 2_500_000_000,
				},
			},
			Pricing:       burn.DefaultPricing,
			VerifyTimeout: 10 * time.Second,
		},
		MempoolSize:    10_000,
		MempoolTTL:     10 * time.Minute,
		FaucetAmount:   5_000 * units.LOS,
		FaucetCooldown: 2 * time.Minute,
		Profiler:       profiler.DefaultConfig,
		ConfirmTimeout: 15 * time.Second,
	}
}

// TestnetConfig returns the configuration of the public test network: short
// epochs, the faucet and the burn reset endpoint are enabled.
func TestnetConfig() Config {
	c := DefaultConfig()
	c.NetworkName = "los-testnet"
	c.Testnet = true
	c.Reward = reward.TestnetConfig
	return c
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.NetworkName == "":
		return ErrInvalidNetworkName
	case c.DBType != MemDB && c.DBType != BadgerDB:
		return fmt.Errorf("%w: %q", ErrInvalidDBType, c.DBType)
	case c.MempoolSize <= 0:
		return ErrInvalidMempoolSize
	case c.Testnet && (c.FaucetAmount == 0 || c.FaucetCooldown < 0):
		return ErrInvalidFaucet
	case c.Profiler.Enabled && c.Profiler.Freq <= 0:
		return profiler.ErrInvalidFrequency
	}
	return c.Consensus.Verify()
}

// GetConfig parses b over the defaults of the selected network. A document
// setting "testnet" starts from TestnetConfig.
func GetConfig(b []byte) (Config, error) {
	if len(b) == 0 {
		return DefaultConfig(), nil
	}
	var network struct {
		Testnet bool `json:"testnet"`
	}
	if err := json.Unmarshal(b, &network); err != nil {
		return Config{}, err
	}
	c := DefaultConfig()
	if network.Testnet {
		c = TestnetConfig()
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}
