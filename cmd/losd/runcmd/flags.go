// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runcmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/luxfi/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/los/config"
	"github.com/luxfi/los/genesis"
	"github.com/luxfi/los/keys"
	"github.com/luxfi/los/utils"
)

const (
	ConfigKey   = "config"
	GenesisKey  = "genesis"
	DataDirKey  = "data-dir"
	DBTypeKey   = "db-type"
	HTTPAddrKey = "http-addr"
	PeersKey    = "peers"
	KeyKey      = "key"
	TestnetKey  = "testnet"
	LogLevelKey = "log-level"
	ProfileKey  = "profile-dir"

	// EnvPrefix prefixes the environment variable of every flag, so
	// --http-addr is also read from LOS_HTTP_ADDR.
	EnvPrefix = "LOS"
)

var ErrMissingGenesis = errors.New("genesis file is required")

func AddFlags(flags *pflag.FlagSet) {
	flags.String(ConfigKey, "", "JSON node configuration file")
	flags.String(GenesisKey, "", "JSON genesis file (required)")
	flags.String(DataDirKey, "", "Directory holding the database and logs")
	flags.String(DBTypeKey, "", "Database backend, memdb or badgerdb")
	flags.String(HTTPAddrKey, "", "Address the API listens on")
	flags.StringSlice(PeersKey, nil, "Base URLs of peer validators")
	flags.String(KeyKey, "", "File holding the validator secret key hex or seed phrase")
	flags.Bool(TestnetKey, false, "Run with the test network configuration")
	flags.String(LogLevelKey, "info", "Log level")
	flags.String(ProfileKey, "", "Directory continuous CPU, heap and mutex profiles are written to")
}

// Config is everything the run command needs to start a node.
type Config struct {
	Node     config.Config
	Genesis  *genesis.Genesis
	Keys     *keys.KeyPair
	LogLevel log.Level
	// EphemeralKey is set when no key was configured and a throwaway one was
	// generated.
	EphemeralKey bool
}

// ParseFlags resolves every option from flags, LOS_ environment variables
// and the config file, in that order of precedence.
func ParseFlags(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	nc, err := nodeConfig(v)
	if err != nil {
		return nil, err
	}

	if v.GetString(GenesisKey) == "" {
		return nil, ErrMissingGenesis
	}
	genesisBytes, err := readFile(v.GetString(GenesisKey))
	if err != nil {
		return nil, err
	}
	g, err := genesis.Parse(genesisBytes)
	if err != nil {
		return nil, err
	}

	level, err := log.ToLevel(v.GetString(LogLevelKey))
	if err != nil {
		return nil, err
	}

	c := &Config{
		Node:     nc,
		Genesis:  g,
		LogLevel: level,
	}
	if path := v.GetString(KeyKey); path != "" {
		c.Keys, err = readKey(path)
	} else {
		c.Keys, err = keys.Generate()
		c.EphemeralKey = true
	}
	return c, err
}

func nodeConfig(v *viper.Viper) (config.Config, error) {
	var c config.Config
	if path := v.GetString(ConfigKey); path != "" {
		b, err := readFile(path)
		if err != nil {
			return c, err
		}
		if c, err = config.GetConfig(b); err != nil {
			return c, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if v.GetBool(TestnetKey) {
		c = config.TestnetConfig()
	} else {
		c = config.DefaultConfig()
	}

	if v.GetBool(TestnetKey) {
		c.Testnet = true
	}
	if v.IsSet(DataDirKey) {
		c.DataDir = v.GetString(DataDirKey)
	}
	dataDir, err := utils.ExpandHome(c.DataDir)
	if err != nil {
		return c, err
	}
	c.DataDir = dataDir
	if v.IsSet(ProfileKey) {
		c.Profiler.Enabled = true
		c.Profiler.Dir = v.GetString(ProfileKey)
	}
	if c.Profiler.Enabled && c.Profiler.Dir == "" {
		c.Profiler.Dir = filepath.Join(c.DataDir, "profiles")
	}
	if v.IsSet(DBTypeKey) {
		c.DBType = v.GetString(DBTypeKey)
	}
	if v.IsSet(HTTPAddrKey) {
		c.HTTPAddr = v.GetString(HTTPAddrKey)
	}
	if v.IsSet(PeersKey) {
		c.Network.Peers = splitPeers(v.GetStringSlice(PeersKey))
	}
	return c, c.Validate()
}

// splitPeers accepts both repeated flags and a comma separated environment
// value.
func splitPeers(values []string) []string {
	var peers []string
	for _, value := range values {
		for _, peer := range strings.Split(value, ",") {
			if peer = strings.TrimSpace(peer); peer != "" {
				peers = append(peers, strings.TrimSuffix(peer, "/"))
			}
		}
	}
	return peers
}

// readKey loads a key file holding either a secret key in hex or a seed
// phrase.
func readKey(path string) (*keys.KeyPair, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	s := strings.TrimSpace(string(b))
	if strings.ContainsAny(s, " \t\n") {
		return keys.FromMnemonic(strings.Join(strings.Fields(s), " "))
	}
	return keys.FromSecretKeyHex(s)
}

func readFile(path string) ([]byte, error) {
	path, err := utils.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
