// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runcmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/los/config"
	"github.com/luxfi/los/genesis"
	"github.com/luxfi/los/keys"
)

func writeFile(t *testing.T, name string, b []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	AddFlags(flags)
	require.NoError(t, flags.Parse(args))
	return ParseFlags(flags)
}

func TestParseFlags(t *testing.T) {
	r := require.New(t)

	g, vals, _, err := genesis.NewTestnet(1, 1, time.Now().Unix())
	r.NoError(err)
	genesisPath := writeFile(t, "genesis.json", g.Bytes())
	validator, err := keys.FromSecretKeyHex(vals[0].SecretKey)
	r.NoError(err)
	hexKeyPath := writeFile(t, "hex.key", []byte(validator.SecretKeyHex()+"\n"))

	kp, err := keys.Generate()
	r.NoError(err)
	seedKeyPath := writeFile(t, "seed.key", []byte(kp.Mnemonic+"\n"))

	configPath := writeFile(t, "config.json", []byte(`{"testnet":true,"dbType":"memdb","httpAddr":"0.0.0.0:4000"}`))

	tests := []struct {
		name        string
		args        []string
		env         map[string]string
		expectedErr error
		check       func(*require.Assertions, *Config)
	}{
		{
			name:        "missing genesis",
			args:        []string{"--testnet"},
			expectedErr: ErrMissingGenesis,
		},
		{
			name: "testnet defaults",
			args: []string{"--genesis", genesisPath, "--testnet"},
			check: func(require *require.Assertions, c *Config) {
				require.True(c.Node.Testnet)
				require.Equal(config.TestnetConfig().NetworkName, c.Node.NetworkName)
				require.Equal(config.TestnetConfig().Reward, c.Node.Reward)
				require.True(c.EphemeralKey)
				require.NotNil(c.Keys)
			},
		},
		{
			name: "mainnet defaults",
			args: []string{"--genesis", genesisPath},
			check: func(require *require.Assertions, c *Config) {
				require.False(c.Node.Testnet)
				require.Equal(config.DefaultConfig().HTTPAddr, c.Node.HTTPAddr)
				require.Equal(config.BadgerDB, c.Node.DBType)
			},
		},
		{
			name: "environment",
			args: []string{"--genesis", genesisPath},
			env: map[string]string{
				"LOS_HTTP_ADDR": "127.0.0.1:4001",
				"LOS_PEERS":     "http://a:3030/, http://b:3030",
				"LOS_DB_TYPE":   "memdb",
			},
			check: func(require *require.Assertions, c *Config) {
				require.Equal("127.0.0.1:4001", c.Node.HTTPAddr)
				require.Equal([]string{"http://a:3030", "http://b:3030"}, c.Node.Network.Peers)
				require.Equal(config.MemDB, c.Node.DBType)
			},
		},
		{
			name: "flag overrides config file",
			args: []string{"--genesis", genesisPath, "--config", configPath, "--http-addr", "127.0.0.1:4002"},
			check: func(require *require.Assertions, c *Config) {
				require.True(c.Node.Testnet)
				require.Equal(config.MemDB, c.Node.DBType)
				require.Equal("127.0.0.1:4002", c.Node.HTTPAddr)
			},
		},
		{
			name: "repeated peers",
			args: []string{"--genesis", genesisPath, "--peers", "http://a:3030", "--peers", "http://b:3030,http://c:3030"},
			check: func(require *require.Assertions, c *Config) {
				require.Equal([]string{"http://a:3030", "http://b:3030", "http://c:3030"}, c.Node.Network.Peers)
			},
		},
		{
			name: "hex key file",
			args: []string{"--genesis", genesisPath, "--key", hexKeyPath},
			check: func(require *require.Assertions, c *Config) {
				require.False(c.EphemeralKey)
				require.Equal(validator.Address, c.Keys.Address)
			},
		},
		{
			name: "seed phrase key file",
			args: []string{"--genesis", genesisPath, "--key", seedKeyPath},
			check: func(require *require.Assertions, c *Config) {
				require.Equal(kp.Address, c.Keys.Address)
			},
		},
		{
			name: "data dir under home",
			args: []string{"--genesis", genesisPath, "--data-dir", "~/los"},
			env:  map[string]string{"HOME": "/home/validator"},
			check: func(require *require.Assertions, c *Config) {
				require.Equal(filepath.Join("/home/validator", "los"), c.Node.DataDir)
			},
		},
		{
			name: "profiling",
			args: []string{"--genesis", genesisPath, "--data-dir", "/var/lib/los", "--profile-dir", ""},
			check: func(require *require.Assertions, c *Config) {
				require.True(c.Node.Profiler.Enabled)
				require.Equal(filepath.Join("/var/lib/los", "profiles"), c.Node.Profiler.Dir)
			},
		},
		{
			name:        "invalid db type",
			args:        []string{"--genesis", genesisPath, "--db-type", "leveldb"},
			expectedErr: config.ErrInvalidDBType,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			for k, v := range test.env {
				t.Setenv(k, v)
			}
			c, err := parse(t, test.args...)
			require.ErrorIs(err, test.expectedErr)
			if test.check != nil {
				test.check(require, c)
			}
		})
	}
}
