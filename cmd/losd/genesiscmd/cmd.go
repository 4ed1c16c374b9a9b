// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package genesiscmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/los/cmd/losd/keycmd"
	"github.com/luxfi/los/genesis"
	"github.com/luxfi/los/keys"
)

const (
	ValidatorsKey = "validators"
	DevWalletsKey = "dev-wallets"
	OutDirKey     = "out-dir"
	TimestampKey  = "timestamp"

	GenesisFile = "genesis.json"
	WalletsFile = "wallets.json"
)

var ErrInvalidValidatorCount = errors.New("at least one validator is required")

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "genesis",
		Short: "Generates a test network genesis with its validator keys",
		Args:  cobra.NoArgs,
		RunE:  genesisFunc,
	}
	flags := c.Flags()
	flags.Int(ValidatorsKey, 4, "Number of bootstrap validators")
	flags.Int(DevWalletsKey, 2, "Number of funded developer wallets")
	flags.String(OutDirKey, ".", "Directory the genesis, wallets and key files are written to")
	flags.Int64(TimestampKey, 0, "Genesis unix timestamp, now when zero")
	return c
}

type wallets struct {
	Validators []genesis.Wallet `json:"validators"`
	Dev        []genesis.Wallet `json:"dev"`
}

func genesisFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	numValidators, err := flags.GetInt(ValidatorsKey)
	if err != nil {
		return err
	}
	numDev, err := flags.GetInt(DevWalletsKey)
	if err != nil {
		return err
	}
	outDir, err := flags.GetString(OutDirKey)
	if err != nil {
		return err
	}
	timestamp, err := flags.GetInt64(TimestampKey)
	if err != nil {
		return err
	}
	if numValidators < 1 {
		return ErrInvalidValidatorCount
	}
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}

	g, vals, devs, err := genesis.NewTestnet(numValidators, numDev, timestamp)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, GenesisFile), g.Bytes(), 0o644); err != nil {
		return err
	}
	walletBytes, err := json.MarshalIndent(wallets{Validators: vals, Dev: devs}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, WalletsFile), walletBytes, 0o600); err != nil {
		return err
	}

	w := c.OutOrStdout()
	for i, v := range vals {
		kp, err := keys.FromSecretKeyHex(v.SecretKey)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, KeyFileName(i))
		if err := keycmd.WriteKeyFile(path, kp); err != nil {
			return err
		}
		fmt.Fprintf(w, "validator %d: %s key=%s\n", i, v.Address, path)
	}
	fmt.Fprintf(w, "genesis %s written to %s\n", g.ID(), filepath.Join(outDir, GenesisFile))
	return nil
}

// KeyFileName names the key file of the i-th bootstrap validator.
func KeyFileName(i int) string {
	return fmt.Sprintf("validator-%d.key", i)
}
