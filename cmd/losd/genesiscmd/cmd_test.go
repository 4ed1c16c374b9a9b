// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package genesiscmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/los/genesis"
	"github.com/luxfi/los/keys"
)

func TestGenesis(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	var out bytes.Buffer
	c := Command()
	c.SetArgs([]string{"--out-dir", dir, "--timestamp", "1700000000"})
	c.SetOut(&out)
	c.SetErr(io.Discard)
	require.NoError(c.Execute())

	b, err := os.ReadFile(filepath.Join(dir, GenesisFile))
	require.NoError(err)
	g, err := genesis.Parse(b)
	require.NoError(err)
	require.Len(g.Validators, 4)
	require.Equal(int64(1_700_000_000), g.Timestamp)
	require.Contains(out.String(), g.ID().String())

	for i, v := range g.Validators {
		secret, err := os.ReadFile(filepath.Join(dir, KeyFileName(i)))
		require.NoError(err)
		kp, err := keys.FromSecretKeyHex(strings.TrimSpace(string(secret)))
		require.NoError(err)
		require.Equal(v.Address, kp.Address)
	}

	_, err = os.Stat(filepath.Join(dir, WalletsFile))
	require.NoError(err)
}

func TestGenesisRejectsNoValidators(t *testing.T) {
	c := Command()
	c.SetArgs([]string{"--out-dir", t.TempDir(), "--validators", "0"})
	c.SetOut(io.Discard)
	c.SetErr(io.Discard)
	require.ErrorIs(t, c.Execute(), ErrInvalidValidatorCount)
}
