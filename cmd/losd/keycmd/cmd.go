// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keycmd manages validator keys from the command line.
package keycmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luxfi/los/keys"
)

const (
	OutKey        = "out"
	SeedPhraseKey = "seed-phrase"
	PrivateKeyKey = "private-key"
)

var ErrNoKeyMaterial = errors.New("one of --seed-phrase or --private-key is required")

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "keys",
		Short: "Generates and imports validator keys",
	}
	c.AddCommand(generateCommand(), importCommand())
	return c
}

func generateCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "generate",
		Short: "Generates a keypair with its seed phrase",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			kp, err := keys.Generate()
			if err != nil {
				return err
			}
			return output(c, kp, true)
		},
	}
	c.Flags().String(OutKey, "", "File the secret key is written to")
	return c
}

func importCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "import",
		Short: "Derives a keypair from a seed phrase or a secret key",
		Args:  cobra.NoArgs,
		RunE:  importFunc,
	}
	flags := c.Flags()
	flags.String(SeedPhraseKey, "", "24 word seed phrase")
	flags.String(PrivateKeyKey, "", "Secret key hex")
	flags.String(OutKey, "", "File the secret key is written to")
	c.MarkFlagsMutuallyExclusive(SeedPhraseKey, PrivateKeyKey)
	return c
}

func importFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	phrase, err := flags.GetString(SeedPhraseKey)
	if err != nil {
		return err
	}
	secret, err := flags.GetString(PrivateKeyKey)
	if err != nil {
		return err
	}

	var kp *keys.KeyPair
	switch {
	case phrase != "":
		kp, err = keys.FromMnemonic(strings.Join(strings.Fields(phrase), " "))
	case secret != "":
		kp, err = keys.FromSecretKeyHex(secret)
	default:
		return ErrNoKeyMaterial
	}
	if err != nil {
		return err
	}
	return output(c, kp, false)
}

type keyOutput struct {
	Address    keys.Address `json:"address"`
	PublicKey  string       `json:"public_key"`
	SeedPhrase string       `json:"seed_phrase,omitempty"`
	KeyFile    string       `json:"key_file,omitempty"`
}

// output prints the public half of kp. The secret key only ever goes to the
// --out file.
func output(c *cobra.Command, kp *keys.KeyPair, withSeed bool) error {
	out, err := c.Flags().GetString(OutKey)
	if err != nil {
		return err
	}
	res := keyOutput{
		Address:   kp.Address,
		PublicKey: kp.PublicKeyHex(),
		KeyFile:   out,
	}
	if withSeed {
		res.SeedPhrase = kp.Mnemonic
	}
	if out != "" {
		if err := WriteKeyFile(out, kp); err != nil {
			return err
		}
	}
	return writeJSON(c.OutOrStdout(), res)
}

// WriteKeyFile stores the secret key of kp in the format read by losd run.
func WriteKeyFile(path string, kp *keys.KeyPair) error {
	if err := os.WriteFile(path, []byte(kp.SecretKeyHex()+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed writing key file: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
