// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/luxfi/los/keys"
)

type generateResponse struct {
	result
	Address    keys.Address `json:"address"`
	PublicKey  string       `json:"public_key"`
	SeedPhrase string       `json:"seed_phrase"`
}

// generateKey creates a fresh keypair. The node keeps no copy of it.
func (s *service) generateKey(w http.ResponseWriter, r *http.Request) {
	kp, err := keys.Generate()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, generateResponse{
		result:     success,
		Address:    kp.Address,
		PublicKey:  kp.PublicKeyHex(),
		SeedPhrase: kp.Mnemonic,
	})
}

type importSeedRequest struct {
	SeedPhrase string `json:"seed_phrase"`
}

type importKeyRequest struct {
	PrivateKey string `json:"private_key"`
}

// importResponse never carries secret material back to the caller.
type importResponse struct {
	result
	Address   keys.Address `json:"address"`
	PublicKey string       `json:"public_key"`
}

func (s *service) importSeed(w http.ResponseWriter, r *http.Request) {
	var req importSeedRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	phrase := strings.Join(strings.Fields(req.SeedPhrase), " ")
	if phrase == "" {
		s.fail(w, r, fmt.Errorf("%w: seed_phrase", ErrMissingField))
		return
	}
	kp, err := keys.FromMnemonic(phrase)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, importResponse{
		result:    success,
		Address:   kp.Address,
		PublicKey: kp.PublicKeyHex(),
	})
}

func (s *service) importKey(w http.ResponseWriter, r *http.Request) {
	var req importKeyRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.PrivateKey == "" {
		s.fail(w, r, fmt.Errorf("%w: private_key", ErrMissingField))
		return
	}
	kp, err := keys.FromSecretKeyHex(req.PrivateKey)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, importResponse{
		result:    success,
		Address:   kp.Address,
		PublicKey: kp.PublicKeyHex(),
	})
}
