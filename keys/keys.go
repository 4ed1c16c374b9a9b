// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package keys implements validator and wallet identities: ML-DSA-87
// keypairs, BIP39 recovery phrases and LOS addresses.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"github.com/luxfi/go-bip39"
	"golang.org/x/crypto/sha3"
)

const (
	mnemonicEntropyBits = 256
	mnemonicWords       = 24

	keygenDomain = "LOS-KEYGEN-v1"
)

var (
	ErrInvalidKeyFormat = errors.New("invalid key format")
	ErrInvalidMnemonic  = errors.New("invalid mnemonic")
	ErrInvalidSignature = errors.New("invalid signature")

	scheme = mldsa87.Scheme()

	// PublicKeySize is the encoded size of a public key (2592 bytes).
	PublicKeySize = scheme.PublicKeySize()
	// SecretKeySize is the encoded size of a secret key.
	SecretKeySize = scheme.PrivateKeySize()
	// SignatureSize is the size of a signature.
	SignatureSize = scheme.SignatureSize()
)

// KeyPair is an ML-DSA-87 keypair together with its address. Mnemonic is
// only set on freshly generated keys.
type KeyPair struct {
	Address   Address
	PublicKey []byte
	SecretKey []byte
	Mnemonic  string

	sk sign.PrivateKey
}

// Generate creates a fresh keypair backed by a new 24 word recovery phrase.
func Generate() (*KeyPair, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to read entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("failed to build mnemonic: %w", err)
	}
	kp, err := FromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	kp.Mnemonic = mnemonic
	return kp, nil
}

// FromMnemonic deterministically derives the keypair for a recovery phrase.
// The returned keypair does not carry the phrase.
func FromMnemonic(phrase string) (*KeyPair, error) {
	phrase = strings.Join(strings.Fields(phrase), " ")
	if n := len(strings.Fields(phrase)); n != mnemonicWords {
		return nil, fmt.Errorf("%w: expected %d words but got %d", ErrInvalidMnemonic, mnemonicWords, n)
	}
	if !bip39.IsMnemonicValid(phrase) {
		return nil, fmt.Errorf("%w: unknown word or bad checksum", ErrInvalidMnemonic)
	}

	h := sha3.New256()
	_, _ = h.Write([]byte(keygenDomain))
	_, _ = h.Write(bip39.NewSeed(phrase, ""))
	pk, sk := scheme.DeriveKey(h.Sum(nil))
	return newKeyPair(pk, sk)
}

// FromSecretKeyHex imports an encoded secret key.
func FromSecretKeyHex(s string) (*KeyPair, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	if len(b) != SecretKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes but got %d", ErrInvalidKeyFormat, SecretKeySize, len(b))
	}
	sk, err := scheme.UnmarshalBinaryPrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	pk, ok := sk.Public().(sign.PublicKey)
	if !ok {
		return nil, ErrInvalidKeyFormat
	}
	return newKeyPair(pk, sk)
}

func newKeyPair(pk sign.PublicKey, sk sign.PrivateKey) (*KeyPair, error) {
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	return &KeyPair{
		Address:   AddressFromPublicKey(pkBytes),
		PublicKey: pkBytes,
		SecretKey: skBytes,
		sk:        sk,
	}, nil
}

// Sign signs msg with the keypair's secret key.
func (k *KeyPair) Sign(msg []byte) []byte {
	return scheme.Sign(k.sk, msg, nil)
}

// PublicKeyHex returns the hex encoded public key.
func (k *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(k.PublicKey)
}

// SecretKeyHex returns the hex encoded secret key.
func (k *KeyPair) SecretKeyHex() string {
	return hex.EncodeToString(k.SecretKey)
}

// Sign signs msg with an encoded secret key.
func Sign(secretKey, msg []byte) ([]byte, error) {
	sk, err := scheme.UnmarshalBinaryPrivateKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	return scheme.Sign(sk, msg, nil), nil
}

// Verify reports whether sig is a valid signature of msg under the encoded
// public key. Malformed keys never verify.
func Verify(publicKey, msg, sig []byte) bool {
	if len(publicKey) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return false
	}
	return scheme.Verify(pk, msg, sig, nil)
}

// ParsePublicKeyHex decodes and validates a hex encoded public key.
func ParsePublicKeyHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d public key bytes but got %d", ErrInvalidKeyFormat, PublicKeySize, len(b))
	}
	if _, err := scheme.UnmarshalBinaryPublicKey(b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	return b, nil
}

// ParseSignatureHex decodes a hex encoded signature.
func ParseSignatureHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(b) != SignatureSize {
		return nil, ErrInvalidSignature
	}
	return b, nil
}

// VerifyAddressSignature checks that publicKey hashes to addr and signs msg.
func VerifyAddressSignature(addr Address, publicKey, msg, sig []byte) error {
	if AddressFromPublicKey(publicKey) != addr {
		return fmt.Errorf("%w: public key does not match %s", ErrInvalidSignature, addr)
	}
	if !Verify(publicKey, msg, sig) {
		return ErrInvalidSignature
	}
	return nil
}
