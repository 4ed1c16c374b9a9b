// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package keys

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	// AddressPrefix is the human readable prefix of every address.
	AddressPrefix = "LOS"

	addressVersion = 0x4A
	hashLen        = 20
	checksumLen    = 4
	payloadLen     = 1 + hashLen + checksumLen
)

var ErrInvalidAddress = errors.New("invalid address")

// Address is the textual account identifier derived from a public key.
type Address string

func (a Address) String() string {
	return string(a)
}

// Short returns an abbreviated form suitable for logs and /whoami.
func (a Address) Short() string {
	s := string(a)
	if len(s) <= 12 {
		return s
	}
	return s[:8] + "…" + s[len(s)-4:]
}

// AddressFromPublicKey derives "LOS" + Base58(version || BLAKE2b-160(pk) || checksum).
func AddressFromPublicKey(pk []byte) Address {
	h, _ := blake2b.New(hashLen, nil) // only errors for invalid sizes
	_, _ = h.Write(pk)

	payload := make([]byte, 0, payloadLen)
	payload = append(payload, addressVersion)
	payload = h.Sum(payload)
	payload = append(payload, checksum(payload)...)
	return Address(AddressPrefix + base58.Encode(payload))
}

// ParseAddress validates the prefix, encoding, version byte and checksum.
func ParseAddress(s string) (Address, error) {
	body, ok := strings.CutPrefix(s, AddressPrefix)
	if !ok || body == "" {
		return "", fmt.Errorf("%w: missing %q prefix", ErrInvalidAddress, AddressPrefix)
	}
	payload, err := base58.Decode(body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if len(payload) != payloadLen {
		return "", fmt.Errorf("%w: expected %d payload bytes but got %d", ErrInvalidAddress, payloadLen, len(payload))
	}
	if payload[0] != addressVersion {
		return "", fmt.Errorf("%w: unknown version 0x%02x", ErrInvalidAddress, payload[0])
	}
	data, sum := payload[:1+hashLen], payload[1+hashLen:]
	if !bytes.Equal(checksum(data), sum) {
		return "", fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	return Address(s), nil
}

// IsValidAddress reports whether s parses as an address.
func IsValidAddress(s string) bool {
	_, err := ParseAddress(s)
	return err == nil
}

func checksum(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:checksumLen]
}
