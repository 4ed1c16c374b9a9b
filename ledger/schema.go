// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"encoding/binary"
	"strings"

	"github.com/luxfi/ids"

	"github.com/luxfi/los/keys"
)

var (
	prefixAccount = []byte("a/")
	prefixBlock   = []byte("b/")
	prefixChain   = []byte("c/")
	prefixSeq     = []byte("s/")
	prefixPair    = []byte("p/")
	prefixTx      = []byte("t/")
	prefixBurn    = []byte("x/")

	keySupply = []byte("m/supply")
)

func accountKey(addr keys.Address) []byte {
	return append(append([]byte{}, prefixAccount...), addr...)
}

func blockKey(hash ids.ID) []byte {
	return append(append([]byte{}, prefixBlock...), hash[:]...)
}

func chainPrefix(addr keys.Address) []byte {
	k := append(append([]byte{}, prefixChain...), addr...)
	return append(k, '/')
}

func chainKey(addr keys.Address, height uint64) []byte {
	return binary.BigEndian.AppendUint64(chainPrefix(addr), height)
}

func seqKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixSeq...), seq)
}

func pairKey(send ids.ID) []byte {
	return append(append([]byte{}, prefixPair...), send[:]...)
}

func txKey(txID ids.ID) []byte {
	return append(append([]byte{}, prefixTx...), txID[:]...)
}

func burnKey(coin, txid string) []byte {
	k := append(append([]byte{}, prefixBurn...), strings.ToLower(coin)...)
	k = append(k, '/')
	return append(k, strings.ToLower(strings.TrimPrefix(txid, "0x"))...)
}
