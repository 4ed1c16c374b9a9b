// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"hash/fnv"
	"slices"
	"sync"

	"github.com/luxfi/los/keys"
)

const numStripes = 256

// accountLocks serializes writers per account chain while letting unrelated
// accounts mutate in parallel. Multi account operations acquire stripes in
// ascending order.
type accountLocks struct {
	stripes [numStripes]sync.Mutex
}

func stripe(addr keys.Address) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(addr))
	return int(h.Sum32() % numStripes)
}

// lock acquires the stripes of every address and returns the release func.
func (l *accountLocks) lock(addrs ...keys.Address) func() {
	idx := make([]int, 0, len(addrs))
	for _, addr := range addrs {
		if addr != "" {
			idx = append(idx, stripe(addr))
		}
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)
	for _, i := range idx {
		l.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.stripes[idx[j]].Unlock()
		}
	}
}
