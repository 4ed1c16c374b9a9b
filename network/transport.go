// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"

	"github.com/luxfi/los/consensus/bft"
)

var _ bft.Transport = (*Transport)(nil)

// Transport gossips consensus messages to the peers of a Network.
type Transport struct {
	Network *Network
}

func (t *Transport) Broadcast(_ context.Context, msg *bft.Message) {
	t.Network.Gossip(ConsensusPath, msg.Bytes())
}
