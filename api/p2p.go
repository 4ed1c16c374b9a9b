// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"net/http"
	"strconv"

	"github.com/luxfi/los/network"
)

// sync serves certified decisions to peers catching up. The payload is the
// bare network.SyncResponse.
func (s *service) sync(w http.ResponseWriter, r *http.Request) {
	from, err := strconv.ParseUint(r.URL.Query().Get("from"), 10, 64)
	if err != nil || from == 0 {
		from = 1
	}
	e := s.node.Consensus()
	decisions, err := e.Decisions(from, queryLimit(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, network.SyncResponse{
		Last:      e.LastDecided(),
		Decisions: decisions,
	})
}

func (s *service) p2pTx(w http.ResponseWriter, r *http.Request) {
	s.p2p(w, r, func(b []byte) error {
		return s.node.HandleTx(b)
	})
}

func (s *service) p2pConsensus(w http.ResponseWriter, r *http.Request) {
	s.p2p(w, r, func(b []byte) error {
		return s.node.HandleConsensus(r.Context(), b)
	})
}

func (s *service) p2pHeartbeat(w http.ResponseWriter, r *http.Request) {
	s.p2p(w, r, s.node.HandleHeartbeat)
}

func (s *service) p2p(w http.ResponseWriter, r *http.Request, handle func([]byte) error) {
	b, err := readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := handle(b); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, success)
}
