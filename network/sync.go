// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/los/consensus/bft"
	"github.com/luxfi/los/utils/timer"
)

const (
	etaSamples = 3
	etaAlpha   = 0.3
)

// SyncResponse is the body of GET /sync.
type SyncResponse struct {
	Last      uint64          `json:"last"`
	Decisions []*bft.Decision `json:"decisions"`
}

// Importer applies certified decisions in order.
type Importer interface {
	LastDecided() uint64
	ImportDecision(ctx context.Context, d *bft.Decision) error
}

// RunSync pulls decisions from peers every sync interval until ctx is done.
func (n *Network) RunSync(ctx context.Context, imp Importer) error {
	ticker := time.NewTicker(n.config.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := n.Sync(ctx, imp); err != nil && ctx.Err() == nil {
				n.log.Debug("sync failed", log.Err(err))
			}
		}
	}
}

// Sync imports every decision the peers have beyond the local state and
// returns how many were imported. Peers are tried in order; a peer that
// fails or serves an invalid decision is skipped.
func (n *Network) Sync(ctx context.Context, imp Importer) (int, error) {
	var (
		imported int
		errs     []error
	)
	for _, p := range n.Peers() {
		count, err := n.syncFrom(ctx, imp, p.URL)
		imported += count
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.URL, err))
		}
	}
	if imported > 0 {
		n.metrics.imported.Add(float64(imported))
		n.log.Info("synced decisions",
			log.Int("imported", imported),
			log.Uint64("lastDecided", imp.LastDecided()),
		)
	}
	return imported, errors.Join(errs...)
}

func (n *Network) syncFrom(ctx context.Context, imp Importer, peer string) (int, error) {
	var (
		imported int
		eta      = timer.NewEtaTracker(etaSamples, etaAlpha)
	)
	for {
		start := imp.LastDecided() + 1
		from := start
		url := fmt.Sprintf("%s%s?from=%d&limit=%d", peer, SyncPath, from, n.config.SyncBatch)

		reqCtx, cancel := context.WithTimeout(ctx, n.config.RequestTimeout)
		var resp SyncResponse
		err := getJSON(reqCtx, n.client, n.config.Retry, url, &resp)
		cancel()
		n.observe(peer, err)
		if err != nil {
			return imported, err
		}
		for _, d := range resp.Decisions {
			err := imp.ImportDecision(ctx, d)
			imported += int(imp.LastDecided() + 1 - from)
			from = imp.LastDecided() + 1
			if err != nil {
				return imported, err
			}
		}
		if imp.LastDecided()+1 == start || imp.LastDecided() >= resp.Last {
			return imported, nil
		}
		if left, pct := eta.AddSample(imp.LastDecided(), resp.Last, n.clock.Time()); left != nil {
			n.log.Info("catching up",
				log.String("peer", peer),
				log.Uint64("lastDecided", imp.LastDecided()),
				log.Uint64("peerLast", resp.Last),
				log.String("progress", fmt.Sprintf("%.1f%%", pct)),
				log.Duration("eta", *left),
			)
		}
	}
}
