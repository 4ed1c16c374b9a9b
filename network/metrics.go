// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	sent     prometheus.Counter
	failed   prometheus.Counter
	dropped  prometheus.Counter
	skipped  prometheus.Counter
	imported prometheus.Counter
	peers    prometheus.Gauge
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "los",
			Subsystem: "network",
			Name:      "gossip_sent_total",
			Help:      "Number of messages delivered to peers",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "los",
			Subsystem: "network",
			Name:      "gossip_failed_total",
			Help:      "Number of deliveries that failed after retries",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "los",
			Subsystem: "network",
			Name:      "gossip_dropped_total",
			Help:      "Number of messages dropped because the queue of a peer was full",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "los",
			Subsystem: "network",
			Name:      "gossip_skipped_total",
			Help:      "Number of messages not sent to a peer backing off after a failure",
		}),
		imported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "los",
			Subsystem: "network",
			Name:      "sync_imported_total",
			Help:      "Number of decisions imported from peers",
		}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "los",
			Subsystem: "network",
			Name:      "peers",
			Help:      "Number of known peers",
		}),
	}
	err := errors.Join(
		registerer.Register(m.sent),
		registerer.Register(m.failed),
		registerer.Register(m.dropped),
		registerer.Register(m.skipped),
		registerer.Register(m.imported),
		registerer.Register(m.peers),
	)
	return m, err
}
