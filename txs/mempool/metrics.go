// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	pending  prometheus.Gauge
	accepted prometheus.Counter
	rejected prometheus.Counter
	expired  prometheus.Counter
}

// NewMetrics registers the mempool metrics under the given namespace.
func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_pending_txs",
			Help:      "Number of transactions in the mempool",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mempool_accepted_total",
			Help:      "Number of transactions admitted to the mempool",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mempool_rejected_total",
			Help:      "Number of transactions rejected by the mempool",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mempool_expired_total",
			Help:      "Number of transactions dropped after their TTL",
		}),
	}
	err := errors.Join(
		registerer.Register(m.pending),
		registerer.Register(m.accepted),
		registerer.Register(m.rejected),
		registerer.Register(m.expired),
	)
	return m, err
}
