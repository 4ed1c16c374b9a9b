// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bft

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	decided     prometheus.Counter
	txs         prometheus.Counter
	viewChanges prometheus.Counter
	evidence    prometheus.Counter
	view        prometheus.Gauge
	sequence    prometheus.Gauge
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		decided: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "los",
			Subsystem: "consensus",
			Name:      "decisions_total",
			Help:      "Number of finalized decisions",
		}),
		txs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "los",
			Subsystem: "consensus",
			Name:      "txs_total",
			Help:      "Number of transactions in finalized decisions",
		}),
		viewChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "los",
			Subsystem: "consensus",
			Name:      "view_changes_total",
			Help:      "Number of completed view changes",
		}),
		evidence: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "los",
			Subsystem: "consensus",
			Name:      "equivocations_total",
			Help:      "Number of detected equivocations",
		}),
		view: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "los",
			Subsystem: "consensus",
			Name:      "view",
			Help:      "Current view",
		}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "los",
			Subsystem: "consensus",
			Name:      "last_decided",
			Help:      "Sequence of the last finalized decision",
		}),
	}
	err := errors.Join(
		registerer.Register(m.decided),
		registerer.Register(m.txs),
		registerer.Register(m.viewChanges),
		registerer.Register(m.evidence),
		registerer.Register(m.view),
		registerer.Register(m.sequence),
	)
	return m, err
}
