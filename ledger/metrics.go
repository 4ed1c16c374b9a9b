// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "los"

type metrics struct {
	accounts    prometheus.Gauge
	blocks      prometheus.Gauge
	circulating prometheus.Gauge
	remaining   prometheus.Gauge
	transfers   prometheus.Counter
	mints       *prometheus.CounterVec
	halted      prometheus.Gauge
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts_total",
			Help:      "Number of accounts in the ledger",
		}),
		blocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blocks_total",
			Help:      "Number of blocks across all account chains",
		}),
		circulating: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circulating_supply_cil",
			Help:      "Circulating supply in CIL",
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remaining_supply_cil",
			Help:      "Remaining mintable supply in CIL",
		}),
		transfers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Number of applied transfers",
		}),
		mints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mints_total",
			Help:      "Number of applied mints by reason",
		}, []string{"reason"}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_halted",
			Help:      "1 if the ledger write path has been halted",
		}),
	}
	err := errors.Join(
		registerer.Register(m.accounts),
		registerer.Register(m.blocks),
		registerer.Register(m.circulating),
		registerer.Register(m.remaining),
		registerer.Register(m.transfers),
		registerer.Register(m.mints),
		registerer.Register(m.halted),
	)
	return m, err
}
