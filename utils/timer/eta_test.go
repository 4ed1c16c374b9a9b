// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEtaTracker(t *testing.T) {
	start := time.Unix(1_000, 0)
	type sample struct {
		progress, total uint64
		at              time.Duration
		eta             *time.Duration
		percent         float64
	}
	dur := func(d time.Duration) *time.Duration { return &d }

	tests := []struct {
		name    string
		samples []sample
	}{
		{
			name: "steady rate",
			samples: []sample{
				{progress: 0, total: 100, at: 0, percent: 0},
				{progress: 10, total: 100, at: time.Second, eta: dur(9 * time.Second), percent: 10},
				{progress: 20, total: 100, at: 2 * time.Second, eta: dur(8 * time.Second), percent: 20},
			},
		},
		{
			name: "done",
			samples: []sample{
				{progress: 50, total: 100, at: 0, percent: 50},
				{progress: 100, total: 100, at: time.Second, eta: dur(0), percent: 100},
			},
		},
		{
			name: "clock went backwards",
			samples: []sample{
				{progress: 10, total: 100, at: time.Second, percent: 10},
				{progress: 20, total: 100, at: 0, percent: 20},
			},
		},
		{
			name: "no progress",
			samples: []sample{
				{progress: 10, total: 100, at: 0, percent: 10},
				{progress: 10, total: 100, at: time.Second, percent: 10},
			},
		},
		{
			name: "zero total",
			samples: []sample{
				{progress: 0, total: 0, at: 0},
				{progress: 0, total: 0, at: time.Second},
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			e := NewEtaTracker(2, 0.5)
			for _, s := range test.samples {
				eta, pct := e.AddSample(s.progress, s.total, start.Add(s.at))
				require.Equal(s.eta, eta)
				require.InDelta(s.percent, pct, 0.001)
			}
		})
	}
}

func TestEtaTrackerSmoothing(t *testing.T) {
	require := require.New(t)

	start := time.Unix(0, 0)
	e := NewEtaTracker(2, 0.5)
	e.AddSample(0, 1_000, start)
	e.AddSample(100, 1_000, start.Add(time.Second)) // 100/s
	eta, _ := e.AddSample(400, 1_000, start.Add(2*time.Second))
	// 300/s smoothed with 100/s gives 200/s for the remaining 600.
	require.NotNil(eta)
	require.Equal(3*time.Second, *eta)
}
