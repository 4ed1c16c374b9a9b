// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package timer

import "time"

// EtaTracker estimates how long a monotonically increasing progress counter
// needs to reach its target. The rate is an exponential moving average over
// the observed samples.
type EtaTracker struct {
	minSamples int
	// alpha is the weight of the newest rate, in (0, 1].
	alpha float64

	samples      int
	rate         float64 // progress per second
	lastProgress uint64
	lastTime     time.Time
}

func NewEtaTracker(minSamples int, alpha float64) *EtaTracker {
	return &EtaTracker{
		minSamples: max(minSamples, 2),
		alpha:      alpha,
	}
}

// AddSample records progress towards total at t. It returns the estimated
// time left and the completed percentage, or a nil estimate while fewer than
// the minimum number of samples have been observed.
func (e *EtaTracker) AddSample(progress, total uint64, t time.Time) (*time.Duration, float64) {
	if total == 0 {
		return nil, 0
	}
	if e.samples == 0 {
		e.samples = 1
		e.lastProgress = progress
		e.lastTime = t
		return nil, percent(progress, total)
	}
	if !t.After(e.lastTime) || progress < e.lastProgress {
		return nil, percent(progress, total)
	}

	r := float64(progress-e.lastProgress) / t.Sub(e.lastTime).Seconds()
	if e.rate == 0 {
		e.rate = r
	} else {
		e.rate = e.alpha*r + (1-e.alpha)*e.rate
	}
	e.samples++
	e.lastProgress = progress
	e.lastTime = t

	if progress >= total {
		var done time.Duration
		return &done, 100
	}
	if e.samples < e.minSamples || e.rate <= 0 {
		return nil, percent(progress, total)
	}
	eta := time.Duration(float64(total-progress) / e.rate * float64(time.Second)).Round(time.Second)
	return &eta, percent(progress, total)
}

func percent(progress, total uint64) float64 {
	return min(100, float64(progress)/float64(total)*100)
}
