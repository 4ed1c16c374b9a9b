// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/los/utils/timer/mockable"
)

func newLimiter(config Config) (*Limiter, *mockable.Clock) {
	clk := &mockable.Clock{}
	clk.Set(time.Unix(1_700_000_000, 0))
	return New(config, clk), clk
}

func TestPerClientBurst(t *testing.T) {
	require := require.New(t)

	l, clk := newLimiter(DefaultConfig())
	for i := 0; i < DefaultConfig().PerClient.Burst; i++ {
		_, ok := l.Allow("10.0.0.1", "/supply")
		require.True(ok, "request %d", i)
	}
	wait, ok := l.Allow("10.0.0.1", "/supply")
	require.False(ok)
	require.InDelta(float64(10*time.Millisecond), float64(wait), float64(time.Microsecond))

	// Other clients have their own bucket.
	_, ok = l.Allow("10.0.0.2", "/supply")
	require.True(ok)

	clk.Advance(11 * time.Millisecond)
	_, ok = l.Allow("10.0.0.1", "/supply")
	require.True(ok)
}

func TestEndpointLimits(t *testing.T) {
	tests := []struct {
		path    string
		allowed int
		wait    time.Duration
	}{
		{path: "/send", allowed: 10, wait: 6 * time.Second},
		{path: "/burn", allowed: 1, wait: time.Minute},
	}
	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			require := require.New(t)

			l, clk := newLimiter(DefaultConfig())
			for i := 0; i < test.allowed; i++ {
				_, ok := l.Allow("10.0.0.1", test.path)
				require.True(ok)
			}
			wait, ok := l.Allow("10.0.0.1", test.path)
			require.False(ok)
			require.InDelta(float64(test.wait), float64(wait), float64(time.Millisecond))

			// A refused endpoint call does not spend the client budget.
			for i := 0; i < DefaultConfig().PerClient.Burst-test.allowed; i++ {
				_, ok := l.Allow("10.0.0.1", "/supply")
				require.True(ok)
			}
			_, ok = l.Allow("10.0.0.1", "/supply")
			require.False(ok)

			clk.Advance(test.wait + time.Millisecond)
			_, ok = l.Allow("10.0.0.1", test.path)
			require.True(ok)
		})
	}
}

func TestExemptAndDisabled(t *testing.T) {
	require := require.New(t)

	config := DefaultConfig()
	config.PerClient = Limit{Requests: 1, Interval: time.Hour, Burst: 1}
	l, _ := newLimiter(config)
	for i := 0; i < 5; i++ {
		_, ok := l.Allow("10.0.0.1", "/p2p/heartbeat")
		require.True(ok)
	}
	require.Zero(l.Len())

	config.Enabled = false
	l, _ = newLimiter(config)
	for i := 0; i < 5; i++ {
		_, ok := l.Allow("10.0.0.1", "/send")
		require.True(ok)
	}
}

func TestIdleBucketsAreDropped(t *testing.T) {
	require := require.New(t)

	l, clk := newLimiter(DefaultConfig())
	_, _ = l.Allow("10.0.0.1", "/send")
	_, _ = l.Allow("10.0.0.2", "/supply")
	require.Equal(3, l.Len())

	clk.Advance(DefaultConfig().IdleTimeout)
	_, _ = l.Allow("10.0.0.3", "/supply")
	require.Equal(1, l.Len())
}
