// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ratelimit throttles API clients with token buckets keyed by client
// address, globally and per endpoint.
package ratelimit

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/luxfi/los/utils/timer/mockable"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Limit allows Requests per Interval on average and up to Burst at once.
type Limit struct {
	Requests int           `json:"requests"`
	Interval time.Duration `json:"interval"`
	Burst    int           `json:"burst"`
}

func (l Limit) enabled() bool {
	return l.Requests > 0 && l.Interval > 0
}

type Config struct {
	Enabled bool `json:"enabled"`
	// PerClient applies to every request of a client.
	PerClient Limit `json:"perClient"`
	// Endpoints are limited per client on top of PerClient.
	Endpoints map[string]Limit `json:"endpoints"`
	// Exempt lists path prefixes that are never limited.
	Exempt []string `json:"exempt"`
	// Buckets of clients idle for IdleTimeout are dropped.
	IdleTimeout time.Duration `json:"idleTimeout"`
}

// DefaultConfig allows 100 requests per second with bursts of 200 per
// client, 10 transfers and 1 burn per minute.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		PerClient: Limit{Requests: 100, Interval: time.Second, Burst: 200},
		Endpoints: map[string]Limit{
			"/send": {Requests: 10, Interval: time.Minute, Burst: 10},
			"/burn": {Requests: 1, Interval: time.Minute, Burst: 1},
		},
		Exempt:      []string{"/p2p/", "/sync", "/health", "/metrics"},
		IdleTimeout: 10 * time.Minute,
	}
}

type key struct {
	client string
	path   string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is safe for concurrent use.
type Limiter struct {
	config Config
	clock  *mockable.Clock

	lock      sync.Mutex
	buckets   map[key]*bucket
	lastSweep time.Time
}

func New(config Config, clock *mockable.Clock) *Limiter {
	return &Limiter{
		config:    config,
		clock:     clock,
		buckets:   make(map[key]*bucket),
		lastSweep: clock.Time(),
	}
}

// Allow reports whether client may call path now. A refused call consumes
// nothing and the returned duration is the wait until it would be allowed.
func (l *Limiter) Allow(client, path string) (time.Duration, bool) {
	if !l.config.Enabled || l.exempt(path) {
		return 0, true
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.clock.Time()
	l.sweep(now)

	var reservations []*rate.Reservation
	take := func(k key, limit Limit) (time.Duration, bool) {
		if !limit.enabled() {
			return 0, true
		}
		r := l.bucket(k, limit, now).ReserveN(now, 1)
		if !r.OK() {
			return limit.Interval, false
		}
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			return delay, false
		}
		reservations = append(reservations, r)
		return 0, true
	}

	if wait, ok := take(key{client: client}, l.config.PerClient); !ok {
		return wait, false
	}
	if limit, ok := l.config.Endpoints[path]; ok {
		if wait, ok := take(key{client: client, path: path}, limit); !ok {
			for _, r := range reservations {
				r.CancelAt(now)
			}
			return wait, false
		}
	}
	return 0, true
}

func (l *Limiter) exempt(path string) bool {
	for _, prefix := range l.config.Exempt {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (l *Limiter) bucket(k key, limit Limit, now time.Time) *rate.Limiter {
	b, ok := l.buckets[k]
	if !ok {
		every := limit.Interval / time.Duration(limit.Requests)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), max(limit.Burst, 1))}
		l.buckets[k] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (l *Limiter) sweep(now time.Time) {
	if l.config.IdleTimeout <= 0 || now.Sub(l.lastSweep) < l.config.IdleTimeout {
		return
	}
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.config.IdleTimeout {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.buckets)
}
