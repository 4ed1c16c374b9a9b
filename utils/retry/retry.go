// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package retry runs fallible network calls a bounded number of times with
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermanent marks an error that must not be retried.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Config bounds the retries of one call.
type Config struct {
	Attempts int
	Wait     time.Duration
	MaxWait  time.Duration
}

var DefaultConfig = Config{
	Attempts: 3,
	Wait:     200 * time.Millisecond,
	MaxWait:  2 * time.Second,
}

// Do calls fn until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done.
func Do(ctx context.Context, c Config, fn func(context.Context) error) error {
	wait := c.Wait
	var lastErr error
	for attempt := 0; attempt < max(c.Attempts, 1); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil || errors.Is(lastErr, ErrPermanent) {
			return lastErr
		}
		if attempt == c.Attempts-1 {
			break
		}
		select {
		case <-time.After(wait):
			wait = min(wait*2, max(c.MaxWait, c.Wait))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", max(c.Attempts, 1), lastErr)
}
