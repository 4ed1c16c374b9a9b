// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	fastConfig   = Config{Attempts: 3, Wait: time.Millisecond, MaxWait: time.Millisecond}
)

func TestDoSucceedsAfterRetries(t *testing.T) {
	require := require.New(t)

	calls := 0
	err := Do(context.Background(), fastConfig, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(err)
	require.Equal(3, calls)
}

func TestDoBounded(t *testing.T) {
	require := require.New(t)

	calls := 0
	err := Do(context.Background(), fastConfig, func(context.Context) error {
		calls++
		return errTransient
	})
	require.ErrorIs(err, errTransient)
	require.Equal(3, calls)
}

func TestDoPermanent(t *testing.T) {
	require := require.New(t)

	calls := 0
	err := Do(context.Background(), fastConfig, func(context.Context) error {
		calls++
		return Permanent(errTransient)
	})
	require.ErrorIs(err, ErrPermanent)
	require.ErrorIs(err, errTransient)
	require.Equal(1, calls)
}

func TestDoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
