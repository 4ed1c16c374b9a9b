// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/luxfi/los/utils/retry"
)

const maxResponseBytes = 32 << 20

var (
	ErrNoContextDialer = errors.New("proxy dialer does not support contexts")
	ErrPeerStatus      = errors.New("peer returned error status")
)

// NewClient returns an HTTP client with the given per request timeout. When
// socksAddr is set, every connection is dialed through that SOCKS5 proxy,
// which lets onion peers be reached through a local Tor daemon.
func NewClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if socksAddr != "" {
		dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, ErrNoContextDialer
		}
		transport.Proxy = nil
		transport.DialContext = cd.DialContext
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// post sends body to url, retrying transient failures.
func post(ctx context.Context, client *http.Client, c retry.Config, url string, body []byte) error {
	return retry.Do(ctx, c, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return do(client, req, nil)
	})
}

// getJSON decodes the response of url into out, retrying transient failures.
func getJSON(ctx context.Context, client *http.Client, c retry.Config, url string, out any) error {
	return retry.Do(ctx, c, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		return do(client, req, out)
	})
}

func do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrPeerStatus, resp.Status)
	case resp.StatusCode >= 400:
		// The peer understood and refused; repeating will not help.
		return retry.Permanent(fmt.Errorf("%w: %s: %s", ErrPeerStatus, resp.Status, bytes.TrimSpace(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode %s: %w", req.URL.Path, err))
	}
	return nil
}
