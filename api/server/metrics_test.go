// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistrationFailure(t *testing.T) {
	reg := prometheus.NewRegistry()

	metrics1, err := newMetrics(reg)
	require.NoError(t, err)
	require.NotNil(t, metrics1)

	// Second registration should fail due to duplicate metrics
	metrics2, err := newMetrics(reg)
	require.Error(t, err)
	require.Nil(t, metrics2)
}

func TestMetricsWrapHandler(t *testing.T) {
	require := require.New(t)

	m, err := newMetrics(prometheus.NewRegistry())
	require.NoError(err)

	h := m.wrapHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/health"},
		{http.MethodPost, "/send"},
		{http.MethodGet, "/missing"},
	}
	for _, test := range tests {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(test.method, test.path, nil))
	}

	require.InDelta(2, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "200")), 0)
	require.InDelta(1, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "200")), 0)
	require.InDelta(1, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "404")), 0)
	require.InDelta(0, testutil.ToFloat64(m.inflight), 0)
	require.Equal(3, testutil.CollectAndCount(m.duration))
}
