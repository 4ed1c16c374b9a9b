// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package server runs the HTTP listener of a node.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/luxfi/los/keys"
)

const (
	maxConcurrentStreams = 64

	// AddressHeader carries the address of the answering node.
	AddressHeader = "Los-Address"
)

type HTTPConfig struct {
	ReadTimeout       time.Duration `json:"readTimeout"`
	ReadHeaderTimeout time.Duration `json:"readHeaderTimeout"`
	WriteTimeout      time.Duration `json:"writeTimeout"`
	IdleTimeout       time.Duration `json:"idleTimeout"`
	ShutdownTimeout   time.Duration `json:"shutdownTimeout"`
	AllowedOrigins    []string      `json:"allowedOrigins"`
	// AllowedHosts restricts the Host header. Empty or "*" allows any host.
	AllowedHosts []string `json:"allowedHosts"`
}

// Server serves the API of a node.
type Server struct {
	log             log.Logger
	shutdownTimeout time.Duration
	srv             *http.Server
	listener        net.Listener
}

// New returns a server answering on listener with handler.
func New(
	log log.Logger,
	listener net.Listener,
	handler http.Handler,
	address keys.Address,
	registerer prometheus.Registerer,
	config HTTPConfig,
) (*Server, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Handler: h2c.NewHandler(
			wrapHandler(m.wrapHandler(handler), address, config.AllowedOrigins, config.AllowedHosts),
			&http2.Server{
				MaxConcurrentStreams: maxConcurrentStreams,
			}),
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	log.Info("API created with allowed origins: " + strings.Join(config.AllowedOrigins, ","))

	return &Server{
		log:             log,
		shutdownTimeout: config.ShutdownTimeout,
		srv:             httpServer,
		listener:        listener,
	}, nil
}

// Dispatch serves until Shutdown is called.
func (s *Server) Dispatch() error {
	err := s.srv.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	err := s.srv.Shutdown(ctx)
	cancel()

	// If shutdown times out, make sure the server is still shutdown.
	_ = s.srv.Close()
	return err
}

func wrapHandler(
	handler http.Handler,
	address keys.Address,
	allowedOrigins []string,
	allowedHosts []string,
) http.Handler {
	h := filterInvalidHosts(handler, allowedHosts)
	h = cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
	}).Handler(h)
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			// Attach this node's address as a header
			w.Header().Set(AddressHeader, address.String())
			h.ServeHTTP(w, r)
		},
	)
}

// filterInvalidHosts rejects requests whose Host header is not allowed. It
// guards nodes bound to localhost against DNS rebinding.
func filterInvalidHosts(handler http.Handler, allowedHosts []string) http.Handler {
	allowed := make(map[string]struct{}, len(allowedHosts))
	for _, host := range allowedHosts {
		if host == "*" {
			return handler
		}
		allowed[strings.ToLower(host)] = struct{}{}
	}
	if len(allowed) == 0 {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		// Requests without a Host header or to an IP address are not the
		// target of DNS rebinding.
		if host == "" || net.ParseIP(host) != nil {
			handler.ServeHTTP(w, r)
			return
		}
		if _, ok := allowed[strings.ToLower(host)]; !ok {
			http.Error(w, "invalid host specified", http.StatusForbidden)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
