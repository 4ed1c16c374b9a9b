// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runcmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/los/api"
	"github.com/luxfi/los/api/server"
	"github.com/luxfi/los/node"
	"github.com/luxfi/los/utils/profiler"
	"github.com/luxfi/los/utils/timer/mockable"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Runs a LOS validator node",
		Args:  cobra.NoArgs,
		RunE:  runFunc,
	}
	AddFlags(c.Flags())
	return c
}

func runFunc(c *cobra.Command, _ []string) error {
	conf, err := ParseFlags(c.Flags())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(conf.Node.DataDir, 0o750); err != nil {
		return fmt.Errorf("failed creating data directory: %w", err)
	}

	logFactory := log.NewFactoryWithConfig(log.Config{
		DisplayLevel: conf.LogLevel,
		LogLevel:     conf.LogLevel,
		RotatingWriterConfig: log.RotatingWriterConfig{
			Directory: filepath.Join(conf.Node.DataDir, "logs"),
		},
	})
	defer logFactory.Close()
	logger, err := logFactory.Make("los")
	if err != nil {
		return fmt.Errorf("failed setting up logging: %w", err)
	}
	if conf.EphemeralKey {
		logger.Warn("no key configured, running with a generated key",
			log.Stringer("address", conf.Keys.Address),
		)
	}

	db, err := node.OpenDB(conf.Node)
	if err != nil {
		return err
	}

	registry, gatherer, err := newRegistry()
	if err != nil {
		return errors.Join(err, db.Close())
	}
	n, err := node.New(conf.Node, conf.Genesis, conf.Keys, db, &mockable.Clock{}, logger, registry)
	if err != nil {
		return errors.Join(err, db.Close())
	}

	listener, err := net.Listen("tcp", conf.Node.HTTPAddr)
	if err != nil {
		return errors.Join(err, n.Close())
	}
	srv, err := server.New(logger, listener, api.NewHandler(n, logger, gatherer), n.Address(), registry, conf.Node.HTTP)
	if err != nil {
		return errors.Join(err, listener.Close(), n.Close())
	}

	logger.Info("starting node",
		log.String("network", conf.Node.NetworkName),
		log.Stringer("address", n.Address()),
		log.String("httpAddr", listener.Addr().String()),
		log.Int("peers", len(conf.Node.Network.Peers)),
	)

	g, ctx := errgroup.WithContext(c.Context())
	g.Go(func() error {
		return n.Run(ctx)
	})
	g.Go(srv.Dispatch)
	if conf.Node.Profiler.Enabled {
		g.Go(func() error {
			return profiler.Run(ctx, conf.Node.Profiler)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown()
	})
	err = g.Wait()
	logger.Info("node stopped")
	return errors.Join(err, n.Close())
}

// newRegistry returns the registry node components register with and the
// gatherer served on /metrics, which also carries the runtime metrics of the
// process under the same los_ namespace.
func newRegistry() (*prometheus.Registry, prometheus.Gatherer, error) {
	registry := prometheus.NewRegistry()
	runtime := prometheus.NewRegistry()
	err := errors.Join(
		prometheus.WrapRegistererWithPrefix("los_", runtime).Register(collectors.NewGoCollector()),
		prometheus.WrapRegistererWithPrefix("los_", runtime).Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})),
	)
	return registry, prometheus.Gatherers{registry, runtime}, err
}
