// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luxfi/los/cmd/losd/genesiscmd"
	"github.com/luxfi/los/cmd/losd/keycmd"
	"github.com/luxfi/los/cmd/losd/runcmd"
)

func main() {
	cmd := &cobra.Command{
		Use:          "losd",
		Short:        "LOS validator node",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		runcmd.Command(),
		keycmd.Command(),
		genesiscmd.Command(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "command failed %v\n", err)
		os.Exit(1)
	}
}
