package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"Poolfund/config"
	"Poolfund/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "poolctl",
		Short:         "Operator tooling for the pool service",
		SilenceUsage: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newTokenCmd(),
		newProcessCmd(),
	)
	return root
}

// loadConfig reads the environment the same way the API process does.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg)
	return cfg, nil
}
