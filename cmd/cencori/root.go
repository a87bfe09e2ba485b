package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cencori/config"
	"cencori/internal/logging"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "cencori",
		Short:         "AI provider routing layer",
		Long:          `Routes chat completions across AI providers with failover, pricing and request logging.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CENCORI_CONFIG"),
		"path to config.yaml (env CENCORI_CONFIG)")

	cmd.AddCommand(
		newServeCmd(opts),
		newRouteCmd(opts),
		newProbeCmd(opts),
		newPricingCmd(opts),
	)
	return cmd
}

// load reads the configuration and installs the process logger.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}
