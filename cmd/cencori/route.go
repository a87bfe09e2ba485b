package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"cencori/config"
	"cencori/internal/app"
	"cencori/internal/failover"
	"cencori/internal/providers"
)

func newRouteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "route <model>...",
		Short: "Show where models route and how they fail over",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			router := buildRouter(cmd.Context(), cfg)
			return renderRoutes(os.Stdout, router, cfg.Failover, args)
		},
	}
}

// buildRouter constructs the configured providers without opening storage.
// A configuration with no usable providers yields an empty router.
func buildRouter(ctx context.Context, cfg *config.Config) *providers.Router {
	result, err := providers.Init(ctx, cfg, app.NewFactory())
	if err != nil {
		return providers.NewRouterBuilder().Build()
	}
	return result.Router
}

func renderRoutes(w io.Writer, router *providers.Router, fo config.FailoverConfig, models []string) error {
	executor := failover.NewExecutor(router, failover.Config{
		Enabled:     fo.Enabled,
		Fallback:    fo.Fallback,
		MaxAttempts: fo.MaxAttempts,
		Chains:      fo.Chains,
	}, nil)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"MODEL", "PROVIDER", "UPSTREAM MODEL", "REGISTERED", "FALLBACKS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")

	for _, model := range models {
		plan, err := executor.Plan(model)
		if err != nil {
			table.Append([]string{model, providers.DetectProvider(model), "-", "no", "-"})
			continue
		}
		fallbacks := make([]string, 0, len(plan)-1)
		for _, a := range plan[1:] {
			fallbacks = append(fallbacks, a.Provider+"/"+a.Model)
		}
		chain := strings.Join(fallbacks, ", ")
		if chain == "" {
			chain = "-"
		}
		table.Append([]string{model, plan[0].Provider, plan[0].Model, "yes", chain})
	}
	table.Render()
	_, err := fmt.Fprintf(w, "\n%d providers registered\n", router.Len())
	return err
}
