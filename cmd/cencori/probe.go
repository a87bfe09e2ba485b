package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cencori/internal/providers"
)

const probeTimeout = 15 * time.Second

type probeResult struct {
	provider  string
	connected bool
	latency   time.Duration
}

func newProbeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe [provider]...",
		Short: "Test connectivity to configured providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			router := buildRouter(cmd.Context(), cfg)
			if len(args) == 0 {
				args = router.Providers()
			}
			if len(args) == 0 {
				return fmt.Errorf("no providers configured")
			}

			results, err := probe(cmd.Context(), router, args)
			if err != nil {
				return err
			}
			if failed := printProbe(os.Stdout, results); failed > 0 {
				return fmt.Errorf("%d of %d providers unreachable", failed, len(results))
			}
			return nil
		},
	}
}

// probe tests every named provider in parallel. Results keep the order of names.
func probe(ctx context.Context, router *providers.Router, names []string) ([]probeResult, error) {
	results := make([]probeResult, len(names))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		p, err := router.GetProvider(name)
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			start := time.Now()
			ok := p.TestConnection(ctx)
			results[i] = probeResult{provider: name, connected: ok, latency: time.Since(start)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func printProbe(w io.Writer, results []probeResult) (failed int) {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	for _, r := range results {
		mark := ok("✓")
		if !r.connected {
			mark = bad("✗")
			failed++
		}
		fmt.Fprintf(w, "  %s %-15s %s\n", mark, r.provider, r.latency.Round(time.Millisecond))
	}
	return failed
}
