package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cencori/internal/app"
	"cencori/internal/core"
)

func newPricingCmd(opts *rootOptions) *cobra.Command {
	var promptTokens, completionTokens int
	cmd := &cobra.Command{
		Use:   "pricing <provider> <model>",
		Short: "Resolve the price of a model and optionally quote a request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			p, err := app.NewPricing(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			mp, err := p.Resolver.Resolve(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printPricing(os.Stdout, args[0], args[1], mp, core.NewTokenUsage(promptTokens, completionTokens))
		},
	}
	cmd.Flags().IntVar(&promptTokens, "prompt-tokens", 0, "prompt tokens to quote")
	cmd.Flags().IntVar(&completionTokens, "completion-tokens", 0, "completion tokens to quote")
	return cmd
}

func printPricing(w io.Writer, provider, model string, mp core.ModelPricing, usage core.TokenUsage) error {
	fmt.Fprintf(w, "  %-15s: %s\n", "Model", provider+"/"+model)
	fmt.Fprintf(w, "  %-15s: $%.6f\n", "Input / 1K", mp.InputPer1KTokens)
	fmt.Fprintf(w, "  %-15s: $%.6f\n", "Output / 1K", mp.OutputPer1KTokens)
	fmt.Fprintf(w, "  %-15s: %.2f%%\n", "Markup", mp.CencoriMarkupPercentage)
	if usage.TotalTokens == 0 {
		return nil
	}
	cost := core.Bill(usage, mp)
	fmt.Fprintf(w, "  %-15s: $%.6f\n", "Provider cost", cost.ProviderCostUSD)
	_, err := fmt.Fprintf(w, "  %-15s: $%.6f\n", "Charge", cost.CencoriChargeUSD)
	return err
}
