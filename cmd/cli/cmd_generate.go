package main

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/dvloznov/climate-risk/internal/report"
	"github.com/dvloznov/climate-risk/internal/synthetic"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		n      int
		seed   uint64
		output string
		flood  bool
		fit    string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic mortgage portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Synthetic
			if cmd.Flags().Changed("n") {
				cfg.N = n
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			if cmd.Flags().Changed("flood") {
				cfg.FloodExposure = flood
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			if fit != "" {
				tbl, err := a.loadPortfolio(ctx, fit)
				if err != nil {
					return err
				}
				if err := cfg.FitPrices(tbl.Records); err != nil {
					return err
				}
				a.log.Info().Float64("price_mu", cfg.PriceMu).Float64("price_sigma", cfg.PriceSigma).Msg("Price distribution fitted")
			}

			gen, err := synthetic.NewGenerator(cfg)
			if err != nil {
				return err
			}
			recs, err := gen.Generate()
			if err != nil {
				return err
			}
			a.log.Info().Int("rows", len(recs)).Uint64("seed", cfg.Seed).Msg("Portfolio generated")

			var buf bytes.Buffer
			if err := report.WriteRecords(&buf, recs, a.cfg.ReportOptions()); err != nil {
				return err
			}
			return a.emit(ctx, cmd.OutOrStdout(), output, buf.Bytes())
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", synthetic.DefaultConfig().N, "Number of loans")
	cmd.Flags().Uint64Var(&seed, "seed", synthetic.DefaultConfig().Seed, "Random seed")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output CSV (default: stdout)")
	cmd.Flags().BoolVar(&flood, "flood", false, "Assign flood exposure")
	cmd.Flags().StringVar(&fit, "fit-prices", "", "Portfolio CSV whose price per area sets the log-normal price parameters")
	return cmd
}
