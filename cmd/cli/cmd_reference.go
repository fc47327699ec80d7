package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dvloznov/climate-risk/internal/portfolio"
	"github.com/dvloznov/climate-risk/internal/report"
)

func newClassifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify LTV",
		Short: "Print the risk weight for a loan-to-value ratio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.cfg.RiskWeights()
			if err != nil {
				return err
			}
			ltv := portfolio.ParseLocaleFloat(args[0])
			weight, err := table.Classify(ltv)
			if err != nil {
				return fmt.Errorf("classify %q: %w", args[0], err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(weight, 'f', -1, 64))
			return err
		},
	}
}

func newPricesCmd(a *app) *cobra.Command {
	var scenarios string
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Print the end-energy price path of every scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if scenarios != "" {
				a.cfg.Transition.ScenariosFile = scenarios
			}
			cat, err := a.cfg.Catalog()
			if err != nil {
				return err
			}
			series := make([]report.PriceSeries, 0, len(cat.Scenarios))
			for _, s := range cat.Scenarios {
				series = append(series, report.PriceSeries{Name: s.Name, Prices: s.Prices})
			}
			return report.WritePriceTable(cmd.OutOrStdout(), cat.Years, series, report.Options{})
		},
	}
	cmd.Flags().StringVarP(&scenarios, "scenarios", "s", "", "Scenario catalog YAML (default: built-in)")
	return cmd
}
