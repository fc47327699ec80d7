package main

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dvloznov/climate-risk/internal/physical"
	"github.com/dvloznov/climate-risk/internal/portfolio"
	"github.com/dvloznov/climate-risk/internal/report"
	"github.com/dvloznov/climate-risk/internal/transition"
)

func newPhysicalCmd(a *app) *cobra.Command {
	var (
		input, output string
		horizon       float64
	)
	cmd := &cobra.Command{
		Use:   "physical",
		Short: "Recalculate risk weights after flood damage",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("horizon") {
				a.cfg.Physical.Horizon = horizon
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			tbl, err := a.loadPortfolio(ctx, input)
			if err != nil {
				return err
			}
			if err := tbl.Require(physical.RequiredFields...); err != nil {
				return err
			}
			model, err := a.cfg.PhysicalModel()
			if err != nil {
				return err
			}

			results := model.Run(ctx, tbl.Complete(physical.RequiredFields...))
			opts := a.cfg.ReportOptions()

			var buf bytes.Buffer
			if err := report.WritePhysical(&buf, tbl, results, opts); err != nil {
				return err
			}
			if err := a.emit(ctx, cmd.OutOrStdout(), output, buf.Bytes()); err != nil {
				return err
			}
			if output == "" {
				return nil
			}
			return report.WritePhysicalSummary(cmd.OutOrStdout(), physical.Summarize(results), opts)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Portfolio CSV (local path or gs:// URI)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Result CSV (default: stdout)")
	cmd.Flags().Float64Var(&horizon, "horizon", physical.DefaultHorizon, "Remaining loan term in years")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newTransitionCmd(a *app) *cobra.Command {
	var input, output, scenarios string
	cmd := &cobra.Command{
		Use:   "transition",
		Short: "Recalculate risk weights under energy price scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			if scenarios != "" {
				a.cfg.Transition.ScenariosFile = scenarios
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			tbl, err := a.loadPortfolio(ctx, input)
			if err != nil {
				return err
			}
			if err := tbl.Require(transition.RequiredFields...); err != nil {
				return err
			}
			driver, err := a.cfg.TransitionDriver()
			if err != nil {
				return err
			}

			results, err := driver.Run(ctx, tbl.Complete(transition.RequiredFields...))
			if err != nil {
				return err
			}
			opts := a.cfg.ReportOptions()

			var buf bytes.Buffer
			if err := report.WriteTransition(&buf, results, opts); err != nil {
				return err
			}
			if err := a.emit(ctx, cmd.OutOrStdout(), output, buf.Bytes()); err != nil {
				return err
			}
			if output == "" {
				return nil
			}
			avgs := transition.ClassAverages(results, driver.Consumption)
			return report.WriteScenarioTable(cmd.OutOrStdout(), avgs, opts)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Portfolio CSV (local path or gs:// URI)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Result CSV (default: stdout)")
	cmd.Flags().StringVarP(&scenarios, "scenarios", "s", "", "Scenario catalog YAML (default: built-in)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func (a *app) loadPortfolio(ctx context.Context, uri string) (*portfolio.Table, error) {
	opts, err := a.cfg.LoaderOptions()
	if err != nil {
		return nil, err
	}
	return portfolio.LoadURI(ctx, a.store, uri, opts)
}

// emit writes data to uri, or to w when uri is empty.
func (a *app) emit(ctx context.Context, w io.Writer, uri string, data []byte) error {
	if uri == "" {
		_, err := w.Write(data)
		return err
	}
	if err := a.store.Write(ctx, uri, data); err != nil {
		return err
	}
	a.log.Info().Str("output", uri).Int("bytes", len(data)).Msg("Report written")
	_, err := fmt.Fprintf(w, "Wrote %s\n", uri)
	return err
}
