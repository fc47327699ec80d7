package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/climate-risk/internal/pipeline"
)

func newRunCmd(a *app) *cobra.Command {
	var input, output, runID string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured stages and persist the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input != "" {
				a.cfg.Input = input
			}
			if output != "" {
				a.cfg.Output = output
			}
			if a.cfg.Input == "" {
				return fmt.Errorf("no input: set input in the config, CLIMATERISK_INPUT or --input")
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			opts, err := pipeline.OptionsFromConfig(a.cfg)
			if err != nil {
				return err
			}
			sink, err := pipeline.OpenSink(ctx, a.cfg)
			if err != nil {
				return err
			}
			var results pipeline.ResultSink
			if sink != nil {
				defer sink.Close()
				results = sink
			}

			state, err := pipeline.RunRecalculation(ctx, a.store, results, opts, runID, a.cfg.Input, a.cfg.Output)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s: %d rows loaded, %d row errors\n", state.Run.RunID, state.Run.RowsLoaded, state.Run.RowErrors)
			for _, f := range state.Outputs {
				fmt.Fprintf(out, "Wrote %s\n", f)
			}
			return pipeline.WriteSummary(out, state, opts.Report)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Portfolio CSV (overrides config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Report directory (overrides config)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id (default: generated)")
	return cmd
}
