package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dvloznov/climate-risk/internal/floodrisk"
	"github.com/dvloznov/climate-risk/internal/portfolio"
	"github.com/dvloznov/climate-risk/internal/report"
	"github.com/dvloznov/climate-risk/internal/synthetic"
)

func newFloodCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flood",
		Short: "Flood hazard helpers for preparing portfolio inputs",
	}
	cmd.AddCommand(
		newFloodHQCmd(a),
		newFloodApportionCmd(a),
		newFloodDepthCmd(a),
	)
	return cmd
}

func newFloodHQCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hq LABEL...",
		Short: `Print risk level and annual exceedance probability of "HQ T" labels`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.ReportOptions()
			rows := make([][]string, 0, len(args))
			for _, label := range args {
				aep := ""
				if p, err := floodrisk.AEPForHQ(label); err == nil {
					aep = opts.Ratio(p)
				}
				rows = append(rows, []string{label, string(floodrisk.LevelForHQ(label)), aep})
			}
			return report.WriteCSV(cmd.OutOrStdout(), []string{"hq", "flood_level", "hazard_probability"}, rows, opts)
		},
	}
}

func newFloodApportionCmd(a *app) *cobra.Command {
	var total int
	cmd := &cobra.Command{
		Use:   "apportion REGION=WEIGHT...",
		Short: "Split a number of sample points across regions in proportion to weights",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, len(args))
			weights := make([]float64, len(args))
			for i, arg := range args {
				name, raw, ok := strings.Cut(arg, "=")
				if !ok || name == "" {
					return fmt.Errorf("apportion: expected REGION=WEIGHT, got %q", arg)
				}
				w := portfolio.ParseLocaleFloat(raw)
				if math.IsNaN(w) {
					return fmt.Errorf("apportion: invalid weight %q for %s", raw, name)
				}
				names[i], weights[i] = name, w
			}

			points, err := floodrisk.Apportion(weights, total)
			if err != nil {
				return err
			}
			rows := make([][]string, len(points))
			for i, p := range points {
				rows[i] = []string{names[i], strconv.Itoa(p)}
			}
			return report.WriteCSV(cmd.OutOrStdout(), []string{"region", "points"}, rows, a.cfg.ReportOptions())
		},
	}
	cmd.Flags().IntVar(&total, "total", synthetic.DefaultConfig().N, "Points to distribute")
	return cmd
}

func newFloodDepthCmd(a *app) *cobra.Command {
	var ground, gaugeZero, stage float64
	cmd := &cobra.Command{
		Use:   "depth",
		Short: "Water depth above ground in metres for a gauge reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			depth := floodrisk.FloodDepth(ground, gaugeZero, stage)
			_, err := fmt.Fprintln(cmd.OutOrStdout(), a.cfg.ReportOptions().Money(depth))
			return err
		},
	}
	cmd.Flags().Float64Var(&ground, "ground", 0, "Ground height in metres")
	cmd.Flags().Float64Var(&gaugeZero, "gauge-zero", 0, "Gauge zero height in metres")
	cmd.Flags().Float64Var(&stage, "stage", 0, "Gauge reading in cm")
	_ = cmd.MarkFlagRequired("ground")
	_ = cmd.MarkFlagRequired("gauge-zero")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}
