package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/climate-risk/internal/config"
	"github.com/dvloznov/climate-risk/internal/gcs"
	"github.com/dvloznov/climate-risk/internal/logger"
)

// app carries what every subcommand needs once the root has loaded it.
type app struct {
	configPath string
	logLevel   string
	timeout    time.Duration

	cfg   *config.Config
	log   zerolog.Logger
	store *gcs.Store
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "cli",
		Short:         "Climate risk recalculation for mortgage portfolios",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 10*time.Minute, "Operation timeout")

	root.AddCommand(
		newPhysicalCmd(a),
		newTransitionCmd(a),
		newGenerateCmd(a),
		newClassifyCmd(a),
		newPricesCmd(a),
		newFloodCmd(a),
		newRunCmd(a),
		newUploadCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.log = logger.NewWithLevel(cfg.LogLevel)
	a.store = gcs.NewStore()
	return nil
}

// context returns a logger-carrying context bounded by --timeout.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.WithContext(ctx, a.log)
	if a.timeout > 0 {
		return context.WithTimeout(ctx, a.timeout)
	}
	return context.WithCancel(ctx)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
