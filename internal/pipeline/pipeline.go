package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/climate-risk/internal/config"
	"github.com/dvloznov/climate-risk/internal/physical"
	"github.com/dvloznov/climate-risk/internal/portfolio"
	"github.com/dvloznov/climate-risk/internal/report"
	"github.com/dvloznov/climate-risk/internal/transition"
)

// Options selects and parameterises the stages. A nil model disables its stage.
type Options struct {
	Loader     portfolio.Options
	Report     report.Options
	Physical   *physical.Model
	Transition *transition.Driver
}

// Stages lists the enabled stage names.
func (o Options) Stages() []string {
	var stages []string
	if o.Physical != nil {
		stages = append(stages, config.StagePhysical)
	}
	if o.Transition != nil {
		stages = append(stages, config.StageTransition)
	}
	return stages
}

// OptionsFromConfig builds Options for the stages enabled in cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	loader, err := cfg.LoaderOptions()
	if err != nil {
		return Options{}, fmt.Errorf("OptionsFromConfig: %w", err)
	}
	opts := Options{Loader: loader, Report: cfg.ReportOptions()}

	if cfg.HasStage(config.StagePhysical) {
		if opts.Physical, err = cfg.PhysicalModel(); err != nil {
			return Options{}, fmt.Errorf("OptionsFromConfig: %w", err)
		}
	}
	if cfg.HasStage(config.StageTransition) {
		if opts.Transition, err = cfg.TransitionDriver(); err != nil {
			return Options{}, fmt.Errorf("OptionsFromConfig: %w", err)
		}
	}
	return opts, nil
}

// NewRecalculationPipeline creates the standard pipeline:
// start → load → physical → transition → aggregate → report → finish → persist.
// sink may be nil.
func NewRecalculationPipeline(store ObjectStore, sink ResultSink, opts Options) *Pipeline {
	steps := []PipelineStep{
		&StartRunStep{Stages: opts.Stages()},
		&LoadPortfolioStep{Store: store, Options: opts.Loader},
	}
	if opts.Physical != nil {
		steps = append(steps, &PhysicalStep{Model: opts.Physical})
	}
	consumption := transition.DefaultConsumption()
	if opts.Transition != nil {
		steps = append(steps, &TransitionStep{Driver: opts.Transition})
		consumption = opts.Transition.Consumption
	}
	steps = append(steps,
		&AggregateStep{Consumption: consumption},
		&WriteReportsStep{Store: store, Options: opts.Report},
		&FinishRunStep{},
		&PersistStep{Sink: sink},
	)
	return NewPipeline(steps...)
}

// RunRecalculation executes the standard pipeline for one input.
// runID may be empty, in which case a new one is generated.
func RunRecalculation(ctx context.Context, store ObjectStore, sink ResultSink, opts Options, runID, inputURI, outputURI string) (*PipelineState, error) {
	if opts.Physical == nil && opts.Transition == nil {
		return nil, fmt.Errorf("RunRecalculation: no stage enabled")
	}
	state := &PipelineState{}
	state.Run.RunID = runID
	state.Run.InputURI = inputURI
	state.Run.OutputURI = outputURI

	if err := NewRecalculationPipeline(store, sink, opts).Execute(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}
