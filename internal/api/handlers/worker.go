package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/climate-risk/internal/config"
	"github.com/dvloznov/climate-risk/internal/jobs"
	"github.com/dvloznov/climate-risk/internal/pipeline"
)

// RecalculationWorker executes recalculation jobs against the pipeline.
type RecalculationWorker struct {
	Store     pipeline.ObjectStore
	Sink      pipeline.ResultSink
	Options   pipeline.Options
	Summaries *SummaryCache
	Log       zerolog.Logger
}

// Handle implements jobs.JobHandler.
func (wk *RecalculationWorker) Handle(ctx context.Context, job jobs.Job) error {
	rj, ok := job.(*jobs.RecalculationJob)
	if !ok {
		return fmt.Errorf("unexpected job type: %T", job)
	}

	log := wk.Log.With().Str("job_id", rj.JobID).Str("input_uri", rj.InputURI).Logger()
	log.Info().Strs("stages", rj.Stages).Int("retry", rj.RetryCount).Msg("Processing recalculation job")

	opts := SelectStages(wk.Options, rj.Stages)
	state, err := pipeline.RunRecalculation(ctx, wk.Store, wk.Sink, opts, rj.JobID, rj.InputURI, rj.OutputURI)
	if err != nil {
		log.Error().Err(err).Msg("Pipeline execution failed")
		return err
	}

	run := state.Run
	rj.Run = &run
	rj.Outputs = append([]string(nil), state.Outputs...)
	if wk.Summaries != nil {
		wk.Summaries.Set(rj.JobID, NewRunSummary(state))
	}

	log.Info().
		Int("rows_loaded", run.RowsLoaded).
		Int("row_errors", run.RowErrors).
		Msg("Pipeline execution completed successfully")
	return nil
}

// SelectStages disables the stages not named in stages.
// An empty list keeps opts as configured.
func SelectStages(opts pipeline.Options, stages []string) pipeline.Options {
	if len(stages) == 0 {
		return opts
	}
	want := make(map[string]bool, len(stages))
	for _, s := range stages {
		want[s] = true
	}
	if !want[config.StagePhysical] {
		opts.Physical = nil
	}
	if !want[config.StageTransition] {
		opts.Transition = nil
	}
	return opts
}
