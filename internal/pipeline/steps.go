package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/gcs"
	"github.com/dvloznov/climate-risk/internal/logger"
	"github.com/dvloznov/climate-risk/internal/physical"
	"github.com/dvloznov/climate-risk/internal/portfolio"
	"github.com/dvloznov/climate-risk/internal/report"
	"github.com/dvloznov/climate-risk/internal/transition"
)

// Report file names written below the output URI.
const (
	PhysicalReportFile   = "physical.csv"
	TransitionReportFile = "transition.csv"
	ClassAveragesFile    = "transition_class_averages.csv"
	TotalsFile           = "transition_totals.csv"
	SummaryFile          = "summary.txt"
)

// PipelineStep represents a single step in the recalculation pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Run domain.Run

	Table           *portfolio.Table
	Physical        []domain.PhysicalResult
	PhysicalSummary *physical.Summary
	Transition      []domain.TransitionResult
	ClassAverages   []domain.ClassAverage
	Totals          []domain.PortfolioTotal

	// Outputs lists the report URIs written by WriteReportsStep.
	Outputs []string
}

// Step 1: StartRunStep assigns the run id and start time.
type StartRunStep struct {
	Stages []string
	Now    func() time.Time
}

func (s *StartRunStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Run.InputURI == "" {
		return fmt.Errorf("StartRun: input URI is required")
	}
	if state.Run.RunID == "" {
		state.Run.RunID = uuid.NewString()
	}
	state.Run.Stages = s.Stages
	state.Run.StartedAt = now(s.Now)

	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", state.Run.RunID).
		Str("input", state.Run.InputURI).
		Strs("stages", s.Stages).
		Msg("Run started")
	return nil
}

// Step 2: LoadPortfolioStep reads and normalizes the portfolio.
type LoadPortfolioStep struct {
	Store   ObjectStore
	Options portfolio.Options
}

func (s *LoadPortfolioStep) Execute(ctx context.Context, state *PipelineState) error {
	tbl, err := portfolio.LoadURI(ctx, s.Store, state.Run.InputURI, s.Options)
	if err != nil {
		return err
	}
	state.Table = tbl
	state.Run.RowsLoaded = len(tbl.Records)

	log := logger.FromContext(ctx)
	log.Info().
		Int("rows", len(tbl.Records)).
		Str("delimiter", string(tbl.Delimiter)).
		Msg("Portfolio loaded")
	return nil
}

// Step 3: PhysicalStep applies the damage model to every complete record.
type PhysicalStep struct {
	Model *physical.Model
}

func (s *PhysicalStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := state.Table.Require(physical.RequiredFields...); err != nil {
		return fmt.Errorf("Physical: %w", err)
	}
	recs := state.Table.Complete(physical.RequiredFields...)
	state.Physical = s.Model.Run(ctx, recs)
	state.Run.RowsPhysical = len(recs)
	for _, r := range state.Physical {
		if r.Err != "" {
			state.Run.RowErrors++
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int("rows", len(recs)).
		Int("dropped", len(state.Table.Records)-len(recs)).
		Msg("Physical stage done")
	return nil
}

// Step 4: TransitionStep runs the scenario × year grid.
type TransitionStep struct {
	Driver *transition.Driver
}

func (s *TransitionStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := state.Table.Require(transition.RequiredFields...); err != nil {
		return fmt.Errorf("Transition: %w", err)
	}
	recs := state.Table.Complete(transition.RequiredFields...)
	results, err := s.Driver.Run(ctx, recs)
	if err != nil {
		return fmt.Errorf("Transition: %w", err)
	}
	state.Transition = results
	state.Run.RowsTransition = len(recs)
	for _, r := range results {
		if r.Err != "" {
			state.Run.RowErrors++
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int("rows", len(recs)).
		Int("cells", len(s.Driver.Cells())).
		Msg("Transition stage done")
	return nil
}

// Step 5: AggregateStep reduces row results to summaries.
type AggregateStep struct {
	Consumption transition.Consumption
}

func (s *AggregateStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Physical != nil {
		summary := physical.Summarize(state.Physical)
		state.PhysicalSummary = &summary
	}
	if state.Transition != nil {
		state.ClassAverages = transition.ClassAverages(state.Transition, s.Consumption)
		state.Totals = transition.PortfolioTotals(state.Transition)
	}
	return nil
}

// Step 6: WriteReportsStep writes the report files below Run.OutputURI.
// Nothing is written when no output is set.
type WriteReportsStep struct {
	Store   ObjectStore
	Options report.Options
}

func (s *WriteReportsStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Run.OutputURI == "" {
		return nil
	}

	write := func(name string, render func(w io.Writer) error) error {
		var buf bytes.Buffer
		if err := render(&buf); err != nil {
			return fmt.Errorf("WriteReports: render %s: %w", name, err)
		}
		uri := gcs.Join(state.Run.OutputURI, name)
		if err := s.Store.Write(ctx, uri, buf.Bytes()); err != nil {
			return fmt.Errorf("WriteReports: %w", err)
		}
		state.Outputs = append(state.Outputs, uri)
		return nil
	}

	if state.Physical != nil {
		if err := write(PhysicalReportFile, func(w io.Writer) error {
			return report.WritePhysical(w, state.Table, state.Physical, s.Options)
		}); err != nil {
			return err
		}
	}
	if state.Transition != nil {
		if err := write(TransitionReportFile, func(w io.Writer) error {
			return report.WriteTransition(w, state.Transition, s.Options)
		}); err != nil {
			return err
		}
		if err := write(ClassAveragesFile, func(w io.Writer) error {
			return report.WriteClassAverages(w, state.ClassAverages, s.Options)
		}); err != nil {
			return err
		}
		if err := write(TotalsFile, func(w io.Writer) error {
			return report.WritePortfolioTotals(w, state.Totals, s.Options)
		}); err != nil {
			return err
		}
	}
	if err := write(SummaryFile, func(w io.Writer) error {
		return WriteSummary(w, state, s.Options)
	}); err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info().Strs("files", state.Outputs).Msg("Reports written")
	return nil
}

// WriteSummary renders the text tables of a finished state.
func WriteSummary(w io.Writer, state *PipelineState, opts report.Options) error {
	if state.PhysicalSummary != nil {
		if err := report.WritePhysicalSummary(w, *state.PhysicalSummary, opts); err != nil {
			return err
		}
	}
	if len(state.ClassAverages) > 0 {
		if err := report.WriteScenarioTable(w, state.ClassAverages, opts); err != nil {
			return err
		}
	}
	if len(state.Totals) > 0 {
		if err := report.WriteTotalsTable(w, state.Totals, opts); err != nil {
			return err
		}
	}
	return nil
}

// Step 7: FinishRunStep stamps the finish time.
type FinishRunStep struct {
	Now func() time.Time
}

func (s *FinishRunStep) Execute(ctx context.Context, state *PipelineState) error {
	finished := now(s.Now)
	state.Run.FinishedAt = &finished

	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", state.Run.RunID).
		Int("row_errors", state.Run.RowErrors).
		Dur("duration", finished.Sub(state.Run.StartedAt)).
		Msg("Run finished")
	return nil
}

// Step 8: PersistStep hands results to the sink. The run record is saved
// last so a stored run always has its results.
type PersistStep struct {
	Sink ResultSink
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Sink == nil {
		return nil
	}
	runID := state.Run.RunID

	if state.Physical != nil {
		if err := s.Sink.SavePhysicalResults(ctx, runID, state.Physical); err != nil {
			return err
		}
	}
	if state.Transition != nil {
		if err := s.Sink.SaveClassAverages(ctx, runID, state.ClassAverages); err != nil {
			return err
		}
		if err := s.Sink.SavePortfolioTotals(ctx, runID, state.Totals); err != nil {
			return err
		}
	}
	return s.Sink.SaveRun(ctx, &state.Run)
}

func now(f func() time.Time) time.Time {
	if f != nil {
		return f()
	}
	return time.Now().UTC()
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
