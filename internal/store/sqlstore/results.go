package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/dvloznov/climate-risk/internal/domain"
)

// ErrRunNotFound is returned by GetRun for unknown ids.
var ErrRunNotFound = errors.New("run not found")

const (
	timeLayout   = "2006-01-02T15:04:05.000000000Z"
	rowsPerChunk = 200
)

var (
	runColumns = []string{
		"run_id", "input_uri", "output_uri", "stages",
		"rows_loaded", "rows_physical", "rows_transition", "row_errors",
		"started_at", "finished_at",
	}
	physicalColumns = []string{
		"run_id", "loan_id", "damage_amount", "expected_annual_impact",
		"expected_impact_over_horizon", "new_property_value", "new_ltv",
		"new_risk_weight", "old_rwa", "new_rwa", "rwa_change_ratio",
		"exposed", "error_message",
	}
	classAverageColumns = []string{
		"run_id", "position", "scenario", "year", "energy_class", "row_count",
		"property_value", "new_property_value", "ltv", "new_ltv",
		"value_change", "rwa_change_ratio",
	}
	totalColumns = []string{"run_id", "scenario", "year", "row_count", "old_rwa", "new_rwa"}
)

// nullFloat stores NaN and ±Inf as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// replace deletes the rows of runID in table and inserts the new ones in one
// transaction, so a retried run overwrites its earlier attempt.
func (s *Store) replace(ctx context.Context, table, runID string, columns []string, values [][]interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	del, args, err := s.builder.Delete(table).Where(sq.Eq{"run_id": runID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}

	for start := 0; start < len(values); start += rowsPerChunk {
		end := min(start+rowsPerChunk, len(values))
		q := s.builder.Insert(table).Columns(columns...)
		for _, v := range values[start:end] {
			q = q.Values(v...)
		}
		ins, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
			return fmt.Errorf("insert %s rows %d-%d: %w", table, start, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SaveRun stores the run record, replacing an earlier one with the same id.
func (s *Store) SaveRun(ctx context.Context, run *domain.Run) error {
	finished := sql.NullString{}
	if run.FinishedAt != nil {
		finished = sql.NullString{String: formatTime(*run.FinishedAt), Valid: true}
	}
	row := []interface{}{
		run.RunID, run.InputURI, nullString(run.OutputURI), strings.Join(run.Stages, ","),
		run.RowsLoaded, run.RowsPhysical, run.RowsTransition, run.RowErrors,
		formatTime(run.StartedAt), finished,
	}
	if err := s.replace(ctx, "runs", run.RunID, runColumns, [][]interface{}{row}); err != nil {
		return fmt.Errorf("SaveRun: %w", err)
	}
	return nil
}

// SavePhysicalResults stores one row per loan.
func (s *Store) SavePhysicalResults(ctx context.Context, runID string, results []domain.PhysicalResult) error {
	values := make([][]interface{}, 0, len(results))
	for _, r := range results {
		values = append(values, []interface{}{
			runID, r.LoanID,
			nullFloat(r.DamageAmount), nullFloat(r.ExpectedAnnualImpact),
			nullFloat(r.ExpectedImpactOverHorizon), nullFloat(r.NewPropertyValue),
			nullFloat(r.NewLTV), nullFloat(r.NewRiskWeight),
			nullFloat(r.OldRWA), nullFloat(r.NewRWA), nullFloat(r.RWAChangeRatio),
			r.Exposed, nullString(r.Err),
		})
	}
	if err := s.replace(ctx, "physical_results", runID, physicalColumns, values); err != nil {
		return fmt.Errorf("SavePhysicalResults: %w", err)
	}
	return nil
}

// SaveClassAverages stores the per-class transition means.
func (s *Store) SaveClassAverages(ctx context.Context, runID string, avgs []domain.ClassAverage) error {
	values := make([][]interface{}, 0, len(avgs))
	for i, a := range avgs {
		values = append(values, []interface{}{
			runID, i, a.Scenario, a.Year, a.EnergyClass, a.Count,
			nullFloat(a.PropertyValue), nullFloat(a.NewPropertyValue),
			nullFloat(a.LTV), nullFloat(a.NewLTV),
			nullFloat(a.ValueChange), nullFloat(a.RWAChangeRatio),
		})
	}
	if err := s.replace(ctx, "transition_class_averages", runID, classAverageColumns, values); err != nil {
		return fmt.Errorf("SaveClassAverages: %w", err)
	}
	return nil
}

// SavePortfolioTotals stores the per-scenario RWA totals.
func (s *Store) SavePortfolioTotals(ctx context.Context, runID string, totals []domain.PortfolioTotal) error {
	values := make([][]interface{}, 0, len(totals))
	for _, t := range totals {
		values = append(values, []interface{}{
			runID, t.Scenario, t.Year, t.Count, nullFloat(t.OldRWA), nullFloat(t.NewRWA),
		})
	}
	if err := s.replace(ctx, "transition_totals", runID, totalColumns, values); err != nil {
		return fmt.Errorf("SavePortfolioTotals: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var (
		run      domain.Run
		output   sql.NullString
		stages   string
		started  string
		finished sql.NullString
	)
	err := row.Scan(&run.RunID, &run.InputURI, &output, &stages,
		&run.RowsLoaded, &run.RowsPhysical, &run.RowsTransition, &run.RowErrors,
		&started, &finished)
	if err != nil {
		return run, err
	}
	run.OutputURI = output.String
	if stages != "" {
		run.Stages = strings.Split(stages, ",")
	}
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return run, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return run, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	return run, nil
}

// GetRun returns one run or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	query, args, err := s.builder.Select(runColumns...).From("runs").Where(sq.Eq{"run_id": runID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("GetRun: build query: %w", err)
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetRun: %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetRun: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := s.builder.Select(runColumns...).From("runs").
		OrderBy("started_at DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ListRuns: build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListRuns: query: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRuns: scan: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PhysicalResults returns the stored results of a run ordered by loan id.
func (s *Store) PhysicalResults(ctx context.Context, runID string) ([]domain.PhysicalResult, error) {
	query, args, err := s.builder.Select(physicalColumns[1:]...).From("physical_results").
		Where(sq.Eq{"run_id": runID}).OrderBy("loan_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("PhysicalResults: build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("PhysicalResults: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PhysicalResult
	for rows.Next() {
		var (
			r   domain.PhysicalResult
			f   [9]sql.NullFloat64
			msg sql.NullString
		)
		if err := rows.Scan(&r.LoanID, &f[0], &f[1], &f[2], &f[3], &f[4], &f[5], &f[6], &f[7], &f[8], &r.Exposed, &msg); err != nil {
			return nil, fmt.Errorf("PhysicalResults: scan: %w", err)
		}
		r.DamageAmount = floatOrNaN(f[0])
		r.ExpectedAnnualImpact = floatOrNaN(f[1])
		r.ExpectedImpactOverHorizon = floatOrNaN(f[2])
		r.NewPropertyValue = floatOrNaN(f[3])
		r.NewLTV = floatOrNaN(f[4])
		r.NewRiskWeight = floatOrNaN(f[5])
		r.OldRWA = floatOrNaN(f[6])
		r.NewRWA = floatOrNaN(f[7])
		r.RWAChangeRatio = floatOrNaN(f[8])
		r.Err = msg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// PortfolioTotals returns the stored totals of a run ordered by scenario and year.
func (s *Store) PortfolioTotals(ctx context.Context, runID string) ([]domain.PortfolioTotal, error) {
	query, args, err := s.builder.Select(totalColumns[1:]...).From("transition_totals").
		Where(sq.Eq{"run_id": runID}).OrderBy("scenario", "year").ToSql()
	if err != nil {
		return nil, fmt.Errorf("PortfolioTotals: build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("PortfolioTotals: query: %w", err)
	}
	defer rows.Close()

	var out []domain.PortfolioTotal
	for rows.Next() {
		var (
			t            domain.PortfolioTotal
			oldRWA, newR sql.NullFloat64
		)
		if err := rows.Scan(&t.Scenario, &t.Year, &t.Count, &oldRWA, &newR); err != nil {
			return nil, fmt.Errorf("PortfolioTotals: scan: %w", err)
		}
		t.OldRWA = floatOrNaN(oldRWA)
		t.NewRWA = floatOrNaN(newR)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClassAverages returns the stored class means of a run in the order they were saved.
func (s *Store) ClassAverages(ctx context.Context, runID string) ([]domain.ClassAverage, error) {
	query, args, err := s.builder.Select(classAverageColumns[2:]...).From("transition_class_averages").
		Where(sq.Eq{"run_id": runID}).OrderBy("position").ToSql()
	if err != nil {
		return nil, fmt.Errorf("ClassAverages: build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ClassAverages: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ClassAverage
	for rows.Next() {
		var (
			a domain.ClassAverage
			f [6]sql.NullFloat64
		)
		if err := rows.Scan(&a.Scenario, &a.Year, &a.EnergyClass, &a.Count, &f[0], &f[1], &f[2], &f[3], &f[4], &f[5]); err != nil {
			return nil, fmt.Errorf("ClassAverages: scan: %w", err)
		}
		a.PropertyValue = floatOrNaN(f[0])
		a.NewPropertyValue = floatOrNaN(f[1])
		a.LTV = floatOrNaN(f[2])
		a.NewLTV = floatOrNaN(f[3])
		a.ValueChange = floatOrNaN(f[4])
		a.RWAChangeRatio = floatOrNaN(f[5])
		out = append(out, a)
	}
	return out, rows.Err()
}
