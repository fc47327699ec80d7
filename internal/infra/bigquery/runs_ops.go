package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/climate-risk/internal/domain"
)

// SaveRunWithClient inserts the run record. Runs are written once, after the
// pipeline finishes, so no update path is needed.
func SaveRunWithClient(ctx context.Context, client *bigquery.Client, datasetID string, run *domain.Run) error {
	inserter := client.Dataset(datasetID).Table(RunsTable).Inserter()
	if err := inserter.Put(ctx, NewRunRow(run)); err != nil {
		return fmt.Errorf("SaveRun: inserting row: %w", err)
	}
	return nil
}

// ListRunsWithClient returns the most recent runs, newest first.
func ListRunsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	q := client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			input_uri,
			output_uri,
			stages,
			rows_loaded,
			rows_physical,
			rows_transition,
			row_errors,
			started_ts,
			finished_ts
		FROM `+"`%s.%s.%s`"+`
		ORDER BY started_ts DESC
		LIMIT @limit
	`, client.Project(), datasetID, RunsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRuns: query read: %w", err)
	}

	var runs []domain.Run
	for {
		var r RunRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRuns: iter next: %w", err)
		}
		runs = append(runs, r.Run())
	}
	return runs, nil
}
