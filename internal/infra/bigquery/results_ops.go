package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/climate-risk/internal/domain"
)

// putBatched streams rows into a table in chunks.
func putBatched[T any](ctx context.Context, client *bigquery.Client, datasetID, tableID string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.Dataset(datasetID).Table(tableID).Inserter()
	for start := 0; start < len(rows); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("inserting rows %d-%d into %s: %w", start, end, tableID, err)
		}
	}
	return nil
}

// SavePhysicalResultsWithClient inserts one row per loan.
func SavePhysicalResultsWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, results []domain.PhysicalResult) error {
	if err := putBatched(ctx, client, datasetID, PhysicalResultsTable, NewPhysicalResultRows(runID, results)); err != nil {
		return fmt.Errorf("SavePhysicalResults: %w", err)
	}
	return nil
}

// SaveClassAveragesWithClient inserts the per-class transition means.
func SaveClassAveragesWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, avgs []domain.ClassAverage) error {
	if err := putBatched(ctx, client, datasetID, ClassAveragesTable, NewClassAverageRows(runID, avgs)); err != nil {
		return fmt.Errorf("SaveClassAverages: %w", err)
	}
	return nil
}

// SavePortfolioTotalsWithClient inserts the per-scenario RWA totals.
func SavePortfolioTotalsWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, totals []domain.PortfolioTotal) error {
	if err := putBatched(ctx, client, datasetID, PortfolioTotalsTable, NewPortfolioTotalRows(runID, totals)); err != nil {
		return fmt.Errorf("SavePortfolioTotals: %w", err)
	}
	return nil
}
