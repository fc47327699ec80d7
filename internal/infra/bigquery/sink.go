package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/climate-risk/internal/domain"
)

// Sink is the result sink that writes to BigQuery. It holds a shared client
// to avoid creating a new connection for each operation.
type Sink struct {
	client    *bigquery.Client
	datasetID string
}

// NewSink creates a Sink for the given project and dataset.
func NewSink(ctx context.Context, projectID, datasetID string) (*Sink, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewSink: creating client: %w", err)
	}
	if datasetID == "" {
		datasetID = DefaultDataset
	}
	return &Sink{client: client, datasetID: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (s *Sink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// EnsureTables delegates to EnsureTablesWithClient with the shared client.
func (s *Sink) EnsureTables(ctx context.Context, location string) ([]string, error) {
	return EnsureTablesWithClient(ctx, s.client, s.datasetID, location)
}

// SaveRun delegates to SaveRunWithClient with the shared client.
func (s *Sink) SaveRun(ctx context.Context, run *domain.Run) error {
	return SaveRunWithClient(ctx, s.client, s.datasetID, run)
}

// SavePhysicalResults delegates to SavePhysicalResultsWithClient with the shared client.
func (s *Sink) SavePhysicalResults(ctx context.Context, runID string, results []domain.PhysicalResult) error {
	return SavePhysicalResultsWithClient(ctx, s.client, s.datasetID, runID, results)
}

// SaveClassAverages delegates to SaveClassAveragesWithClient with the shared client.
func (s *Sink) SaveClassAverages(ctx context.Context, runID string, avgs []domain.ClassAverage) error {
	return SaveClassAveragesWithClient(ctx, s.client, s.datasetID, runID, avgs)
}

// SavePortfolioTotals delegates to SavePortfolioTotalsWithClient with the shared client.
func (s *Sink) SavePortfolioTotals(ctx context.Context, runID string, totals []domain.PortfolioTotal) error {
	return SavePortfolioTotalsWithClient(ctx, s.client, s.datasetID, runID, totals)
}

// ListRuns delegates to ListRunsWithClient with the shared client.
func (s *Sink) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	return ListRunsWithClient(ctx, s.client, s.datasetID, limit)
}
