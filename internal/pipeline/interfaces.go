package pipeline

import (
	"context"
	"io"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/gcs"
)

// ObjectStore reads portfolios and writes reports. Implemented by gcs.Store.
type ObjectStore = gcs.ObjectStore

// ResultSink persists the outcome of a run.
// This interface enables mocking and testing of persistence.
type ResultSink interface {
	// SaveRun stores the run record.
	SaveRun(ctx context.Context, run *domain.Run) error

	// SavePhysicalResults stores one damage model result per loan.
	SavePhysicalResults(ctx context.Context, runID string, results []domain.PhysicalResult) error

	// SaveClassAverages stores the per energy class transition means.
	SaveClassAverages(ctx context.Context, runID string, avgs []domain.ClassAverage) error

	// SavePortfolioTotals stores the summed RWA per scenario and year.
	SavePortfolioTotals(ctx context.Context, runID string, totals []domain.PortfolioTotal) error
}

// ClosableSink is a ResultSink holding a connection.
type ClosableSink interface {
	ResultSink
	io.Closer
}
