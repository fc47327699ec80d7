package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/climate-risk/internal/logger"
)

// TableSchemas returns the schema of every result table, inferred from the row types.
func TableSchemas() (map[string]bigquery.Schema, error) {
	rowTypes := map[string]any{
		RunsTable:            RunRow{},
		PhysicalResultsTable: PhysicalResultRow{},
		ClassAveragesTable:   ClassAverageRow{},
		PortfolioTotalsTable: PortfolioTotalRow{},
	}
	schemas := make(map[string]bigquery.Schema, len(rowTypes))
	for name, row := range rowTypes {
		schema, err := bigquery.InferSchema(row)
		if err != nil {
			return nil, fmt.Errorf("TableSchemas: %s: %w", name, err)
		}
		schemas[name] = schema
	}
	return schemas, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// EnsureTablesWithClient creates the dataset and any missing result table.
// It returns the names of the tables it created.
func EnsureTablesWithClient(ctx context.Context, client *bigquery.Client, datasetID, location string) ([]string, error) {
	log := logger.FromContext(ctx)

	ds := client.Dataset(datasetID)
	if _, err := ds.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("EnsureTables: dataset metadata: %w", err)
		}
		if err := ds.Create(ctx, &bigquery.DatasetMetadata{Location: location}); err != nil {
			return nil, fmt.Errorf("EnsureTables: creating dataset %s: %w", datasetID, err)
		}
		log.Info().Str("dataset", datasetID).Msg("Created dataset")
	}

	existing := make(map[string]bool)
	it := ds.Tables(ctx)
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("EnsureTables: listing tables: %w", err)
		}
		existing[t.TableID] = true
	}

	schemas, err := TableSchemas()
	if err != nil {
		return nil, err
	}

	var created []string
	for _, name := range []string{RunsTable, PhysicalResultsTable, ClassAveragesTable, PortfolioTotalsTable} {
		if existing[name] {
			continue
		}
		if err := ds.Table(name).Create(ctx, &bigquery.TableMetadata{Schema: schemas[name]}); err != nil {
			return created, fmt.Errorf("EnsureTables: creating table %s: %w", name, err)
		}
		log.Info().Str("dataset", datasetID).Str("table", name).Msg("Created table")
		created = append(created, name)
	}
	return created, nil
}
