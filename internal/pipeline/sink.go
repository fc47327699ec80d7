package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/climate-risk/internal/config"
	"github.com/dvloznov/climate-risk/internal/infra/bigquery"
	"github.com/dvloznov/climate-risk/internal/store/sqlstore"
)

// OpenSink connects the sink selected by cfg.Store.Driver and prepares its
// schema. It returns nil when no driver is configured.
func OpenSink(ctx context.Context, cfg *config.Config) (ClosableSink, error) {
	switch cfg.Store.Driver {
	case config.DriverNone:
		return nil, nil
	case config.DriverSQLite, config.DriverPostgres:
		store, err := sqlstore.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("OpenSink: %w", err)
		}
		if _, err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("OpenSink: %w", err)
		}
		return store, nil
	case config.DriverBigQuery:
		sink, err := bigquery.NewSink(ctx, cfg.GCP.Project, cfg.GCP.Dataset)
		if err != nil {
			return nil, fmt.Errorf("OpenSink: %w", err)
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("OpenSink: unsupported driver %q", cfg.Store.Driver)
	}
}
