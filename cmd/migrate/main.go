package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	infraBQ "github.com/dvloznov/climate-risk/internal/infra/bigquery"
	"github.com/dvloznov/climate-risk/internal/logger"
	"github.com/dvloznov/climate-risk/internal/store/sqlstore"
)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// options are the command-line settings.
type options struct {
	Driver        string
	DSN           string
	ProjectID     string
	DatasetID     string
	Location      string
	AppliedBy     string
	MigrationsDir string
}

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	var opts options
	flag.StringVar(&opts.Driver, "driver", "bigquery", "Target store: sqlite, postgres or bigquery")
	flag.StringVar(&opts.DSN, "dsn", os.Getenv("CLIMATERISK_STORE_DSN"), "Database DSN for sqlite/postgres")
	flag.StringVar(&opts.ProjectID, "project", os.Getenv("GCP_PROJECT"), "GCP project ID (required for bigquery)")
	flag.StringVar(&opts.DatasetID, "dataset", infraBQ.DefaultDataset, "BigQuery dataset ID")
	flag.StringVar(&opts.Location, "location", "EU", "BigQuery dataset location")
	flag.StringVar(&opts.AppliedBy, "applied-by", "migrate-cli", "Name of the tool applying migrations")
	flag.StringVar(&opts.MigrationsDir, "migrations", "migrations/bigquery", "Path to BigQuery migrations directory")
	flag.Parse()

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	if err := run(ctx, opts); err != nil {
		log.Fatal().Err(err).Str("driver", opts.Driver).Msg("Migration failed")
	}
}

func run(ctx context.Context, opts options) error {
	switch opts.Driver {
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		return migrateSQL(ctx, opts)
	case "bigquery":
		return migrateBigQuery(ctx, opts)
	default:
		return fmt.Errorf("unsupported driver %q", opts.Driver)
	}
}

// migrateSQL applies the embedded golang-migrate migrations.
func migrateSQL(ctx context.Context, opts options) error {
	if opts.DSN == "" {
		return fmt.Errorf("-dsn is required for %s", opts.Driver)
	}
	store, err := sqlstore.Open(ctx, opts.Driver, opts.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	version, err := store.Migrate(ctx)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("driver", opts.Driver).Uint("version", version).Msg("Database is up to date")
	return nil
}

// migrateBigQuery creates the result tables, then applies pending SQL files.
func migrateBigQuery(ctx context.Context, opts options) error {
	log := logger.FromContext(ctx)

	// Validate required flags
	if opts.ProjectID == "" {
		return fmt.Errorf("-project flag is required. Please specify your GCP project ID")
	}

	// Create BigQuery client
	client, err := bigquery.NewClient(ctx, opts.ProjectID)
	if err != nil {
		return fmt.Errorf("creating BigQuery client: %w", err)
	}
	defer client.Close()

	log.Info().Str("project", opts.ProjectID).Str("dataset", opts.DatasetID).Msg("Connected to BigQuery")

	created, err := infraBQ.EnsureTablesWithClient(ctx, client, opts.DatasetID, opts.Location)
	if err != nil {
		return err
	}
	if len(created) > 0 {
		log.Info().Strs("tables", created).Msg("Created result tables")
	}

	// Ensure schema_migrations table exists
	if err := ensureSchemaMigrationsTable(ctx, client, opts); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	// Read migration files
	dir, err := findMigrationsDir(opts.MigrationsDir)
	if err != nil {
		return err
	}
	migrations, err := readMigrations(dir, opts.ProjectID, opts.DatasetID, log)
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	// Get applied migrations
	appliedMigrations, err := getAppliedMigrations(ctx, client, opts)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}
	log.Info().Int("count", len(appliedMigrations)).Msg("Found already applied migrations")

	pending, err := pendingMigrations(migrations, appliedMigrations)
	if err != nil {
		return err
	}

	// Apply pending migrations
	for _, migration := range pending {
		label := fmt.Sprintf("%04d_%s", migration.Version, migration.Name)
		log.Info().Str("migration", label).Msg("Applying migration")

		if err := executeQuery(ctx, client.Query(migration.SQL)); err != nil {
			return fmt.Errorf("executing migration %s: %w", label, err)
		}

		// Record migration in schema_migrations
		if err := recordMigration(ctx, client, opts, migration); err != nil {
			return fmt.Errorf("recording migration %s: %w", label, err)
		}
	}

	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
	} else {
		log.Info().Int("applied", len(pending)).Msg("Successfully applied migrations")
	}
	return nil
}

// pendingMigrations returns the migrations not yet applied, in version order.
// An applied migration whose file changed since is an error.
func pendingMigrations(migrations []Migration, applied []AppliedMigration) ([]Migration, error) {
	checksums := make(map[int]string, len(applied))
	for _, am := range applied {
		checksums[am.Version] = am.Checksum
	}

	var pending []Migration
	for _, m := range migrations {
		sum, ok := checksums[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if sum != "" && sum != m.Checksum {
			return nil, fmt.Errorf("migration %04d_%s was modified after it was applied", m.Version, m.Name)
		}
	}
	return pending, nil
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureSchemaMigrationsTable(ctx context.Context, client *bigquery.Client, opts options) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.schema_migrations`"+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, opts.ProjectID, opts.DatasetID)

	return executeQuery(ctx, client.Query(sql))
}

// findMigrationsDir resolves dir relative to the working directory or the
// repository root when run from cmd/migrate.
func findMigrationsDir(dir string) (string, error) {
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	alt := filepath.Join("..", "..", dir)
	if _, err := os.Stat(alt); err == nil {
		return alt, nil
	}
	return "", fmt.Errorf("migrations directory not found: %s", dir)
}

// parseMigrationFilename splits 0001_name.sql into its version and name.
func parseMigrationFilename(filename string) (int, string, bool) {
	matches := migrationPattern.FindStringSubmatch(filename)
	if matches == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", false
	}
	return version, matches[2], true
}

// readMigrations reads all migration files from dir
func readMigrations(dir, projectID, datasetID string, log zerolog.Logger) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		version, name, ok := parseMigrationFilename(file.Name())
		if !ok {
			log.Warn().Str("file", file.Name()).Msg("Skipping file with invalid format")
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		// Checksum covers the file before placeholder substitution.
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      renderSQL(string(content), projectID, datasetID),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	// Sort by version
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version == migrations[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s",
				migrations[i].Version, migrations[i-1].Filename, migrations[i].Filename)
		}
	}

	return migrations, nil
}

// renderSQL replaces placeholders with actual project and dataset
func renderSQL(sql, projectID, datasetID string) string {
	sql = strings.ReplaceAll(sql, "{{PROJECT_ID}}", projectID)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)
}

// getAppliedMigrations retrieves the list of already applied migrations
func getAppliedMigrations(ctx context.Context, client *bigquery.Client, opts options) ([]AppliedMigration, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM `+"`%s.%s.schema_migrations`"+`
		ORDER BY version ASC
	`, opts.ProjectID, opts.DatasetID)

	it, err := client.Query(sql).Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		am := AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
		}
		if row.Checksum.Valid {
			am.Checksum = row.Checksum.StringVal
		}
		if row.AppliedBy.Valid {
			am.AppliedBy = row.AppliedBy.StringVal
		}
		applied = append(applied, am)
	}

	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations
func recordMigration(ctx context.Context, client *bigquery.Client, opts options, migration Migration) error {
	sql := fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.schema_migrations`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, opts.ProjectID, opts.DatasetID)

	query := client.Query(sql)
	query.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: migration.Version},
		{Name: "name", Value: migration.Name},
		{Name: "checksum", Value: migration.Checksum},
		{Name: "applied_by", Value: opts.AppliedBy},
	}
	return executeQuery(ctx, query)
}

// executeQuery runs a DDL/DML statement and waits for it to finish.
func executeQuery(ctx context.Context, query *bigquery.Query) error {
	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
