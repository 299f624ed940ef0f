package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

const (
	defaultAggregatesTable = "region_year_consumption"

	defaultMaxOpenConns = 5
	defaultMaxIdleConns = 2
	defaultConnLifetime = time.Hour
	defaultPingTimeout  = 5 * time.Second
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewPostgresDB creates a pgx/stdlib backed *sql.DB pool and validates the connection.
func NewPostgresDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: empty DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// AggregateRepository stores the long aggregate table.
type AggregateRepository struct {
	db    DBTX
	table string
}

// AggregateOption configures the repository.
type AggregateOption func(*AggregateRepository)

// WithAggregatesTable overrides the default table name.
func WithAggregatesTable(table string) AggregateOption {
	return func(repo *AggregateRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewAggregateRepository constructs a repository.
func NewAggregateRepository(db DBTX, opts ...AggregateOption) *AggregateRepository {
	repo := &AggregateRepository{db: db, table: defaultAggregatesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

func (r *AggregateRepository) check() error {
	if r == nil || r.db == nil {
		return errors.New("aggregate repo: nil db")
	}
	if !tableName.MatchString(r.table) {
		return fmt.Errorf("aggregate repo: invalid table name %q", r.table)
	}
	return nil
}

// EnsureSchema creates the table when it does not exist.
func (r *AggregateRepository) EnsureSchema(ctx context.Context) error {
	if err := r.check(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	region TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	data_zone TEXT NOT NULL DEFAULT '',
	year INTEGER NOT NULL,
	sum_kwh DOUBLE PRECISION NOT NULL,
	meter_count DOUBLE PRECISION NOT NULL,
	mean_kwh DOUBLE PRECISION,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (region, data_zone, year)
)`, r.table)
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// Upsert inserts or replaces every aggregate.
func (r *AggregateRepository) Upsert(ctx context.Context, aggs []models.RegionYearAggregate) error {
	if err := r.check(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (region, name, data_zone, year, sum_kwh, meter_count, mean_kwh, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (region, data_zone, year) DO UPDATE SET
	name = EXCLUDED.name,
	sum_kwh = EXCLUDED.sum_kwh,
	meter_count = EXCLUDED.meter_count,
	mean_kwh = EXCLUDED.mean_kwh,
	updated_at = now()`, r.table)

	for _, agg := range aggs {
		if _, err := r.db.ExecContext(ctx, query,
			string(agg.Region),
			agg.Name,
			agg.DataZone,
			agg.Year,
			agg.SumConsumption,
			agg.MeterCount,
			agg.MeanConsumption,
		); err != nil {
			return fmt.Errorf("aggregate repo: upsert %s/%s/%d: %w", agg.Region, agg.DataZone, agg.Year, err)
		}
	}
	return nil
}

// Get loads one aggregate, or nil when it does not exist.
func (r *AggregateRepository) Get(ctx context.Context, region models.RegionCode, dataZone string, year int) (*models.RegionYearAggregate, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT region, name, data_zone, year, sum_kwh, meter_count, mean_kwh
FROM %s
WHERE region = $1 AND data_zone = $2 AND year = $3
LIMIT 1`, r.table)

	var agg models.RegionYearAggregate
	var code string
	if err := r.db.QueryRowContext(ctx, query, string(region), dataZone, year).Scan(
		&code,
		&agg.Name,
		&agg.DataZone,
		&agg.Year,
		&agg.SumConsumption,
		&agg.MeterCount,
		&agg.MeanConsumption,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	agg.Region = models.RegionCode(code)
	return &agg, nil
}

// Sink publishes aggregates to Postgres in one transaction.
type Sink struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

// NewSink wraps an open pool.
func NewSink(db *sql.DB, table string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{db: db, table: table, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string {
	return "postgres"
}

// WriteAggregates ensures the table and upserts every aggregate.
func (s *Sink) WriteAggregates(ctx context.Context, aggs []models.RegionYearAggregate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	repo := NewAggregateRepository(tx, WithAggregatesTable(s.table))
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	if err := repo.Upsert(ctx, aggs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	s.logger.Debug("postgres rows upserted", zap.String("table", repo.table), zap.Int("rows", len(aggs)))
	return nil
}

// Close closes the pool.
func (s *Sink) Close() error {
	return s.db.Close()
}
