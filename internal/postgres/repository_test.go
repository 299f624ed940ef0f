package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	calls []execCall
	err   error
}

func (f *fakeDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	return nil, f.err
}

func (f *fakeDB) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func TestUpsertBindsEveryAggregate(t *testing.T) {
	db := &fakeDB{}
	repo := NewAggregateRepository(db, WithAggregatesTable("etl.consumption"))

	err := repo.Upsert(context.Background(), []models.RegionYearAggregate{
		{Region: "EH", Year: 2019, SumConsumption: 40, MeterCount: 4, MeanConsumption: sql.NullFloat64{Float64: 10, Valid: true}},
		{Region: "ZE", Year: 2019, SumConsumption: 5},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(db.calls) != 2 {
		t.Fatalf("got %d execs", len(db.calls))
	}
	if !strings.Contains(db.calls[0].query, "INSERT INTO etl.consumption") || !strings.Contains(db.calls[0].query, "ON CONFLICT (region, data_zone, year)") {
		t.Errorf("query = %s", db.calls[0].query)
	}
	if mean := db.calls[1].args[6].(sql.NullFloat64); mean.Valid {
		t.Errorf("undefined mean bound as %v", mean)
	}
}

func TestUpsertWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	repo := NewAggregateRepository(&fakeDB{err: boom})
	err := repo.Upsert(context.Background(), []models.RegionYearAggregate{{Region: "G", Year: 2020}})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "G//2020") {
		t.Fatalf("err = %v", err)
	}
}

func TestRejectsUnsafeTableName(t *testing.T) {
	repo := NewAggregateRepository(&fakeDB{}, WithAggregatesTable("x; DROP TABLE y"))
	if err := repo.EnsureSchema(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	var nilRepo *AggregateRepository
	if err := nilRepo.Upsert(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil repo")
	}
}

func TestSink_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	ctx := context.Background()
	db, err := NewPostgresDB(ctx, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	const table = "region_year_consumption_it"
	_, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table)
	defer db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table)

	sink := NewSink(db, table, nil)
	first := []models.RegionYearAggregate{{Region: "EH", Year: 2019, SumConsumption: 40, MeterCount: 4, MeanConsumption: sql.NullFloat64{Float64: 10, Valid: true}}}
	if err := sink.WriteAggregates(ctx, first); err != nil {
		t.Fatalf("WriteAggregates: %v", err)
	}
	second := []models.RegionYearAggregate{{Region: "EH", Year: 2019, SumConsumption: 50, MeterCount: 0}}
	if err := sink.WriteAggregates(ctx, second); err != nil {
		t.Fatalf("WriteAggregates again: %v", err)
	}

	got, err := NewAggregateRepository(db, WithAggregatesTable(table)).Get(ctx, "EH", "", 2019)
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.SumConsumption != 50 || got.MeanConsumption.Valid {
		t.Errorf("row = %+v", got)
	}
}
