package output

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/source"
)

// Artifact file names inside the output directory.
const (
	AggregatesFile   = "aggregates.csv"
	ConsolidatedFile = "consolidated.csv"
	VarianceFile     = "variance.csv"
	TrendsFile       = "trends.csv"
	WorkbookFile     = "consolidated.xlsx"
	ReportFile       = "rankings.pdf"
)

var aggregatesHeader = []string{"Region", "Name", "DataZone", "Year", "Sum_kWh", "Meters", "Mean_kWh"}

// RankingFile returns the file name of a ranking.
func RankingFile(name string) string {
	return "ranking_" + name + ".csv"
}

// FormatFloat renders a value with the shortest exact representation.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatNull renders an undefined value as an empty cell.
func FormatNull(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return FormatFloat(v.Float64)
}

func parseNull(s string) (sql.NullFloat64, error) {
	if s == "" {
		return sql.NullFloat64{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}, err
	}
	return sql.NullFloat64{Float64: v, Valid: true}, nil
}

// WriteFileAtomic writes path through a temporary file in the same
// directory, so readers never see a partial artifact.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	})
}

// WriteAggregates writes the long table, one row per region, data zone and
// year.
func WriteAggregates(path string, aggs []models.RegionYearAggregate) error {
	rows := make([][]string, 0, len(aggs))
	for _, a := range aggs {
		rows = append(rows, []string{
			string(a.Region),
			a.Name,
			a.DataZone,
			strconv.Itoa(a.Year),
			FormatFloat(a.SumConsumption),
			FormatFloat(a.MeterCount),
			FormatNull(a.MeanConsumption),
		})
	}
	return writeCSV(path, aggregatesHeader, rows)
}

// ReadAggregates reads a long table written by WriteAggregates.
func ReadAggregates(path string) ([]models.RegionYearAggregate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	defer f.Close()

	reader, err := source.NewChunkReader(f, 0)
	if err != nil {
		return nil, fmt.Errorf("output: %s: %w", path, err)
	}
	if len(reader.Header()) != len(aggregatesHeader) {
		return nil, fmt.Errorf("output: %s: unexpected header %v", path, reader.Header())
	}

	var aggs []models.RegionYearAggregate
	for {
		chunk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("output: %s: %w", path, err)
		}
		for _, rec := range chunk {
			agg, err := parseAggregate(rec.Values)
			if err != nil {
				return nil, fmt.Errorf("output: %s row %d: %w", path, len(aggs)+1, err)
			}
			aggs = append(aggs, agg)
		}
	}
	return aggs, nil
}

func parseAggregate(v []string) (models.RegionYearAggregate, error) {
	if len(v) != len(aggregatesHeader) {
		return models.RegionYearAggregate{}, fmt.Errorf("want %d fields, got %d", len(aggregatesHeader), len(v))
	}
	year, err := strconv.Atoi(v[3])
	if err != nil {
		return models.RegionYearAggregate{}, err
	}
	sum, err := strconv.ParseFloat(v[4], 64)
	if err != nil {
		return models.RegionYearAggregate{}, err
	}
	meters, err := strconv.ParseFloat(v[5], 64)
	if err != nil {
		return models.RegionYearAggregate{}, err
	}
	mean, err := parseNull(v[6])
	if err != nil {
		return models.RegionYearAggregate{}, err
	}
	return models.RegionYearAggregate{
		Region:          models.RegionCode(v[0]),
		Name:            v[1],
		DataZone:        v[2],
		Year:            year,
		SumConsumption:  sum,
		MeterCount:      meters,
		MeanConsumption: mean,
	}, nil
}

// ConsolidatedHeader returns the wide table header for the given years.
func ConsolidatedHeader(years []int) []string {
	header := []string{"Region", "Name"}
	for _, y := range years {
		header = append(header, strconv.Itoa(y))
	}
	for i := 1; i < len(years); i++ {
		header = append(header, fmt.Sprintf("Change_%d_%d", years[i-1], years[i]))
		header = append(header, fmt.Sprintf("Percent_%d_%d", years[i-1], years[i]))
	}
	return append(header, "Change_kWh", "Change_Pct")
}

// ConsolidatedRecord renders one wide table row for the given years.
func ConsolidatedRecord(row models.ConsolidatedRow, years []int) []string {
	rec := []string{string(row.Region), row.Name}
	for _, y := range years {
		rec = append(rec, FormatNull(row.Value(y)))
	}
	for _, c := range row.Changes {
		rec = append(rec, FormatNull(c.Absolute), FormatNull(c.Percent))
	}
	return append(rec, FormatNull(row.Overall.Absolute), FormatNull(row.Overall.Percent))
}

// WriteConsolidated writes the wide table.
func WriteConsolidated(path string, rows []models.ConsolidatedRow, years []int) error {
	recs := make([][]string, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, ConsolidatedRecord(row, years))
	}
	return writeCSV(path, ConsolidatedHeader(years), recs)
}

// WriteRanking writes one ranking into dir and returns its path.
func WriteRanking(dir string, r models.Ranking) (string, error) {
	header := []string{"Rank", "Region", "Name", strconv.Itoa(r.FromYear), strconv.Itoa(r.ToYear), "Percent_Change"}
	recs := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		recs = append(recs, []string{
			strconv.Itoa(row.Rank),
			string(row.Region),
			row.Name,
			FormatNull(row.From),
			FormatNull(row.To),
			FormatNull(row.Percent),
		})
	}
	path := filepath.Join(dir, RankingFile(r.Name))
	return path, writeCSV(path, header, recs)
}

// WriteVariance writes the per-region variance table.
func WriteVariance(path string, rows []models.VarianceRow) error {
	recs := make([][]string, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, []string{string(row.Region), row.Name, strconv.Itoa(row.Years), FormatNull(row.Variance)})
	}
	return writeCSV(path, []string{"Region", "Name", "Years", "Variance"}, recs)
}

// WriteTrends writes the group trend table.
func WriteTrends(path string, points []models.TrendPoint) error {
	recs := make([][]string, 0, len(points))
	for _, p := range points {
		recs = append(recs, []string{p.Group, strconv.Itoa(p.Year), strconv.Itoa(p.Members), FormatNull(p.Mean)})
	}
	return writeCSV(path, []string{"Group", "Year", "Members", "Mean"}, recs)
}
