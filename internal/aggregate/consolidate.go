package aggregate

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

// Measure selects which value fills the per-year columns of the wide table.
type Measure string

const (
	MeasureMean  Measure = "mean"
	MeasureTotal Measure = "total"
)

// ParseMeasure validates a measure name. Blank means MeasureMean.
func ParseMeasure(s string) (Measure, error) {
	switch Measure(s) {
	case "", MeasureMean:
		return MeasureMean, nil
	case MeasureTotal:
		return MeasureTotal, nil
	}
	return "", fmt.Errorf("aggregate: unknown measure %q", s)
}

func (m Measure) value(agg models.RegionYearAggregate) sql.NullFloat64 {
	if m == MeasureTotal {
		return sql.NullFloat64{Float64: agg.SumConsumption, Valid: true}
	}
	return agg.MeanConsumption
}

// Change computes curr - prev and (curr - prev) / prev * 100. Either side
// missing leaves both invalid; a zero prev leaves the percentage invalid.
func Change(prev, curr sql.NullFloat64) (abs, pct sql.NullFloat64) {
	if !prev.Valid || !curr.Valid {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	diff := curr.Float64 - prev.Float64
	abs = sql.NullFloat64{Float64: diff, Valid: true}
	if prev.Float64 == 0 {
		return abs, sql.NullFloat64{}
	}
	return abs, sql.NullFloat64{Float64: diff / prev.Float64 * 100, Valid: true}
}

func yearChange(row models.ConsolidatedRow, from, to int) models.YearChange {
	abs, pct := Change(row.Value(from), row.Value(to))
	return models.YearChange{From: from, To: to, Absolute: abs, Percent: pct}
}

// Years returns the sorted union of the configured years and the years
// present in aggs.
func Years(configured []int, aggs []models.RegionYearAggregate) []int {
	years := append(append([]int{}, configured...), lo.Map(aggs, func(a models.RegionYearAggregate, _ int) int {
		return a.Year
	})...)
	years = lo.Uniq(years)
	sort.Ints(years)
	return years
}

// Consolidate outer-joins the per-year aggregates into one row per region.
// Data-zone rows are rolled up first. A region missing from a year keeps
// an invalid value for it. Changes are computed between consecutive years
// and overall between the first and the last year.
func Consolidate(aggs []models.RegionYearAggregate, years []int, measure Measure) []models.ConsolidatedRow {
	regional := RollUp(aggs)
	years = Years(years, regional)

	byRegion := make(map[models.RegionCode]*models.ConsolidatedRow)
	var order []models.RegionCode
	for _, agg := range regional {
		row, ok := byRegion[agg.Region]
		if !ok {
			row = &models.ConsolidatedRow{
				Region: agg.Region,
				Name:   agg.Name,
				Values: make(map[int]sql.NullFloat64, len(years)),
			}
			byRegion[agg.Region] = row
			order = append(order, agg.Region)
		}
		row.Values[agg.Year] = measure.value(agg)
	}

	rows := make([]models.ConsolidatedRow, 0, len(order))
	for _, region := range order {
		row := *byRegion[region]
		for i := 1; i < len(years); i++ {
			row.Changes = append(row.Changes, yearChange(row, years[i-1], years[i]))
		}
		if len(years) > 0 {
			row.Overall = yearChange(row, years[0], years[len(years)-1])
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Region < rows[j].Region })
	return rows
}
