package aggregate

import (
	"database/sql"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

// Key identifies one output row. DataZone is empty unless aggregating at
// data-zone granularity.
type Key struct {
	Region   models.RegionCode
	DataZone string
	Year     int
}

// regionYearAggregator accumulates the totals of one key.
type regionYearAggregator struct {
	totalKWh   float64
	meterCount float64
	records    int
}

// Accumulator sums consumption and meter counts per key. Adding records in
// any order or chunking yields the same totals.
type Accumulator struct {
	byDataZone bool
	cells      map[Key]*regionYearAggregator
	records    int
	coerced    int
}

// NewAccumulator creates an empty accumulator. When byDataZone is set the
// tagged data zone becomes part of the key.
func NewAccumulator(byDataZone bool) *Accumulator {
	return &Accumulator{
		byDataZone: byDataZone,
		cells:      make(map[Key]*regionYearAggregator),
	}
}

// ParseNumber reads a numeric cell. Thousands separators and surrounding
// whitespace are ignored. Blank, unparseable or non-finite values read as
// 0 with ok false.
func ParseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Add folds one tagged record of the given year into the totals.
func (a *Accumulator) Add(year int, rec models.TaggedRecord, cols models.ColumnMapping) {
	key := Key{Region: rec.Region, Year: year}
	if a.byDataZone {
		key.DataZone = rec.DataZone
	}

	cell, ok := a.cells[key]
	if !ok {
		cell = &regionYearAggregator{}
		a.cells[key] = cell
	}

	total, ok := ParseNumber(rec.Record.At(cols.TotalConsumption))
	if !ok {
		a.coerced++
	}
	meters, ok := ParseNumber(rec.Record.At(cols.MeterCount))
	if !ok && cols.MeterCount.Found() {
		a.coerced++
	}

	cell.totalKWh += total
	cell.meterCount += meters
	cell.records++
	a.records++
}

// AddChunk folds a chunk of tagged records into the totals.
func (a *Accumulator) AddChunk(year int, recs []models.TaggedRecord, cols models.ColumnMapping) {
	for _, rec := range recs {
		a.Add(year, rec, cols)
	}
}

// Merge folds the totals of other into a.
func (a *Accumulator) Merge(other *Accumulator) {
	for key, src := range other.cells {
		dst, ok := a.cells[key]
		if !ok {
			dst = &regionYearAggregator{}
			a.cells[key] = dst
		}
		dst.totalKWh += src.totalKWh
		dst.meterCount += src.meterCount
		dst.records += src.records
	}
	a.records += other.records
	a.coerced += other.coerced
}

// Len returns the number of distinct keys.
func (a *Accumulator) Len() int {
	return len(a.cells)
}

// Records returns the number of records added.
func (a *Accumulator) Records() int {
	return a.records
}

// Coerced returns how many numeric cells were blank or unparseable and
// counted as 0.
func (a *Accumulator) Coerced() int {
	return a.coerced
}

// Aggregates returns one row per key sorted by region, data zone and year.
// name may be nil.
func (a *Accumulator) Aggregates(name func(models.RegionCode) string) []models.RegionYearAggregate {
	out := make([]models.RegionYearAggregate, 0, len(a.cells))
	for key, cell := range a.cells {
		agg := models.RegionYearAggregate{
			Region:          key.Region,
			DataZone:        key.DataZone,
			Year:            key.Year,
			SumConsumption:  cell.totalKWh,
			MeterCount:      cell.meterCount,
			MeanConsumption: Mean(cell.totalKWh, cell.meterCount),
		}
		if name != nil {
			agg.Name = name(key.Region)
		}
		out = append(out, agg)
	}
	SortAggregates(out)
	return out
}

// Mean divides sum by count. A zero count yields an invalid value.
func Mean(sum, count float64) sql.NullFloat64 {
	if count == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: sum / count, Valid: true}
}

// SortAggregates orders rows by region, data zone and year.
func SortAggregates(aggs []models.RegionYearAggregate) {
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].Region != aggs[j].Region {
			return aggs[i].Region < aggs[j].Region
		}
		if aggs[i].DataZone != aggs[j].DataZone {
			return aggs[i].DataZone < aggs[j].DataZone
		}
		return aggs[i].Year < aggs[j].Year
	})
}

// RollUp sums data-zone rows into one row per region and year.
func RollUp(aggs []models.RegionYearAggregate) []models.RegionYearAggregate {
	type regionYear struct {
		region models.RegionCode
		year   int
	}
	idx := make(map[regionYear]int)
	var out []models.RegionYearAggregate
	for _, agg := range aggs {
		k := regionYear{agg.Region, agg.Year}
		i, ok := idx[k]
		if !ok {
			idx[k] = len(out)
			out = append(out, models.RegionYearAggregate{Region: agg.Region, Name: agg.Name, Year: agg.Year})
			i = len(out) - 1
		}
		out[i].SumConsumption += agg.SumConsumption
		out[i].MeterCount += agg.MeterCount
	}
	for i := range out {
		out[i].MeanConsumption = Mean(out[i].SumConsumption, out[i].MeterCount)
	}
	SortAggregates(out)
	return out
}
