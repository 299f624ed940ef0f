package models

import "database/sql"

// RegionYearAggregate is one row of the consolidated long table. There is
// exactly one per (Region, DataZone, Year).
type RegionYearAggregate struct {
	Region          RegionCode      `json:"region"`
	Name            string          `json:"name,omitempty"`
	DataZone        string          `json:"data_zone,omitempty"`
	Year            int             `json:"year"`
	SumConsumption  float64         `json:"sum_consumption_kwh"`
	MeterCount      float64         `json:"meter_count"`
	MeanConsumption sql.NullFloat64 `json:"-"`
}

// YearChange holds the year-over-year change between two years.
type YearChange struct {
	From     int             `json:"from"`
	To       int             `json:"to"`
	Absolute sql.NullFloat64 `json:"-"`
	Percent  sql.NullFloat64 `json:"-"`
}

// ConsolidatedRow is one region in the wide table: a value per year plus
// the derived change columns.
type ConsolidatedRow struct {
	Region  RegionCode
	Name    string
	Values  map[int]sql.NullFloat64
	Changes []YearChange
	Overall YearChange
}

// Value returns the value for a year; missing years are invalid.
func (r ConsolidatedRow) Value(year int) sql.NullFloat64 {
	return r.Values[year]
}

// Label returns the readable name when there is one, else the code.
func (r ConsolidatedRow) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return string(r.Region)
}

// RankedRow is one entry of a ranking window.
type RankedRow struct {
	Rank    int
	Region  RegionCode
	Name    string
	From    sql.NullFloat64
	To      sql.NullFloat64
	Percent sql.NullFloat64
}

// Ranking is an ordered ranking over one window.
type Ranking struct {
	Name     string
	FromYear int
	ToYear   int
	Rows     []RankedRow
}

// VarianceRow holds the sample variance of a region's yearly values.
type VarianceRow struct {
	Region   RegionCode
	Name     string
	Years    int
	Variance sql.NullFloat64
}

// TrendPoint is the mean across a group of regions for one year.
type TrendPoint struct {
	Group   string
	Year    int
	Members int
	Mean    sql.NullFloat64
}
