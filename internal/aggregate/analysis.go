package aggregate

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

// Order is the ranking direction.
type Order string

const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

// MaxWindowNameLen keeps "Rank <name>" within the 31 character sheet name
// limit of spreadsheet exports.
const MaxWindowNameLen = 26

// windowNameForbidden are characters not allowed in sheet or file names.
const windowNameForbidden = `:\/?*[]`

// Window ranks regions by the percentage change from From to To. A zero
// year means the first (From) or last (To) year of the table.
type Window struct {
	Name  string `yaml:"name"`
	From  int    `yaml:"from"`
	To    int    `yaml:"to"`
	Order Order  `yaml:"order"`
}

// DefaultWindows rank the pandemic jump, the energy-crisis drop and the
// whole period.
func DefaultWindows() []Window {
	return []Window{
		{Name: "covid", From: 2019, To: 2020, Order: Descending},
		{Name: "crisis", From: 2021, To: 2022, Order: Ascending},
		{Name: "overall", Order: Ascending},
	}
}

// Validate checks the window name and order.
func (w Window) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("aggregate: ranking window needs a name")
	}
	if utf8.RuneCountInString(w.Name) > MaxWindowNameLen {
		return fmt.Errorf("aggregate: ranking %q: name longer than %d characters", w.Name, MaxWindowNameLen)
	}
	if strings.ContainsAny(w.Name, windowNameForbidden) {
		return fmt.Errorf("aggregate: ranking %q: name must not contain any of %s", w.Name, windowNameForbidden)
	}
	if w.Order != Ascending && w.Order != Descending {
		return fmt.Errorf("aggregate: ranking %q: order must be %q or %q", w.Name, Ascending, Descending)
	}
	if w.From != 0 && w.To != 0 && w.From >= w.To {
		return fmt.Errorf("aggregate: ranking %q: from year %d must precede to year %d", w.Name, w.From, w.To)
	}
	return nil
}

// Rank orders the regions of the wide table by each window. Regions with
// an undefined percentage are ranked last; ties keep region order.
func Rank(rows []models.ConsolidatedRow, years []int, windows []Window) []models.Ranking {
	rankings := make([]models.Ranking, 0, len(windows))
	for _, w := range windows {
		from, to := w.From, w.To
		if len(years) > 0 {
			if from == 0 {
				from = years[0]
			}
			if to == 0 {
				to = years[len(years)-1]
			}
		}

		ranked := make([]models.RankedRow, 0, len(rows))
		for _, row := range rows {
			_, pct := Change(row.Value(from), row.Value(to))
			ranked = append(ranked, models.RankedRow{
				Region:  row.Region,
				Name:    row.Name,
				From:    row.Value(from),
				To:      row.Value(to),
				Percent: pct,
			})
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			a, b := ranked[i].Percent, ranked[j].Percent
			if a.Valid != b.Valid {
				return a.Valid
			}
			if !a.Valid || a.Float64 == b.Float64 {
				return ranked[i].Region < ranked[j].Region
			}
			if w.Order == Descending {
				return a.Float64 > b.Float64
			}
			return a.Float64 < b.Float64
		})
		for i := range ranked {
			ranked[i].Rank = i + 1
		}

		rankings = append(rankings, models.Ranking{Name: w.Name, FromYear: from, ToYear: to, Rows: ranked})
	}
	return rankings
}

// Variance computes the sample variance of each region's defined yearly
// values. Fewer than two values leave the variance undefined.
func Variance(rows []models.ConsolidatedRow, years []int) []models.VarianceRow {
	out := make([]models.VarianceRow, 0, len(rows))
	for _, row := range rows {
		values := definedValues(row, years)
		v := models.VarianceRow{Region: row.Region, Name: row.Name, Years: len(values)}
		if len(values) >= 2 {
			v.Variance = sql.NullFloat64{Float64: stat.Variance(values, nil), Valid: true}
		}
		out = append(out, v)
	}
	return out
}

func definedValues(row models.ConsolidatedRow, years []int) []float64 {
	values := make([]float64, 0, len(years))
	for _, y := range years {
		if v := row.Value(y); v.Valid {
			values = append(values, v.Float64)
		}
	}
	return values
}

// NationalGroup names the trend across every region.
const NationalGroup = "national"

// Group is a named set of regions averaged together.
type Group struct {
	Name    string
	Members []models.RegionCode
}

// Trends returns, for every group and year, the mean of the members'
// defined values, followed by the national mean over all rows.
func Trends(rows []models.ConsolidatedRow, years []int, groups []Group) []models.TrendPoint {
	all := Group{Name: NationalGroup, Members: lo.Map(rows, func(r models.ConsolidatedRow, _ int) models.RegionCode {
		return r.Region
	})}
	byRegion := lo.KeyBy(rows, func(r models.ConsolidatedRow) models.RegionCode { return r.Region })

	var points []models.TrendPoint
	for _, g := range append(append([]Group{}, groups...), all) {
		for _, y := range years {
			var values []float64
			for _, code := range lo.Uniq(g.Members) {
				row, ok := byRegion[code]
				if !ok {
					continue
				}
				if v := row.Value(y); v.Valid {
					values = append(values, v.Float64)
				}
			}
			p := models.TrendPoint{Group: g.Name, Year: y, Members: len(values)}
			if len(values) > 0 {
				p.Mean = sql.NullFloat64{Float64: stat.Mean(values, nil), Valid: true}
			}
			points = append(points, p)
		}
	}
	return points
}
