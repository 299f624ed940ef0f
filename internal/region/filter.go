package region

import (
	"strings"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

// DefaultMarkers are placeholder postcode values that carry pre-computed
// national totals rather than a real postcode.
var DefaultMarkers = []string{"all postcodes"}

// Reason explains why a record was kept or dropped.
type Reason string

const (
	ReasonRetained    Reason = "retained"
	ReasonEmpty       Reason = "empty_postcode"
	ReasonMarker      Reason = "aggregate_marker"
	ReasonOutside     Reason = "outside_region_set"
	ReasonNotTargeted Reason = "not_targeted"
)

// Stats counts filter outcomes.
type Stats struct {
	Read     int
	Retained int
	Rejected map[Reason]int
}

// Add folds other into s.
func (s *Stats) Add(other Stats) {
	s.Read += other.Read
	s.Retained += other.Retained
	for reason, n := range other.Rejected {
		s.reject(reason, n)
	}
}

func (s *Stats) reject(reason Reason, n int) {
	if s.Rejected == nil {
		s.Rejected = make(map[Reason]int)
	}
	s.Rejected[reason] += n
}

// Normalize trims surrounding whitespace and upper-cases a postcode.
func Normalize(postcode string) string {
	return strings.ToUpper(strings.TrimSpace(postcode))
}

// LookupKey is the normalized postcode with all whitespace removed.
func LookupKey(postcode string) string {
	return strings.Join(strings.Fields(Normalize(postcode)), "")
}

// IsAggregateMarker reports whether postcode contains one of the markers,
// ignoring case.
func IsAggregateMarker(postcode string, markers []string) bool {
	lower := strings.ToLower(postcode)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// Filter keeps records whose postcode classifies into the configured
// region set and tags them with the region code.
type Filter struct {
	strategy Strategy
	markers  []string
	targets  *CodeSet
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithMarkers replaces the aggregate marker list. An empty list keeps
// DefaultMarkers.
func WithMarkers(markers ...string) FilterOption {
	return func(f *Filter) {
		if len(markers) > 0 {
			f.markers = markers
		}
	}
}

// WithTargets keeps only records classified into one of targets.
func WithTargets(targets CodeSet) FilterOption {
	return func(f *Filter) {
		f.targets = &targets
	}
}

// NewFilter creates a filter around strategy.
func NewFilter(strategy Strategy, opts ...FilterOption) *Filter {
	f := &Filter{
		strategy: strategy,
		markers:  DefaultMarkers,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Classify classifies one raw postcode value.
func (f *Filter) Classify(postcode string) (Match, Reason) {
	pc := Normalize(postcode)
	if pc == "" {
		return Match{}, ReasonEmpty
	}
	if IsAggregateMarker(pc, f.markers) {
		return Match{}, ReasonMarker
	}
	m, ok := f.strategy.Classify(pc)
	if !ok {
		return Match{}, ReasonOutside
	}
	if f.targets != nil && !f.targets.Contains(m.Region) {
		return Match{}, ReasonNotTargeted
	}
	return m, ReasonRetained
}

// Apply classifies a single record using the postcode column. The record
// itself is returned untouched.
func (f *Filter) Apply(rec models.RawRecord, postcode models.Column) (models.TaggedRecord, Reason) {
	m, reason := f.Classify(rec.At(postcode))
	if reason != ReasonRetained {
		return models.TaggedRecord{}, reason
	}
	return models.TaggedRecord{Record: rec, Region: m.Region, DataZone: m.DataZone}, reason
}

// FilterChunk applies the filter to a chunk of records.
func (f *Filter) FilterChunk(records []models.RawRecord, postcode models.Column) ([]models.TaggedRecord, Stats) {
	stats := Stats{Read: len(records)}
	kept := make([]models.TaggedRecord, 0, len(records))
	for _, rec := range records {
		tagged, reason := f.Apply(rec, postcode)
		if reason != ReasonRetained {
			stats.reject(reason, 1)
			continue
		}
		kept = append(kept, tagged)
	}
	stats.Retained = len(kept)
	return kept, stats
}
