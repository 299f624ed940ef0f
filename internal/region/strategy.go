package region

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

// Match is the result of classifying a postcode.
type Match struct {
	Region   models.RegionCode
	DataZone string
}

// Strategy classifies a normalized (trimmed, upper-cased) postcode.
type Strategy interface {
	Name() string
	Classify(postcode string) (Match, bool)
}

const (
	StrategyPrefix     = "prefix"
	StrategyDigitStrip = "digit-strip"
	StrategyLookup     = "lookup"
)

var areaPrefix = regexp.MustCompile(`^([A-Z]{1,2})`)

// PrefixStrategy takes the leading run of one or two letters and accepts
// it when it belongs to the area set.
type PrefixStrategy struct {
	Areas CodeSet
}

func (s PrefixStrategy) Name() string { return StrategyPrefix }

func (s PrefixStrategy) Classify(postcode string) (Match, bool) {
	m := areaPrefix.FindStringSubmatch(postcode)
	if m == nil {
		return Match{}, false
	}
	code := models.RegionCode(m[1])
	if !s.Areas.Contains(code) {
		return Match{}, false
	}
	return Match{Region: code}, true
}

// DigitStripStrategy cuts the postcode at its first digit and strips
// trailing digits. It agrees with PrefixStrategy on well-formed outcodes
// but not on values with separators or extra letters before the district
// number.
type DigitStripStrategy struct {
	Areas CodeSet
}

func (s DigitStripStrategy) Name() string { return StrategyDigitStrip }

func (s DigitStripStrategy) Classify(postcode string) (Match, bool) {
	head := postcode
	if i := strings.IndexAny(head, "0123456789"); i >= 0 {
		head = head[:i]
	}
	head = strings.TrimRight(head, "0123456789")
	code := models.RegionCode(head)
	if code == "" || !s.Areas.Contains(code) {
		return Match{}, false
	}
	return Match{Region: code}, true
}

// LookupStrategy classifies through the postcode lookup table and accepts
// council codes that belong to the council set.
type LookupStrategy struct {
	Table    *LookupTable
	Councils CodeSet
}

func (s LookupStrategy) Name() string { return StrategyLookup }

func (s LookupStrategy) Classify(postcode string) (Match, bool) {
	if s.Table == nil {
		return Match{}, false
	}
	entry, ok := s.Table.Get(postcode)
	if !ok || !s.Councils.Contains(entry.Council) {
		return Match{}, false
	}
	return Match{Region: entry.Council, DataZone: entry.DataZone}, true
}

// NewAreaStrategy returns the named area strategy.
func NewAreaStrategy(name string, areas CodeSet) (Strategy, error) {
	switch name {
	case "", StrategyPrefix:
		return PrefixStrategy{Areas: areas}, nil
	case StrategyDigitStrip:
		return DigitStripStrategy{Areas: areas}, nil
	default:
		return nil, fmt.Errorf("region: unknown strategy %q", name)
	}
}
