package columns

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

// ErrRequiredColumnMissing is returned when a required field cannot be
// matched to any header. Callers skip the whole table.
var ErrRequiredColumnMissing = errors.New("columns: required field missing")

// MissingColumnError names the field that could not be resolved.
type MissingColumnError struct {
	Field  models.Field
	Header []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("columns: required field %q missing from header %v", e.Field, e.Header)
}

func (e *MissingColumnError) Unwrap() error {
	return ErrRequiredColumnMissing
}

// Rules drive the resolver heuristics. All comparisons are case-insensitive
// and ignore surrounding whitespace.
type Rules struct {
	// PostcodeNames are exact names tried in order; the first name that
	// matches any header wins.
	PostcodeNames []string `yaml:"postcode_names"`
	// PostcodeTokens must all appear in a header for the substring fallback.
	PostcodeTokens []string `yaml:"postcode_tokens"`
	// ConsumptionKeywords select the total consumption column (any of).
	ConsumptionKeywords []string `yaml:"consumption_keywords"`
	// ConsumptionExclude disqualify a header from being the raw total.
	ConsumptionExclude []string `yaml:"consumption_exclude"`
	// MeterKeywords select the meter count column (any of).
	MeterKeywords []string `yaml:"meter_keywords"`
	// MeanKeywords must all appear in the optional mean consumption column.
	MeanKeywords []string `yaml:"mean_keywords"`
}

// DefaultRules mirror the naming seen across the yearly postcode-level files.
func DefaultRules() Rules {
	return Rules{
		PostcodeNames:       []string{"postcode", "pcd", "pcds", "outcode"},
		PostcodeTokens:      []string{"post", "code"},
		ConsumptionKeywords: []string{"cons", "kwh"},
		ConsumptionExclude:  []string{"mean", "median"},
		MeterKeywords:       []string{"meter", "num"},
		MeanKeywords:        []string{"mean", "cons"},
	}
}

// Resolver maps a table header onto logical fields.
type Resolver struct {
	rules Rules
}

// NewResolver returns a resolver using rules. Empty rule lists fall back to
// the defaults.
func NewResolver(rules Rules) *Resolver {
	def := DefaultRules()
	if len(rules.PostcodeNames) == 0 {
		rules.PostcodeNames = def.PostcodeNames
	}
	if len(rules.PostcodeTokens) == 0 {
		rules.PostcodeTokens = def.PostcodeTokens
	}
	if len(rules.ConsumptionKeywords) == 0 {
		rules.ConsumptionKeywords = def.ConsumptionKeywords
	}
	if len(rules.ConsumptionExclude) == 0 {
		rules.ConsumptionExclude = def.ConsumptionExclude
	}
	if len(rules.MeterKeywords) == 0 {
		rules.MeterKeywords = def.MeterKeywords
	}
	if len(rules.MeanKeywords) == 0 {
		rules.MeanKeywords = def.MeanKeywords
	}
	return &Resolver{rules: rules}
}

// Resolve computes the mapping for header. Every field is attempted; an
// error is returned for the first required field left unresolved.
func (r *Resolver) Resolve(header []string, required ...models.Field) (models.ColumnMapping, error) {
	norm := normalizeHeader(header)
	used := make(map[int]bool)

	mapping := models.ColumnMapping{
		Postcode:         models.NoColumn,
		TotalConsumption: models.NoColumn,
		MeterCount:       models.NoColumn,
		MeanConsumption:  models.NoColumn,
	}

	mapping.Postcode = r.postcode(header, norm)
	claim(used, mapping.Postcode)

	mapping.TotalConsumption = firstMatch(header, norm, used, func(h string) bool {
		return containsAny(h, r.rules.ConsumptionKeywords) && !containsAny(h, r.rules.ConsumptionExclude)
	})
	claim(used, mapping.TotalConsumption)

	mapping.MeanConsumption = firstMatch(header, norm, used, func(h string) bool {
		return containsAll(h, r.rules.MeanKeywords)
	})
	claim(used, mapping.MeanConsumption)

	mapping.MeterCount = firstMatch(header, norm, used, func(h string) bool {
		return containsAny(h, r.rules.MeterKeywords)
	})

	for _, f := range required {
		if !mapping.Get(f).Found() {
			return mapping, &MissingColumnError{Field: f, Header: header}
		}
	}
	return mapping, nil
}

// Postcode resolves only the postcode column.
func (r *Resolver) Postcode(header []string) (models.Column, error) {
	col := r.postcode(header, normalizeHeader(header))
	if !col.Found() {
		return col, &MissingColumnError{Field: models.FieldPostcode, Header: header}
	}
	return col, nil
}

func (r *Resolver) postcode(header, norm []string) models.Column {
	// Exact names first, in preference order.
	for _, name := range r.rules.PostcodeNames {
		want := strings.ToLower(strings.TrimSpace(name))
		if idx := lo.IndexOf(norm, want); idx >= 0 {
			return models.Column{Name: header[idx], Index: idx}
		}
	}

	// Substring fallback: every token in the same header.
	return firstMatch(header, norm, nil, func(h string) bool {
		return containsAll(h, r.rules.PostcodeTokens)
	})
}

func firstMatch(header, norm []string, used map[int]bool, match func(string) bool) models.Column {
	for i, h := range norm {
		if used[i] {
			continue
		}
		if match(h) {
			return models.Column{Name: header[i], Index: i}
		}
	}
	return models.NoColumn
}

func claim(used map[int]bool, col models.Column) {
	if col.Found() {
		used[col.Index] = true
	}
}

func normalizeHeader(header []string) []string {
	return lo.Map(header, func(h string, _ int) string {
		return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	})
}

func containsAny(h string, keywords []string) bool {
	return lo.SomeBy(keywords, func(k string) bool {
		return strings.Contains(h, strings.ToLower(k))
	})
}

func containsAll(h string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	return lo.EveryBy(keywords, func(k string) bool {
		return strings.Contains(h, strings.ToLower(k))
	})
}
