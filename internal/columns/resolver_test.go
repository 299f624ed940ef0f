package columns

import (
	"errors"
	"testing"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

var allFields = []models.Field{models.FieldPostcode, models.FieldTotalConsumption, models.FieldMeterCount}

func TestResolveExactTriplet(t *testing.T) {
	r := NewResolver(DefaultRules())

	m, err := r.Resolve([]string{"PostCode", "Total_cons_kwh", "Num_meters"}, allFields...)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Postcode.Name != "PostCode" || m.Postcode.Index != 0 {
		t.Errorf("postcode = %+v", m.Postcode)
	}
	if m.TotalConsumption.Name != "Total_cons_kwh" || m.TotalConsumption.Index != 1 {
		t.Errorf("total = %+v", m.TotalConsumption)
	}
	if m.MeterCount.Name != "Num_meters" || m.MeterCount.Index != 2 {
		t.Errorf("meters = %+v", m.MeterCount)
	}
	if m.MeanConsumption.Found() {
		t.Errorf("mean should be unresolved, got %+v", m.MeanConsumption)
	}
}

func TestResolveGovUKHeader(t *testing.T) {
	r := NewResolver(DefaultRules())
	header := []string{"Outcode", "Postcode", "Num_meters", "Total_cons_kwh", "Mean_cons_kwh", "Median_cons_kwh"}

	m, err := r.Resolve(header, allFields...)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// "postcode" is preferred over "outcode" even though Outcode comes first.
	if m.Postcode.Name != "Postcode" {
		t.Errorf("postcode = %q", m.Postcode.Name)
	}
	if m.TotalConsumption.Name != "Total_cons_kwh" {
		t.Errorf("total = %q", m.TotalConsumption.Name)
	}
	if m.MeanConsumption.Name != "Mean_cons_kwh" {
		t.Errorf("mean = %q", m.MeanConsumption.Name)
	}
	if m.MeterCount.Name != "Num_meters" {
		t.Errorf("meters = %q", m.MeterCount.Name)
	}
}

func TestPostcodePrefersAllowListOrderOverColumnOrder(t *testing.T) {
	r := NewResolver(DefaultRules())

	tests := []struct {
		header []string
		want   string
	}{
		{[]string{"Outcode", "Postcode"}, "Postcode"},
		{[]string{"Postcode", "Outcode"}, "Postcode"},
		{[]string{"pcds", "pcd"}, "pcd"},
		{[]string{"Outcode", "Postcode district"}, "Outcode"},
	}
	for _, tt := range tests {
		col, err := r.Postcode(tt.header)
		if err != nil {
			t.Fatalf("%v: %v", tt.header, err)
		}
		if col.Name != tt.want {
			t.Errorf("%v: got %q, want %q", tt.header, col.Name, tt.want)
		}
	}
}

func TestResolvePostcodeFallbacks(t *testing.T) {
	r := NewResolver(DefaultRules())

	tests := []struct {
		name   string
		header []string
		want   string
	}{
		{"exact with whitespace", []string{" postcode ", "x"}, " postcode "},
		{"outcode only", []string{"Outcode", "Total_cons_kwh"}, "Outcode"},
		{"allow-listed alias", []string{"pcd", "MeanConsKwh"}, "pcd"},
		{"token substring", []string{"id", "Post Code Unit"}, "Post Code Unit"},
		{"first in column order", []string{"post_code_a", "post_code_b"}, "post_code_a"},
		{"byte order mark", []string{"\ufeffPostcode"}, "\ufeffPostcode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col, err := r.Postcode(tt.header)
			if err != nil {
				t.Fatalf("Postcode: %v", err)
			}
			if col.Name != tt.want {
				t.Errorf("got %q, want %q", col.Name, tt.want)
			}
		})
	}
}

func TestResolveMissingPostcode(t *testing.T) {
	r := NewResolver(DefaultRules())

	_, err := r.Resolve([]string{"area", "Total_cons_kwh", "Num_meters"}, allFields...)
	if !errors.Is(err, ErrRequiredColumnMissing) {
		t.Fatalf("expected ErrRequiredColumnMissing, got %v", err)
	}
	var missing *MissingColumnError
	if !errors.As(err, &missing) || missing.Field != models.FieldPostcode {
		t.Errorf("expected postcode field in error, got %v", err)
	}
}

func TestResolveMeanOnlyRejectsTotal(t *testing.T) {
	r := NewResolver(DefaultRules())

	m, err := r.Resolve([]string{"pcd", "MeanConsKwh"}, allFields...)
	var missing *MissingColumnError
	if !errors.As(err, &missing) || missing.Field != models.FieldTotalConsumption {
		t.Fatalf("expected missing total consumption, got %v", err)
	}
	if m.Postcode.Name != "pcd" {
		t.Errorf("postcode should still resolve, got %+v", m.Postcode)
	}
	if m.MeanConsumption.Name != "MeanConsKwh" {
		t.Errorf("mean = %+v", m.MeanConsumption)
	}
}

func TestResolveOnlyRequiredFieldsFail(t *testing.T) {
	r := NewResolver(DefaultRules())

	m, err := r.Resolve([]string{"Postcode", "Other"}, models.FieldPostcode)
	if err != nil {
		t.Fatalf("postcode-only resolve should succeed: %v", err)
	}
	if m.TotalConsumption.Found() || m.MeterCount.Found() {
		t.Errorf("unexpected optional matches: %+v", m)
	}
}

func TestResolveColumnsAreNotReused(t *testing.T) {
	r := NewResolver(Rules{MeterKeywords: []string{"kwh"}})

	m, err := r.Resolve([]string{"Postcode", "Total_kwh", "meters_kwh"}, allFields...)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.TotalConsumption.Index == m.MeterCount.Index {
		t.Fatalf("total and meter count share column %d", m.MeterCount.Index)
	}
	if m.MeterCount.Name != "meters_kwh" {
		t.Errorf("meters = %q", m.MeterCount.Name)
	}
}
