package models

// Field names a logical column that a yearly source table is expected to carry.
type Field string

const (
	FieldPostcode         Field = "postcode"
	FieldTotalConsumption Field = "total_consumption"
	FieldMeterCount       Field = "meter_count"
	FieldMeanConsumption  Field = "mean_consumption"
)

// Column is a resolved header name together with its position in a row.
// Index is -1 when the column could not be resolved.
type Column struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// NoColumn is the unresolved column.
var NoColumn = Column{Index: -1}

// Found reports whether the column was resolved.
func (c Column) Found() bool {
	return c.Index >= 0
}

// ColumnMapping is the per-table association between logical fields and
// actual header names. It is computed once per source file.
type ColumnMapping struct {
	Postcode         Column `json:"postcode"`
	TotalConsumption Column `json:"total_consumption"`
	MeterCount       Column `json:"meter_count"`
	MeanConsumption  Column `json:"mean_consumption"`
}

// Get returns the column resolved for the given field.
func (m ColumnMapping) Get(f Field) Column {
	switch f {
	case FieldPostcode:
		return m.Postcode
	case FieldTotalConsumption:
		return m.TotalConsumption
	case FieldMeterCount:
		return m.MeterCount
	case FieldMeanConsumption:
		return m.MeanConsumption
	}
	return NoColumn
}

// RawRecord is one row of a source table. Values line up with Header,
// which is shared by every record read from the same table.
type RawRecord struct {
	Header []string
	Values []string
}

// At returns the value in the given column, or "" if the row is short.
func (r RawRecord) At(col Column) string {
	if col.Index < 0 || col.Index >= len(r.Values) {
		return ""
	}
	return r.Values[col.Index]
}


// RegionCode is a short uppercase region identifier: a postcode area such
// as "EH" or a council area code such as "S12000036".
type RegionCode string

// TaggedRecord is a record retained by the region filter, annotated with
// the region it was classified into. DataZone is only set when the region
// came from the postcode lookup.
type TaggedRecord struct {
	Record   RawRecord
	Region   RegionCode
	DataZone string
}
