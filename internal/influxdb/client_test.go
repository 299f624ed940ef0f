package influxdb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

type fakeWriter struct {
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	f.points = append(f.points, points...)
	return f.err
}

func TestWriteAggregates(t *testing.T) {
	w := &fakeWriter{}
	c := &Client{writeAPI: w, config: config.InfluxDBConfig{Measurement: "consumption"}, logger: zap.NewNop()}

	err := c.WriteAggregates(context.Background(), []models.RegionYearAggregate{
		{Region: "S12000036", Name: "City of Edinburgh", DataZone: "S01008677", Year: 2020, SumConsumption: 40, MeterCount: 4, MeanConsumption: sql.NullFloat64{Float64: 10, Valid: true}},
		{Region: "ZE", Year: 2021, SumConsumption: 5},
	})
	if err != nil {
		t.Fatalf("WriteAggregates: %v", err)
	}
	if len(w.points) != 2 {
		t.Fatalf("got %d points", len(w.points))
	}

	line := write.PointToLineProtocol(w.points[0], time.Second)
	for _, want := range []string{"consumption,", "data_zone=S01008677", "region=S12000036", "mean_kwh=10", "sum_kwh=40"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q lacks %q", line, want)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(line), " 1577836800") {
		t.Errorf("line %q not stamped at 2020-01-01", line)
	}
	if line := write.PointToLineProtocol(w.points[1], time.Second); strings.Contains(line, "mean_kwh") {
		t.Errorf("undefined mean written: %q", line)
	}
}

func TestWriteAggregatesError(t *testing.T) {
	c := &Client{writeAPI: &fakeWriter{err: errors.New("unauthorized")}, logger: zap.NewNop()}
	err := c.WriteAggregates(context.Background(), []models.RegionYearAggregate{{Region: "EH", Year: 2019}})
	if err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("err = %v", err)
	}
	if err := c.WriteAggregates(context.Background(), nil); err != nil {
		t.Errorf("empty write: %v", err)
	}
}
