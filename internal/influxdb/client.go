package influxdb

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
)

// pointWriter is the subset of api.WriteAPIBlocking the sink uses.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Client represents an InfluxDB v2 client
type Client struct {
	client   influxdb2.Client
	writeAPI pointWriter
	config   config.InfluxDBConfig
	logger   *zap.Logger
}

// NewClient initializes the InfluxDB v2 client and verifies connectivity
func NewClient(ctx context.Context, cfg config.InfluxDBConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	healthCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		healthCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if _, err := client.Health(healthCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	logger.Info("influxdb connection verified", zap.String("url", cfg.URL), zap.String("bucket", cfg.Bucket))
	return &Client{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		config:   cfg,
		logger:   logger,
	}, nil
}

// Name identifies the sink in logs and metrics.
func (c *Client) Name() string {
	return "influxdb"
}

// WriteAggregates writes one point per region and year, stamped at the
// start of the year.
func (c *Client) WriteAggregates(ctx context.Context, aggs []models.RegionYearAggregate) error {
	points := make([]*write.Point, 0, len(aggs))
	for _, agg := range aggs {
		points = append(points, c.point(agg))
	}
	if len(points) == 0 {
		return nil
	}
	if err := c.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influxdb: write %d points: %w", len(points), err)
	}
	c.logger.Debug("influxdb points written", zap.Int("points", len(points)))
	return nil
}

func (c *Client) point(agg models.RegionYearAggregate) *write.Point {
	measurement := c.config.Measurement
	if measurement == "" {
		measurement = "electricity_consumption"
	}

	tags := map[string]string{"region": string(agg.Region)}
	if agg.Name != "" {
		tags["name"] = agg.Name
	}
	if agg.DataZone != "" {
		tags["data_zone"] = agg.DataZone
	}

	fields := map[string]interface{}{
		"sum_kwh":     agg.SumConsumption,
		"meter_count": agg.MeterCount,
	}
	if agg.MeanConsumption.Valid {
		fields["mean_kwh"] = agg.MeanConsumption.Float64
	}

	return write.NewPoint(measurement, tags, fields, time.Date(agg.Year, time.January, 1, 0, 0, 0, 0, time.UTC))
}

// Close closes the InfluxDB client
func (c *Client) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
