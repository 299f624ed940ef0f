package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/influxdb"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/kafka"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/postgres"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/processor"
)

type closingSink interface {
	processor.Sink
	io.Closer
}

// openSinks connects every enabled sink. A sink that cannot connect is
// logged and left out; its error is returned alongside the others so the
// command still exits non-zero.
func openSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]processor.Sink, func(), error) {
	var (
		sinks []processor.Sink
		open  []io.Closer
		errs  []error
	)
	add := func(name string, s closingSink, err error) {
		if err != nil {
			logger.Error("failed to open sink", zap.String("sink", name), zap.Error(err))
			metrics.IncSinkWrite(name, metrics.ResultError)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		sinks = append(sinks, s)
		open = append(open, s)
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.NewClient(ctx, cfg.InfluxDB, logger)
		add("influxdb", client, err)
	}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka, logger)
		add("kafka", producer, err)
	}
	if cfg.Postgres.Enabled {
		db, err := postgres.NewPostgresDB(ctx, cfg.Postgres.DSN)
		if err != nil {
			add("postgres", nil, err)
		} else {
			add("postgres", postgres.NewSink(db, cfg.Postgres.Table, logger), nil)
		}
	}

	closeAll := func() {
		for _, c := range open {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close sink", zap.Error(err))
			}
		}
	}
	return sinks, closeAll, errors.Join(errs...)
}
