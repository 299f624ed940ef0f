package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/aggregate"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/output"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/region"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/source"
)

// AggregatesPath is the long table written by the aggregate stage.
func (p *Processor) AggregatesPath() string {
	return filepath.Join(p.config.Output.Dir, output.AggregatesFile)
}

// ConsolidatedPath is the wide table written by the aggregate stage.
func (p *Processor) ConsolidatedPath() string {
	return filepath.Join(p.config.Output.Dir, output.ConsolidatedFile)
}

// Aggregate sums every year into region-year aggregates and writes the
// long table, the wide table and the derived analyses.
func (p *Processor) Aggregate(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { observeStage(StageAggregate, start, err) }()

	if exists(p.AggregatesPath()) && exists(p.ConsolidatedPath()) && !p.config.Force {
		p.logger.Info("aggregate outputs exist, skipping", zap.String("stage", StageAggregate), zap.String("path", p.config.Output.Dir))
		metrics.IncFile(StageAggregate, metrics.ResultCached)
		return nil
	}

	filter, err := p.regionFilter(ctx)
	if err != nil {
		return err
	}

	acc := aggregate.NewAccumulator(p.config.Aggregate.ByDataZone)
	for _, year := range p.config.Years {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Each year accumulates separately so a failure halfway through a
		// file leaves no partial sums behind.
		yearAcc := aggregate.NewAccumulator(p.config.Aggregate.ByDataZone)
		location, stats, err := p.aggregateYear(ctx, year, filter, yearAcc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			p.logger.Warn("skipping year",
				zap.String("stage", StageAggregate),
				zap.Int("year", year),
				zap.String("path", location),
				zap.Error(err),
			)
			metrics.IncFile(StageAggregate, metrics.ResultSkipped)
			continue
		}

		acc.Merge(yearAcc)
		metrics.IncFile(StageAggregate, metrics.ResultSuccess)
		metrics.ObserveRows(StageAggregate, year, stats.Read, stats.Retained, stats.Rejected)
		p.logger.Info("year aggregated",
			zap.String("stage", StageAggregate),
			zap.Int("year", year),
			zap.String("path", location),
			zap.Int("rows_read", stats.Read),
			zap.Int("rows_retained", stats.Retained),
			zap.Int("coerced", yearAcc.Coerced()),
		)
	}

	if acc.Len() == 0 {
		return ErrNoData
	}

	aggs := acc.Aggregates(p.regionName)
	metrics.SetAggregates(len(aggs))
	return p.writeArtifacts(aggs)
}

// aggregateYear streams one year into acc. The clean file is preferred;
// without one the raw source is read and filtered.
func (p *Processor) aggregateYear(ctx context.Context, year int, filter *region.Filter, acc *aggregate.Accumulator) (string, region.Stats, error) {
	var stats region.Stats

	location := p.CleanPath(year)
	var (
		rc  io.ReadCloser
		err error
	)
	if exists(location) {
		rc, err = os.Open(location)
	} else {
		location = p.config.Sources[year]
		rc, err = p.fetcher.Open(ctx, location)
	}
	if err != nil {
		return location, stats, err
	}
	defer rc.Close()

	reader, err := source.NewChunkReader(rc, p.config.Source.ChunkSize)
	if err != nil {
		return location, stats, err
	}
	mapping, err := p.resolver.Resolve(reader.Header(),
		models.FieldPostcode,
		models.FieldTotalConsumption,
		models.FieldMeterCount,
	)
	if err != nil {
		return location, stats, err
	}
	p.logger.Debug("columns resolved",
		zap.Int("year", year),
		zap.String("postcode", mapping.Postcode.Name),
		zap.String("total", mapping.TotalConsumption.Name),
		zap.String("meters", mapping.MeterCount.Name),
		zap.String("mean", mapping.MeanConsumption.Name),
	)

	for {
		chunk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return location, stats, err
		}
		kept, chunkStats := filter.FilterChunk(chunk, mapping.Postcode)
		stats.Add(chunkStats)
		acc.AddChunk(year, kept, mapping)
	}
	return location, stats, nil
}

// writeArtifacts writes every derived file. The long and wide tables go
// last: their presence marks a finished stage.
func (p *Processor) writeArtifacts(aggs []models.RegionYearAggregate) error {
	dir := p.config.Output.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("processor: %w", err)
	}

	measure, err := aggregate.ParseMeasure(p.config.Aggregate.Measure)
	if err != nil {
		return err
	}
	years := aggregate.Years(p.config.Years, aggs)
	rows := aggregate.Consolidate(aggs, years, measure)

	rankings := aggregate.Rank(rows, years, p.config.Aggregate.Rankings)
	for _, r := range rankings {
		path, err := output.WriteRanking(dir, r)
		if err != nil {
			return err
		}
		p.logger.Info("ranking written", zap.String("window", r.Name), zap.String("path", path), zap.Int("rows", len(r.Rows)))
	}

	variance := aggregate.Variance(rows, years)
	if err := output.WriteVariance(filepath.Join(dir, output.VarianceFile), variance); err != nil {
		return err
	}

	groups, unknown := p.config.Groups()
	if len(unknown) > 0 {
		p.logger.Warn("ignoring unknown group members", zap.Strings("members", unknown))
	}
	if err := output.WriteTrends(filepath.Join(dir, output.TrendsFile), aggregate.Trends(rows, years, groups)); err != nil {
		return err
	}

	if p.config.Output.XLSX {
		data, err := output.BuildWorkbook(rows, years, rankings, variance)
		if err != nil {
			return err
		}
		if err := writeBytes(filepath.Join(dir, output.WorkbookFile), data); err != nil {
			return err
		}
	}
	if p.config.Output.PDF {
		title := fmt.Sprintf("Electricity consumption rankings (%s)", p.config.Region.Label)
		data, err := output.BuildRankingPDF(title, rankings)
		if err != nil {
			return err
		}
		if err := writeBytes(filepath.Join(dir, output.ReportFile), data); err != nil {
			return err
		}
	}

	if err := output.WriteAggregates(p.AggregatesPath(), aggs); err != nil {
		return err
	}
	if err := output.WriteConsolidated(p.ConsolidatedPath(), rows, years); err != nil {
		return err
	}
	p.logger.Info("aggregate outputs written",
		zap.String("stage", StageAggregate),
		zap.String("path", dir),
		zap.Int("aggregates", len(aggs)),
		zap.Int("regions", len(rows)),
		zap.Ints("years", years),
	)
	return nil
}

func writeBytes(path string, data []byte) error {
	return output.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
