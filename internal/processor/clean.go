package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/output"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/region"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/source"
)

// YearResult is the outcome of one year in the clean stage.
type YearResult struct {
	Year     int
	Result   string
	Path     string
	Read     int
	Retained int
	Err      error
}

// Clean writes one filtered file per configured year. A year whose source
// cannot be read or lacks a postcode column is skipped; only a missing
// postcode lookup or cancellation stops the stage.
func (p *Processor) Clean(ctx context.Context) (results []YearResult, err error) {
	start := time.Now()
	defer func() { observeStage(StageClean, start, err) }()

	var filter *region.Filter
	for _, year := range p.config.Years {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := YearResult{Year: year, Path: p.CleanPath(year)}
		if exists(res.Path) && !p.config.Force {
			res.Result = metrics.ResultCached
			p.logger.Info("clean file exists, skipping", zap.String("stage", StageClean), zap.Int("year", year), zap.String("path", res.Path))
			metrics.IncFile(StageClean, res.Result)
			results = append(results, res)
			continue
		}

		if filter == nil {
			if filter, err = p.regionFilter(ctx); err != nil {
				return results, err
			}
		}

		stats, err := p.cleanYear(ctx, year, res.Path, filter)
		res.Read, res.Retained = stats.Read, stats.Retained
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}
			res.Result, res.Err = metrics.ResultSkipped, err
			p.logger.Warn("skipping year",
				zap.String("stage", StageClean),
				zap.Int("year", year),
				zap.String("url", p.config.Sources[year]),
				zap.Error(err),
			)
		} else {
			res.Result = metrics.ResultSuccess
			p.logger.Info("clean file written",
				zap.String("stage", StageClean),
				zap.Int("year", year),
				zap.String("path", res.Path),
				zap.Int("rows_read", stats.Read),
				zap.Int("rows_retained", stats.Retained),
			)
		}
		metrics.IncFile(StageClean, res.Result)
		metrics.ObserveRows(StageClean, year, stats.Read, stats.Retained, stats.Rejected)
		results = append(results, res)
	}
	return results, nil
}

func (p *Processor) cleanYear(ctx context.Context, year int, path string, filter *region.Filter) (region.Stats, error) {
	var stats region.Stats

	rc, err := p.fetcher.Open(ctx, p.config.Sources[year])
	if err != nil {
		return stats, err
	}
	defer rc.Close()

	reader, err := source.NewChunkReader(rc, p.config.Source.ChunkSize)
	if err != nil {
		return stats, err
	}
	postcode, err := p.resolver.Postcode(reader.Header())
	if err != nil {
		return stats, err
	}

	part, err := output.CreatePartFile(path, reader.Header())
	if err != nil {
		return stats, err
	}
	for {
		chunk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			part.Abort()
			return stats, err
		}
		kept, chunkStats := filter.FilterChunk(chunk, postcode)
		stats.Add(chunkStats)
		if err := part.Append(kept); err != nil {
			part.Abort()
			return stats, err
		}
		p.logger.Debug("chunk filtered", zap.Int("year", year), zap.Int("rows_read", stats.Read), zap.Int("rows_retained", stats.Retained))
	}

	if err := part.Commit(); err != nil {
		return stats, fmt.Errorf("processor: commit %s: %w", path, err)
	}
	return stats, nil
}
