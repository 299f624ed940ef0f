package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/output"
)

// Publish pushes the long table to every sink. A failing sink does not stop
// the others; all failures are returned joined.
func (p *Processor) Publish(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { observeStage(StagePublish, start, err) }()

	if len(p.sinks) == 0 {
		p.logger.Info("no sinks enabled, nothing to publish", zap.String("stage", StagePublish))
		return nil
	}

	aggs, err := output.ReadAggregates(p.AggregatesPath())
	if err != nil {
		return fmt.Errorf("processor: publish: %w", err)
	}

	var errs []error
	for _, sink := range p.sinks {
		if err := ctx.Err(); err != nil {
			return err
		}
		sinkStart := time.Now()
		if err := sink.WriteAggregates(ctx, aggs); err != nil {
			p.logger.Error("sink write failed",
				zap.String("stage", StagePublish),
				zap.String("sink", sink.Name()),
				zap.Error(err),
			)
			metrics.IncSinkWrite(sink.Name(), metrics.ResultError)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		metrics.IncSinkWrite(sink.Name(), metrics.ResultSuccess)
		p.logger.Info("aggregates published",
			zap.String("stage", StagePublish),
			zap.String("sink", sink.Name()),
			zap.Int("aggregates", len(aggs)),
			zap.Duration("took", time.Since(sinkStart)),
		)
	}
	return errors.Join(errs...)
}
