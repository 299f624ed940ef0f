package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/columns"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/models"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/region"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/source"
)

// Stage names used in logs and metrics.
const (
	StageClean     = "clean"
	StageAggregate = "aggregate"
	StagePublish   = "publish"
)

// ErrNoData is returned when no year produced any aggregate.
var ErrNoData = errors.New("processor: no yearly data aggregated")

// Sink receives the long aggregate table.
type Sink interface {
	Name() string
	WriteAggregates(ctx context.Context, aggs []models.RegionYearAggregate) error
}

// Processor runs the clean, aggregate and publish stages
type Processor struct {
	config   *config.Config
	fetcher  *source.Fetcher
	resolver *columns.Resolver
	sinks    []Sink
	logger   *zap.Logger

	filter *region.Filter
	set    region.CodeSet
}

// Option configures a Processor.
type Option func(*Processor)

// WithSinks sets the publish targets.
func WithSinks(sinks ...Sink) Option {
	return func(p *Processor) {
		p.sinks = append(p.sinks, sinks...)
	}
}

// WithFetcher replaces the fetcher built from the source configuration.
func WithFetcher(f *source.Fetcher) Option {
	return func(p *Processor) {
		p.fetcher = f
	}
}

// NewProcessor creates a new processor
func NewProcessor(cfg *config.Config, logger *zap.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		config:   cfg,
		resolver: columns.NewResolver(cfg.Columns),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fetcher == nil {
		p.fetcher = source.NewFetcher(source.Options{
			HeaderTimeout:   cfg.Source.HeaderTimeout,
			InitialInterval: cfg.Source.InitialInterval,
			MaxElapsed:      cfg.Source.MaxElapsed,
			UserAgent:       cfg.Source.UserAgent,
		}, logger)
	}
	return p
}

// CleanPath is the clean file for year.
func (p *Processor) CleanPath(year int) string {
	return filepath.Join(p.config.Output.CleanDir, p.config.Region.Label+"_"+strconv.Itoa(year)+".csv")
}

// Run executes clean, aggregate and publish in order.
func (p *Processor) Run(ctx context.Context) error {
	if _, err := p.Clean(ctx); err != nil {
		return err
	}
	if err := p.Aggregate(ctx); err != nil {
		return err
	}
	return p.Publish(ctx)
}

// regionFilter builds the filter for the configured scope once. The
// council scope needs the postcode lookup; failing to obtain it is fatal.
func (p *Processor) regionFilter(ctx context.Context) (*region.Filter, error) {
	if p.filter != nil {
		return p.filter, nil
	}

	set, ok := p.config.RegionSet()
	if !ok {
		return nil, fmt.Errorf("processor: unknown region scope %q", p.config.Region.Scope)
	}

	var strategy region.Strategy
	switch p.config.Region.Scope {
	case config.ScopeCouncil:
		table, err := p.loadLookup(ctx)
		if err != nil {
			return nil, err
		}
		strategy = region.LookupStrategy{Table: table, Councils: set}
	default:
		s, err := region.NewAreaStrategy(p.config.Region.Strategy, set)
		if err != nil {
			return nil, err
		}
		strategy = s
	}

	opts := []region.FilterOption{region.WithMarkers(p.config.Region.Markers...)}
	if len(p.config.Region.Targets) > 0 {
		targets, unknown := set.Subset(p.config.Region.Targets)
		if len(unknown) > 0 {
			p.logger.Warn("ignoring unknown target regions", zap.Strings("targets", unknown))
		}
		opts = append(opts, region.WithTargets(targets))
	}

	p.filter = region.NewFilter(strategy, opts...)
	p.set = set
	p.logger.Info("region filter ready",
		zap.String("scope", p.config.Region.Scope),
		zap.String("strategy", strategy.Name()),
		zap.String("region_set", set.Version()),
		zap.Int("regions", set.Len()),
	)
	return p.filter, nil
}

func (p *Processor) loadLookup(ctx context.Context) (*region.LookupTable, error) {
	path := p.config.Lookup.Path
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if p.config.Lookup.URL == "" {
			return nil, fmt.Errorf("%w: %s not found and no download url configured", region.ErrLookupUnavailable, path)
		}
		p.logger.Info("fetching postcode lookup", zap.String("url", p.config.Lookup.URL), zap.String("path", path))
		if err := p.fetcher.FetchArchiveCSV(ctx, p.config.Lookup.URL, path); err != nil {
			return nil, fmt.Errorf("%w: %v", region.ErrLookupUnavailable, err)
		}
	}

	start := time.Now()
	table, err := region.LoadLookup(path, p.config.Lookup.Columns)
	if err != nil {
		return nil, err
	}
	p.logger.Info("postcode lookup loaded",
		zap.String("path", path),
		zap.Int("postcodes", table.Len()),
		zap.Duration("took", time.Since(start)),
	)
	return table, nil
}

func (p *Processor) regionName(code models.RegionCode) string {
	return p.set.Name(code)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func observeStage(stage string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveStage(stage, result, time.Since(start))
}
