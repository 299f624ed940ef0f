package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/logging"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/metrics"
	"github.com/kanna-karuppasamy/smart-grid-postcode-etl/internal/processor"
)

type options struct {
	configFile string
	logLevel   string
	force      bool
}

// app is the state shared by every subcommand once the root pre-run has
// loaded the configuration.
type app struct {
	opts   options
	cfg    *config.Config
	logger *zap.Logger
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configFile, "config", "", "configuration file (defaults to $"+config.ConfigFileEnv+")")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error (defaults to $LOG_LEVEL)")
	fs.BoolVar(&o.force, "force", false, "recompute stages whose outputs already exist")
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "etl",
		Short: "Postcode-level electricity consumption ETL",
		Long: `Filters the yearly postcode-level electricity consumption tables down to a
region set, aggregates consumption per region and year, and derives the
year-on-year comparison tables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	a.opts.addFlags(root.PersistentFlags())

	root.AddCommand(
		a.stageCmd("clean", "Filter every configured year into a clean file", func(p *processor.Processor, ctx context.Context) error {
			_, err := p.Clean(ctx)
			return err
		}),
		a.stageCmd("aggregate", "Aggregate the clean files into region-year tables", (*processor.Processor).Aggregate),
		a.stageCmd("publish", "Publish the aggregate table to the enabled sinks", (*processor.Processor).Publish),
		a.stageCmd("run", "Run clean, aggregate and publish", (*processor.Processor).Run),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.opts.configFile)
	if err != nil {
		return err
	}
	if a.opts.logLevel != "" {
		cfg.Log.Level = a.opts.logLevel
	}
	if a.opts.force {
		cfg.Force = true
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	metrics.Init()
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) stageCmd(use, short string, stage func(*processor.Processor, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.logger.Sync()
			return a.execute(cmd.Context(), use, stage)
		},
	}
}

func (a *app) execute(ctx context.Context, name string, stage func(*processor.Processor, context.Context) error) error {
	var opts []processor.Option
	var sinkErr error
	if name == "publish" || name == "run" {
		sinks, closeSinks, err := openSinks(ctx, a.cfg, a.logger)
		defer closeSinks()
		sinkErr = err
		opts = append(opts, processor.WithSinks(sinks...))
	}

	p := processor.NewProcessor(a.cfg, a.logger, opts...)
	a.logger.Info("starting", zap.String("command", name), zap.Ints("years", a.cfg.Years), zap.Bool("force", a.cfg.Force))

	err := errors.Join(stage(p, ctx), sinkErr)
	if mErr := metrics.WriteTextfile(a.cfg.Metrics.Textfile); mErr != nil {
		a.logger.Warn("failed to write metrics textfile", zap.String("path", a.cfg.Metrics.Textfile), zap.Error(mErr))
	}
	if err != nil {
		a.logger.Error("command failed", zap.String("command", name), zap.Error(err))
		return err
	}
	a.logger.Info("completed", zap.String("command", name))
	return nil
}
