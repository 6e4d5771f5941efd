package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/gleaner/internal/classify"
	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/engine"
	"github.com/IshaanNene/gleaner/internal/extract"
	"github.com/IshaanNene/gleaner/internal/fetcher"
	"github.com/IshaanNene/gleaner/internal/observability"
	"github.com/IshaanNene/gleaner/internal/pipeline"
	"github.com/IshaanNene/gleaner/internal/progress"
	"github.com/IshaanNene/gleaner/internal/storage"
	"github.com/IshaanNene/gleaner/internal/types"
)

var (
	cfgFile     string
	verbose     bool
	seedsFile   string
	outputPath  string
	formats     []string
	workers     int
	maxRelevant int
	expandDepth int
	metricsAddr string
	runID       string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gleaner",
		Short: "Gleaner: resumable fetch-extract-persist runs",
		Long: `Gleaner enumerates identifiers, fetches their content politely with bounded
retry, extracts structured records and persists progress after every item so
an interrupted run picks up where it stopped.

  gleaner run https://en.wikipedia.org/wiki/Peace_of_Westphalia
  gleaner run --seeds-file seeds.txt -c configs/relevance.yaml
  gleaner status -c configs/relevance.yaml`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		var ce *types.ConfigError
		if errors.As(err, &ce) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [seeds...]",
		Short: "Fetch, extract and persist records for the given seeds",
		Long: `Run the pipeline over the seeds given as arguments, in --seeds-file and in
enumerate.seeds. Identifiers already done in the progress store are skipped.
SIGINT or SIGTERM stops the run between identifiers; run again to resume.`,
		RunE: runPipeline,
	}

	cmd.Flags().StringVar(&seedsFile, "seeds-file", "", "file with one seed per line (# comments allowed)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output directory")
	cmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "output formats: json, jsonl, csv, mongo")
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "number of concurrent workers (hosts are never shared)")
	cmd.Flags().IntVarP(&maxRelevant, "max-relevant", "m", 0, "stop after this many relevant records (0 = unlimited)")
	cmd.Flags().IntVarP(&expandDepth, "depth", "d", 0, "link expansion depth from each seed")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve metrics on this address (e.g. :9090)")
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier written to the progress file (default: random)")

	return cmd
}

// runPipeline executes the run command.
func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}

	logger, closeLog, err := config.SetupLogger(cfg.Logging, verbose)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer closeLog()

	seeds, err := engine.CollectSeeds(args, cfg.Enumerate.Seeds, cfg.Enumerate.SeedsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runID == "" {
		runID = uuid.NewString()
	}
	logger = logger.With("run_id", runID)

	logger.Info("starting run",
		"seeds", len(seeds),
		"workers", cfg.Engine.Workers,
		"max_relevant", cfg.Engine.MaxRelevant,
		"progress", cfg.Progress.Backend,
		"output", cfg.Output.Formats,
	)

	source, err := fetcher.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer source.Close()

	throttle := fetcher.NewThrottle(cfg.Engine.PolitenessDelay, cfg.Engine.PolitenessJitter)
	itemFetcher := fetcher.NewFetcher(source, fetcher.PolicyFromConfig(cfg.Retry), logger,
		fetcher.WithThrottle(throttle),
		fetcher.WithResolver(fetcher.Resolver{Template: cfg.Fetcher.URLTemplate}),
	)

	extractor, err := extract.New(cfg.Extract, logger)
	if err != nil {
		return &types.ConfigError{Field: "extract", Err: err}
	}

	stages, err := classify.NewStages(cfg.Classify, logger)
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(cfg.Pipeline, logger)
	if err != nil {
		return err
	}

	filters, err := buildFilters(cfg, throttle, logger)
	if err != nil {
		return err
	}

	store, err := progress.New(ctx, cfg, runID, logger)
	if err != nil {
		return fmt.Errorf("open progress store: %w", err)
	}
	defer store.Close()

	sink, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, cfg.Metrics.Addr, cfg.Metrics.Path)
	}

	opts := []engine.Option{
		engine.WithPipeline(pipe),
		engine.WithSink(sink),
		engine.WithFilters(filters...),
		engine.WithMetrics(metrics),
	}
	for _, s := range stages {
		opts = append(opts, engine.WithStages(s))
	}

	eng, err := engine.New(cfg, logger, itemFetcher, extractor, store, opts...)
	if err != nil {
		return err
	}

	summary, err := eng.Run(ctx, seeds)
	if err != nil {
		return err
	}

	printSummary(os.Stdout, summary, cfg)
	return nil
}

// loadConfig reads the config file and applies the flags that were set.
// Validation is skipped for read-only commands.
func loadConfig(cmd *cobra.Command, validate bool) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, &types.ConfigError{Err: err}
	}

	flags := cmd.Flags()
	if flags.Changed("seeds-file") {
		cfg.Enumerate.SeedsFile = seedsFile
	}
	if flags.Changed("output") {
		cfg.Output.Path = outputPath
	}
	if flags.Changed("format") {
		cfg.Output.Formats = formats
	}
	if flags.Changed("workers") {
		cfg.Engine.Workers = workers
	}
	if flags.Changed("max-relevant") {
		cfg.Engine.MaxRelevant = maxRelevant
	}
	if flags.Changed("depth") {
		cfg.Enumerate.ExpandDepth = expandDepth
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Enabled = metricsAddr != ""
		cfg.Metrics.Addr = metricsAddr
	}

	if !validate {
		return cfg, nil
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildFilters returns the pre-fetch filters: exclusion patterns, then
// robots.txt when enabled.
func buildFilters(cfg *config.Config, throttle *fetcher.Throttle, logger *slog.Logger) ([]engine.Filter, error) {
	var filters []engine.Filter
	if len(cfg.Enumerate.Exclude) > 0 {
		pf, err := engine.NewPatternFilter(cfg.Enumerate.Exclude)
		if err != nil {
			return nil, err
		}
		filters = append(filters, pf)
	}
	if cfg.Engine.RespectRobotsTxt {
		ua := "gleaner/" + config.Version
		if len(cfg.Engine.UserAgents) > 0 {
			ua = cfg.Engine.UserAgents[0]
		}
		filters = append(filters, engine.NewRobotsFilter(ua, throttle, logger))
	}
	return filters, nil
}
