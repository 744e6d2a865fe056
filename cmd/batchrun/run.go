package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/utkarsh5026/batchrun/batch"
	"github.com/utkarsh5026/batchrun/internal/config"
	"github.com/utkarsh5026/batchrun/internal/demo"
	"github.com/utkarsh5026/batchrun/internal/rules"
	"github.com/utkarsh5026/batchrun/store"
)

type runFlags struct {
	configPath string
	workers    int
	maxRetries int
	backoff    time.Duration
	batchSize  int
	conns      int
	connWait   time.Duration
	errorIf    string
	warnIf     string
	logLevel   string
	noProgress bool
}

func newRunCommand() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Index every stored document with a pool of workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			return runIndex(cmd, cfg, &f)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "YAML or JSON config file")
	cmd.Flags().IntVar(&f.workers, "workers", batch.DefaultWorkerCount, "number of workers")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", batch.DefaultMaxRetries, "retries after a resource exhaustion")
	cmd.Flags().DurationVar(&f.backoff, "backoff", batch.DefaultBackoff, "wait before each retry")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", batch.DefaultBatchSize, "page size read from the store")
	cmd.Flags().IntVar(&f.conns, "conns", 0, "index connections (0 = one per worker)")
	cmd.Flags().DurationVar(&f.connWait, "conn-wait", 0, "how long a worker waits for a free connection before backing off (0 = until one is released)")
	cmd.Flags().StringVar(&f.errorIf, "error-if", "size == 0", "CEL expression that rejects a document")
	cmd.Flags().StringVar(&f.warnIf, "warn-if", `"draft" in tags`, "CEL expression that flags a document")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

// loadConfig applies, in order: defaults, the config file, BATCHRUN_* variables
// and explicitly set flags.
func loadConfig(cmd *cobra.Command, f *runFlags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	config.FromEnv(&cfg)

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.WorkerCount = f.workers
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries = f.maxRetries
	}
	if flags.Changed("backoff") {
		cfg.BackoffSeconds = f.backoff.Seconds()
	}
	if flags.Changed("batch-size") {
		cfg.BatchSize = f.batchSize
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func runIndex(cmd *cobra.Command, cfg config.Config, f *runFlags) error {
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	r, err := rules.Compile(f.errorIf, f.warnIf)
	if err != nil {
		return err
	}

	dir, _ := cmd.Flags().GetString("db")
	prefix, _ := cmd.Flags().GetString("prefix")
	st, err := store.Open[demo.Document](store.Options{Dir: dir, Prefix: prefix})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	total, err := st.Count(ctx)
	if err != nil {
		return err
	}

	conns := f.conns
	if conns <= 0 {
		conns = cfg.WorkerCount
	}
	index := demo.NewIndex()
	pool := demo.NewPool(index, conns, f.connWait)

	printConfiguration(cfg, dir, total, conns)

	opts := append(cfg.Options(), batch.WithLogger(logger))
	if !f.noProgress && total > 0 {
		bar := makeProgressBar(total)
		defer func() { _ = bar.Finish() }()
		opts = append(opts, batch.WithOnItemDone(func(int64, error) { _ = bar.Add(1) }))
	}

	eng := batch.NewEngine[demo.Document, *demo.Conn](pool, opts...)
	report, runErr := eng.Execute(ctx, st, (&demo.Indexer{Rules: r}).Work)
	if report == nil {
		return runErr
	}

	printReport(report, index)
	if runErr != nil {
		return runErr
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d worker(s) terminated", len(report.Failures))
	}
	return nil
}

func makeProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Indexing"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
