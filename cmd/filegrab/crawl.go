package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/filegrab/internal/config"
	"github.com/nao1215/filegrab/internal/crawler"
	"github.com/nao1215/filegrab/internal/database"
	"github.com/nao1215/filegrab/internal/log"
	"github.com/nao1215/filegrab/internal/state"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <start-url>",
		Short: "Crawl a site and download matching files",
		Long: `Crawl walks a site breadth-first from the start URL, following links
up to --depth levels, and downloads every file whose extension matches
the target set. Each unique file URL is downloaded at most once; later
pages referencing the same file reuse the copy already on disk.

State persists to the snapshot file after every completed page or
download, so Ctrl-C never loses more than the task in flight.

Examples:
  # Crawl two levels deep, default extensions (pdf, zip, docx, ...)
  filegrab crawl --depth 2 https://example.org/docs

  # Only PDFs and spreadsheets, staying under /reports
  filegrab crawl --ext pdf --ext xlsx --include '/reports/' https://example.org

  # Pick up where an interrupted crawl left off
  filegrab crawl --resume https://example.org/docs

  # Keep a queryable history of runs in SQLite
  filegrab crawl --db-dir ~/.local/share/filegrab https://example.org/docs`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link depth from the start URL (0 = start page only)")
	cmd.Flags().Int("concurrency", config.DefaultConcurrency,
		"Page fetch worker pool size")
	cmd.Flags().Int("download-concurrency", config.DefaultDownloadConcurrency,
		"File download worker pool size")
	cmd.Flags().Float64P("rate", "r", config.DefaultRateLimit,
		"Outbound requests per second shared by all workers (0 = unlimited)")
	cmd.Flags().StringArrayP("ext", "e", nil,
		"File extension to download (repeatable; default: pdf, zip, docx, ...)")
	cmd.Flags().StringArray("include", nil,
		"Regular expression a URL must match to be crawled (repeatable)")
	cmd.Flags().StringArray("exclude", nil,
		"Regular expression that rejects a URL (repeatable, wins over --include)")
	cmd.Flags().Bool("no-robots", false,
		"Ignore robots.txt policies")
	cmd.Flags().Bool("all-domains", false,
		"Follow links beyond the start URL's registrable domain")
	cmd.Flags().Bool("resume", false,
		"Resume from the snapshot at --state instead of starting fresh")
	cmd.Flags().StringP("output", "o", "downloads",
		"Root directory for downloaded files")
	cmd.Flags().String("state", "crawl_state.json",
		"Crawl snapshot file for persistence and resume")
	cmd.Flags().String("logs-dir", "logs",
		"Directory for the crawl log file")
	cmd.Flags().String("report", "report.json",
		"Crawl summary report path")
	cmd.Flags().String("manifest", "downloads_manifest.json",
		"Download manifest path")
	cmd.Flags().String("links-report", "links_by_depth.json",
		"Link map report path")
	cmd.Flags().String("summary", "summary.md",
		"Markdown summary path (empty disables it)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultRequestTimeout,
		"Timeout for each HTTP request")
	cmd.Flags().Int("retries", config.DefaultRetryAttempts,
		"Retry attempts for retryable HTTP statuses")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().String("db-dir", "",
		"Directory for the SQLite crawl archive (empty disables it)")
	cmd.Flags().StringP("config", "c", "",
		"Settings file path (default: .filegrab.yml in current or home directory)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	opts := []crawler.Option{crawler.WithLogger(logger)}

	var archive *database.RunArchive
	var db *database.CrawlDB
	if cfg.DBDir != "" {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("open crawl archive: %w", err)
		}
		defer func() { _ = db.Close() }()

		archive, err = db.BeginRunArchive(context.Background(), cfg.StartURL)
		if err != nil {
			return fmt.Errorf("begin archive run: %w", err)
		}
		opts = append(opts, crawler.WithArchive(archive))
	}

	eng, err := crawler.New(cfg, opts...)
	if err != nil {
		if errors.Is(err, state.ErrCorruptSnapshot) {
			return fmt.Errorf("cannot resume: %w (move or delete %s to start fresh)", err, cfg.StatePath)
		}
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.Info("starting crawl",
		"url", cfg.StartURL,
		"depth", cfg.MaxDepth,
		"extensions", cfg.TargetExtensions)
	eng.Start()

	waitCh := make(chan struct{})
	go func() {
		eng.Wait(0)
		close(waitCh)
	}()

	select {
	case <-sigCh:
		logger.Info("received shutdown signal, stopping crawl")
		eng.Stop()
	case <-waitCh:
	}

	status := eng.Status()
	if archive != nil {
		if err := archive.Finish(context.Background(), status.PagesVisited, status.UniqueAssets); err != nil {
			logger.Warn("finish archive run", "error", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Crawl %s: %d pages visited, %d files downloaded, %d links skipped\n",
		status.State, status.PagesVisited, status.UniqueAssets, status.SkippedCount)
	fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", cfg.ReportPath)
	return nil
}

// buildConfig assembles a Config from defaults, the optional settings
// file, and flags, in that order of increasing precedence.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.StartURL = args[0]

	// Settings file first so flags can override it.
	explicit, _ := cmd.Flags().GetString("config")
	if path := config.FindSettingsFile(explicit); path != "" {
		settings, err := config.LoadSettings(path)
		if err != nil && !errors.Is(err, config.ErrSettingsNotFound) {
			return nil, fmt.Errorf("load settings %s: %w", path, err)
		}
		if settings != nil {
			if err := settings.Apply(cfg); err != nil {
				return nil, fmt.Errorf("apply settings %s: %w", path, err)
			}
		}
	} else if explicit != "" {
		return nil, fmt.Errorf("settings file %s not found", explicit)
	}

	cfg.MaxDepth = mustInt(cmd, "depth")
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency = mustInt(cmd, "concurrency")
	}
	if cmd.Flags().Changed("download-concurrency") {
		cfg.DownloadConcurrency = mustInt(cmd, "download-concurrency")
	}
	if cmd.Flags().Changed("rate") {
		cfg.RateLimit, _ = cmd.Flags().GetFloat64("rate")
	}
	if exts, _ := cmd.Flags().GetStringArray("ext"); len(exts) > 0 {
		cfg.TargetExtensions = exts
	}
	if include, _ := cmd.Flags().GetStringArray("include"); len(include) > 0 {
		cfg.IncludePatterns = include
	}
	if exclude, _ := cmd.Flags().GetStringArray("exclude"); len(exclude) > 0 {
		cfg.ExcludePatterns = exclude
	}
	if noRobots, _ := cmd.Flags().GetBool("no-robots"); noRobots {
		cfg.RespectRobots = false
	}
	if allDomains, _ := cmd.Flags().GetBool("all-domains"); allDomains {
		cfg.SameDomainOnly = false
	}
	cfg.Resume, _ = cmd.Flags().GetBool("resume")
	if cmd.Flags().Changed("output") {
		cfg.OutputDir, _ = cmd.Flags().GetString("output")
	}
	if cmd.Flags().Changed("state") {
		cfg.StatePath, _ = cmd.Flags().GetString("state")
	}
	if cmd.Flags().Changed("logs-dir") {
		cfg.LogsDir, _ = cmd.Flags().GetString("logs-dir")
	}
	if cmd.Flags().Changed("report") {
		cfg.ReportPath, _ = cmd.Flags().GetString("report")
	}
	if cmd.Flags().Changed("manifest") {
		cfg.ManifestPath, _ = cmd.Flags().GetString("manifest")
	}
	if cmd.Flags().Changed("links-report") {
		cfg.LinksReportPath, _ = cmd.Flags().GetString("links-report")
	}
	if cmd.Flags().Changed("summary") {
		cfg.SummaryPath, _ = cmd.Flags().GetString("summary")
	}
	if cmd.Flags().Changed("timeout") {
		cfg.RequestTimeout, _ = cmd.Flags().GetDuration("timeout")
	}
	if cmd.Flags().Changed("retries") {
		cfg.RetryAttempts = mustInt(cmd, "retries")
	}
	if cmd.Flags().Changed("user-agent") {
		cfg.UserAgent, _ = cmd.Flags().GetString("user-agent")
	}
	cfg.DBDir, _ = cmd.Flags().GetString("db-dir")
	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// mustInt reads an int flag that is guaranteed to exist.
func mustInt(cmd *cobra.Command, name string) int {
	v, _ := cmd.Flags().GetInt(name)
	return v
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger builds the crawl logger: human-readable output on stderr
// mirrored to a timestamped file under the logs directory. The
// returned func closes the file.
func setupLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if cfg.LogsDir == "" {
		return log.NewLogger(os.Stderr, cfg.Verbose), func() {}, nil
	}
	if err := os.MkdirAll(cfg.LogsDir, 0750); err != nil {
		return nil, nil, fmt.Errorf("create logs directory %s: %w", cfg.LogsDir, err)
	}
	name := fmt.Sprintf("crawl_%s.log", time.Now().UTC().Format("20060102_150405"))
	f, err := os.Create(filepath.Join(cfg.LogsDir, name)) //nolint:gosec // Log path derives from configuration
	if err != nil {
		return nil, nil, fmt.Errorf("create log file: %w", err)
	}
	logger := log.NewLogger(io.MultiWriter(os.Stderr, f), cfg.Verbose)
	return logger, func() { _ = f.Close() }, nil
}
