package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nao1215/phishguard/internal/config"
	"github.com/nao1215/phishguard/internal/model"
	"github.com/nao1215/phishguard/internal/pipeline"
	"github.com/nao1215/phishguard/internal/popup"
	"github.com/nao1215/phishguard/internal/report"
	"github.com/nao1215/phishguard/internal/server"
)

// errPhishingDetected is returned with --fail-on-phishing when at least one
// URL was judged phishing.
var errPhishingDetected = errors.New("phishing detected")

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [url...]",
		Short: "Ask the classification service whether URLs are phishing",
		Long: `Scan sends each URL to the phishing classification service and prints
the verdict.

A single URL is shown the way the browser popup shows it. Several URLs, or
any report flag, produce a report instead. Verdicts are written to the
scan history unless --server is used, in which case the running daemon
records them.

Examples:
  # Check one page
  phishguard scan https://example.com

  # Check several pages, four at a time, and write a Markdown report
  phishguard scan -b 4 -m -o report.md https://a.example https://b.example

  # Use a running "phishguard serve" daemon
  phishguard scan --server http://127.0.0.1:7878 https://example.com

  # Use a one-off API key instead of the stored one
  phishguard scan --api-key "$KEY" https://example.com`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScanCmd,
	}

	// Service flags
	cmd.Flags().StringP("server", "s", "",
		"Send scans to a running phishguard daemon at this URL")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each classification request")
	cmd.Flags().String("api-key", "",
		"API key for this run only (the stored key is not changed)")
	cmd.Flags().Int64("tab", 1,
		"Tab identifier of the first URL; later URLs use the following identifiers")

	// Batch scanning flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent scans")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("fail-on-phishing", false,
		"Exit with an error when any URL is judged phishing")

	return cmd
}

// scanOptions holds the scan flags that are not part of the configuration.
type scanOptions struct {
	apiKey         string
	firstTab       model.TabID
	failOnPhishing bool
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, opts, err := buildScanConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.ValidateScan(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if !opts.firstTab.Valid() {
		return fmt.Errorf("configuration error: invalid tab id %d", opts.firstTab)
	}

	logger := setupLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	return runScan(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, opts, logger)
}

// buildScanConfig loads the configuration and applies the scan flags.
// Flags only override the config file when they were given explicitly.
func buildScanConfig(cmd *cobra.Command, args []string) (*config.Config, scanOptions, error) {
	var opts scanOptions

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, opts, err
	}

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("batch") {
		if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
			return nil, opts, err
		}
	}
	if cfg.ServerURL, err = flags.GetString("server"); err != nil {
		return nil, opts, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, opts, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, opts, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, opts, err
	}

	if opts.apiKey, err = flags.GetString("api-key"); err != nil {
		return nil, opts, err
	}
	tab, err := flags.GetInt64("tab")
	if err != nil {
		return nil, opts, err
	}
	opts.firstTab = model.TabID(tab)
	if opts.failOnPhishing, err = flags.GetBool("fail-on-phishing"); err != nil {
		return nil, opts, err
	}

	cfg.Targets = args

	return cfg, opts, nil
}

// wantsReport reports whether the scan should produce a report rather than
// the popup view.
func wantsReport(cfg *config.Config) bool {
	return len(cfg.Targets) > 1 || cfg.JSONReport || cfg.MarkdownReport || cfg.ReportFile != ""
}

// runScan classifies every target through a local coordinator or a remote
// daemon and prints the outcome.
func runScan(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, opts scanOptions, logger *slog.Logger) error {
	var (
		scanner popup.Coordinator
		service string
	)

	if cfg.ServerURL != "" {
		if opts.apiKey != "" {
			return errors.New("--api-key cannot be used with --server; run \"phishguard apikey set\" against the daemon's configuration instead")
		}
		client, err := server.NewClient(cfg.ServerURL, nil, logger)
		if err != nil {
			return err
		}
		scanner = client
		service = cfg.ServerURL
	} else {
		rt, err := openRuntime(cfg, logger, opts.apiKey)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := rt.Close(); cerr != nil {
				logger.Warn("failed to close runtime", "error", cerr)
			}
		}()
		scanner = rt.coord
		service = cfg.ClassifyURL()
	}

	logger.Info("starting scan",
		"targets", len(cfg.Targets),
		"service", service,
	)

	if !wantsReport(cfg) {
		return runPopupScan(ctx, stdout, scanner, cfg.Targets[0], opts, logger)
	}
	return runBatchScan(ctx, stdout, stderr, scanner, service, cfg, opts, logger)
}

// runPopupScan scans one URL and draws it the way the popup does.
func runPopupScan(ctx context.Context, stdout io.Writer, scanner popup.Coordinator, target string, opts scanOptions, logger *slog.Logger) error {
	surface := popup.New(scanner, popup.NewTerminalRenderer(stdout), logger)

	view, err := surface.Scan(ctx, opts.firstTab, target)
	if err != nil {
		if model.KindOf(err) == model.KindMissingCredential {
			return fmt.Errorf("%w: run \"phishguard apikey set\" or pass --api-key", err)
		}
		return err
	}

	if opts.failOnPhishing && view.State == popup.StatePhishing {
		return errPhishingDetected
	}
	return nil
}

// runBatchScan scans every target concurrently and writes a report.
func runBatchScan(
	ctx context.Context,
	stdout, stderr io.Writer,
	scanner pipeline.Scanner,
	service string,
	cfg *config.Config,
	opts scanOptions,
	logger *slog.Logger,
) error {
	processor := pipeline.NewBatchProcessor(scanner,
		pipeline.WithBatchLogger(logger),
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithFirstTab(opts.firstTab),
		pipeline.WithOrigin(model.OriginUserClick),
	)

	progress := newProgressPrinter(stderr, len(cfg.Targets))
	results := make([]model.ScanResult, len(cfg.Targets))
	err := processor.ProcessBatchWithCallback(ctx, cfg.Targets, func(result model.ScanResult, index int) {
		results[index] = result
		progress.done(result)
	})
	if err != nil {
		return fmt.Errorf("scan cancelled: %w", err)
	}

	scanReport := model.NewScanReport(service)
	for _, result := range results {
		scanReport.Add(result)
	}

	if err := outputReport(stdout, cfg, scanReport); err != nil {
		return err
	}

	if opts.failOnPhishing && scanReport.HasPhishing() {
		return errPhishingDetected
	}
	return nil
}

// progressPrinter reports finished scans on stderr.
type progressPrinter struct {
	mu       sync.Mutex
	total    int
	finished int
	info     *pterm.PrefixPrinter
	warning  *pterm.PrefixPrinter
	failure  *pterm.PrefixPrinter
}

func newProgressPrinter(w io.Writer, total int) *progressPrinter {
	return &progressPrinter{
		total:   total,
		info:    pterm.Info.WithWriter(w),
		warning: pterm.Warning.WithWriter(w),
		failure: pterm.Error.WithWriter(w),
	}
}

// done prints one finished scan. It is safe for concurrent use.
func (p *progressPrinter) done(result model.ScanResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finished++
	switch {
	case result.Failed():
		p.failure.Printfln("[%d/%d] %s: %s", p.finished, p.total, result.URL, result.StatusText())
	case result.IsPhishing:
		p.warning.Printfln("[%d/%d] %s: %s", p.finished, p.total, result.URL, result.StatusText())
	default:
		p.info.Printfln("[%d/%d] %s: %s", p.finished, p.total, result.URL, result.StatusText())
	}
}

// outputReport writes the scan report in the requested format to the
// report file, or to stdout when none is given.
func outputReport(stdout io.Writer, cfg *config.Config, scanReport *model.ScanReport) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports list visited URLs, so only the owner may read them.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	if _, err := writer.Write(scanReport); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
