package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/icapscan/internal/config"
	"github.com/nao1215/icapscan/internal/database"
	"github.com/nao1215/icapscan/internal/icap"
	"github.com/nao1215/icapscan/internal/model"
	"github.com/nao1215/icapscan/internal/pipeline"
	"github.com/nao1215/icapscan/internal/report"
	"github.com/spf13/cobra"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <file>...",
		Short: "Scan files with an ICAP antivirus service",
		Long: `Scan submits each file to the ICAP server and reports its verdict.

For every file a new TCP connection is opened, the service is negotiated
with OPTIONS, and the file content is sent with RESPMOD. A 204 response
means the file is clean; a 200 response carrying the infection header
means the file is infected.

Every scan is recorded in the local history database unless --no-db is set.
The command exits non-zero when any file is infected or could not be scanned.

Examples:
  # Scan a single file against the default server (127.0.0.1:1344/avscan)
  icapscan scan invoice.pdf

  # Scan several files, 8 at a time, against c-icap with ClamAV
  icapscan scan -b 8 -e srv_clamav *.zip

  # Use a named server profile from .icapscan
  icapscan scan -s sophos report.docx

  # Write a Markdown report
  icapscan scan -m -o reports/scan.md downloads/*`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of concurrent scans")
	cmd.Flags().Int64("max-size", 0,
		"Skip files larger than this many bytes (0 means no limit)")
	cmd.Flags().Bool("no-db", false,
		"Do not record scans in the history database")

	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildScanConfig(cmd, args, lookupEnv)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	stderr := &lockedWriter{w: cmd.ErrOrStderr()}
	logger := setupLogger(stderr, cfg.Verbose)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	return runScan(ctx, cfg, cmd.OutOrStdout(), stderr, logger)
}

// buildScanConfig creates a Config from the shared configuration and the
// scan command flags.
func buildScanConfig(cmd *cobra.Command, args []string, lookupEnv func(string) (string, bool)) (*config.Config, error) {
	cfg, err := loadConfig(cmd, lookupEnv)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.MaxFileSize, err = flags.GetInt64("max-size"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	cfg.Targets = args
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// runScan scans every target and writes the report.
func runScan(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	logger.Info("starting scan",
		"targets", len(cfg.Targets),
		"server", cfg.ICAPServer().ServiceURI(),
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	var db *database.ScanDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	client, err := newICAPClient(cfg, logger)
	if err != nil {
		return err
	}

	// Keep saver a nil interface, not a typed nil, when no database is open.
	var saver pipeline.Saver
	if db != nil {
		saver = db
	}

	readStep := pipeline.NewReadStep(
		pipeline.WithTextMIMETypes(cfg.TextMIMETypes),
		pipeline.WithMaxFileSize(cfg.MaxFileSize),
	)
	scanStep := pipeline.NewScanStep(client, logger)

	var mu sync.Mutex
	total := len(cfg.Targets)
	done := 0
	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			p := pipeline.New(pipeline.WithLogger(logger))
			p.AddSteps(readStep, scanStep)
			if saver != nil {
				p.AddDeferredStep(pipeline.NewRecordStep(saver))
			}
			return p
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
		pipeline.WithProgress(func(scan *model.FileScan, _ int) {
			mu.Lock()
			defer mu.Unlock()
			done++
			fmt.Fprintf(stderr, "[%d/%d] %-8s %s\n", done, total, scan.Verdict, scan.Path)
		}),
	)

	startTime := time.Now()
	scans, batchErr := bp.ProcessBatch(ctx, cfg.Targets)
	logger.Info("scan finished", "elapsed", time.Since(startTime).Round(time.Millisecond))

	r := report.NewReport("ICAP Scan Report", getVersion(), scans)
	if err := outputReport(cfg, r, stdout); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if batchErr != nil {
		return fmt.Errorf("scan interrupted: %w", batchErr)
	}
	if r.Summary.HasFindings() {
		return fmt.Errorf("%w: %d infected, %d failed", errFindings, r.Summary.Infected, r.Summary.Errors)
	}
	return nil
}

// newICAPClient builds an ICAP client from the configuration.
func newICAPClient(cfg *config.Config, logger *slog.Logger) (*icap.Client, error) {
	opts, err := cfg.ClientOptions()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	opts = append(opts, icap.WithLogger(logger))

	client, err := icap.NewClient(cfg.ICAPServer(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ICAP client: %w", err)
	}
	return client, nil
}

// outputReport writes the report in the requested format, to cfg.ReportFile
// when set and to stdout otherwise.
func outputReport(cfg *config.Config, r *report.Report, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports name local files and detected threats; keep them owner-only.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	_, err := newReportWriter(cfg, output).Write(r)
	return err
}

// newReportWriter selects the report writer for the configured format.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}
