package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/nao1215/icapscan/internal/config"
	"github.com/nao1215/icapscan/internal/database"
	"github.com/nao1215/icapscan/internal/model"
	"github.com/nao1215/icapscan/internal/pipeline"
	"github.com/nao1215/icapscan/internal/report"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of scans listed without --limit.
const defaultHistoryLimit = 20

// digestPattern matches a hex SHA3-256 digest.
var digestPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [file | digest | scan-id]",
		Short: "Show previous scan results",
		Long: `History shows scans recorded in the local database.

Without arguments the most recent scans are listed. With a file path, the
file's SHA3-256 digest is computed and every scan of the same content is
shown, even if the file was renamed. A digest or a scan ID can be given
directly as well.

Examples:
  # List the 20 most recent scans
  icapscan history

  # Show all scans of a file's content
  icapscan history invoice.pdf

  # Show verdict counts for the whole history
  icapscan history --stats`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of recent scans to list (0 lists all)")
	cmd.Flags().Bool("stats", false,
		"Print verdict counts for the whole history")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, lookupEnv)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	stats, err := flags.GetBool("stats")
	if err != nil {
		return err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return fmt.Errorf("configuration error: %w", config.ErrConflictingReportFormats)
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if stats {
		counts, err := db.CountByVerdict(ctx)
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), counts)
		return nil
	}

	var query string
	if len(args) == 1 {
		query = args[0]
	}
	scans, err := lookupHistory(ctx, db, query, limit)
	if err != nil {
		return err
	}

	r := report.NewReport("Scan History", getVersion(), scans)
	_, err = newReportWriter(cfg, cmd.OutOrStdout()).Write(r)
	return err
}

// lookupHistory resolves query to stored scans. An empty query lists the
// most recent scans; otherwise query is tried as a file path, then as a
// digest, then as a scan ID.
func lookupHistory(ctx context.Context, db *database.ScanDB, query string, limit int) ([]*model.FileScan, error) {
	if query == "" {
		return db.ListScans(ctx, limit)
	}

	if info, err := os.Stat(query); err == nil && info.Mode().IsRegular() {
		payload, err := os.ReadFile(query) //nolint:gosec // path given by the user
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", query, err)
		}
		return db.GetScansByDigest(ctx, pipeline.Digest(payload))
	}

	if digestPattern.MatchString(query) {
		return db.GetScansByDigest(ctx, strings.ToLower(query))
	}

	scan, err := db.GetScan(ctx, query)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("no scan history for %q", query)
	}
	if err != nil {
		return nil, err
	}
	return []*model.FileScan{scan}, nil
}

// printStats writes the verdict counts in a stable order.
func printStats(w io.Writer, counts map[string]int) {
	total := 0
	for _, n := range counts {
		total += n
	}
	fmt.Fprintf(w, "%-9s %d\n", "total", total)
	for _, verdict := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(w, "%-9s %d\n", verdict, counts[verdict])
	}
}
