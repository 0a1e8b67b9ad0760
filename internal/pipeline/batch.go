package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/icapscan/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of files scanned at once when not configured.
const DefaultConcurrency = 4

// BatchProcessor scans multiple files concurrently.
// It uses errgroup to manage goroutines and respect the concurrency limit.
type BatchProcessor struct {
	// pipelineFactory creates a fresh pipeline for each file.
	pipelineFactory func() *Pipeline

	concurrency int
	logger      *slog.Logger
	onDone      func(scan *model.FileScan, index int)
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent scans.
// Non-positive values are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithProgress registers a callback invoked as each file finishes.
// It is called from the scanning goroutine and must be safe for concurrent use.
func WithProgress(fn func(scan *model.FileScan, index int)) BatchOption {
	return func(b *BatchProcessor) {
		b.onDone = fn
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch scans the files at paths concurrently.
//
// The returned slice has one FileScan per path, in the order of paths,
// whether the scan succeeded or not. A file that was never started because ctx
// was cancelled gets a scan marked as canceled. The error is non-nil only when
// ctx was cancelled; individual scan failures are recorded in the FileScans.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, paths []string) ([]*model.FileScan, error) {
	bp.logger.Info("starting batch processing",
		"total_files", len(paths),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	// Each goroutine writes only its own index.
	results := make([]*model.FileScan, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, path := range paths {
		job := NewJob(path)
		results[i] = job.Scan

		if err := gctx.Err(); err != nil {
			job.Scan.MarkFailed(err, "canceled", 0)
			continue
		}

		g.Go(func() error {
			bp.logger.Info("scanning file",
				"path", path,
				"index", i+1,
				"total", len(paths),
			)

			if err := bp.pipelineFactory().Execute(gctx, job); err != nil {
				bp.logger.Warn("scan failed",
					"path", path,
					"error", err,
				)
			} else {
				bp.logger.Info("scan completed",
					"path", path,
					"verdict", job.Scan.Verdict.String(),
				)
			}
			if bp.onDone != nil {
				bp.onDone(job.Scan, i)
			}
			// Scan failures must not cancel the other scans.
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	bp.logger.Info("batch processing complete",
		"total_files", len(paths),
		"elapsed", time.Since(startTime),
	)
	return results, err
}
