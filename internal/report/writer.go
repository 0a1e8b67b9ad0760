package report

import (
	"io"
	"time"

	"github.com/nao1215/icapscan/internal/model"
)

// Report is one rendered batch of scans.
type Report struct {
	// Title heads the report, e.g. "ICAP Scan Report" or "Scan History".
	Title string `json:"title"`

	// Version is the icapscan version that produced the report.
	Version string `json:"version"`

	// GeneratedAt is when the report was built.
	GeneratedAt time.Time `json:"generated_at"`

	// Summary counts the verdicts in Scans.
	Summary model.Summary `json:"summary"`

	// Scans are the file scans in display order.
	Scans []*model.FileScan `json:"scans"`
}

// NewReport builds a Report and its summary from scans.
func NewReport(title, version string, scans []*model.FileScan) *Report {
	return &Report{
		Title:       title,
		Version:     version,
		GeneratedAt: time.Now(),
		Summary:     model.Summarize(scans),
		Scans:       scans,
	}
}

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(report *Report) (int, error)
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// truncateString truncates a string to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// shortDigest returns the first 12 hex characters of a digest.
func shortDigest(digest string) string {
	if len(digest) <= 12 {
		return digest
	}
	return digest[:12]
}
