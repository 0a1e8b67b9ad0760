package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/icapscan/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds digest, content type, size and duration per file.
	verbose bool

	upper cases.Caser
	title cases.Caser
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		upper:      cases.Upper(language.English),
		title:      cases.Title(language.English),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *Report) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeScans(&sb, report)
	w.writeFooter(&sb, report)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *Report) {
	rule := strings.Repeat("=", ruleWidth)
	sb.WriteString("\n" + rule + "\n")
	sb.WriteString(w.upper.String(report.Title) + "\n")
	sb.WriteString(rule + "\n\n")

	fmt.Fprintf(sb, "Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	s := report.Summary
	fmt.Fprintf(sb, "Files:     %d (%s %d, %s %d, %s %d)\n\n",
		s.Total,
		model.VerdictClean, s.Clean,
		model.VerdictInfected, s.Infected,
		"errors", s.Errors,
	)
}

func (w *SimpleWriter) writeScans(sb *strings.Builder, report *Report) {
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	if len(report.Scans) == 0 {
		sb.WriteString("  No files scanned\n\n")
		return
	}

	for _, scan := range report.Scans {
		if scan == nil {
			continue
		}
		label := "[" + w.upper.String(scan.Verdict.String()) + "]"
		fmt.Fprintf(sb, "%-11s %s\n", label, scan.Path)

		switch scan.Verdict {
		case model.VerdictInfected:
			fmt.Fprintf(sb, "            Infection: %s\n", scan.Infection)
		case model.VerdictError:
			kind := scan.ErrorKind
			if kind == "" {
				kind = "error"
			}
			fmt.Fprintf(sb, "            %s: %s\n", w.title.String(strings.ReplaceAll(kind, "_", " ")), scan.Error)
		}

		if w.verbose {
			fmt.Fprintf(sb, "            Server:    %s\n", scan.Server)
			fmt.Fprintf(sb, "            Type:      %s (%d bytes, text mode %v)\n", scan.ContentType, scan.Size, scan.TextMode)
			fmt.Fprintf(sb, "            SHA3-256:  %s\n", scan.Digest)
			fmt.Fprintf(sb, "            Status:    %d in %s\n", scan.StatusCode, scan.Duration.Round(time.Millisecond))
			fmt.Fprintf(sb, "            Scan ID:   %s\n", scan.ID)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder, report *Report) {
	rule := strings.Repeat("=", ruleWidth)
	sb.WriteString(rule + "\n")
	switch {
	case report.Summary.Infected > 0:
		fmt.Fprintf(sb, "%d infected file(s) found\n", report.Summary.Infected)
	case report.Summary.Errors > 0:
		fmt.Fprintf(sb, "%d file(s) could not be scanned\n", report.Summary.Errors)
	default:
		sb.WriteString("No threats found\n")
	}
	if report.Version != "" {
		fmt.Fprintf(sb, "icapscan %s\n", report.Version)
	}
	sb.WriteString(rule + "\n")
}
