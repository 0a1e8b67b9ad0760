package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/icapscan/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format for sharing in issues
// and pull requests.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeScans(md, report)
	w.writeInfections(md, report)
	w.writeFooter(md, report)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *Report) {
	md.H1(report.Title)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Files", strconv.Itoa(report.Summary.Total)},
			{"Status", statusText(report.Summary)},
		},
	})
	md.PlainText("")
}

func statusText(s model.Summary) string {
	switch {
	case s.Infected > 0:
		return "❌ Infected files found"
	case s.Errors > 0:
		return "⚠️ Incomplete (scan errors)"
	default:
		return "✅ Clean"
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *Report) {
	s := report.Summary
	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Verdict", "Count"},
		Rows: [][]string{
			{"🟢 Clean", strconv.Itoa(s.Clean)},
			{"🔴 Infected", strconv.Itoa(s.Infected)},
			{"⚪ Error", strconv.Itoa(s.Errors)},
			{"**Total**", "**" + strconv.Itoa(s.Total) + "**"},
		},
	})
	md.PlainText("")

	if s.Total > 0 {
		w.writePieChart(md, s)
	}

	switch {
	case s.Infected > 0:
		md.Cautionf("%d infected file(s) detected. Quarantine them before further use.", s.Infected)
	case s.Errors > 0:
		md.Warningf("%d file(s) could not be scanned. Their status is unknown.", s.Errors)
	case s.Total > 0:
		md.Tip("All files are clean.")
	default:
		md.Note("No files were scanned.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Verdict Distribution"),
		piechart.WithShowData(true),
	)
	if s.Clean > 0 {
		chart.LabelAndIntValue("Clean", uint64(s.Clean))
	}
	if s.Infected > 0 {
		chart.LabelAndIntValue("Infected", uint64(s.Infected))
	}
	if s.Errors > 0 {
		chart.LabelAndIntValue("Error", uint64(s.Errors))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeScans(md *markdown.Markdown, report *Report) {
	md.H2("Files")
	md.PlainText("")
	if len(report.Scans) == 0 {
		md.PlainText("No files scanned.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(report.Scans))
	for _, scan := range report.Scans {
		if scan == nil {
			continue
		}
		detail := "-"
		switch scan.Verdict {
		case model.VerdictInfected:
			detail = truncateString(scan.Infection, 60)
		case model.VerdictError:
			detail = truncateString(scan.Error, 60)
		}
		rows = append(rows, []string{
			"`" + truncateString(scan.Path, 50) + "`",
			verdictBadge(scan.Verdict),
			strconv.FormatInt(scan.Size, 10),
			"`" + shortDigest(scan.Digest) + "`",
			scan.Duration.Round(time.Millisecond).String(),
			detail,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"File", "Verdict", "Size", "SHA3-256", "Duration", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")
}

func verdictBadge(v model.Verdict) string {
	switch v {
	case model.VerdictClean:
		return "🟢 clean"
	case model.VerdictInfected:
		return "🔴 infected"
	default:
		return "⚪ error"
	}
}

func (w *MarkdownWriter) writeInfections(md *markdown.Markdown, report *Report) {
	infected := model.Infected(report.Scans)
	if len(infected) == 0 {
		return
	}
	md.H2("Infections")
	md.PlainText("")
	for _, scan := range infected {
		md.Details(scan.Path, "Server: "+scan.Server+"\n\nSHA3-256: "+scan.Digest+"\n\n"+scan.Infection)
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown, report *Report) {
	md.HorizontalRule()
	md.PlainText("")
	if report.Version != "" {
		md.PlainTextf("*Report generated by icapscan %s*", report.Version)
		return
	}
	md.PlainText("*Report generated by icapscan*")
}
