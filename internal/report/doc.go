// Package report renders batches of file scans.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown with a verdict table and a mermaid pie chart
//
// All writers implement the Writer interface and take a *Report.
package report
