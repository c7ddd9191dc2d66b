// Package report writes scan reports.
//
// This package contains writers for different output formats:
//   - SimpleWriter: human-readable text for the terminal
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown for sharing, with a verdict pie chart
//
// Report data lives in the model package. Writers implement the Writer
// interface and can be combined with MultiWriter.
package report
