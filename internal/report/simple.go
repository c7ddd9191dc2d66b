package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/phishguard/internal/model"
)

// SimpleWriter outputs human-readable text reports with plain ASCII
// formatting, so the output can be piped to files or other tools.
type SimpleWriter struct {
	baseWriter

	// verbose adds origin, error kind and timestamps to every result.
	verbose bool
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
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.ScanReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writeResults(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with scan information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.ScanReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        PHISHGUARD REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Service:        %s\n", report.Service)
	fmt.Fprintf(sb, "Scan Date:      %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "URLs Scanned:   %d\n", len(report.Results))
	sb.WriteString("\n")
}

// writeSummary writes the verdict counts.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.ScanReport) {
	phishing, safe, failed := report.Counts()

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "  PHISHING: %d\n", phishing)
	fmt.Fprintf(sb, "  SAFE:     %d\n", safe)
	fmt.Fprintf(sb, "  ERROR:    %d\n", failed)
	sb.WriteString("\n")
}

// writeResults writes one entry per scanned URL.
func (w *SimpleWriter) writeResults(sb *strings.Builder, report *model.ScanReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("RESULTS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Results) == 0 {
		sb.WriteString("  No URLs scanned\n\n")
		return
	}

	for _, r := range report.Results {
		fmt.Fprintf(sb, "[%s] %s\n", w.indicator(r), r.URL)
		fmt.Fprintf(sb, "  Status: %s\n", r.StatusText())
		if risk := r.RiskLabel(); risk != "" {
			fmt.Fprintf(sb, "  Risk:   %s\n", risk)
		}
		if w.verbose {
			fmt.Fprintf(sb, "  Tab:    %s\n", r.TabID)
			fmt.Fprintf(sb, "  Origin: %s\n", humanize(r.Origin.String()))
			if r.Failed() {
				fmt.Fprintf(sb, "  Kind:   %s\n", humanize(r.ErrorKind.String()))
			}
			fmt.Fprintf(sb, "  Time:   %s\n", r.ScannedAt.Format("2006-01-02 15:04:05 MST"))
		}
	}
	sb.WriteString("\n")
}

// indicator returns a visual indicator for the verdict.
func (w *SimpleWriter) indicator(r model.ScanResult) string {
	switch verdictOf(r) {
	case "PHISHING":
		return "!!!"
	case "ERROR":
		return "?"
	default:
		return "ok"
	}
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by PhishGuard\n")
	sb.WriteString("https://github.com/nao1215/phishguard\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
