package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/phishguard/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for documentation and
// sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ScanReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeResults(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with scan information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ScanReport) {
	md.H1("PhishGuard Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Service", "`" + report.Service + "`"},
			{"Scan Date", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"URLs Scanned", strconv.Itoa(len(report.Results))},
		},
	})
	md.PlainText("")
}

// writeSummary writes the verdict summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.ScanReport) {
	phishing, safe, failed := report.Counts()

	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Verdict", "Count"},
		Rows: [][]string{
			{"🔴 Phishing", strconv.Itoa(phishing)},
			{"🟢 Safe", strconv.Itoa(safe)},
			{"⚪ Error", strconv.Itoa(failed)},
			{"**Total**", "**" + strconv.Itoa(len(report.Results)) + "**"},
		},
	})
	md.PlainText("")

	if len(report.Results) > 0 {
		w.writePieChart(md, phishing, safe, failed)
	}

	switch {
	case phishing > 0:
		md.Cautionf("%d phishing site(s) detected. Do not enter credentials on them.", phishing)
	case failed > 0:
		md.Warningf("%d URL(s) could not be classified. Their safety is unknown.", failed)
	default:
		md.Tip("No phishing sites detected.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of the verdicts.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, phishing, safe, failed int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Verdicts"),
		piechart.WithShowData(true),
	)

	if phishing > 0 {
		chart.LabelAndIntValue("Phishing", uint64(phishing))
	}
	if safe > 0 {
		chart.LabelAndIntValue("Safe", uint64(safe))
	}
	if failed > 0 {
		chart.LabelAndIntValue("Error", uint64(failed))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeResults writes a table with one row per scanned URL.
func (w *MarkdownWriter) writeResults(md *markdown.Markdown, report *model.ScanReport) {
	md.H2("Results")
	md.PlainText("")

	if len(report.Results) == 0 {
		md.PlainText("No URLs scanned.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Results))
	for i, r := range report.Results {
		risk := r.RiskLabel()
		if risk == "" {
			risk = "-"
		}
		rows[i] = []string{
			"`" + truncateString(r.URL, 60) + "`",
			verdictOf(r),
			r.StatusText(),
			risk,
			humanize(r.Origin.String()),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Verdict", "Status", "Risk", "Origin"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [PhishGuard](https://github.com/nao1215/phishguard)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
