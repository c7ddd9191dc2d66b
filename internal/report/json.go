package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/phishguard/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is written into the report envelope.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the phishguard version in the output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report wrapped in a JSONReport.
func (w *JSONWriter) Write(report *model.ScanReport) (int, error) {
	return w.writeJSON(NewJSONReport(report, w.version))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Trailing newline for terminal output.
	data = append(data, '\n')

	return w.output.Write(data)
}

// Summary counts the verdicts of a report.
type Summary struct {
	Total    int  `json:"total"`
	Phishing int  `json:"phishing"`
	Safe     int  `json:"safe"`
	Failed   int  `json:"failed"`
	Alert    bool `json:"alert"`
}

// NewSummary counts the verdicts of report.
func NewSummary(report *model.ScanReport) Summary {
	phishing, safe, failed := report.Counts()
	return Summary{
		Total:    len(report.Results),
		Phishing: phishing,
		Safe:     safe,
		Failed:   failed,
		Alert:    phishing > 0,
	}
}

// JSONReport is the JSON document written by JSONWriter.
type JSONReport struct {
	// Version is the phishguard version that generated this report.
	Version string `json:"version,omitempty"`

	// Summary counts the verdicts.
	Summary Summary `json:"summary"`

	// Report is the scan report.
	Report *model.ScanReport `json:"report"`
}

// NewJSONReport wraps report with its summary.
func NewJSONReport(report *model.ScanReport, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Summary: NewSummary(report),
		Report:  report,
	}
}
