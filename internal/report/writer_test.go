package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/phishguard/internal/model"
)

// createTestReport creates a report with one phishing, one safe and one
// failed result.
func createTestReport() *model.ScanReport {
	report := model.NewScanReport("http://127.0.0.1:5000/predict")
	report.GeneratedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	report.Add(model.NewScanResult(model.NewScanRequest(1, "http://evil.test", model.OriginAutoNavigate), true))
	report.Add(model.NewScanResult(model.NewScanRequest(2, "https://example.com", model.OriginUserClick), false))
	report.Add(model.NewFailedResult(model.NewScanRequest(3, "https://down.test", model.OriginUserClick), model.NewServiceError(500)))

	return report
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header, summary and results", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		n, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
		}

		output := buf.String()
		for _, want := range []string{
			"PHISHGUARD REPORT",
			"http://127.0.0.1:5000/predict",
			"URLs Scanned:   3",
			"PHISHING: 1",
			"SAFE:     1",
			"ERROR:    1",
			"[!!!] http://evil.test",
			"Status: Phishing Detected!",
			"Risk:   High Risk",
			"[ok] https://example.com",
			"Status: Safe Website",
			"[?] https://down.test",
			"Status: Service error (HTTP 500).",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "Origin:") {
			t.Error("origin should only appear in verbose output")
		}
	})

	t.Run("verbose adds details", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf, WithVerbose(true))

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"Origin: Auto Navigate", "Origin: User Click", "Kind:   Service Error", "Tab:    3"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected verbose output to contain %q", want)
			}
		}
	})

	t.Run("empty report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(model.NewScanReport("svc")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No URLs scanned") {
			t.Error("expected empty-report notice")
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact output with summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf, WithVersion("v1.2.3"))

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if strings.Count(output, "\n") != 1 {
			t.Errorf("compact output should be a single line, got %q", output)
		}

		var decoded JSONReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded.Version != "v1.2.3" {
			t.Errorf("version = %q", decoded.Version)
		}
		want := Summary{Total: 3, Phishing: 1, Safe: 1, Failed: 1, Alert: true}
		if decoded.Summary != want {
			t.Errorf("summary = %+v, want %+v", decoded.Summary, want)
		}
		if len(decoded.Report.Results) != 3 {
			t.Fatalf("results = %d", len(decoded.Report.Results))
		}
		failed := decoded.Report.Results[2]
		if failed.ErrorKind != model.KindServiceError || failed.StatusCode != 500 {
			t.Errorf("failed result = %+v", failed)
		}
		if decoded.Report.Results[0].Origin != model.OriginAutoNavigate {
			t.Errorf("origin = %v", decoded.Report.Results[0].Origin)
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"summary\"") {
			t.Errorf("expected two-space indentation, got:\n%s", buf.String())
		}
	})

	t.Run("custom indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent(">", "\t")).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n>\t\"summary\"") {
			t.Errorf("expected prefixed tab indentation, got:\n%s", buf.String())
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes all sections", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# PhishGuard Report",
			"## Summary",
			"🔴 Phishing",
			"```mermaid",
			"pie",
			"[!CAUTION]",
			"## Results",
			"`http://evil.test`",
			"PHISHING",
			"High Risk",
			"Auto Navigate",
			"Service error (HTTP 500).",
			"Report generated by [PhishGuard]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("warns about unknown verdicts without phishing", func(t *testing.T) {
		t.Parallel()

		report := model.NewScanReport("svc")
		report.Add(model.NewFailedResult(model.NewScanRequest(1, "https://example.com", model.OriginUserClick), model.ErrUnreachable))

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!WARNING]") {
			t.Error("expected a warning alert")
		}
	})

	t.Run("tip when everything is safe", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(model.NewScanReport("svc")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "[!TIP]") || !strings.Contains(output, "No URLs scanned.") {
			t.Errorf("unexpected output:\n%s", output)
		}
		if strings.Contains(output, "```mermaid") {
			t.Error("empty report should have no chart")
		}
	})
}

// failingWriter fails every write.
type failingWriter struct{}

func (failingWriter) Write(*model.ScanReport) (int, error) {
	return 0, errors.New("disk full")
}

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		m := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))

		n, err := m.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != text.Len()+js.Len() {
			t.Errorf("total = %d, want %d", n, text.Len()+js.Len())
		}
		if text.Len() == 0 || js.Len() == 0 {
			t.Error("expected both writers to receive output")
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var after bytes.Buffer
		m := NewMultiWriter(failingWriter{}, NewSimpleWriter(&after))

		if _, err := m.Write(createTestReport()); err == nil {
			t.Error("expected error")
		}
		if after.Len() != 0 {
			t.Error("writers after the failing one must not run")
		}
	})
}

// TestHumanize tests wire-name formatting.
func TestHumanize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"user_click", "User Click"},
		{"malformed_response", "Malformed Response"},
		{"unreachable", "Unreachable"},
	}
	for _, tt := range tests {
		if got := humanize(tt.in); got != tt.want {
			t.Errorf("humanize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestTruncateString tests the string truncation helper.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a longer string", 10, "this is..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"ab", 5, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			result := truncateString(tt.input, tt.maxLen)
			if result != tt.expected {
				t.Errorf("truncateString(%q, %d) = %q, want %q",
					tt.input, tt.maxLen, result, tt.expected)
			}
		})
	}
}
