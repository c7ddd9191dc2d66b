package popup

import (
	"fmt"
	"io"
	"sync"

	"github.com/pterm/pterm"
)

// TerminalRenderer draws views as pterm tables on a writer.
type TerminalRenderer struct {
	mu sync.Mutex
	w  io.Writer

	// ShowScanning also draws the transient Scanning state.
	ShowScanning bool
}

// NewTerminalRenderer creates a TerminalRenderer writing to w.
func NewTerminalRenderer(w io.Writer) *TerminalRenderer {
	return &TerminalRenderer{w: w}
}

// Render implements Renderer.
func (r *TerminalRenderer) Render(v View) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.Notice != "" {
		if _, err := fmt.Fprintln(r.w, pterm.Green(v.Notice)); err != nil {
			return err
		}
	}

	switch v.State {
	case StateIdle:
		return nil
	case StateScanning:
		if !r.ShowScanning {
			return nil
		}
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(tableOf(v)).Srender()
	if err != nil {
		return fmt.Errorf("failed to render result table: %w", err)
	}
	if _, err := fmt.Fprintln(r.w, table); err != nil {
		return err
	}

	switch v.State {
	case StatePhishing:
		_, err = fmt.Fprintln(r.w, pterm.Red("⚠ This website is flagged as phishing! Do not enter credentials."))
	case StateSafe:
		_, err = fmt.Fprintln(r.w, pterm.Green("✓ This site is safe."))
	}
	return err
}

// tableOf lays a view out as property rows.
func tableOf(v View) pterm.TableData {
	status := v.Status
	switch v.State {
	case StatePhishing, StateError:
		status = pterm.Red(v.Status)
	case StateSafe:
		status = pterm.Green(v.Status)
	}

	rows := pterm.TableData{
		{"Property", "Value"},
		{"URL scanned", v.URL},
		{"Status", status},
	}
	if v.Risk != "" {
		rows = append(rows, []string{"Risk", v.Risk})
	}
	return rows
}
