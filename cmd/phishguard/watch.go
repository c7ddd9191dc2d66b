package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nao1215/phishguard/internal/model"
	"github.com/nao1215/phishguard/internal/server"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print verdicts and phishing actions from a running daemon",
		Long: `Watch subscribes to the event stream of a running "phishguard serve"
and prints every accepted verdict and every phishing action as it happens.

Examples:
  # Watch the daemon on the configured listen address
  phishguard watch

  # Watch a daemon elsewhere
  phishguard watch --server http://127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: runWatchCmd,
	}

	cmd.Flags().StringP("server", "s", "",
		"Daemon URL (default: http:// plus the configured listen address)")

	return cmd
}

// runWatchCmd executes the watch command.
func runWatchCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd, cfg)

	serverURL, err := cmd.Flags().GetString("server")
	if err != nil {
		return err
	}
	if serverURL == "" {
		serverURL = "http://" + cfg.ListenAddress
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	return watch(ctx, cmd.OutOrStdout(), serverURL, logger)
}

// watch prints envelopes from the daemon at serverURL until the stream ends
// or ctx is done.
func watch(ctx context.Context, w io.Writer, serverURL string, logger *slog.Logger) error {
	client, err := server.NewClient(serverURL, nil, logger)
	if err != nil {
		return err
	}

	envelopes, err := client.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}
	pterm.Info.WithWriter(w).Printfln("watching %s", serverURL)

	for env := range envelopes {
		printEnvelope(w, env)
	}
	return nil
}

// printEnvelope writes one line per envelope.
func printEnvelope(w io.Writer, env server.Envelope) {
	switch {
	case env.Event != nil:
		r := env.Event.Result
		line := fmt.Sprintf("tab %s %s: %s (badge %q)", r.TabID, r.URL, r.StatusText(), env.Event.Badge.Text)
		switch {
		case r.Failed():
			pterm.Error.WithWriter(w).Println(line)
		case r.IsPhishing:
			pterm.Warning.WithWriter(w).Println(line)
		default:
			pterm.Success.WithWriter(w).Println(line)
		}
	case env.Warning != nil:
		warning := env.Warning
		line := fmt.Sprintf("tab %s %s: %s", warning.TabID, warning.URL, warning.Message)
		if warning.Policy == model.PolicyRedirect {
			line += " -> " + warning.WarningPage
		}
		pterm.Error.WithWriter(w).Printfln("[%s] %s", warning.Policy, line)
	default:
		pterm.Debug.WithWriter(w).Printfln("unknown envelope %q", env.Type)
	}
}
