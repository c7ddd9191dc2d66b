package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nao1215/phishguard/internal/config"
	"github.com/nao1215/phishguard/internal/model"
	"github.com/nao1215/phishguard/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator daemon for browser probes and the popup",
		Long: `Serve runs the coordinator behind a local HTTP API.

Browser-side probes report navigations and page loads to it, the popup
sends scan requests and saves the API key through it, and both receive
verdicts and phishing actions on the /v1/events websocket.

Endpoints:
  GET    /healthz                 liveness
  POST   /v1/messages             popup messages (scan, save_credential,
                                  get_status, navigate, close_tab)
  GET    /v1/events               websocket event stream
  GET    /v1/tabs/{id}            tab badge and last verdict
  POST   /v1/tabs/{id}/navigate   the tab started showing a new URL
  POST   /v1/tabs/{id}/load       the tab finished loading a URL
  DELETE /v1/tabs/{id}            the tab was closed

Examples:
  # Listen on the configured address (default 127.0.0.1:7878)
  phishguard serve

  # Redirect phishing tabs to the warning page
  phishguard serve --policy redirect --listen 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("listen", "l", config.DefaultListenAddress,
		"Address to listen on")
	cmd.Flags().StringP("policy", "p", model.PolicyBadge.String(),
		"Action on phishing pages: badge, block, alert or redirect")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each classification request")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddress, err)
	}

	pterm.Success.WithWriter(cmd.ErrOrStderr()).Printfln(
		"phishguard %s listening on http://%s (policy: %s)", getVersion(), ln.Addr().String(), cfg.Policy)

	return serve(ctx, ln, cfg, logger)
}

// buildServeConfig loads the configuration and applies the serve flags.
// Flags only override the config file when they were given explicitly.
func buildServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		if cfg.ListenAddress, err = flags.GetString("listen"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("policy") {
		name, err := flags.GetString("policy")
		if err != nil {
			return nil, err
		}
		if cfg.Policy, err = model.ParseDetectionPolicy(name); err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// serve runs a local coordinator behind the HTTP API on ln until ctx is
// done.
func serve(ctx context.Context, ln net.Listener, cfg *config.Config, logger *slog.Logger) error {
	rt, err := openRuntime(cfg, logger, "")
	if err != nil {
		_ = ln.Close() //nolint:errcheck // already failing
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			logger.Warn("failed to close runtime", "error", cerr)
		}
	}()

	srv := server.New(rt.coord, server.Options{
		Policy:      cfg.Policy,
		WarningPage: cfg.WarningPage,
		Logger:      logger,
	})
	defer srv.Close()

	return srv.Serve(ctx, ln)
}
