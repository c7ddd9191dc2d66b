package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/phishguard/internal/classifier"
	"github.com/nao1215/phishguard/internal/config"
	"github.com/nao1215/phishguard/internal/coordinator"
	"github.com/nao1215/phishguard/internal/credential"
	"github.com/nao1215/phishguard/internal/database"
	applog "github.com/nao1215/phishguard/internal/log"
)

// getBoolFlag retrieves a bool flag from the command or the root's
// persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// getStringFlag retrieves a string flag from the command or the root's
// persistent flags.
func getStringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// loadConfig builds the configuration from defaults, the config file and
// the global flags.
// If the user explicitly specified a config file path, a missing file is an
// error. Otherwise defaults are used when no file is found.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath := getStringFlag(cmd, "config")

	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	return cfg, nil
}

// setupLogger creates the secure structured logger and makes it the
// default.
func setupLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := applog.New(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)
	return logger
}

// signalContext returns a context cancelled on interrupt or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// openCredentials opens the database and the configured credential store.
// The caller must close the returned database.
func openCredentials(cfg *config.Config) (*database.Store, credential.Store, error) {
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	store, err := credential.Open(cfg, db)
	if err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, nil, err
	}
	return db, store, nil
}

// localRuntime is an in-process coordinator with its storage.
type localRuntime struct {
	db    *database.Store
	coord *coordinator.Coordinator
}

// openRuntime wires the classifier, the credential store and the scan log
// into a Coordinator. A non-empty apiKey is used for this process only and
// the stored key is ignored.
func openRuntime(cfg *config.Config, logger *slog.Logger, apiKey string) (*localRuntime, error) {
	db, credentials, err := openCredentials(cfg)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		credentials = credential.NewMemoryStore(apiKey)
	}

	client, err := classifier.New(classifier.OptionsFromConfig(cfg, logger))
	if err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to create classifier client: %w", err)
	}

	coord := coordinator.New(client, credentials, coordinator.Options{
		RequireAPIKey: cfg.RequireAPIKey,
		Recorder:      db,
		Logger:        logger,
	})

	logger.Debug("coordinator ready",
		"service", cfg.ClassifyURL(),
		"credential_backend", credentials.Backend(),
		"database", db.Path(),
	)

	return &localRuntime{db: db, coord: coord}, nil
}

// Close stops the coordinator, then closes the database.
func (r *localRuntime) Close() error {
	r.coord.Close()
	return r.db.Close()
}
