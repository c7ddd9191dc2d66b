package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nao1215/phishguard/internal/credential"
)

// NewAPIKeyCmd creates the apikey command and its subcommands.
func NewAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the classification service API key",
		Long: `Manage the API key sent to the classification service.

The key is stored in the PhishGuard database or, with
"credential.backend: keyring" in the config file, in the OS keychain.
It is never printed; "show" prints a fingerprint instead.`,
	}

	set := &cobra.Command{
		Use:   "set [key]",
		Short: "Store the API key (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAPIKeySetCmd,
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show where the API key is stored and its fingerprint",
		Args:  cobra.NoArgs,
		RunE:  runAPIKeyShowCmd,
	}
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE:  runAPIKeyClearCmd,
	}

	cmd.AddCommand(set, show, clear)
	return cmd
}

// withCredentials opens the configured credential store, calls fn and closes
// the database.
func withCredentials(cmd *cobra.Command, fn func(ctx context.Context, store credential.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	setupLogger(cmd, cfg)

	db, store, err := openCredentials(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(cmd.Context(), store)
}

// runAPIKeySetCmd executes "apikey set".
func runAPIKeySetCmd(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		var err error
		if key, err = readKey(cmd.InOrStdin()); err != nil {
			return err
		}
	}

	return withCredentials(cmd, func(ctx context.Context, store credential.Store) error {
		if err := store.Set(ctx, key); err != nil {
			if errors.Is(err, credential.ErrEmptyKey) {
				return err
			}
			return fmt.Errorf("failed to save API key: %w", err)
		}
		pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("API key saved (%s, %s)",
			store.Backend(), credential.Fingerprint(strings.TrimSpace(key)))
		return nil
	})
}

// runAPIKeyShowCmd executes "apikey show".
func runAPIKeyShowCmd(cmd *cobra.Command, _ []string) error {
	return withCredentials(cmd, func(ctx context.Context, store credential.Store) error {
		key, err := store.Get(ctx)
		if errors.Is(err, credential.ErrNotFound) {
			pterm.Warning.WithWriter(cmd.OutOrStdout()).Printfln("no API key stored (%s)", store.Backend())
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}

		table, err := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
			{"Backend", "Fingerprint"},
			{store.Backend(), credential.Fingerprint(key)},
		}).Srender()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), table)
		return err
	})
}

// runAPIKeyClearCmd executes "apikey clear".
func runAPIKeyClearCmd(cmd *cobra.Command, _ []string) error {
	return withCredentials(cmd, func(ctx context.Context, store credential.Store) error {
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear API key: %w", err)
		}
		pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("API key cleared (%s)", store.Backend())
		return nil
	})
}

// readKey reads the first line of r.
func readKey(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
