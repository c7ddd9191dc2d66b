package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nao1215/phishguard/internal/database"
	"github.com/nao1215/phishguard/internal/model"
)

// defaultHistoryLimit is the number of records listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command and its subcommands.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past verdicts from the scan log",
		Long: `History lists the verdicts recorded by "phishguard scan" and
"phishguard serve", newest first.

Examples:
  # Last 20 verdicts
  phishguard history

  # Phishing verdicts of the last day
  phishguard history --phishing-only --since 24h

  # Every verdict for one host, as JSON
  phishguard history --host example.com --limit 0 --json

  # Drop records older than 30 days
  phishguard history prune --older-than 720h`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("host", "", "Only list verdicts for this host")
	cmd.Flags().Duration("since", 0, "Only list verdicts newer than this (e.g. 24h)")
	cmd.Flags().Bool("phishing-only", false, "Only list phishing verdicts")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum number of records (0 means all)")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")

	hosts := &cobra.Command{
		Use:   "hosts",
		Short: "List every host in the scan log",
		Args:  cobra.NoArgs,
		RunE:  runHistoryHostsCmd,
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete old records from the scan log",
		Args:  cobra.NoArgs,
		RunE:  runHistoryPruneCmd,
	}
	prune.Flags().Duration("older-than", 30*24*time.Hour, "Delete records older than this")

	cmd.AddCommand(hosts, prune)
	return cmd
}

// withDatabase opens the scan log database, calls fn and closes it.
func withDatabase(cmd *cobra.Command, fn func(ctx context.Context, db *database.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cmd, cfg)

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return fn(cmd.Context(), db)
}

// historyFilter builds the filter from the history flags.
func historyFilter(cmd *cobra.Command, now time.Time) (database.HistoryFilter, error) {
	var filter database.HistoryFilter
	flags := cmd.Flags()

	host, err := flags.GetString("host")
	if err != nil {
		return filter, err
	}
	filter.Host = strings.ToLower(strings.TrimSpace(host))

	since, err := flags.GetDuration("since")
	if err != nil {
		return filter, err
	}
	if since < 0 {
		return filter, errors.New("--since must not be negative")
	}
	if since > 0 {
		filter.Since = now.Add(-since)
	}

	if filter.PhishingOnly, err = flags.GetBool("phishing-only"); err != nil {
		return filter, err
	}

	if filter.Limit, err = flags.GetInt("limit"); err != nil {
		return filter, err
	}
	if filter.Limit < 0 {
		return filter, errors.New("--limit must not be negative")
	}

	return filter, nil
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	filter, err := historyFilter(cmd, time.Now())
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	return withDatabase(cmd, func(ctx context.Context, db *database.Store) error {
		records, err := db.ListScans(ctx, filter)
		if err != nil {
			return err
		}
		if asJSON {
			return writeHistoryJSON(cmd.OutOrStdout(), records)
		}
		return writeHistoryTable(cmd.OutOrStdout(), records)
	})
}

// historyEntry is the JSON form of a scan log record.
type historyEntry struct {
	ID         int64           `json:"id"`
	TabID      model.TabID     `json:"tab_id"`
	URL        string          `json:"url"`
	Host       string          `json:"host"`
	Origin     model.Origin    `json:"origin"`
	Verdict    string          `json:"verdict"`
	ErrorKind  model.ErrorKind `json:"error_kind,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func writeHistoryJSON(w io.Writer, records []database.ScanRecord) error {
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			ID:         rec.ID,
			TabID:      rec.TabID,
			URL:        rec.URL,
			Host:       rec.Host,
			Origin:     rec.Origin,
			Verdict:    rec.Verdict(),
			ErrorKind:  rec.ErrorKind,
			StatusCode: rec.StatusCode,
			Timestamp:  rec.Timestamp,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

func writeHistoryTable(w io.Writer, records []database.ScanRecord) error {
	if len(records) == 0 {
		pterm.Info.WithWriter(w).Println("no scans recorded")
		return nil
	}

	data := pterm.TableData{{"Time", "Tab", "Verdict", "Origin", "URL"}}
	for _, rec := range records {
		verdict := rec.Verdict()
		switch {
		case rec.ErrorKind != model.KindNone:
			verdict = pterm.Yellow(verdict)
		case rec.IsPhishing:
			verdict = pterm.Red(verdict)
		default:
			verdict = pterm.Green(verdict)
		}
		data = append(data, []string{
			rec.Timestamp.Local().Format(time.DateTime),
			strconv.FormatInt(int64(rec.TabID), 10),
			verdict,
			rec.Origin.String(),
			rec.URL,
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render history: %w", err)
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

// runHistoryHostsCmd executes "history hosts".
func runHistoryHostsCmd(cmd *cobra.Command, _ []string) error {
	return withDatabase(cmd, func(ctx context.Context, db *database.Store) error {
		hosts, err := db.ListScannedHosts(ctx)
		if err != nil {
			return err
		}
		for _, host := range hosts {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), host); err != nil {
				return err
			}
		}
		return nil
	})
}

// runHistoryPruneCmd executes "history prune".
func runHistoryPruneCmd(cmd *cobra.Command, _ []string) error {
	olderThan, err := cmd.Flags().GetDuration("older-than")
	if err != nil {
		return err
	}
	if olderThan <= 0 {
		return errors.New("--older-than must be positive")
	}

	return withDatabase(cmd, func(ctx context.Context, db *database.Store) error {
		removed, err := db.PruneScans(ctx, time.Now().Add(-olderThan))
		if err != nil {
			return err
		}
		pterm.Success.WithWriter(cmd.OutOrStdout()).Printfln("removed %d record(s)", removed)
		return nil
	})
}
