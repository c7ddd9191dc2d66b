package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/phishguard/internal/model"
)

// DBFileName is the SQLite database file name inside the data directory.
const DBFileName = "phishguard.db"

// Store provides SQLite-based storage for settings and the scan log.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a Store in the specified directory.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	// The daemon and one-shot commands may share the file; wait for
	// locks instead of failing with SQLITE_BUSY.
	dsn += "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	-- Settings hold process-wide configuration values
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- The scan log records every completed scan
	CREATE TABLE IF NOT EXISTS scan_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tab_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		host TEXT NOT NULL,
		origin TEXT NOT NULL,
		is_phishing INTEGER NOT NULL DEFAULT 0,
		error_kind TEXT NOT NULL DEFAULT '',
		status_code INTEGER NOT NULL DEFAULT 0,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scan_log_host ON scan_log(host);
	CREATE INDEX IF NOT EXISTS idx_scan_log_timestamp ON scan_log(timestamp);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// GetSetting returns the value stored under key. The boolean is false when
// no value is stored.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting stores value under key, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes key. Deleting a missing key is not an error.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// ScanRecord is one row of the scan log.
type ScanRecord struct {
	ID         int64
	TabID      model.TabID
	URL        string
	Host       string
	Origin     model.Origin
	IsPhishing bool
	ErrorKind  model.ErrorKind
	StatusCode int
	Timestamp  time.Time
}

// Verdict returns a short label for the record: phishing, safe, or the
// error kind.
func (r ScanRecord) Verdict() string {
	switch {
	case r.ErrorKind != model.KindNone:
		return r.ErrorKind.String()
	case r.IsPhishing:
		return "phishing"
	default:
		return "safe"
	}
}

// RecordScan appends a completed scan to the scan log.
// Superseded scans are not results and are never recorded.
func (s *Store) RecordScan(ctx context.Context, result model.ScanResult) (int64, error) {
	if result.ErrorKind == model.KindSuperseded {
		return 0, nil
	}

	errorKind := ""
	if result.ErrorKind != model.KindNone {
		errorKind = result.ErrorKind.String()
	}

	query := `
	INSERT INTO scan_log (tab_id, url, host, origin, is_phishing, error_kind, status_code, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	ts := result.ScannedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.ExecContext(ctx, query,
		int64(result.TabID),
		result.URL,
		model.HostOf(result.URL),
		result.Origin.String(),
		result.IsPhishing,
		errorKind,
		result.StatusCode,
		ts.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record scan: %w", err)
	}

	return res.LastInsertId()
}

// HistoryFilter narrows ListScans.
type HistoryFilter struct {
	// Host restricts results to one host. Empty means all hosts.
	Host string

	// Since drops records older than this time. Zero means no limit.
	Since time.Time

	// PhishingOnly keeps only phishing verdicts.
	PhishingOnly bool

	// Limit caps the number of records. Zero means no limit.
	Limit int
}

// ListScans returns scan log records, newest first.
func (s *Store) ListScans(ctx context.Context, filter HistoryFilter) ([]ScanRecord, error) {
	query := `
	SELECT id, tab_id, url, host, origin, is_phishing, error_kind, status_code, timestamp
	FROM scan_log
	WHERE 1=1
	`
	args := make([]any, 0)

	if filter.Host != "" {
		query += " AND host = ?"
		args = append(args, filter.Host)
	}
	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC().Format(timestampLayout))
	}
	if filter.PhishingOnly {
		query += " AND is_phishing = 1 AND error_kind = ''"
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan log: %w", err)
	}
	defer rows.Close()

	var records []ScanRecord
	for rows.Next() {
		var (
			rec       ScanRecord
			tabID     int64
			origin    string
			errorKind string
			timestamp string
		)

		if err := rows.Scan(
			&rec.ID,
			&tabID,
			&rec.URL,
			&rec.Host,
			&origin,
			&rec.IsPhishing,
			&errorKind,
			&rec.StatusCode,
			&timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec.TabID = model.TabID(tabID)
		rec.Origin, _ = model.ParseOrigin(origin) //nolint:errcheck // Unknown origins fall back to user_click
		if errorKind != "" {
			rec.ErrorKind, _ = model.ParseErrorKind(errorKind) //nolint:errcheck // Unknown kinds are shown as none
		}
		rec.Timestamp = parseTimestamp(timestamp)

		records = append(records, rec)
	}

	return records, rows.Err()
}

// ListScannedHosts returns every host present in the scan log.
func (s *Store) ListScannedHosts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT host FROM scan_log ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, host)
	}

	return hosts, rows.Err()
}

// PruneScans deletes scan log records older than the given time and
// returns how many were removed.
func (s *Store) PruneScans(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scan_log WHERE timestamp < ?`, before.UTC().Format(timestampLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune scan log: %w", err)
	}
	return res.RowsAffected()
}

// timestampLayout is the fixed-width UTC layout written to scan_log, so
// that string comparison in SQL matches time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
