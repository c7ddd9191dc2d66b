// Package database provides SQLite-based storage for PhishGuard.
//
// The store keeps two tables:
//   - settings: process-wide key/value configuration, notably the
//     companyApiKey used to authenticate to the classification service
//   - scan_log: one row per completed scan (URL, tab, origin, verdict or
//     error kind), used by the history command
//
// SQLite is accessed through modernc.org/sqlite, a CGO-free driver, with WAL
// enabled and a single writer connection.
package database
