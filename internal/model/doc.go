// Package model defines the core data structures shared across PhishGuard.
//
// This package contains the following main types:
//   - ScanRequest: a request to classify the URL loaded in one tab
//   - ScanResult: the verdict (or failure) produced for one ScanRequest
//   - ScanError: the classification error taxonomy
//   - Badge: the per-tab indicator reflecting the last verdict
//   - ScanReport: a batch of results handed to the report writers
//
// Models live in their own package so that the coordinator, probe, popup,
// database and report packages can share them without import cycles. All
// types serialize to JSON for the HTTP transport and the scan log.
package model
