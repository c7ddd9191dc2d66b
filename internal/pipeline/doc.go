// Package pipeline runs the work that follows a classification verdict and
// scans many URLs concurrently.
//
// A Pipeline is an ordered list of Steps executed for every accepted
// ScanResult: updating the tab badge, appending to the scan log and
// notifying open UI surfaces. Steps run in order; with continue-on-error a
// failing step is logged and the remaining steps still run, so a broken
// scan log never hides a phishing badge.
//
// BatchProcessor scans a list of URLs, each on its own tab, with a
// concurrency limit enforced by errgroup.
package pipeline
