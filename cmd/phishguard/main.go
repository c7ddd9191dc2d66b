// Package main provides the entry point for the PhishGuard CLI.
//
// PhishGuard asks a phishing classification service about the pages a
// browser shows, keeps one scan in flight per tab, and marks phishing tabs
// with a warning badge.
//
// Usage:
//
//	phishguard scan <url>
//	phishguard serve
//	phishguard apikey set <key>
//
// See --help for all available options.
package main

// main is the entry point for PhishGuard.
func main() {
	Execute()
}
