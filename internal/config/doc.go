// Package config provides configuration structures and utilities for PhishGuard.
// It defines where the classification service lives, how the coordinator
// authenticates to it, what happens on a phishing verdict, and how results
// are reported and persisted.
package config
