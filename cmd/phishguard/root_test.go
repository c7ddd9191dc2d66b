package main

import (
	"strings"
	"testing"
)

// TestNewRootCmd tests the root command creation.
func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "phishguard" {
			t.Errorf("expected use 'phishguard', got %q", cmd.Use)
		}
	})

	t.Run("has descriptions and version", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" || cmd.Long == "" {
			t.Error("expected non-empty descriptions")
		}
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("has global flags", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name      string
			shorthand string
			defValue  string
		}{
			{"verbose", "v", "false"},
			{"config", "c", ""},
			{"log-json", "", "false"},
		}
		for _, tt := range tests {
			flag := cmd.PersistentFlags().Lookup(tt.name)
			if flag == nil {
				t.Errorf("expected %s flag", tt.name)
				continue
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("%s: expected shorthand %q, got %q", tt.name, tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("%s: expected default %q, got %q", tt.name, tt.defValue, flag.DefValue)
			}
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()

		names := make(map[string]bool)
		for _, sub := range cmd.Commands() {
			names[sub.Name()] = true
		}
		for _, want := range []string{"scan", "serve", "watch", "apikey", "history", "init", "version"} {
			if !names[want] {
				t.Errorf("expected %s subcommand", want)
			}
		}
	})

	t.Run("silences usage and errors", func(t *testing.T) {
		t.Parallel()
		if !cmd.SilenceUsage {
			t.Error("expected SilenceUsage to be true")
		}
		if !cmd.SilenceErrors {
			t.Error("expected SilenceErrors to be true")
		}
	})
}

// TestLoadConfig tests how the global flags reach the configuration.
func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("explicit missing config file is an error", func(t *testing.T) {
		t.Parallel()

		_, _, err := runCmd(t, nil, "--config", "/nonexistent/phishguard.yaml", "history")
		if err == nil || !strings.Contains(err.Error(), "configuration file not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("invalid config file is an error", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "http://127.0.0.1:5000", false, "policy:\n  on_phishing: explode\n")
		_, _, err := runCmd(t, nil, "--config", path, "history")
		if err == nil || !strings.Contains(err.Error(), "failed to load config file") {
			t.Errorf("expected load error, got %v", err)
		}
	})

	t.Run("global flags are applied", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "http://127.0.0.1:5000", false, "")
		cmd := NewRootCmd()
		if err := cmd.ParseFlags([]string{"-v", "--log-json", "--config", path}); err != nil {
			t.Fatalf("ParseFlags() failed: %v", err)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			t.Fatalf("loadConfig() failed: %v", err)
		}
		if !cfg.Verbose || !cfg.LogJSON {
			t.Errorf("expected verbose and JSON logging, got %+v", cfg)
		}
		if cfg.ConfigFilePath != path {
			t.Errorf("ConfigFilePath = %q, want %q", cfg.ConfigFilePath, path)
		}
	})
}
