package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesprial/unraid-spindown/internal/config"
)

func Test_parseArgs_Cases(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		validate func(t *testing.T, o cliOptions)
	}{
		{
			name: "no arguments",
			args: []string{"spindownd"},
			validate: func(t *testing.T, o cliOptions) {
				t.Helper()
				if o.timeout != 0 || o.interval != 0 || o.filename != "" || len(o.errs) != 0 {
					t.Errorf("options = %+v, want zero", o)
				}
			},
		},
		{
			name: "short value flags",
			args: []string{"spindownd", "-t", "15", "-i", "30", "-f", "/mnt/cache/state.json", "-V"},
			validate: func(t *testing.T, o cliOptions) {
				t.Helper()
				if o.timeout != 15 || o.interval != 30 || o.filename != "/mnt/cache/state.json" || !o.verbose {
					t.Errorf("options = %+v", o)
				}
			},
		},
		{
			name: "long flags",
			args: []string{"spindownd", "--timeout", "60", "--config", "/etc/spindown.yaml", "--dry-run"},
			validate: func(t *testing.T, o cliOptions) {
				t.Helper()
				if o.timeout != 60 || o.configPath != "/etc/spindown.yaml" || !o.dryRun {
					t.Errorf("options = %+v", o)
				}
			},
		},
		{
			name: "non-numeric timeout",
			args: []string{"spindownd", "-t", "soon"},
			validate: func(t *testing.T, o cliOptions) {
				t.Helper()
				if len(o.errs) == 0 || !strings.Contains(o.errs[0], "-t needs a positive integer") {
					t.Errorf("errs = %v", o.errs)
				}
			},
		},
		{
			name: "zero interval",
			args: []string{"spindownd", "-i", "0"},
			validate: func(t *testing.T, o cliOptions) {
				t.Helper()
				if len(o.errs) == 0 || o.interval != 0 {
					t.Errorf("options = %+v, want error", o)
				}
			},
		},
		{
			name: "help and version",
			args: []string{"spindownd", "-h", "-v"},
			validate: func(t *testing.T, o cliOptions) {
				t.Helper()
				if !o.showHelp || !o.showVersion {
					t.Errorf("options = %+v", o)
				}
			},
		},
		{
			name: "unknown option",
			args: []string{"spindownd", "--grace"},
			validate: func(t *testing.T, o cliOptions) {
				t.Helper()
				if len(o.errs) != 1 || !strings.Contains(o.errs[0], "--grace") {
					t.Errorf("errs = %v", o.errs)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, parseArgs(tt.args))
		})
	}
}

func Test_cliOptions_apply(t *testing.T) {
	cfg := config.DefaultConfig()
	cliOptions{}.apply(cfg)
	if cfg.Daemon.TimeoutMinutes != 25 || cfg.Daemon.StateFile != "/config/spindown-state.json" {
		t.Errorf("empty options changed config: %+v", cfg.Daemon)
	}

	cliOptions{timeout: 5, interval: 2, filename: "/tmp/s.json", dryRun: true, verbose: true}.apply(cfg)
	if cfg.Daemon.TimeoutMinutes != 5 || cfg.Daemon.IntervalSeconds != 2 || cfg.Daemon.StateFile != "/tmp/s.json" {
		t.Errorf("Daemon = %+v", cfg.Daemon)
	}
	if !cfg.Actuator.DryRun || !cfg.Daemon.Verbose {
		t.Errorf("dry-run/verbose not applied: %+v %+v", cfg.Actuator, cfg.Daemon)
	}
}

func Test_loadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "env.yaml")
	flagPath := filepath.Join(dir, "flag.yaml")
	if err := os.WriteFile(envPath, []byte("daemon:\n  timeout_minutes: 40\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(flagPath, []byte("daemon:\n  timeout_minutes: 50\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SPINDOWN_CONFIG_PATH", envPath)

	if got := loadConfig("").Daemon.TimeoutMinutes; got != 40 {
		t.Errorf("env path timeout = %d, want 40", got)
	}
	if got := loadConfig(flagPath).Daemon.TimeoutMinutes; got != 50 {
		t.Errorf("flag path timeout = %d, want 50", got)
	}
	if got := loadConfig(filepath.Join(dir, "missing.yaml")).Daemon.TimeoutMinutes; got != 25 {
		t.Errorf("missing file timeout = %d, want default 25", got)
	}
}

func Test_printHelp_ListsFlags(t *testing.T) {
	var buf bytes.Buffer
	printHelp(&buf)
	for _, flag := range []string{"--timeout", "--interval", "--filename", "--dry-run", "--verbose", "--config"} {
		if !strings.Contains(buf.String(), flag) {
			t.Errorf("help missing %s", flag)
		}
	}
}
