// Package main is the entry point for spindownd.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jamesprial/unraid-spindown/internal/actuator"
	"github.com/jamesprial/unraid-spindown/internal/auth"
	"github.com/jamesprial/unraid-spindown/internal/config"
	"github.com/jamesprial/unraid-spindown/internal/daemon"
	"github.com/jamesprial/unraid-spindown/internal/diskstats"
	"github.com/jamesprial/unraid-spindown/internal/history"
	"github.com/jamesprial/unraid-spindown/internal/idle"
	"github.com/jamesprial/unraid-spindown/internal/safety"
	"github.com/jamesprial/unraid-spindown/internal/state"
	"github.com/jamesprial/unraid-spindown/internal/status"
	"github.com/jamesprial/unraid-spindown/internal/tools"
	"github.com/jamesprial/unraid-spindown/internal/unraid"
	"github.com/mark3labs/mcp-go/server"
)

const defaultConfigPath = "/config/spindown.yaml"

func main() {
	opts := parseArgs(os.Args)
	if opts.showHelp {
		printHelp(os.Stdout)
		os.Exit(0)
	}
	if opts.showVersion {
		fmt.Printf("spindownd %s\n", version())
		os.Exit(0)
	}
	if len(opts.errs) > 0 {
		printHelp(os.Stderr)
		log.Fatalf("invalid arguments: %s", strings.Join(opts.errs, "; "))
	}

	cfg := loadConfig(opts.configPath)
	config.ApplyEnvOverrides(cfg)
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads path, $SPINDOWN_CONFIG_PATH or the default location in
// that order. An unreadable file falls back to defaults.
func loadConfig(path string) *config.Config {
	if path == "" {
		path = os.Getenv("SPINDOWN_CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Printf("could not load config from %q (%v), using defaults", path, err)
		return config.DefaultConfig()
	}

	log.Printf("loaded config from %q", path)
	return cfg
}

func run(ctx context.Context, cfg *config.Config) error {
	filter, err := safety.NewFilter(cfg.Devices.Allowlist, cfg.Devices.Denylist)
	if err != nil {
		return fmt.Errorf("invalid device filter: %w", err)
	}

	act, err := buildActuator(cfg)
	if err != nil {
		return err
	}

	trackerOpts := []idle.TrackerOption{idle.WithVerbose(cfg.Daemon.Verbose)}

	var journal history.Journal
	if cfg.History.Enabled {
		store, err := history.OpenSQLite(ctx, cfg.History.Path)
		if err != nil {
			log.Printf("warning: spin history unavailable: %v", err)
		} else {
			defer func() { _ = store.Close() }()
			journal = store
			trackerOpts = append(trackerOpts, idle.WithRecorder(store))
		}
	}

	if cfg.Unraid.Notify {
		client, err := unraid.NewHTTPClient(cfg.Unraid)
		if err != nil {
			log.Printf("warning: unraid notifications disabled: %v", err)
		} else {
			trackerOpts = append(trackerOpts, idle.WithNotifier(unraid.NewNotifier(client)))
		}
	}

	tracker := idle.NewTracker(cfg.Timeout(), cfg.ActuatorTimeout(), act,
		state.NewFileStore(cfg.Daemon.StateFile), trackerOpts...)

	if cfg.Server.Enabled {
		shutdown, err := startServer(cfg, tracker, journal, filter)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	source := diskstats.NewProcSource(cfg.Paths.Proc, cfg.Paths.Sys)
	return daemon.New(cfg, source, tracker, filter).Run(ctx)
}

func buildActuator(cfg *config.Config) (actuator.Actuator, error) {
	if cfg.Actuator.DryRun {
		log.Println("dry-run: disks will not be spun down")
		return actuator.DryRun{}, nil
	}
	return actuator.NewCommandActuator(cfg.Actuator)
}

// startServer serves the MCP tools over streamable HTTP behind the bearer
// middleware. The returned func shuts the server down.
func startServer(cfg *config.Config, tracker *idle.Tracker, journal history.Journal, filter *safety.Filter) (func(), error) {
	tokenBefore := cfg.Server.AuthToken
	token, err := config.EnsureAuthToken(cfg)
	if err != nil {
		return nil, fmt.Errorf("generate auth token: %w", err)
	}
	if tokenBefore == "" {
		log.Printf("generated auth token (set SPINDOWN_AUTH_TOKEN to persist): %s", token)
	}

	var audit *safety.AuditLogger
	var auditFile io.Closer
	if cfg.Audit.Enabled {
		audit, auditFile, err = safety.OpenAuditLog(cfg.Audit.LogPath)
		if err != nil {
			log.Printf("warning: %v, audit logging disabled", err)
		}
	}

	var slots status.SlotLookup
	if _, err := os.Stat(cfg.Paths.Emhttp); err == nil {
		slots = unraid.NewSlotReader(cfg.Paths.Emhttp)
	}

	mcpServer := server.NewMCPServer("spindownd", version(), server.WithToolCapabilities(false))
	registrations := status.StatusTools(status.Deps{
		Tracker: tracker,
		Journal: journal,
		Slots:   slots,
		Filter:  filter,
		Confirm: safety.NewConfirmationTracker(status.DestructiveTools),
		Audit:   audit,
	})
	tools.RegisterAll(mcpServer, registrations)

	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(mcpServer))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           auth.NewAuthMiddleware(cfg.Server.AuthToken, "/healthz")(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("control surface listening on %s (%s)", addr, strings.Join(tools.Names(registrations), ", "))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("warning: control surface stopped: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.Printf("graceful shutdown error: %v", err)
		}
		if auditFile != nil {
			_ = auditFile.Close()
		}
	}, nil
}
