package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/doorward/broker/internal/config"
	"github.com/doorward/broker/internal/storage"
)

// runAudit implements "doorward audit": it prints the most recent audit
// events from the configured audit database, oldest first.
func runAudit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.doorward/config.toml)")
	db := fs.String("db", "", "Path to the SQLite audit log (default: audit_db from config)")
	limit := fs.Int("limit", 50, "Maximum number of events to show")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: doorward audit [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	path := *db
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		path = cfg.AuditDB
	}
	if path == "" {
		fmt.Fprintln(stderr, "Error: no audit database configured (set audit_db or pass --db)")
		return 1
	}

	store, err := storage.NewAuditStore(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to open audit log: %v\n", err)
		return 1
	}
	defer store.Close()

	events, err := store.ListRecent(*limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to read audit log: %v\n", err)
		return 1
	}
	if len(events) == 0 {
		fmt.Fprintln(stdout, "No audit events recorded.")
		return 0
	}

	for _, ev := range events {
		at := ev.At.Format(time.RFC3339)
		if ev.ConnID != "" {
			fmt.Fprintf(stdout, "%s  %-20s %-24s %s\n", at, ev.Kind, ev.ConnID, ev.Detail)
		} else {
			fmt.Fprintf(stdout, "%s  %-20s %s\n", at, ev.Kind, ev.Detail)
		}
	}
	return 0
}
