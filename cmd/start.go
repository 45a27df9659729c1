package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/doorward/broker/internal/auth"
	"github.com/doorward/broker/internal/config"
	"github.com/doorward/broker/internal/registry"
	"github.com/doorward/broker/internal/server"
	"github.com/doorward/broker/internal/storage"
	brokerTLS "github.com/doorward/broker/internal/tls"
)

// runStart implements the "doorward start" command: load and validate the
// configuration, wire the registry, session store, audit log, and server,
// then run until interrupted.
func runStart(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to config file (default: ~/.doorward/config.toml)")
	addr := fs.String("addr", "", "Listen address for the WebSocket server (default: 127.0.0.1:8090)")
	auditDB := fs.String("audit-db", "", "Path to the SQLite audit log (default: auditing disabled)")
	tlsCert := fs.String("tls-cert", "", "Path to TLS certificate file")
	tlsKey := fs.String("tls-key", "", "Path to TLS key file")
	selfTLS := fs.Bool("tls", false, "Enable TLS, generating a self-signed certificate if none is configured")
	showQR := fs.Bool("qr", false, "Display the client connection URL as a QR code")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: doorward start [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// Load config file and merge with CLI flags.
	// CLI flags take precedence over file values.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *auditDB != "" {
		cfg.AuditDB = *auditDB
	}
	if *tlsCert != "" {
		cfg.TLSCert = *tlsCert
	}
	if *tlsKey != "" {
		cfg.TLSKey = *tlsKey
	}
	// --tls without an explicit pair falls back to a self-signed
	// certificate under ~/.doorward/certs, generated on first use.
	var certFingerprint string
	if *selfTLS && cfg.TLSCert == "" {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil || host == "" {
			host = "localhost"
		}
		info, err := brokerTLS.EnsureCertificate(brokerTLS.CertConfig{
			Hosts: []string{host, "localhost", "127.0.0.1"},
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		cfg.TLSCert = info.CertPath
		cfg.TLSKey = info.KeyPath
		certFingerprint = info.Fingerprint
		if info.Generated {
			fmt.Fprintf(stdout, "Generated self-signed certificate: %s\n", info.CertPath)
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}

	var audit *storage.AuditStore
	if cfg.AuditDB != "" {
		audit, err = storage.NewAuditStore(cfg.AuditDB)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open audit log: %v\n", err)
			return 1
		}
		defer audit.Close()
	}

	// The Auditor interface is satisfied by *AuditStore; a nil interface
	// disables auditing in both registry and server.
	var auditor registry.Auditor
	if audit != nil {
		auditor = audit
	}

	reg := registry.New(registry.Config{
		HistoryCapacity: cfg.HistoryCapacity,
		Audit:           auditor,
	})

	sessions := auth.NewStore(auth.StoreConfig{
		Credential: auth.Credential{
			Username:     cfg.TenantUsername,
			Password:     cfg.TenantPassword,
			PasswordHash: cfg.TenantPasswordHash,
		},
		TTL:            time.Duration(cfg.SessionTTLDays) * 24 * time.Hour,
		Capacity:       cfg.SessionCapacity,
		LoginPerMinute: cfg.LoginPerMinute,
	})

	srv := server.New(server.Config{
		Addr:     cfg.Addr,
		Registry: reg,
		Sessions: sessions,
		DeviceCredential: auth.Credential{
			Username:     cfg.DeviceUsername,
			Password:     cfg.DevicePassword,
			PasswordHash: cfg.DevicePasswordHash,
		},
		Audit:   auditor,
		TLSCert: cfg.TLSCert,
		TLSKey:  cfg.TLSKey,
	})

	if err := <-srv.StartAsync(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	scheme := "ws"
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		scheme = "wss"
	}
	clientURL := fmt.Sprintf("%s://%s/ws/client", scheme, cfg.Addr)

	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintln(stdout, "  Doorward Broker")
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintf(stdout, "  Address:  %s\n", cfg.Addr)
	fmt.Fprintf(stdout, "  Device:   %s://%s/ws/device (Basic auth)\n", scheme, cfg.Addr)
	fmt.Fprintf(stdout, "  Clients:  %s (session cookie)\n", clientURL)
	if audit != nil {
		fmt.Fprintf(stdout, "  Audit:    %s\n", cfg.AuditDB)
	}
	if certFingerprint != "" {
		fmt.Fprintf(stdout, "  TLS fp:   %s\n", certFingerprint)
	}
	fmt.Fprintln(stdout, "===========================================")
	fmt.Fprintln(stdout, "")

	if *showQR {
		displayClientQR(stdout, clientURL)
	}

	fmt.Fprintln(stdout, "Broker running. Press Ctrl+C to stop.")

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigCh
	fmt.Fprintf(stdout, "\nReceived signal %v, stopping...\n", sig)

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(stderr, "Warning: shutdown error: %v\n", err)
	}
	return 0
}
