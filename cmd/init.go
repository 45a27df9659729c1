package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/doorward/broker/internal/config"
)

// runInit implements "doorward init": it writes a starter config file with
// bcrypt-hashed credentials for the device and tenant roles. Plaintext
// passwords are taken from flags and never written to disk.
func runInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to write the config file (default: ~/.doorward/config.toml)")
	devicePassword := fs.String("device-password", "", "Password for the device role (required)")
	tenantPassword := fs.String("tenant-password", "", "Password for the tenant role (required)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: doorward init [options]

Write a starter config file with hashed credentials for both roles.
An existing config file is never overwritten.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if *devicePassword == "" || *tenantPassword == "" {
		fmt.Fprintln(stderr, "Error: --device-password and --tenant-password are required")
		fs.Usage()
		return 1
	}

	path := *configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(stderr, "Error: config already exists at %s\n", path)
		return 1
	}

	deviceHash, err := bcrypt.GenerateFromPassword([]byte(*devicePassword), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to hash device password: %v\n", err)
		return 1
	}
	tenantHash, err := bcrypt.GenerateFromPassword([]byte(*tenantPassword), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to hash tenant password: %v\n", err)
		return 1
	}

	if err := config.WriteDefault(path, string(deviceHash), string(tenantHash)); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Created config: %s\n", path)
	fmt.Fprintln(stdout, "Start the broker with 'doorward start'.")
	return 0
}
