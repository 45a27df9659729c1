package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.2.0" ./cmd
var Version = "dev"

const usage = `doorward - WebSocket broker between a door lock device and its tenants

Usage:
  doorward <command> [options]

Commands:
  init           Write a starter config file with hashed credentials
  start          Start the broker server
  hash-password  Generate a bcrypt hash for a config file password
  audit          Show recent audit events

Run 'doorward <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "init":
		return runInit(args[2:], stdout, stderr)
	case "start":
		return runStart(args[2:], stdout, stderr)
	case "hash-password":
		return runHashPassword(args[2:], stdout, stderr)
	case "audit":
		return runAudit(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "doorward %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
