package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// runHashPassword implements "doorward hash-password": it prints a bcrypt
// hash suitable for the device_password_hash and tenant_password_hash
// config fields, so plaintext passwords never need to live on disk.
func runHashPassword(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor (4-31)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: doorward hash-password [options] [password]

Generate a bcrypt hash for a config file password. If no password argument
is given, the password is read from stdin.

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

	var password string
	if fs.NArg() > 0 {
		password = fs.Arg(0)
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(stderr, "Error: failed to read password: %v\n", err)
			return 1
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		fmt.Fprintln(stderr, "Error: password must not be empty")
		return 1
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), *cost)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to hash password: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, string(hash))
	return 0
}
