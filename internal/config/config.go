// Package config provides TOML configuration file loading and parsing for
// the broker. The configuration file lives at ~/.doorward/config.toml by
// default, but can be overridden with the --config flag. CLI flags always
// take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the broker configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML
// files via struct tags.
type Config struct {
	// Addr is the host:port for the WebSocket/HTTP server.
	// Default: 127.0.0.1:8090
	Addr string `toml:"addr"`

	// DeviceUsername is the Basic-auth username the device must present
	// on the /ws/device upgrade. Default: device
	DeviceUsername string `toml:"device_username"`

	// DevicePassword is the device's plaintext password. Ignored when
	// DevicePasswordHash is set. Compared in constant time.
	DevicePassword string `toml:"device_password"`

	// DevicePasswordHash is a bcrypt hash of the device password,
	// generated with `doorward hash-password`. Preferred over plaintext.
	DevicePasswordHash string `toml:"device_password_hash"`

	// TenantUsername is the login username for the client role.
	// Default: tenant
	TenantUsername string `toml:"tenant_username"`

	// TenantPassword is the tenant's plaintext password. Ignored when
	// TenantPasswordHash is set.
	TenantPassword string `toml:"tenant_password"`

	// TenantPasswordHash is a bcrypt hash of the tenant password.
	TenantPasswordHash string `toml:"tenant_password_hash"`

	// SessionTTLDays is how long a login session remains valid.
	// Default: 30
	SessionTTLDays int `toml:"session_ttl_days"`

	// SessionCapacity is the maximum number of concurrently live
	// sessions; the oldest is evicted beyond this. Default: 100
	SessionCapacity int `toml:"session_capacity"`

	// HistoryCapacity is the fixed capacity of the in-memory history
	// ring; the oldest entries are dropped beyond this. Default: 1024
	HistoryCapacity int `toml:"history_capacity"`

	// LoginPerMinute is the rate limit for login attempts.
	// Default: 5
	LoginPerMinute int `toml:"login_per_minute"`

	// AuditDB is the path to the SQLite database for the audit event log.
	// Empty disables auditing. Use ":memory:" for tests.
	AuditDB string `toml:"audit_db"`

	// TLSCert is the path to the TLS certificate file. When both TLSCert
	// and TLSKey are set the server serves wss/https only.
	TLSCert string `toml:"tls_cert"`

	// TLSKey is the path to the TLS private key file.
	TLSKey string `toml:"tls_key"`
}

// DefaultConfigPath returns the default config file location:
// ~/.doorward/config.toml. Returns an error only if the user's home
// directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".doorward", "config.toml"), nil
}

// WriteDefault creates a starter config file at the given path with the
// documented defaults and bcrypt hashes for the two role passwords.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path, devicePasswordHash, tenantPasswordHash string) error {
	// Never overwrite an existing config
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# Doorward broker configuration
# Created by 'doorward init'

# Listen address for the WebSocket server
addr = %q

# Device role: HTTP Basic credentials on the /ws/device upgrade
device_username = %q
device_password_hash = %q

# Tenant role: /login form credentials, session cookie on /ws/client
tenant_username = %q
tenant_password_hash = %q

# Uncomment to record auth and connection events:
# audit_db = "~/.doorward/audit.db"
`, DefaultAddr, DefaultDeviceUsername, devicePasswordHash,
		DefaultTenantUsername, tenantPasswordHash)

	// Restrictive permissions: the file holds credential hashes.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads a TOML config file from the given path and returns a Config
// with defaults applied for any unset field.
//
// Behavior:
//   - If path is empty, attempts to load from the default location.
//     Returns a default Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		// No explicit path: try default location, but don't error if missing.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			cfg.applyDefaults()
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.DeviceUsername == "" {
		c.DeviceUsername = DefaultDeviceUsername
	}
	if c.TenantUsername == "" {
		c.TenantUsername = DefaultTenantUsername
	}
	if c.SessionTTLDays == 0 {
		c.SessionTTLDays = DefaultSessionTTLDays
	}
	if c.SessionCapacity == 0 {
		c.SessionCapacity = DefaultSessionCapacity
	}
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = DefaultHistoryCapacity
	}
	if c.LoginPerMinute == 0 {
		c.LoginPerMinute = DefaultLoginPerMinute
	}
}

// Validate checks that the config is usable: each role needs a credential
// (plaintext or hash), and TLS settings must come in a pair.
func (c *Config) Validate() error {
	if c.DevicePassword == "" && c.DevicePasswordHash == "" {
		return fmt.Errorf("device_password or device_password_hash is required")
	}
	if c.TenantPassword == "" && c.TenantPasswordHash == "" {
		return fmt.Errorf("tenant_password or tenant_password_hash is required")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	return nil
}
