// Package tls provides self-signed certificate generation for the broker.
// When TLS is requested without an existing certificate pair, a cert is
// generated under ~/.doorward/certs/ and reused on later starts. The
// SHA-256 fingerprint is surfaced so paranoid tenants can pin it.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CertConfig controls certificate generation.
type CertConfig struct {
	// CertPath is where the certificate PEM is written.
	// Defaults to ~/.doorward/certs/broker.crt.
	CertPath string

	// KeyPath is where the private key PEM is written.
	// Defaults to ~/.doorward/certs/broker.key.
	KeyPath string

	// Hosts lists the hostnames and IP addresses the certificate covers.
	// Defaults to localhost and 127.0.0.1.
	Hosts []string

	// ValidFor is the certificate lifetime. Defaults to one year.
	ValidFor time.Duration
}

// CertInfo describes a loaded or freshly generated certificate.
type CertInfo struct {
	CertPath string
	KeyPath  string

	// Fingerprint is the SHA-256 fingerprint of the certificate as
	// colon-separated uppercase hex bytes.
	Fingerprint string

	NotBefore time.Time
	NotAfter  time.Time

	// Generated is true when the certificate was created by this call
	// rather than loaded from disk.
	Generated bool
}

// DefaultCertPaths returns the default certificate and key locations
// under the broker's config directory.
func DefaultCertPaths() (certPath, keyPath string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".doorward", "certs")
	return filepath.Join(dir, "broker.crt"), filepath.Join(dir, "broker.key"), nil
}

// EnsureCertificate loads the certificate pair at the configured paths, or
// generates a self-signed one if either file is missing.
func EnsureCertificate(cfg CertConfig) (*CertInfo, error) {
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		certPath, keyPath, err := DefaultCertPaths()
		if err != nil {
			return nil, err
		}
		if cfg.CertPath == "" {
			cfg.CertPath = certPath
		}
		if cfg.KeyPath == "" {
			cfg.KeyPath = keyPath
		}
	}

	if fileExists(cfg.CertPath) && fileExists(cfg.KeyPath) {
		info, err := loadCertificate(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		return info, nil
	}

	info, err := GenerateCertificate(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	return info, nil
}

// loadCertificate verifies an existing pair and computes its fingerprint.
func loadCertificate(certPath, keyPath string) (*CertInfo, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return &CertInfo{
		CertPath:    certPath,
		KeyPath:     keyPath,
		Fingerprint: ComputeFingerprint(leaf),
		NotBefore:   leaf.NotBefore,
		NotAfter:    leaf.NotAfter,
	}, nil
}

// GenerateCertificate creates a new self-signed certificate pair and
// writes it to the configured paths.
func GenerateCertificate(cfg CertConfig) (*CertInfo, error) {
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}
	validFor := cfg.ValidFor
	if validFor == 0 {
		validFor = 365 * 24 * time.Hour
	}

	// ECDSA P-256: equivalent security to RSA 3072 with smaller keys
	// and faster handshakes.
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(validFor)
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"doorward"},
			CommonName:   "doorward broker",
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CertPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if err := writePEM(cfg.CertPath, "CERTIFICATE", der, 0644); err != nil {
		return nil, err
	}
	keyBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := writePEM(cfg.KeyPath, "PRIVATE KEY", keyBytes, 0600); err != nil {
		return nil, err
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}

	return &CertInfo{
		CertPath:    cfg.CertPath,
		KeyPath:     cfg.KeyPath,
		Fingerprint: ComputeFingerprint(leaf),
		NotBefore:   notBefore,
		NotAfter:    notAfter,
		Generated:   true,
	}, nil
}

// ComputeFingerprint computes the SHA-256 fingerprint of a certificate as
// colon-separated uppercase hex bytes, e.g. "AA:BB:CC:...".
func ComputeFingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	hexStr := strings.ToUpper(hex.EncodeToString(sum[:]))
	parts := make([]string, 0, len(hexStr)/2)
	for i := 0; i < len(hexStr); i += 2 {
		parts = append(parts, hexStr[i:i+2])
	}
	return strings.Join(parts, ":")
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
