package tls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "broker.crt"), filepath.Join(dir, "broker.key")
}

func TestGenerateCertificate(t *testing.T) {
	certPath, keyPath := testPaths(t)

	info, err := GenerateCertificate(CertConfig{
		CertPath: certPath,
		KeyPath:  keyPath,
		Hosts:    []string{"localhost", "127.0.0.1", "broker.lan"},
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !info.Generated {
		t.Fatal("expected Generated to be true")
	}

	// The pair must be loadable by the standard library.
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		t.Fatalf("generated pair does not load: %v", err)
	}
	if len(pair.Certificate) == 0 {
		t.Fatal("expected at least one certificate")
	}

	// The key file must not be world-readable.
	keyInfo, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if keyInfo.Mode().Perm() != 0600 {
		t.Fatalf("expected key mode 0600, got %v", keyInfo.Mode().Perm())
	}
}

func TestFingerprintFormat(t *testing.T) {
	certPath, keyPath := testPaths(t)

	info, err := GenerateCertificate(CertConfig{CertPath: certPath, KeyPath: keyPath})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	parts := strings.Split(info.Fingerprint, ":")
	if len(parts) != 32 {
		t.Fatalf("expected 32 fingerprint bytes, got %d (%q)", len(parts), info.Fingerprint)
	}
	for _, p := range parts {
		if len(p) != 2 || p != strings.ToUpper(p) {
			t.Fatalf("malformed fingerprint byte %q in %q", p, info.Fingerprint)
		}
	}
}

func TestEnsureCertificateReuses(t *testing.T) {
	certPath, keyPath := testPaths(t)
	cfg := CertConfig{CertPath: certPath, KeyPath: keyPath}

	first, err := EnsureCertificate(cfg)
	if err != nil {
		t.Fatalf("first ensure failed: %v", err)
	}
	if !first.Generated {
		t.Fatal("expected first call to generate")
	}

	second, err := EnsureCertificate(cfg)
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if second.Generated {
		t.Fatal("expected second call to load the existing pair")
	}
	if second.Fingerprint != first.Fingerprint {
		t.Fatalf("fingerprint changed across loads: %q vs %q", first.Fingerprint, second.Fingerprint)
	}
}

func TestCertificateValidity(t *testing.T) {
	certPath, keyPath := testPaths(t)

	info, err := GenerateCertificate(CertConfig{
		CertPath: certPath,
		KeyPath:  keyPath,
		ValidFor: 48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	lifetime := info.NotAfter.Sub(info.NotBefore)
	if lifetime != 48*time.Hour {
		t.Fatalf("expected 48h validity, got %v", lifetime)
	}
	if time.Now().Before(info.NotBefore) {
		t.Fatal("certificate not yet valid")
	}
}
