package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestParseByteSize_K8sAndCommonUnits(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"1Ki", 1024},
		{"1KiB", 1024},
		{"2Mi", 2 * 1024 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"3Gi", 3 * 1024 * 1024 * 1024},
		{"10KB", 10 * 1000},
		{"10MB", 10 * 1000 * 1000},
		{"512B", 512},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseByteSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if _, err := ParseByteSize("bad"); err == nil {
		t.Fatalf("expected error for invalid unit")
	}
	if _, err := ParseByteSize(""); err == nil {
		t.Fatalf("expected error for empty size")
	}
}

func TestLoad_WithEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	t.Setenv("BACKEND_URL", "http://backend.example:7071/api/")

	yaml := `
server:
  address: ":0"
  readTimeout: 1s
  writeTimeout: 2s
  idleTimeout: 3s
  maxUploadSize: 1Mi
  storageDir: "` + escapeBackslashes(dir) + `"
  apiKey: "key123"
  shutdownGrace: 5s
  logLevel: DEBUG

backend:
  baseUrl: "${BACKEND_URL}"
  ownerId: "employee-42"

poll:
  interval: 2s
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}

	if cfg.Server.Addr != ":0" {
		t.Fatalf("address = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 1*time.Second || cfg.Server.WriteTimeout != 2*time.Second || cfg.Server.IdleTimeout != 3*time.Second {
		t.Fatalf("timeouts not parsed correctly")
	}
	if uint64(cfg.Server.MaxUploadSize) != 1024*1024 {
		t.Fatalf("maxUploadSize not parsed: %d", cfg.Server.MaxUploadSize)
	}
	if cfg.Server.StorageDir != dir {
		t.Fatalf("storageDir = %q", cfg.Server.StorageDir)
	}
	if cfg.Server.APIKey != "key123" {
		t.Fatalf("apiKey mismatch")
	}
	if cfg.Server.LogLevel != "debug" {
		t.Fatalf("logLevel should be normalised, got %q", cfg.Server.LogLevel)
	}

	if cfg.Backend.BaseURL != "http://backend.example:7071/api" {
		t.Fatalf("env expansion or trailing slash trim failed: %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.OwnerID != "employee-42" {
		t.Fatalf("ownerId = %q", cfg.Backend.OwnerID)
	}
	if cfg.Backend.Timeout != 60*time.Second {
		t.Fatalf("backend timeout default = %v", cfg.Backend.Timeout)
	}

	if cfg.Poll.Interval != 2*time.Second {
		t.Fatalf("poll interval = %v", cfg.Poll.Interval)
	}
	if cfg.Poll.StaleAfter != 12 {
		t.Fatalf("staleAfter default = %d", cfg.Poll.StaleAfter)
	}

	matched, _ := regexp.MatchString(`insightboard\.db$`, cfg.Server.DatabasePath)
	if !matched {
		t.Fatalf("databasePath should end with insightboard.db, got %s", cfg.Server.DatabasePath)
	}
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without file: %v", err)
	}
	if cfg.Poll.Interval != 5*time.Second {
		t.Fatalf("default poll interval = %v", cfg.Poll.Interval)
	}
	if cfg.Backend.OwnerID != "test-employee-001" {
		t.Fatalf("default owner = %q", cfg.Backend.OwnerID)
	}
	if cfg.Mock.Addr != ":7071" {
		t.Fatalf("default mock address = %q", cfg.Mock.Addr)
	}
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}
}

func TestLoad_ValidationRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  storageDir: "` + escapeBackslashes(dir) + `"
  logLevel: loud
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write cfg: %v", err)
	}
	_, err := Load(cfgPath)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "LogLevel") {
		t.Fatalf("error should name the field, got %v", err)
	}
}

func escapeBackslashes(p string) string {
	// On Windows, YAML literal may require escaping backslashes
	return strings.ReplaceAll(p, `\`, `\\`)
}
