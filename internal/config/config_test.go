package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithNoFileOrEnv(t *testing.T) {
	chdirTemp(t)

	cfg := Load()

	if cfg.Host != "0.0.0.0" || cfg.Port != 8080 {
		t.Fatalf("unexpected host/port defaults: %+v", cfg)
	}
	if !cfg.Protocols.WebSocket || cfg.Protocols.SSE {
		t.Fatalf("unexpected protocol defaults: %+v", cfg.Protocols)
	}
	if cfg.CTLog.BatchSize != 256 {
		t.Fatalf("CTLog.BatchSize = %d, want 256", cfg.CTLog.BatchSize)
	}
	if cfg.Auth.HeaderName != "Authorization" {
		t.Fatalf("Auth.HeaderName = %q, want Authorization", cfg.Auth.HeaderName)
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CERTSTREAM_PORT", "9443")
	t.Setenv("CERTSTREAM_SSE_ENABLED", "true")
	t.Setenv("CERTSTREAM_BATCH_SIZE", "512")

	cfg := Load()

	if cfg.Port != 9443 {
		t.Fatalf("Port = %d, want 9443", cfg.Port)
	}
	if !cfg.Protocols.SSE {
		t.Fatalf("expected SSE enabled via env override")
	}
	if cfg.CTLog.BatchSize != 512 {
		t.Fatalf("BatchSize = %d, want 512", cfg.CTLog.BatchSize)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := chdirTemp(t)

	content := []byte("host: 127.0.0.1\nport: 9090\nct_logs_url: https://example.org/logs.json\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}

	cfg := Load()

	if cfg.Host != "127.0.0.1" || cfg.Port != 9090 {
		t.Fatalf("unexpected host/port from yaml: %+v", cfg)
	}
	if cfg.CTLogsURL != "https://example.org/logs.json" {
		t.Fatalf("CTLogsURL = %q", cfg.CTLogsURL)
	}
	if cfg.ConfigPath == "" {
		t.Fatalf("expected ConfigPath to record the discovered file")
	}
}

func TestEnvOverridesYAMLFile(t *testing.T) {
	dir := chdirTemp(t)

	content := []byte("port: 9090\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}
	t.Setenv("CERTSTREAM_PORT", "7777")

	cfg := Load()
	if cfg.Port != 7777 {
		t.Fatalf("Port = %d, want env override 7777", cfg.Port)
	}
}

func TestEnvOverridesApplyOnTopOfPartialYAMLSubsection(t *testing.T) {
	dir := chdirTemp(t)

	content := []byte("protocols:\n  websocket: true\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}
	t.Setenv("CERTSTREAM_TCP_ENABLED", "true")

	cfg := Load()
	if !cfg.Protocols.WebSocket {
		t.Fatalf("expected websocket to stay enabled from the yaml file")
	}
	if !cfg.Protocols.TCP {
		t.Fatalf("expected CERTSTREAM_TCP_ENABLED to apply on top of a yaml file that only set websocket")
	}
}

func TestValidateRejectsTCPPortCollidingWithHTTPPort(t *testing.T) {
	cfg := Config{Port: 8080, Protocols: Protocols{TCP: true, TCPPort: 8080}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for tcp_port colliding with the HTTP port")
	}
}

func TestLoadAssignsTCPPortWhenUnsetAndTCPEnabled(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CERTSTREAM_PORT", "9000")
	t.Setenv("CERTSTREAM_TCP_ENABLED", "true")

	cfg := Load()
	if cfg.Protocols.TCPPort != 9001 {
		t.Fatalf("Protocols.TCPPort = %d, want 9001 (HTTP port + 1)", cfg.Protocols.TCPPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil once tcp_port is auto-assigned", err)
	}
}

func TestHasTLSRequiresBothCertAndKey(t *testing.T) {
	cfg := Config{TLSCert: "cert.pem"}
	if cfg.HasTLS() {
		t.Fatalf("HasTLS() should require both cert and key")
	}
	cfg.TLSKey = "key.pem"
	if !cfg.HasTLS() {
		t.Fatalf("HasTLS() should be true once both are set")
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(prev) })
	return dir
}
