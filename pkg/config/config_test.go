package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTcpTestConfigValidateDefaults(t *testing.T) {
	c := &TcpTestConfig{}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.ParallelConnections != 1 {
		t.Fatalf("ParallelConnections = %d, want 1", c.ParallelConnections)
	}
	if c.Port != ProtocolTCP.DefaultPort() {
		t.Fatalf("Port = %d, want default tcp port", c.Port)
	}
	if len(c.PayloadSizes) != len(DefaultPayloadSizes) {
		t.Fatalf("PayloadSizes = %v, want defaults", c.PayloadSizes)
	}
}

func TestHttpTestConfigValidateDerivesURL(t *testing.T) {
	c := &HttpTestConfig{HTTPVersion: ProtocolHTTP2}
	if err := c.Validate("example.test", 0); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := "https://example.test:8443"
	if c.ServerURL != want {
		t.Fatalf("ServerURL = %q, want %q", c.ServerURL, want)
	}
}

func TestValidatePayloadSizesRejectsNonPositive(t *testing.T) {
	c := &TcpTestConfig{PayloadSizes: []int{1024, 0}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for a non-positive payload size")
	}
}

func TestLoadServerConfigNoFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadServerConfig("")
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Bind != "0.0.0.0" || cfg.TCPPort != 5201 {
		t.Fatalf("cfg = %+v, want built-in defaults", cfg)
	}
}

func TestLoadServerConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.TCPPort != 5201 {
		t.Fatalf("cfg.TCPPort = %d, want default 5201", cfg.TCPPort)
	}
}

func TestLoadServerConfigLayersFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netspeed.yaml")
	yaml := "bind: 127.0.0.1\ntcp_port: 9000\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Bind != "127.0.0.1" {
		t.Fatalf("Bind = %q, want 127.0.0.1", cfg.Bind)
	}
	if cfg.TCPPort != 9000 {
		t.Fatalf("TCPPort = %d, want 9000", cfg.TCPPort)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("HTTPPort = %d, want default 8080 (not overridden in file)", cfg.HTTPPort)
	}
}
