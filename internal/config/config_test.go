package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	if err := LoadConfig(""); err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}

	if Env.IBKR.Host != "127.0.0.1" {
		t.Errorf("IBKR.Host = %q, want 127.0.0.1", Env.IBKR.Host)
	}
	if Env.IBKR.Port != 7497 {
		t.Errorf("IBKR.Port = %d, want 7497", Env.IBKR.Port)
	}
	if Env.IBKR.ClientID != 1 {
		t.Errorf("IBKR.ClientID = %d, want 1", Env.IBKR.ClientID)
	}
	if Env.IBKR.ConnectionPolicy != "per_request" {
		t.Errorf("IBKR.ConnectionPolicy = %q, want per_request", Env.IBKR.ConnectionPolicy)
	}
	if Env.IBKR.SettleDelay != 100*time.Millisecond {
		t.Errorf("IBKR.SettleDelay = %s, want 100ms", Env.IBKR.SettleDelay)
	}
	if Env.Port["trading_gateway_http"] != "5000" {
		t.Errorf("http port = %q, want 5000", Env.Port["trading_gateway_http"])
	}
	if Env.GracefulShutdownTimeout != 10*time.Second {
		t.Errorf("GracefulShutdownTimeout = %s, want 10s", Env.GracefulShutdownTimeout)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("IB_HOST", "10.0.0.5")
	t.Setenv("IB_PORT", "4002")
	t.Setenv("CLIENT_ID", "42")
	t.Setenv("IB_CONNECTION_POLICY", "reuse")

	if err := LoadConfig(""); err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}

	if Env.IBKR.Host != "10.0.0.5" {
		t.Errorf("IBKR.Host = %q, want 10.0.0.5", Env.IBKR.Host)
	}
	if Env.IBKR.Port != 4002 {
		t.Errorf("IBKR.Port = %d, want 4002", Env.IBKR.Port)
	}
	if Env.IBKR.ClientID != 42 {
		t.Errorf("IBKR.ClientID = %d, want 42", Env.IBKR.ClientID)
	}
	if Env.IBKR.ConnectionPolicy != "reuse" {
		t.Errorf("IBKR.ConnectionPolicy = %q, want reuse", Env.IBKR.ConnectionPolicy)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := []byte(`
env: production
port:
  trading_gateway_http: "8080"
ibkr:
  host: gateway.internal
  port: 4001
  client_id: 7
  connection_policy: reuse
  settle_delay: 250ms
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}

	if Env.Env != "production" {
		t.Errorf("Env = %q, want production", Env.Env)
	}
	if Env.IBKR.Host != "gateway.internal" {
		t.Errorf("IBKR.Host = %q", Env.IBKR.Host)
	}
	if Env.IBKR.Port != 4001 {
		t.Errorf("IBKR.Port = %d, want 4001", Env.IBKR.Port)
	}
	if Env.IBKR.ClientID != 7 {
		t.Errorf("IBKR.ClientID = %d, want 7", Env.IBKR.ClientID)
	}
	if Env.IBKR.SettleDelay != 250*time.Millisecond {
		t.Errorf("IBKR.SettleDelay = %s, want 250ms", Env.IBKR.SettleDelay)
	}
	if Env.Port["trading_gateway_http"] != "8080" {
		t.Errorf("http port = %q, want 8080", Env.Port["trading_gateway_http"])
	}

	// Keys the file omits still resolve to defaults.
	if Env.Log.LogLevel != "debug" {
		t.Errorf("Log.LogLevel = %q, want debug", Env.Log.LogLevel)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("LoadConfig() succeeded for a missing explicit config file")
	}
}
