package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
name: nightly-export
description: export orders

connection:
  server: db.internal
  port: 1433
  user: app
  password: secret
  database: sales
  request_timeout: 45s
  max_open_conns: 8

emit:
  type: kafka
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  topic: sqlblocks-events

retry:
  enabled: true
  max_attempts: 5
  initial_delay: 500ms
  max_delay: 10s
  backoff: exponential

run_log:
  enabled: true
  address: 127.0.0.1:6379
  ttl: 120

logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "nightly-export" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Connection.Server != "db.internal" || cfg.Connection.Database != "sales" {
		t.Errorf("connection not parsed: %+v", cfg.Connection)
	}
	if cfg.Connection.RequestTimeout != 45*time.Second {
		t.Errorf("request_timeout = %v, want 45s", cfg.Connection.RequestTimeout)
	}
	if cfg.Connection.MaxOpenConns != 8 {
		t.Errorf("max_open_conns = %d", cfg.Connection.MaxOpenConns)
	}
	if cfg.Emit.Type != "kafka" || len(cfg.Emit.Brokers) != 2 {
		t.Errorf("emit not parsed: %+v", cfg.Emit)
	}
	if !cfg.Retry.Enabled || cfg.Retry.InitialDelay != 500*time.Millisecond {
		t.Errorf("retry not parsed: %+v", cfg.Retry)
	}
	if cfg.RunLog.Name != "nightly-export" {
		t.Errorf("run_log name should default to run name, got %q", cfg.RunLog.Name)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging not parsed: %+v", cfg.Logging)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
name: minimal
connection:
  server: localhost
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Emit.Type != "stdout" {
		t.Errorf("emit type = %q, want stdout", cfg.Emit.Type)
	}
	if cfg.Connection.Port != 1433 || cfg.Connection.Schema != "dbo" {
		t.Errorf("connection defaults missing: %+v", cfg.Connection)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("logging defaults missing: %+v", cfg.Logging)
	}
	if cfg.RunLog.TTL != 3600 {
		t.Errorf("run_log ttl = %d, want 3600", cfg.RunLog.TTL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing name", "connection:\n  server: x\n", "name is required"},
		{"missing server", "name: x\n", "server is required"},
		{"bad emit", "name: x\nconnection:\n  server: y\nemit:\n  type: msmq\n", "unsupported type"},
		{"bad level", "name: x\nconnection:\n  server: y\nlogging:\n  level: loud\n", "unknown level"},
		{"runlog no addr", "name: x\nconnection:\n  server: y\nrun_log:\n  enabled: true\n", "address is required"},
		{"bad retry", "name: x\nconnection:\n  server: y\nretry:\n  enabled: true\n  backoff: random\n", "backoff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Load error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/run.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCreateDefaultIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := CreateDefault(path); err != nil {
		t.Fatalf("CreateDefault: %v", err)
	}
	if err := CreateDefault(path); err == nil {
		t.Error("CreateDefault should refuse to overwrite")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.Name != "example-run" || cfg.Emit.Type != "stdout" {
		t.Errorf("unexpected generated config: %+v", cfg)
	}
}
