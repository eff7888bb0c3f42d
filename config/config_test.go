package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fbtrace.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
clickhouse:
  addr: ["ch1:9000", "ch2:9000"]
  database: traces
  username: writer
  password: secret
  table: fb_events
batch:
  size: 500
  interval: 2s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.ClickHouse.Addr) != 2 || cfg.ClickHouse.Addr[0] != "ch1:9000" {
		t.Errorf("addr = %v", cfg.ClickHouse.Addr)
	}
	if cfg.ClickHouse.Database != "traces" || cfg.ClickHouse.Table != "fb_events" {
		t.Errorf("database/table = %q/%q", cfg.ClickHouse.Database, cfg.ClickHouse.Table)
	}
	if cfg.Batch.Size != 500 || cfg.Batch.Interval != Duration(2*time.Second) {
		t.Errorf("batch = %+v", cfg.Batch)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "clickhouse:\n  username: default\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.ClickHouse.Addr) != 1 || cfg.ClickHouse.Addr[0] != "localhost:9000" {
		t.Errorf("default addr = %v", cfg.ClickHouse.Addr)
	}
	if cfg.ClickHouse.Database != "default" || cfg.ClickHouse.Table != "fbtrace_events" {
		t.Errorf("defaults = %q/%q", cfg.ClickHouse.Database, cfg.ClickHouse.Table)
	}
	if cfg.Batch.Size != DefaultBatchSize || cfg.Batch.Interval != DefaultFlushInterval {
		t.Errorf("batch defaults = %+v", cfg.Batch)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "clickhouse: [not a mapping")); err == nil {
		t.Error("expected error for malformed yaml")
	}
	if _, err := Load(writeConfig(t, "clickhouse:\n  addr: [\"\"]\n")); err == nil {
		t.Error("expected error for empty address")
	}
}
