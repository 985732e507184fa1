package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.PushTimeout().Seconds() != 60 {
		t.Errorf("PushTimeout = %v, want 60s", cfg.PushTimeout())
	}
}

func TestLoadConfig_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tabflow.yaml")
	yaml := "listen: \":9000\"\nstate_store_path: \"/var/lib/tabflow/state.db\"\npush_max_attempts: 5\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q, want :9000", cfg.Listen)
	}
	if cfg.StateStorePath != "/var/lib/tabflow/state.db" {
		t.Errorf("StateStorePath = %q", cfg.StateStorePath)
	}
	if cfg.PushMaxAttempts != 5 {
		t.Errorf("PushMaxAttempts = %d, want 5", cfg.PushMaxAttempts)
	}
	// untouched default should survive the merge
	if cfg.MaxChunkSizeRecords != 10_000 {
		t.Errorf("MaxChunkSizeRecords = %d, want default 10000", cfg.MaxChunkSizeRecords)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/tabflow.yaml"); err == nil {
		t.Fatal("expected error loading nonexistent config file")
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateStorePath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty state_store_path")
	}

	cfg = DefaultConfig()
	cfg.PushMaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for push_max_attempts = 0")
	}
}
