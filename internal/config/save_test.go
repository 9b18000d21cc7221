package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}

	var loaded GatewayConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	disabled := false
	cfg := DefaultConfig()
	cfg.Service.Model = "mistral:7b"
	cfg.Service.Timeout = Duration(90 * time.Second)
	cfg.Scripts.Dir = "/usr/share/personaliz/scripts"
	cfg.Scripts.Interpreter = "python3.12"
	cfg.Shell.Enabled = &disabled
	cfg.Breaker.ConsecutiveFailures = 2

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Service.Model != "mistral:7b" {
		t.Errorf("model mismatch: got %q", loaded.Service.Model)
	}
	if loaded.Service.Timeout.Std() != 90*time.Second {
		t.Errorf("timeout mismatch: got %v", loaded.Service.Timeout)
	}
	if loaded.Scripts.Dir != "/usr/share/personaliz/scripts" {
		t.Errorf("scripts dir mismatch: got %q", loaded.Scripts.Dir)
	}
	if loaded.Scripts.Interpreter != "python3.12" {
		t.Errorf("interpreter mismatch: got %q", loaded.Scripts.Interpreter)
	}
	if loaded.ShellEnabled() {
		t.Error("shell should stay disabled after round trip")
	}
	if loaded.Breaker.ConsecutiveFailures != 2 {
		t.Errorf("breaker failures mismatch: got %d", loaded.Breaker.ConsecutiveFailures)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	first := DefaultConfig()
	first.Service.Model = "first-value"
	if err := Save(first, path); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	second := DefaultConfig()
	second.Service.Model = "second-value"
	if err := Save(second, path); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Service.Model != "second-value" {
		t.Errorf("Expected 'second-value', got '%s'", loaded.Service.Model)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	for i := 0; i < 3; i++ {
		if err := Save(DefaultConfig(), path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "config.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only config.json, got %v", names)
	}
}

func TestSaveWritesDurationStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultConfig()
	cfg.Service.Timeout = Duration(45 * time.Second)

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading config: %v", err)
	}
	for _, want := range []string{`"timeout": "45s"`, `"max_wait": "30s"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config missing %s:\n%s", want, data)
		}
	}
}
