package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		globalConfig  string
		projectConfig string
		expectModel   string
		expectBaseURL string
		expectEngine  string
		expectShell   bool
	}{
		{
			name:          "No config files - returns defaults",
			expectModel:   "llama3:8b",
			expectBaseURL: "http://localhost:11434",
			expectEngine:  "agent_engine.py",
			expectShell:   true,
		},
		{
			name:          "Global only - overrides model",
			globalConfig:  `{"service":{"model":"llama3:70b"}}`,
			expectModel:   "llama3:70b",
			expectBaseURL: "http://localhost:11434",
			expectEngine:  "agent_engine.py",
			expectShell:   true,
		},
		{
			name:          "Project only - disables shell",
			projectConfig: `{"shell":{"enabled":false}}`,
			expectModel:   "llama3:8b",
			expectBaseURL: "http://localhost:11434",
			expectEngine:  "agent_engine.py",
			expectShell:   false,
		},
		{
			name:          "Project overrides global - project wins",
			globalConfig:  `{"service":{"model":"model-x","base_url":"http://gpu-box:11434"}}`,
			projectConfig: `{"service":{"model":"model-y"},"scripts":{"engine":"engine.py"}}`,
			expectModel:   "model-y",
			expectBaseURL: "http://gpu-box:11434",
			expectEngine:  "engine.py",
			expectShell:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.globalConfig != "" {
				globalPath = filepath.Join(tmpDir, "global.json")
				writeFile(t, globalPath, tt.globalConfig)
			}

			projectPath := ""
			if tt.projectConfig != "" {
				projectPath = filepath.Join(tmpDir, "project.json")
				writeFile(t, projectPath, tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if cfg.Service.Model != tt.expectModel {
				t.Errorf("model = %q, want %q", cfg.Service.Model, tt.expectModel)
			}
			if cfg.Service.BaseURL != tt.expectBaseURL {
				t.Errorf("base url = %q, want %q", cfg.Service.BaseURL, tt.expectBaseURL)
			}
			if cfg.Scripts.Engine != tt.expectEngine {
				t.Errorf("engine = %q, want %q", cfg.Scripts.Engine, tt.expectEngine)
			}
			if cfg.ShellEnabled() != tt.expectShell {
				t.Errorf("shell enabled = %v, want %v", cfg.ShellEnabled(), tt.expectShell)
			}
			if cfg.Service.SystemPrompt != Persona {
				t.Errorf("system prompt should stay at the default persona")
			}
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()

	globalPath := filepath.Join(tmpDir, "global.json")
	writeFile(t, globalPath, "{invalid json")

	_, err := Load(globalPath, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}
	if cfg.Service.Address != "127.0.0.1:11434" {
		t.Errorf("address = %q, want default", cfg.Service.Address)
	}
	if cfg.Tool.Name != "openclaw" {
		t.Errorf("tool = %q, want openclaw", cfg.Tool.Name)
	}
}

func TestApplyEnv_ProcessEnvBeatsFile(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	writeFile(t, envFile, "PERSONALIZ_MODEL=from-file\nPERSONALIZ_SCRIPTS_DIR=/opt/scripts\nPERSONALIZ_TIMEOUT=45s\n")

	env := map[string]string{"PERSONALIZ_MODEL": "from-env"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, envFile, lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Service.Model != "from-env" {
		t.Errorf("model = %q, want from-env", cfg.Service.Model)
	}
	if cfg.Scripts.Dir != "/opt/scripts" {
		t.Errorf("scripts dir = %q, want /opt/scripts", cfg.Scripts.Dir)
	}
	if cfg.Service.Timeout.Std() != 45*time.Second {
		t.Errorf("timeout = %v, want 45s", cfg.Service.Timeout)
	}
}

func TestApplyEnv_InvalidBool(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "PERSONALIZ_SHELL_ENABLED" {
			return "sometimes", true
		}
		return "", false
	}

	if err := ApplyEnv(DefaultConfig(), "", lookup); err == nil {
		t.Fatal("expected error for invalid PERSONALIZ_SHELL_ENABLED")
	}
}

func TestApplyEnv_DisableShell(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "PERSONALIZ_SHELL_ENABLED" {
			return "false", true
		}
		return "", false
	}

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, filepath.Join(t.TempDir(), "missing.env"), lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.ShellEnabled() {
		t.Error("expected shell passthrough to be disabled")
	}
}

func TestLoadDurationStrings(t *testing.T) {
	tmpDir := t.TempDir()
	globalPath := filepath.Join(tmpDir, "global.json")
	writeFile(t, globalPath, `{"service":{"timeout":"30s","max_wait":"1m30s"},"breaker":{"consecutive_failures":3,"open_timeout":"10s"}}`)

	cfg, err := Load(globalPath, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Service.Timeout.Std() != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.Service.Timeout)
	}
	if cfg.Service.MaxWait.Std() != 90*time.Second {
		t.Errorf("max_wait = %v, want 1m30s", cfg.Service.MaxWait)
	}
	if cfg.Breaker.OpenTimeout.Std() != 10*time.Second {
		t.Errorf("open_timeout = %v, want 10s", cfg.Breaker.OpenTimeout)
	}
}

func TestLoadDurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    time.Duration
		wantErr bool
	}{
		{"nanoseconds", `{"service":{"timeout":2000000000}}`, 2 * time.Second, false},
		{"bad unit", `{"service":{"timeout":"30 seconds"}}`, 0, true},
		{"wrong type", `{"service":{"timeout":true}}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			writeFile(t, path, tt.content)

			cfg, err := Load(path, "")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Service.Timeout.Std() != tt.want {
				t.Errorf("timeout = %v, want %v", cfg.Service.Timeout, tt.want)
			}
		})
	}
}

func TestBreakerOffByDefault(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Breaker.ConsecutiveFailures != 0 {
		t.Errorf("consecutive_failures = %d, want 0", cfg.Breaker.ConsecutiveFailures)
	}
}
