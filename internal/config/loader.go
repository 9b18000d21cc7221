package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*GatewayConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// Paths returns the conventional global and project config locations.
// Global: ~/.personaliz/config.json
// Project: .personaliz/config.json (relative to cwd)
func Paths() (globalPath, projectPath string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".personaliz", "config.json"), filepath.Join(".personaliz", "config.json"), nil
}

// LoadDefault loads configuration from the conventional paths, then applies
// overrides from .env and PERSONALIZ_* environment variables.
func LoadDefault() (*GatewayConfig, error) {
	globalPath, projectPath, err := Paths()
	if err != nil {
		return nil, err
	}

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		return nil, err
	}

	if err := ApplyEnv(cfg, ".env", os.LookupEnv); err != nil {
		return nil, err
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(globalPath)
	}

	return cfg, nil
}

// ApplyEnv overlays environment overrides onto cfg. Values from envFile are
// used only when the process environment does not define the same key.
// A missing envFile is not an error.
func ApplyEnv(cfg *GatewayConfig, envFile string, lookup func(string) (string, bool)) error {
	fileVars := map[string]string{}
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			vars, err := godotenv.Read(envFile)
			if err != nil {
				return fmt.Errorf("reading %s: %w", envFile, err)
			}
			fileVars = vars
		}
	}

	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok && v != "" {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok && v != ""
	}

	if v, ok := get("PERSONALIZ_ADDRESS"); ok {
		cfg.Service.Address = v
	}
	if v, ok := get("PERSONALIZ_BASE_URL"); ok {
		cfg.Service.BaseURL = v
	}
	if v, ok := get("PERSONALIZ_MODEL"); ok {
		cfg.Service.Model = v
	}
	if v, ok := get("PERSONALIZ_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing PERSONALIZ_TIMEOUT: %w", err)
		}
		cfg.Service.Timeout = Duration(d)
	}
	if v, ok := get("PERSONALIZ_SCRIPTS_DIR"); ok {
		cfg.Scripts.Dir = v
	}
	if v, ok := get("PERSONALIZ_INTERPRETER"); ok {
		cfg.Scripts.Interpreter = v
	}
	if v, ok := get("PERSONALIZ_SHELL_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing PERSONALIZ_SHELL_ENABLED: %w", err)
		}
		cfg.Shell.Enabled = &b
	}
	if v, ok := get("PERSONALIZ_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := get("PERSONALIZ_DATA_DIR"); ok {
		cfg.DataDir = v
	}

	return nil
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *GatewayConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded GatewayConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	mergeService(&base.Service, loaded.Service)

	if loaded.Scripts.Dir != "" {
		base.Scripts.Dir = loaded.Scripts.Dir
	}
	if loaded.Scripts.Engine != "" {
		base.Scripts.Engine = loaded.Scripts.Engine
	}
	if loaded.Scripts.Interpreter != "" {
		base.Scripts.Interpreter = loaded.Scripts.Interpreter
	}

	if loaded.Tool.Name != "" {
		base.Tool.Name = loaded.Tool.Name
	}

	if loaded.Shell.Enabled != nil {
		base.Shell.Enabled = loaded.Shell.Enabled
	}

	if loaded.Breaker.ConsecutiveFailures != 0 {
		base.Breaker.ConsecutiveFailures = loaded.Breaker.ConsecutiveFailures
	}
	if loaded.Breaker.OpenTimeout != 0 {
		base.Breaker.OpenTimeout = loaded.Breaker.OpenTimeout
	}

	if loaded.LogLevel != "" {
		base.LogLevel = loaded.LogLevel
	}
	if loaded.DataDir != "" {
		base.DataDir = loaded.DataDir
	}

	return nil
}

func mergeService(base *ServiceConfig, loaded ServiceConfig) {
	if loaded.Address != "" {
		base.Address = loaded.Address
	}
	if loaded.BaseURL != "" {
		base.BaseURL = loaded.BaseURL
	}
	if loaded.Model != "" {
		base.Model = loaded.Model
	}
	if loaded.SystemPrompt != "" {
		base.SystemPrompt = loaded.SystemPrompt
	}
	if loaded.Timeout != 0 {
		base.Timeout = loaded.Timeout
	}
	if loaded.MaxWait != 0 {
		base.MaxWait = loaded.MaxWait
	}
}
