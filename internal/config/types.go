package config

// ServiceConfig describes the local LLM server (Ollama).
type ServiceConfig struct {
	Address      string   `json:"address,omitempty"`       // host:port used by the reachability probe
	BaseURL      string   `json:"base_url,omitempty"`      // HTTP base for /api/chat and /api/tags
	Model        string   `json:"model,omitempty"`         // model identifier sent with every chat request
	SystemPrompt string   `json:"system_prompt,omitempty"` // persona prepended to every conversation
	Timeout      Duration `json:"timeout,omitempty"`       // 0 keeps the HTTP client default
	MaxWait      Duration `json:"max_wait,omitempty"`      // upper bound for WaitForService
}

// ScriptConfig locates the external agent engine.
type ScriptConfig struct {
	Dir         string `json:"dir,omitempty"`         // relative to the install root, or absolute
	Engine      string `json:"engine,omitempty"`      // script file name inside Dir
	Interpreter string `json:"interpreter,omitempty"` // empty picks python/python3 per platform
}

// ToolConfig names the external CLI whose presence is checked.
type ToolConfig struct {
	Name string `json:"name,omitempty"`
}

// ShellConfig gates the arbitrary command passthrough.
type ShellConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// BreakerConfig tunes the circuit breaker guarding chat calls. The breaker
// is off unless ConsecutiveFailures is set.
type BreakerConfig struct {
	ConsecutiveFailures uint32   `json:"consecutive_failures,omitempty"`
	OpenTimeout         Duration `json:"open_timeout,omitempty"`
}

// GatewayConfig is the top-level configuration.
type GatewayConfig struct {
	Service  ServiceConfig `json:"service"`
	Scripts  ScriptConfig  `json:"scripts"`
	Tool     ToolConfig    `json:"tool"`
	Shell    ShellConfig   `json:"shell"`
	Breaker  BreakerConfig `json:"breaker"`
	LogLevel string        `json:"log_level,omitempty"`
	DataDir  string        `json:"data_dir,omitempty"` // holds the sqlite database and TUI log file
}

// ShellEnabled reports whether the shell passthrough may run.
func (c *GatewayConfig) ShellEnabled() bool {
	return c.Shell.Enabled == nil || *c.Shell.Enabled
}
