package config

import "time"

// Persona is the system message prepended to every chat.
const Persona = "You are Personaliz Desktop Assistant. You help users set up OpenClaw automation without touching command line. Be concise and helpful."

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *GatewayConfig {
	enabled := true
	return &GatewayConfig{
		Service: ServiceConfig{
			Address:      "127.0.0.1:11434",
			BaseURL:      "http://localhost:11434",
			Model:        "llama3:8b",
			SystemPrompt: Persona,
			MaxWait:      Duration(30 * time.Second),
		},
		Scripts: ScriptConfig{
			Dir:    "public",
			Engine: "agent_engine.py",
		},
		Tool: ToolConfig{
			Name: "openclaw",
		},
		Shell: ShellConfig{
			Enabled: &enabled,
		},
		LogLevel: "info",
	}
}
