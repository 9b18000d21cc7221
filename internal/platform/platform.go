// Package platform isolates the OS-conditional command choices: PATH lookup,
// shell invocation, interpreter name and install instructions.
package platform

import (
	"context"
	"runtime"

	"github.com/aristath/personaliz/internal/process"
)

// Platform answers OS-specific questions for a given GOOS.
type Platform struct {
	goos   string
	runner process.Runner
}

// New returns a Platform for goos, running lookups through runner.
func New(goos string, runner process.Runner) *Platform {
	return &Platform{goos: goos, runner: runner}
}

// Host returns a Platform for the running OS.
func Host(runner process.Runner) *Platform {
	return New(runtime.GOOS, runner)
}

// GOOS returns the platform's operating system name.
func (p *Platform) GOOS() string { return p.goos }

func (p *Platform) windows() bool { return p.goos == "windows" }

// LookupCommand returns the PATH lookup command for name.
func (p *Platform) LookupCommand(name string) []string {
	if p.windows() {
		return []string{"where", name}
	}
	return []string{"which", name}
}

// LookupInPath reports whether the PATH lookup command exits 0 for name.
// The lookup's output is ignored; a lookup that cannot be spawned counts as absent.
func (p *Platform) LookupInPath(ctx context.Context, name string) bool {
	res, err := p.runner.Run(ctx, p.LookupCommand(name))
	if err != nil {
		return false
	}
	return res.Success
}

// ShellCommand wraps a command line for the platform shell.
func (p *Platform) ShellCommand(command string) []string {
	if p.windows() {
		return []string{"cmd", "/C", command}
	}
	return []string{"sh", "-c", command}
}

// RunShell executes command through the platform shell.
func (p *Platform) RunShell(ctx context.Context, command string) (process.Result, error) {
	return p.runner.Run(ctx, p.ShellCommand(command))
}

// Python returns the interpreter name used for the agent engine.
func (p *Platform) Python() string {
	if p.windows() {
		return "python"
	}
	return "python3"
}

// InstallInstructions returns how to install the named tool on this OS.
func (p *Platform) InstallInstructions(tool string) string {
	switch p.goos {
	case "windows":
		return "To install " + displayName(tool) + " on Windows:\n" +
			"1. Download from: https://github.com/" + tool + "/" + tool + "\n" +
			"2. Run: npm install -g " + tool + "\n" +
			"3. Or follow installation instructions in the repository"
	case "darwin":
		return "To install " + displayName(tool) + " on macOS:\n" +
			"1. Run: brew install " + tool + "\n" +
			"2. Or: npm install -g " + tool
	default:
		return "To install " + displayName(tool) + " on Linux:\n" +
			"1. Run: npm install -g " + tool + "\n" +
			"2. Or follow installation instructions"
	}
}

func displayName(tool string) string {
	if tool == "openclaw" {
		return "OpenClaw"
	}
	return tool
}
