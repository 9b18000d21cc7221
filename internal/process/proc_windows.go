//go:build windows

package process

import (
	"context"
	"fmt"
	"os/exec"
)

func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// killProcessGroup kills the direct child; Windows has no POSIX process groups.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return cmd.Process.Kill()
}
