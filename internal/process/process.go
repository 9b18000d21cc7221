package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Result is the outcome of one finished subprocess.
type Result struct {
	Success  bool
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// StdoutText returns stdout decoded as lossy UTF-8.
func (r Result) StdoutText() string { return Decode(r.Stdout) }

// StderrText returns stderr decoded as lossy UTF-8.
func (r Result) StderrText() string { return Decode(r.Stderr) }

// Runner spawns a single process per call and waits for it to exit.
type Runner interface {
	Run(ctx context.Context, argv []string) (Result, error)
}

// StartError reports that the OS refused or failed to start a process.
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Name, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ExecRunner runs commands with os/exec.
// The Manager is optional - if nil, subprocesses won't be tracked.
type ExecRunner struct {
	Dir     string
	Manager *Manager
}

// NewRunner creates an ExecRunner that registers children with pm.
func NewRunner(pm *Manager) *ExecRunner {
	return &ExecRunner{Manager: pm}
}

// Run executes argv[0] with the remaining arguments. A nonzero exit is not an
// error: it is reported through Result.Success and Result.ExitCode. Errors are
// returned only when the process could not be started (*StartError) or when
// ctx ended before the process did.
func (r *ExecRunner) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("empty command")
	}

	cmd := newCommand(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir

	stdout, stderr, err := executeCommand(ctx, cmd, r.Manager)
	res := Result{Stdout: stdout, Stderr: stderr}
	if err == nil {
		res.Success = true
		return res, nil
	}

	var startErr *StartError
	if errors.As(err, &startErr) {
		return res, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s interrupted: %w", argv[0], ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	return res, err
}

// executeCommand executes a command and returns its stdout, stderr, and any error.
// Both pipes are drained concurrently before cmd.Wait so a child that fills
// one pipe buffer cannot deadlock against the other.
func executeCommand(ctx context.Context, cmd *exec.Cmd, pm *Manager) (stdout []byte, stderr []byte, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, &StartError{Name: cmd.Path, Err: err}
	}

	if pm != nil {
		pm.Track(cmd)
		defer pm.Untrack(cmd)
	}

	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer

	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()

	wg.Wait()

	waitErr := cmd.Wait()

	stdout = stdoutBuf.Bytes()
	stderr = stderrBuf.Bytes()

	if waitErr != nil {
		return stdout, stderr, fmt.Errorf("command failed: %w", waitErr)
	}

	return stdout, stderr, nil
}

// Manager tracks all running subprocesses and can terminate them all on shutdown.
//
// Usage pattern (typically in main):
//
//	pm := process.NewManager()
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer cancel()
//	go func() {
//		<-ctx.Done()
//		pm.KillAll()
//	}()
type Manager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewManager creates a new Manager.
func NewManager() *Manager {
	return &Manager{
		procs: make(map[int]*exec.Cmd),
	}
}

// Track registers a subprocess. Must be called after cmd.Start().
func (pm *Manager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a subprocess from tracking.
func (pm *Manager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll terminates all tracked subprocesses and their process groups.
func (pm *Manager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", pid, err))
		}
	}

	return errors.Join(errs...)
}

// Count returns the number of currently tracked processes.
func (pm *Manager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
