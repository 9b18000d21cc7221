package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/personaliz/internal/config"
	"github.com/aristath/personaliz/internal/events"
	"github.com/aristath/personaliz/internal/gateway"
	"github.com/aristath/personaliz/internal/persistence"
	"github.com/aristath/personaliz/internal/process"
	"github.com/aristath/personaliz/internal/tui"
)

const usage = `usage:
  personaliz                       start the assistant UI
  personaliz invoke <name> [json]  run one gateway operation and print the reply
  personaliz ops                   list operation names`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	// Track engine subprocesses so shutdown can kill them
	pm := process.NewManager()
	defer func() {
		if err := pm.KillAll(); err != nil {
			slog.Error("killing subprocesses", "error", err)
		}
	}()

	if len(args) == 0 {
		return runTUI(ctx, stop, cfg, pm, stderr)
	}

	logger := newLogger(cfg.LogLevel, stderr)
	slog.SetDefault(logger)

	switch args[0] {
	case "invoke":
		if len(args) < 2 || len(args) > 3 {
			fmt.Fprintln(stderr, usage)
			return 2
		}
		g, err := gateway.New(cfg, gateway.WithRunner(process.NewRunner(pm)), gateway.WithLogger(logger))
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		var raw json.RawMessage
		if len(args) == 3 {
			raw = json.RawMessage(args[2])
		}
		return invoke(ctx, gateway.NewDispatcher(g), args[1], raw, stdout)

	case "ops":
		g, err := gateway.New(cfg, gateway.WithLogger(logger))
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, strings.Join(gateway.NewDispatcher(g).Names(), "\n"))
		return 0

	case "-h", "--help", "help":
		fmt.Fprintln(stdout, usage)
		return 0

	default:
		fmt.Fprintln(stderr, usage)
		return 2
	}
}

// invoke runs one operation and prints its reply envelope. The exit code is
// 1 when the operation failed.
func invoke(ctx context.Context, d *gateway.Dispatcher, name string, args json.RawMessage, stdout io.Writer) int {
	result, err := d.Invoke(ctx, name, args)
	reply := gateway.NewReply(result, err)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(reply); encErr != nil {
		fmt.Fprintf(stdout, "{\"ok\":false,\"error\":{\"kind\":\"Unknown\",\"message\":%q}}\n", encErr.Error())
		return 1
	}
	if !reply.OK {
		return 1
	}
	return 0
}

func runTUI(ctx context.Context, stop context.CancelFunc, cfg *config.GatewayConfig, pm *process.Manager, stderr io.Writer) int {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(stderr, "Error creating data directory: %v\n", err)
		return 1
	}

	// The screen belongs to the UI; logs go to a file.
	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "personaliz.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening log file: %v\n", err)
		return 1
	}
	defer logFile.Close()
	logger := newLogger(cfg.LogLevel, logFile)
	slog.SetDefault(logger)

	globalPath, projectPath, err := config.Paths()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	store, err := persistence.NewSQLiteStore(ctx, filepath.Join(cfg.DataDir, "personaliz.db"))
	if err != nil {
		fmt.Fprintf(stderr, "Error opening database: %v\n", err)
		return 1
	}
	defer store.Close()

	// Create event bus
	bus := events.NewEventBus()
	defer bus.Close()

	g, err := gateway.New(cfg,
		gateway.WithRunner(process.NewRunner(pm)),
		gateway.WithPublisher(bus),
		gateway.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	model := tui.New(tui.Deps{
		Context:           ctx,
		Gateway:           g,
		Store:             store,
		Bus:               bus,
		Config:            cfg,
		GlobalConfigPath:  globalPath,
		ProjectConfigPath: projectPath,
	})

	// Start Bubble Tea program in a goroutine so run can handle shutdown
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		// Normal TUI exit (user pressed 'q' or ctrl+c)
		if err != nil && ctx.Err() == nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		// Restore default signal handling (double Ctrl+C = force exit)
		stop()

		logger.Info("shutdown signal received, cleaning up")
		if err := pm.KillAll(); err != nil {
			logger.Error("killing subprocesses", "error", err)
		}
		p.Quit()

		select {
		case err := <-errChan:
			if err != nil {
				logger.Warn("TUI exit error", "error", err)
			}
		case <-time.After(10 * time.Second):
			logger.Warn("shutdown timeout exceeded, forcing exit")
		}
	}

	logger.Info("shutdown complete")
	return 0
}

// newLogger builds a text logger at the named level; unknown names mean info.
func newLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
