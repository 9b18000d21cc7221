// Package gateway turns named operations from the UI into TCP probes,
// agent-engine subprocesses, shell commands and Ollama chat calls.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/personaliz/internal/config"
	"github.com/aristath/personaliz/internal/events"
	"github.com/aristath/personaliz/internal/ollama"
	"github.com/aristath/personaliz/internal/platform"
	"github.com/aristath/personaliz/internal/process"
	"github.com/aristath/personaliz/internal/resilience"
)

// Operation names, as sent by the UI.
const (
	OpCheckServiceStatus        = "check_ollama_status"
	OpExecuteAgent              = "execute_agent"
	OpPostToLinkedIn            = "post_to_linkedin"
	OpRunScriptedAgent          = "run_python_agent"
	OpRunCommand                = "run_openclaw_command"
	OpCheckToolInstalled        = "check_openclaw_installed"
	OpCheckInterpreterAvailable = "check_python_available"
	OpSendMessage               = "send_message_to_llm"
	OpInstallInstructions       = "install_openclaw"
	OpListModels                = "list_models"
	OpStatus                    = "status"
	OpWaitForService            = "wait_for_service"
)

const (
	breakerChat   = "ollama.chat"
	breakerModels = "ollama.models"
)

// ChatClient is the subset of the Ollama client the gateway uses.
type ChatClient interface {
	Chat(ctx context.Context, req *ollama.ChatRequest) (*ollama.ChatResponse, error)
	Models(ctx context.Context) ([]ollama.Model, error)
}

// AgentInvocation carries the fields passed to the agent engine.
type AgentInvocation struct {
	ID      string   `json:"agentId"`
	Name    string   `json:"agentName"`
	Role    string   `json:"role"`
	Goal    string   `json:"goal"`
	Tools   []string `json:"tools"`
	Sandbox bool     `json:"sandbox"`
}

// ScriptOutcome is the result of RunScriptedAgent. When Fallback is set the
// engine printed non-JSON text and Value is the default envelope around it.
type ScriptOutcome struct {
	Value    json.RawMessage
	Fallback bool
}

// MarshalJSON emits Value unchanged.
func (o ScriptOutcome) MarshalJSON() ([]byte, error) {
	if len(o.Value) == 0 {
		return []byte("null"), nil
	}
	return o.Value, nil
}

// ServiceStatus summarises the three availability probes.
type ServiceStatus struct {
	ServiceUp            bool `json:"service_up"`
	ToolInstalled        bool `json:"tool_installed"`
	InterpreterAvailable bool `json:"interpreter_available"`
	ShellEnabled         bool `json:"shell_enabled"`
}

type fallbackEnvelope struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Logs    []string `json:"logs"`
}

// Gateway executes UI operations. It holds no per-call state.
type Gateway struct {
	cfg         *config.GatewayConfig
	runner      process.Runner
	platform    *platform.Platform
	chat        ChatClient
	breakers    *resilience.Registry
	bus         events.Publisher
	logger      *slog.Logger
	installRoot string
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithRunner replaces the subprocess runner.
func WithRunner(r process.Runner) Option {
	return func(g *Gateway) { g.runner = r }
}

// WithPlatform replaces the platform abstraction.
func WithPlatform(p *platform.Platform) Option {
	return func(g *Gateway) { g.platform = p }
}

// WithChatClient replaces the Ollama client.
func WithChatClient(c ChatClient) Option {
	return func(g *Gateway) { g.chat = c }
}

// WithBreakers replaces the circuit breaker registry.
func WithBreakers(r *resilience.Registry) Option {
	return func(g *Gateway) { g.breakers = r }
}

// WithPublisher attaches an event bus.
func WithPublisher(p events.Publisher) Option {
	return func(g *Gateway) { g.bus = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithInstallRoot overrides the directory relative script paths resolve against.
func WithInstallRoot(dir string) Option {
	return func(g *Gateway) { g.installRoot = dir }
}

// New builds a Gateway from cfg. Unset collaborators get production defaults.
func New(cfg *config.GatewayConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	g := &Gateway{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}

	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "gateway")

	if g.runner == nil {
		g.runner = process.NewRunner(nil)
	}
	if g.platform == nil {
		g.platform = platform.Host(g.runner)
	}
	if g.chat == nil {
		client, err := ollama.NewClient(ollama.ClientConfig{
			BaseURL: cfg.Service.BaseURL,
			Timeout: cfg.Service.Timeout.Std(),
		})
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		g.chat = client
	}
	if g.breakers == nil && cfg.Breaker.ConsecutiveFailures > 0 {
		g.breakers = resilience.NewRegistry(resilience.BreakerConfig{
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Breaker.OpenTimeout.Std(),
			IsFailure:           endpointFailure,
		}, g.logger)
	}
	if g.installRoot == "" {
		g.installRoot = defaultInstallRoot()
	}
	return g, nil
}

// defaultInstallRoot is one directory above the running executable.
func defaultInstallRoot() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), "..")
}

// endpointFailure decides which chat errors count against the breaker.
func endpointFailure(err error) bool {
	var te *ollama.TransportError
	if errors.As(err, &te) {
		return true
	}
	var se *ollama.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// guarded runs fn through the named breaker when breakers are configured.
func guarded[T any](g *Gateway, name string, fn func() (T, error)) (T, error) {
	if g.breakers == nil {
		return fn()
	}
	return resilience.Do(g.breakers, name, fn)
}

// observe wraps one operation with lifecycle events.
func observe[T any](g *Gateway, op string, fn func() (T, error)) (T, error) {
	id := uuid.NewString()
	start := time.Now()
	g.publish(events.OperationStartedEvent{ID: id, Op: op, Timestamp: start})

	v, err := fn()

	elapsed := time.Since(start)
	if err != nil {
		g.logger.Debug("operation failed", "op", op, "kind", KindOf(err).String(), "error", err, "duration", elapsed)
		g.publish(events.OperationFailedEvent{
			ID:        id,
			Op:        op,
			Kind:      KindOf(err).String(),
			Err:       err,
			Duration:  elapsed,
			Timestamp: time.Now(),
		})
		return v, err
	}
	g.publish(events.OperationCompletedEvent{ID: id, Op: op, Duration: elapsed, Timestamp: time.Now()})
	return v, nil
}

func (g *Gateway) publish(e events.Event) {
	if g.bus == nil {
		return
	}
	topic := events.TopicOperation
	if _, ok := e.(events.ServiceStatusEvent); ok {
		topic = events.TopicService
	}
	g.bus.Publish(topic, e)
}

// CheckServiceStatus reports whether something accepts TCP connections on
// the configured service address. Any dial error means false.
func (g *Gateway) CheckServiceStatus(ctx context.Context) bool {
	up, _ := observe(g, OpCheckServiceStatus, func() (bool, error) {
		return g.probe(ctx), nil
	})
	return up
}

func (g *Gateway) probe(ctx context.Context) bool {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", g.cfg.Service.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ExecuteAgent runs the agent engine for one agent and returns its trimmed stdout.
func (g *Gateway) ExecuteAgent(ctx context.Context, inv AgentInvocation) (string, error) {
	return observe(g, OpExecuteAgent, func() (string, error) {
		if err := requireAgentID(OpExecuteAgent, inv.ID); err != nil {
			return "", err
		}
		g.logger.Info("executing agent", "agent_id", inv.ID, "agent", inv.Name, "sandbox", inv.Sandbox)
		return g.runEngine(ctx, OpExecuteAgent,
			inv.ID,
			inv.Name,
			inv.Role,
			inv.Goal,
			strings.Join(inv.Tools, ","),
			mode(inv.Sandbox, "prod"),
		)
	})
}

// PostToLinkedIn asks the agent engine to publish content.
func (g *Gateway) PostToLinkedIn(ctx context.Context, content string, sandbox bool) (string, error) {
	return observe(g, OpPostToLinkedIn, func() (string, error) {
		g.logger.Info("posting to linkedin", "sandbox", sandbox, "length", len(content))
		return g.runEngine(ctx, OpPostToLinkedIn, "linkedin_post", content, mode(sandbox, "prod"))
	})
}

// RunScriptedAgent runs the agent engine and returns its JSON output. Output
// that is not JSON is wrapped in {"status":"success","message":...,"logs":[]}.
func (g *Gateway) RunScriptedAgent(ctx context.Context, agentID, agentName string, sandbox bool) (ScriptOutcome, error) {
	return observe(g, OpRunScriptedAgent, func() (ScriptOutcome, error) {
		if err := requireAgentID(OpRunScriptedAgent, agentID); err != nil {
			return ScriptOutcome{}, err
		}
		g.logger.Info("running scripted agent", "agent_id", agentID, "agent", agentName, "sandbox", sandbox)
		out, err := g.runEngine(ctx, OpRunScriptedAgent, agentID, mode(sandbox, "live"))
		if err != nil {
			return ScriptOutcome{}, err
		}
		return decodeOutcome(out)
	})
}

func requireAgentID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return &Error{Kind: KindInvalidArgs, Op: op, Msg: "agentId is required"}
	}
	return nil
}

func decodeOutcome(out string) (ScriptOutcome, error) {
	if json.Valid([]byte(out)) {
		return ScriptOutcome{Value: json.RawMessage(out)}, nil
	}
	env, err := json.Marshal(fallbackEnvelope{Status: "success", Message: out, Logs: []string{}})
	if err != nil {
		return ScriptOutcome{}, &Error{Kind: KindDecodeError, Op: OpRunScriptedAgent, Msg: "building fallback envelope", Err: err}
	}
	return ScriptOutcome{Value: env, Fallback: true}, nil
}

// RunCommand passes command to the platform shell and returns stdout verbatim.
// On failure the error message is the shell's stderr, also unmodified.
func (g *Gateway) RunCommand(ctx context.Context, command string) (string, error) {
	return observe(g, OpRunCommand, func() (string, error) {
		if !g.cfg.ShellEnabled() {
			return "", &Error{Kind: KindDisabled, Op: OpRunCommand, Msg: "shell passthrough is disabled"}
		}
		if strings.TrimSpace(command) == "" {
			return "", &Error{Kind: KindInvalidArgs, Op: OpRunCommand, Msg: "command is empty"}
		}
		g.logger.Warn("running shell command", "command", command)

		res, err := g.platform.RunShell(ctx, command)
		if err != nil {
			return "", spawnError(OpRunCommand, err)
		}
		if !res.Success {
			return "", &Error{Kind: KindProcessError, Op: OpRunCommand, Msg: res.StderrText(), Status: res.ExitCode}
		}
		return res.StdoutText(), nil
	})
}

// CheckToolInstalled reports whether the configured tool is on PATH.
func (g *Gateway) CheckToolInstalled(ctx context.Context) bool {
	ok, _ := observe(g, OpCheckToolInstalled, func() (bool, error) {
		return g.platform.LookupInPath(ctx, g.cfg.Tool.Name), nil
	})
	return ok
}

// CheckInterpreterAvailable reports whether "<interpreter> --version" exits 0.
func (g *Gateway) CheckInterpreterAvailable(ctx context.Context) bool {
	ok, _ := observe(g, OpCheckInterpreterAvailable, func() (bool, error) {
		res, err := g.runner.Run(ctx, []string{g.interpreter(), "--version"})
		if err != nil {
			return false, nil
		}
		return res.Success, nil
	})
	return ok
}

// InstallInstructions returns per-OS install text for the configured tool.
func (g *Gateway) InstallInstructions() string {
	text, _ := observe(g, OpInstallInstructions, func() (string, error) {
		return g.platform.InstallInstructions(g.cfg.Tool.Name), nil
	})
	return text
}

// SendMessage sends persona + history + message to the chat endpoint and
// returns the assistant reply.
func (g *Gateway) SendMessage(ctx context.Context, message string, history []ollama.Message) (string, error) {
	return observe(g, OpSendMessage, func() (string, error) {
		req := &ollama.ChatRequest{
			Model:    g.cfg.Service.Model,
			Messages: BuildMessages(g.cfg.Service.SystemPrompt, history, message),
			Stream:   false,
		}
		resp, err := guarded(g, breakerChat, func() (*ollama.ChatResponse, error) {
			return g.chat.Chat(ctx, req)
		})
		if err != nil {
			return "", chatError(OpSendMessage, err)
		}
		return resp.Message.Content, nil
	})
}

// BuildMessages returns [system persona] ++ history ++ [user message].
func BuildMessages(persona string, history []ollama.Message, message string) []ollama.Message {
	msgs := make([]ollama.Message, 0, len(history)+2)
	msgs = append(msgs, ollama.Message{Role: ollama.RoleSystem, Content: persona})
	msgs = append(msgs, history...)
	msgs = append(msgs, ollama.Message{Role: ollama.RoleUser, Content: message})
	return msgs
}

// ListModels returns the names of the models installed on the service.
func (g *Gateway) ListModels(ctx context.Context) ([]string, error) {
	return observe(g, OpListModels, func() ([]string, error) {
		models, err := guarded(g, breakerModels, func() ([]ollama.Model, error) {
			return g.chat.Models(ctx)
		})
		if err != nil {
			return nil, chatError(OpListModels, err)
		}
		names := make([]string, 0, len(models))
		for _, m := range models {
			names = append(names, m.Name)
		}
		return names, nil
	})
}

// Status runs the service, tool and interpreter probes concurrently.
func (g *Gateway) Status(ctx context.Context) ServiceStatus {
	st, _ := observe(g, OpStatus, func() (ServiceStatus, error) {
		var st ServiceStatus
		eg, ectx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			st.ServiceUp = g.CheckServiceStatus(ectx)
			return nil
		})
		eg.Go(func() error {
			st.ToolInstalled = g.CheckToolInstalled(ectx)
			return nil
		})
		eg.Go(func() error {
			st.InterpreterAvailable = g.CheckInterpreterAvailable(ectx)
			return nil
		})
		_ = eg.Wait()
		st.ShellEnabled = g.cfg.ShellEnabled()
		return st, nil
	})

	g.publish(events.ServiceStatusEvent{
		ServiceUp:     st.ServiceUp,
		ToolInstalled: st.ToolInstalled,
		InterpreterUp: st.InterpreterAvailable,
		ShellEnabled:  st.ShellEnabled,
		Timestamp:     time.Now(),
	})
	return st
}

// WaitForService polls the reachability probe with exponential backoff until
// the service accepts connections or service.max_wait elapses.
func (g *Gateway) WaitForService(ctx context.Context) error {
	_, err := observe(g, OpWaitForService, func() (struct{}, error) {
		err := resilience.WaitFor(ctx, g.probe, resilience.WaitConfig{
			MaxElapsedTime: g.cfg.Service.MaxWait.Std(),
		})
		if err != nil {
			return struct{}{}, &Error{
				Kind: KindConnectError,
				Op:   OpWaitForService,
				Msg:  fmt.Sprintf("service at %s not reachable", g.cfg.Service.Address),
				Err:  err,
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (g *Gateway) interpreter() string {
	if g.cfg.Scripts.Interpreter != "" {
		return g.cfg.Scripts.Interpreter
	}
	return g.platform.Python()
}

// ScriptPath resolves the agent engine location. A relative scripts dir is
// taken relative to the install root.
func (g *Gateway) ScriptPath() string {
	dir := g.cfg.Scripts.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(g.installRoot, dir)
	}
	return filepath.Join(dir, g.cfg.Scripts.Engine)
}

// runEngine runs "<interpreter> <engine> args..." and returns trimmed stdout.
func (g *Gateway) runEngine(ctx context.Context, op string, args ...string) (string, error) {
	script := g.ScriptPath()
	if _, err := os.Stat(script); err != nil {
		return "", &Error{Kind: KindNotFound, Op: op, Msg: fmt.Sprintf("%s not found at: %s", g.cfg.Scripts.Engine, script), Err: err}
	}

	argv := append([]string{g.interpreter(), script}, args...)
	res, err := g.runner.Run(ctx, argv)
	if err != nil {
		return "", spawnError(op, err)
	}
	if !res.Success {
		g.logger.Warn("agent engine failed", "op", op, "exit_code", res.ExitCode)
		return "", processError(op, res)
	}
	return strings.TrimSpace(res.StdoutText()), nil
}

func mode(sandbox bool, live string) string {
	if sandbox {
		return "sandbox"
	}
	return live
}

func spawnError(op string, err error) error {
	var se *process.StartError
	if errors.As(err, &se) {
		return &Error{Kind: KindSpawnError, Op: op, Msg: se.Err.Error(), Err: err}
	}
	return &Error{Kind: KindProcessError, Op: op, Msg: err.Error(), Err: err}
}

// processError reports a failed engine run with the mode marker stripped.
func processError(op string, res process.Result) error {
	return &Error{
		Kind:   KindProcessError,
		Op:     op,
		Msg:    trimModeMarker(res.StderrText()),
		Status: res.ExitCode,
	}
}

var modeMarkers = map[string]bool{"sandbox": true, "prod": true, "live": true}

// trimModeMarker trims whitespace and drops a final line that is only a mode flag.
func trimModeMarker(s string) string {
	s = strings.TrimSpace(s)
	i := strings.LastIndexByte(s, '\n')
	if modeMarkers[strings.TrimSpace(s[i+1:])] {
		return strings.TrimSpace(s[:i+1])
	}
	return s
}

func chatError(op string, err error) error {
	if resilience.IsOpen(err) {
		return &Error{Kind: KindConnectError, Op: op, Msg: "Ollama is unavailable (circuit open)", Err: err}
	}
	var te *ollama.TransportError
	if errors.As(err, &te) {
		return &Error{Kind: KindConnectError, Op: op, Msg: fmt.Sprintf("Failed to connect to Ollama: %v", te.Err), Err: err}
	}
	var se *ollama.StatusError
	if errors.As(err, &se) {
		return &Error{Kind: KindRemoteError, Op: op, Msg: fmt.Sprintf("Ollama API error: %d", se.StatusCode), Status: se.StatusCode, Err: err}
	}
	var de *ollama.DecodeError
	if errors.As(err, &de) {
		return &Error{Kind: KindDecodeError, Op: op, Msg: fmt.Sprintf("Failed to parse response: %v", de.Err), Err: err}
	}
	return &Error{Kind: KindUnknown, Op: op, Msg: err.Error(), Err: err}
}
