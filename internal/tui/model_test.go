package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/personaliz/internal/config"
	"github.com/aristath/personaliz/internal/events"
	"github.com/aristath/personaliz/internal/gateway"
	"github.com/aristath/personaliz/internal/ollama"
	"github.com/aristath/personaliz/internal/persistence"
)

type fakeGateway struct {
	fakeRunner

	mu       sync.Mutex
	reply    string
	replyErr error
	sent     []string
	history  [][]ollama.Message
	status   gateway.ServiceStatus
}

func (g *fakeGateway) SendMessage(_ context.Context, message string, history []ollama.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, message)
	g.history = append(g.history, history)
	return g.reply, g.replyErr
}

func (g *fakeGateway) Status(context.Context) gateway.ServiceStatus { return g.status }

func (g *fakeGateway) InstallInstructions() string { return "npm install -g openclaw" }

func newTestModel(t *testing.T, gw *fakeGateway) (Model, *persistence.SQLiteStore) {
	t.Helper()
	store := testStore(t)
	dir := t.TempDir()
	m := New(Deps{
		Context:           context.Background(),
		Gateway:           gw,
		Store:             store,
		Bus:               events.NewEventBus(),
		Config:            config.DefaultConfig(),
		GlobalConfigPath:  dir + "/global.json",
		ProjectConfigPath: dir + "/project.json",
	})
	m.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model), store
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case KeyTab:
		return tea.KeyMsg{Type: tea.KeyTab}
	case KeyEnter:
		return tea.KeyMsg{Type: tea.KeyEnter}
	case KeyCtrlC:
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// run executes cmd and returns the messages it produced, flattening batches.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m, _ = update(t, m, keyMsg(string(r)))
	}
	return m
}

func TestChatRoundTrip(t *testing.T) {
	gw := &fakeGateway{reply: "Hi! What should we automate?"}
	m, store := newTestModel(t, gw)
	ctx := context.Background()

	m = typeText(t, m, "hello")
	m, cmd := update(t, m, keyMsg(KeyEnter))
	if !m.chatPane.Pending() {
		t.Fatal("expected a pending reply after enter")
	}

	msgs := run(cmd)
	if len(msgs) != 1 {
		t.Fatalf("expected a submit message, got %v", msgs)
	}
	submit, ok := msgs[0].(chatSubmitMsg)
	if !ok || submit.text != "hello" || len(submit.history) != 0 {
		t.Fatalf("unexpected submit message: %#v", msgs[0])
	}

	m, cmd = update(t, m, submit)
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}

	if m.chatPane.Pending() {
		t.Error("reply should clear pending")
	}
	history := m.chatPane.History()
	if len(history) != 2 || history[1].Role != ollama.RoleAssistant || history[1].Content != gw.reply {
		t.Errorf("unexpected history: %+v", history)
	}

	turns, err := store.Transcript(ctx, 0)
	if err != nil {
		t.Fatalf("Transcript failed: %v", err)
	}
	if len(turns) != 2 || turns[0].Content != "hello" || turns[1].Content != gw.reply {
		t.Errorf("unexpected transcript: %+v", turns)
	}
}

func TestChatSecondMessageCarriesHistory(t *testing.T) {
	gw := &fakeGateway{reply: "ok"}
	m, _ := newTestModel(t, gw)

	for _, text := range []string{"first", "second"} {
		m = typeText(t, m, text)
		var cmd tea.Cmd
		m, cmd = update(t, m, keyMsg(KeyEnter))
		for _, msg := range run(cmd) {
			var next tea.Cmd
			m, next = update(t, m, msg)
			for _, reply := range run(next) {
				m, _ = update(t, m, reply)
			}
		}
	}

	if len(gw.history) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(gw.history))
	}
	prior := gw.history[1]
	if len(prior) != 2 || prior[0].Content != "first" || prior[1].Content != "ok" {
		t.Errorf("second send history = %+v", prior)
	}
}

func TestChatFailureShowsMessage(t *testing.T) {
	gw := &fakeGateway{replyErr: &gateway.Error{
		Kind: gateway.KindConnectError,
		Op:   gateway.OpSendMessage,
		Msg:  "Failed to connect to Ollama: connection refused",
	}}
	m, store := newTestModel(t, gw)

	m, cmd := update(t, m, chatSubmitMsg{text: "hello"})
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}

	if !strings.Contains(m.chatPane.notice, "Failed to connect to Ollama") {
		t.Errorf("notice = %q", m.chatPane.notice)
	}
	turns, _ := store.Transcript(context.Background(), 0)
	if len(turns) != 0 {
		t.Errorf("failed exchange should not be saved, got %+v", turns)
	}
}

func TestChatFailedTurnNotResent(t *testing.T) {
	gw := &fakeGateway{replyErr: errors.New("connection refused")}
	m, _ := newTestModel(t, gw)

	send := func(text string) {
		m = typeText(t, m, text)
		var cmd tea.Cmd
		m, cmd = update(t, m, keyMsg(KeyEnter))
		for _, msg := range run(cmd) {
			var next tea.Cmd
			m, next = update(t, m, msg)
			for _, reply := range run(next) {
				m, _ = update(t, m, reply)
			}
		}
	}

	send("first")
	if len(m.chatPane.History()) != 0 {
		t.Fatalf("failed turn kept in history: %+v", m.chatPane.History())
	}

	gw.replyErr = nil
	gw.reply = "ok"
	send("second")

	if len(gw.history) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(gw.history))
	}
	if len(gw.history[1]) != 0 {
		t.Errorf("second send history = %+v, want empty", gw.history[1])
	}
	history := m.chatPane.History()
	if len(history) != 2 || history[0].Content != "second" || history[1].Content != "ok" {
		t.Errorf("history = %+v", history)
	}
}

func TestChatFocusSwallowsShortcuts(t *testing.T) {
	m, _ := newTestModel(t, &fakeGateway{})

	m, _ = update(t, m, keyMsg(KeyQuit))
	if m.quitting {
		t.Fatal("q typed into the chat should not quit")
	}
	if got := m.chatPane.input.Value(); got != "q" {
		t.Errorf("input = %q, want %q", got, "q")
	}

	m, _ = update(t, m, keyMsg(KeySettings))
	if m.showSettings {
		t.Error("s typed into the chat should not open settings")
	}
}

func TestFocusCyclesAndQuits(t *testing.T) {
	m, _ := newTestModel(t, &fakeGateway{})

	m, _ = update(t, m, keyMsg(KeyTab))
	if m.FocusedPane() != PaneAgents {
		t.Fatalf("focus = %v, want agents", m.FocusedPane())
	}
	if m.chatPane.focused || !m.agentPane.focused {
		t.Error("focus flags not updated")
	}

	m, _ = update(t, m, keyMsg(KeySettings))
	if !m.showSettings {
		t.Error("s should open settings outside the chat")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.showSettings {
		t.Error("esc should close settings")
	}

	m, cmd := update(t, m, keyMsg(KeyQuit))
	if !m.quitting {
		t.Error("q should quit outside the chat")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit")
	}
}

func TestRunAgentFromPane(t *testing.T) {
	gw := &fakeGateway{}
	gw.out = gateway.ScriptOutcome{Value: []byte(`{"status":"success","message":"Posted"}`)}
	m, store := newTestModel(t, gw)
	agent := saveAgent(t, store, "Poster")

	m, _ = update(t, m, keyMsg(KeyTab))
	m, cmd := update(t, m, m.loadAgents()())
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg) // logs request
	}

	m, cmd = update(t, m, keyMsg(KeyRunSandbox))
	msgs := run(cmd)
	if len(msgs) != 1 {
		t.Fatalf("expected a run request, got %v", msgs)
	}
	req, ok := msgs[0].(runAgentRequestMsg)
	if !ok || !req.sandbox || req.agent.ID != agent.ID {
		t.Fatalf("unexpected request: %#v", msgs[0])
	}

	// A second press while running is ignored.
	if _, again := update(t, m, keyMsg(KeyRunSandbox)); again != nil {
		t.Error("agent already running; expected no command")
	}

	m, cmd = update(t, m, req)
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}

	if len(gw.calls) != 1 || gw.calls[0] != agent.ID+"/Poster/sandbox" {
		t.Errorf("unexpected engine calls: %v", gw.calls)
	}
	if m.agentPane.running[agent.ID] {
		t.Error("agent should no longer be running")
	}
	if sel := m.agentPane.Selected(); sel == nil || sel.LastRun == nil {
		t.Error("selected agent should show its last run")
	}
}

func TestRunAgentFailureNotice(t *testing.T) {
	gw := &fakeGateway{}
	gw.err = &gateway.Error{Kind: gateway.KindNotFound, Op: gateway.OpRunScriptedAgent, Msg: "agent engine not found at: /x"}
	m, store := newTestModel(t, gw)
	agent := saveAgent(t, store, "Poster")

	m, _ = update(t, m, m.loadAgents()())
	m, cmd := update(t, m, runAgentRequestMsg{agent: agent, sandbox: true})
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}

	if !strings.Contains(m.agentPane.notice, "not found at: /x") {
		t.Errorf("notice = %q", m.agentPane.notice)
	}
}

func TestNewAgentFormSavesAgent(t *testing.T) {
	m, store := newTestModel(t, &fakeGateway{})
	ctx := context.Background()

	m, _ = update(t, m, newAgentRequestMsg{})
	if !m.agentForm.IsVisible() {
		t.Fatal("expected the agent form to open")
	}

	created := &persistence.Agent{Name: "Weekly recap", Schedule: persistence.ScheduleWeekly}
	m, cmd := update(t, m, agentCreatedMsg{agent: created})
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}

	agents, err := store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "Weekly recap" {
		t.Fatalf("unexpected agents: %+v", agents)
	}
	if len(m.agentPane.agents) != 1 {
		t.Error("agent pane should be reloaded after saving")
	}
}

func TestSaveInvalidAgentShowsNote(t *testing.T) {
	m, _ := newTestModel(t, &fakeGateway{})

	m, cmd := update(t, m, agentCreatedMsg{agent: &persistence.Agent{}})
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}

	lines := m.activityPane.Lines()
	if len(lines) == 0 || !strings.HasPrefix(lines[len(lines)-1], "Could not save agent") {
		t.Errorf("activity = %v", lines)
	}
}

func TestDeleteAgent(t *testing.T) {
	m, store := newTestModel(t, &fakeGateway{})
	agent := saveAgent(t, store, "Temp")

	m, cmd := update(t, m, deleteAgentRequestMsg{id: agent.ID})
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}

	if _, err := store.GetAgent(context.Background(), agent.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if len(m.agentPane.agents) != 0 {
		t.Error("agent pane should be empty")
	}
}

func TestInstallRequestAddsInstructions(t *testing.T) {
	m, _ := newTestModel(t, &fakeGateway{})

	m, cmd := update(t, m, installRequestMsg{})
	for _, msg := range run(cmd) {
		m, _ = update(t, m, msg)
	}

	lines := m.activityPane.Lines()
	if len(lines) == 0 || lines[len(lines)-1] != "npm install -g openclaw" {
		t.Errorf("activity = %v", lines)
	}
}

func TestStatusAndEvents(t *testing.T) {
	gw := &fakeGateway{status: gateway.ServiceStatus{ServiceUp: true, ShellEnabled: true}}
	m, _ := newTestModel(t, gw)

	if !strings.Contains(m.activityPane.StatusLine(), "checking") {
		t.Errorf("status line before check = %q", m.activityPane.StatusLine())
	}
	m, _ = update(t, m, m.refreshStatus()())
	line := m.activityPane.StatusLine()
	if !strings.Contains(line, "● Ollama") || !strings.Contains(line, "○ OpenClaw") {
		t.Errorf("status line = %q", line)
	}

	now := time.Now()
	m, _ = update(t, m, events.OperationFailedEvent{
		ID: "c1", Op: gateway.OpSendMessage, Kind: "ConnectError",
		Err: errors.New("refused"), Timestamp: now,
	})
	lines := m.activityPane.Lines()
	if len(lines) != 1 || !strings.Contains(lines[0], "send_message_to_llm [ConnectError] refused") {
		t.Errorf("activity = %v", lines)
	}
}

func TestTranscriptRestored(t *testing.T) {
	m, store := newTestModel(t, &fakeGateway{})
	ctx := context.Background()
	store.AppendTurn(ctx, ollama.RoleUser, "earlier question")
	store.AppendTurn(ctx, ollama.RoleAssistant, "earlier answer")

	m, _ = update(t, m, m.loadTranscript()())

	history := m.chatPane.History()
	if len(history) != 2 || history[0].Content != "earlier question" || history[1].Role != ollama.RoleAssistant {
		t.Errorf("history = %+v", history)
	}
}

func TestActivityCapsLines(t *testing.T) {
	p := NewActivityPaneModel()
	for i := 0; i < maxActivityLines+10; i++ {
		p, _ = p.Update(noteMsg{text: "line"})
	}
	if len(p.Lines()) != maxActivityLines {
		t.Errorf("expected %d lines, got %d", maxActivityLines, len(p.Lines()))
	}
}

func TestAgentFormAgent(t *testing.T) {
	f := NewAgentFormModel()
	f.fields.name = "  Poster "
	f.fields.tools = "browser, ,linkedin"
	f.fields.actions = ""

	a := f.Agent()
	if a.Name != "Poster" || a.Schedule != persistence.ScheduleDaily {
		t.Errorf("unexpected agent: %+v", a)
	}
	if len(a.Tools) != 2 || a.Tools[1] != "linkedin" {
		t.Errorf("tools = %v", a.Tools)
	}
	if a.Actions != nil {
		t.Errorf("actions = %v", a.Actions)
	}
}

func TestValidateBaseURL(t *testing.T) {
	if err := validateBaseURL("http://localhost:11434"); err != nil {
		t.Errorf("valid URL rejected: %v", err)
	}
	for _, bad := range []string{"", "localhost:11434", "http://"} {
		if err := validateBaseURL(bad); err == nil {
			t.Errorf("%q should be rejected", bad)
		}
	}
}

func TestActivityHidesRoutineProbes(t *testing.T) {
	p := NewActivityPaneModel()
	now := time.Now()
	p, _ = p.Update(events.OperationStartedEvent{ID: "1", Op: gateway.OpStatus, Timestamp: now})
	p, _ = p.Update(events.OperationCompletedEvent{ID: "1", Op: gateway.OpCheckServiceStatus, Timestamp: now})
	if len(p.Lines()) != 0 {
		t.Fatalf("routine probes should be hidden, got %v", p.Lines())
	}

	p, _ = p.Update(events.OperationCompletedEvent{ID: "2", Op: gateway.OpRunScriptedAgent, Duration: 1500 * time.Millisecond, Timestamp: now})
	lines := p.Lines()
	if len(lines) != 1 || !strings.Contains(lines[0], "run_python_agent (1.5s)") {
		t.Errorf("activity = %v", lines)
	}
}
