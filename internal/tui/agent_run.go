package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aristath/personaliz/internal/gateway"
	"github.com/aristath/personaliz/internal/persistence"
)

// ScriptRunner runs the agent engine for one agent.
type ScriptRunner interface {
	RunScriptedAgent(ctx context.Context, agentID, agentName string, sandbox bool) (gateway.ScriptOutcome, error)
}

// RunAgent runs agent through the engine, records the engine's log lines and
// a summary in store, and schedules the next run.
func RunAgent(ctx context.Context, runner ScriptRunner, store persistence.Store, agent *persistence.Agent, sandbox bool, now func() time.Time) (*persistence.Agent, error) {
	if now == nil {
		now = time.Now
	}
	mode := "live"
	if sandbox {
		mode = "sandbox"
	}

	if err := store.AppendLog(ctx, &persistence.AgentLog{
		AgentID: agent.ID,
		Level:   persistence.LevelInfo,
		Message: fmt.Sprintf("Running agent in %s mode", mode),
	}); err != nil {
		return nil, err
	}

	out, err := runner.RunScriptedAgent(ctx, agent.ID, agent.Name, sandbox)
	if err != nil {
		// The run error is what the caller needs; a failed log write is secondary.
		_ = store.AppendLog(ctx, &persistence.AgentLog{
			AgentID: agent.ID,
			Level:   persistence.LevelError,
			Message: "Execution failed: " + gateway.Message(err),
		})
		return nil, err
	}

	for _, entry := range EngineLogs(agent.ID, out.Value) {
		if err := store.AppendLog(ctx, &entry); err != nil {
			return nil, err
		}
	}

	updated, err := store.MarkRun(ctx, agent.ID, now())
	if err != nil {
		return nil, err
	}

	if err := store.AppendLog(ctx, &persistence.AgentLog{
		AgentID: agent.ID,
		Level:   persistence.LevelSuccess,
		Message: "Agent executed successfully",
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

// EngineLogs turns the engine's JSON output into log entries: one per element
// of "logs" (a string, or an object with "message" and optional "level"),
// then one for the top-level "message" when present.
func EngineLogs(agentID string, raw []byte) []persistence.AgentLog {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	doc := gjson.ParseBytes(raw)

	var out []persistence.AgentLog
	doc.Get("logs").ForEach(func(_, v gjson.Result) bool {
		entry := persistence.AgentLog{AgentID: agentID, Level: persistence.LevelInfo}
		if v.IsObject() {
			entry.Message = v.Get("message").String()
			if lvl := levelOf(v.Get("level").String()); lvl != "" {
				entry.Level = lvl
			}
		} else {
			entry.Message = v.String()
		}
		if entry.Message != "" {
			out = append(out, entry)
		}
		return true
	})

	if msg := doc.Get("message").String(); msg != "" {
		level := persistence.LevelSuccess
		switch doc.Get("status").String() {
		case "error", "failed", "failure":
			level = persistence.LevelError
		case "warning":
			level = persistence.LevelWarning
		}
		out = append(out, persistence.AgentLog{AgentID: agentID, Level: level, Message: msg})
	}
	return out
}

func levelOf(s string) persistence.LogLevel {
	switch persistence.LogLevel(s) {
	case persistence.LevelInfo, persistence.LevelSuccess, persistence.LevelWarning, persistence.LevelError:
		return persistence.LogLevel(s)
	case "warn":
		return persistence.LevelWarning
	}
	return ""
}
