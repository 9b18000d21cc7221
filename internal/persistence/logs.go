package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxLogs is how many log entries the store keeps across all agents.
const MaxLogs = 1000

// LogLevel is the severity of an agent log entry.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// SystemAgentID tags log entries that belong to no agent.
const SystemAgentID = "system"

// AgentLog is one line of an agent's activity.
type AgentLog struct {
	ID        string
	AgentID   string
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Details   json.RawMessage // optional
}

// AppendLog stores entry, filling ID and Timestamp when unset, and drops the
// oldest entries beyond MaxLogs.
func (s *SQLiteStore) AppendLog(ctx context.Context, entry *AgentLog) error {
	if entry.ID == "" {
		entry.ID = "log_" + uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Level == "" {
		entry.Level = LevelInfo
	}
	if entry.AgentID == "" {
		entry.AgentID = SystemAgentID
	}

	var details sql.NullString
	if len(entry.Details) > 0 {
		details = sql.NullString{String: string(entry.Details), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agent_logs (id, agent_id, timestamp, level, message, details)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.AgentID, entry.Timestamp.UnixNano(), string(entry.Level), entry.Message, details); err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM agent_logs
		WHERE seq NOT IN (SELECT seq FROM agent_logs ORDER BY seq DESC LIMIT ?)
	`, MaxLogs); err != nil {
		return fmt.Errorf("failed to trim logs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListLogs returns the logs of agentID in insertion order, or every log when
// agentID is empty.
func (s *SQLiteStore) ListLogs(ctx context.Context, agentID string) ([]AgentLog, error) {
	query := `SELECT id, agent_id, timestamp, level, message, details FROM agent_logs`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	logs := []AgentLog{}
	for rows.Next() {
		var (
			l       AgentLog
			ts      int64
			level   string
			details sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.AgentID, &ts, &level, &l.Message, &details); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		l.Timestamp = time.Unix(0, ts)
		l.Level = LogLevel(level)
		if details.Valid {
			l.Details = json.RawMessage(details.String)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logs: %w", err)
	}
	return logs, nil
}

// ClearLogs deletes the logs of agentID, or all logs when agentID is empty.
func (s *SQLiteStore) ClearLogs(ctx context.Context, agentID string) error {
	var err error
	if agentID == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM agent_logs`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM agent_logs WHERE agent_id = ?`, agentID)
	}
	if err != nil {
		return fmt.Errorf("failed to clear logs: %w", err)
	}
	return nil
}
