package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Schedule controls when an agent should run next.
type Schedule string

const (
	ScheduleOnce    Schedule = "once"
	ScheduleHourly  Schedule = "hourly"
	ScheduleDaily   Schedule = "daily"
	ScheduleWeekly  Schedule = "weekly"
	ScheduleMonthly Schedule = "monthly"
)

// Schedules lists the accepted schedules in display order.
var Schedules = []Schedule{ScheduleOnce, ScheduleHourly, ScheduleDaily, ScheduleWeekly, ScheduleMonthly}

// Valid reports whether s is a known schedule.
func (s Schedule) Valid() bool {
	for _, known := range Schedules {
		if s == known {
			return true
		}
	}
	return false
}

// Next returns the next run after at. ok is false for one-off agents.
func (s Schedule) Next(at time.Time) (next time.Time, ok bool) {
	switch s {
	case ScheduleHourly:
		return at.Add(time.Hour), true
	case ScheduleDaily:
		return at.Add(24 * time.Hour), true
	case ScheduleWeekly:
		return at.Add(7 * 24 * time.Hour), true
	case ScheduleMonthly:
		return at.Add(30 * 24 * time.Hour), true
	default:
		return time.Time{}, false
	}
}

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	AgentDraft  AgentStatus = "draft"
	AgentActive AgentStatus = "active"
	AgentPaused AgentStatus = "paused"
)

// Agent is an automation configured by the user.
type Agent struct {
	ID          string
	Name        string
	Description string
	Role        string
	Goal        string
	Schedule    Schedule
	Tools       []string
	Actions     []string
	Status      AgentStatus
	CreatedAt   time.Time
	LastRun     *time.Time
	NextRun     *time.Time
}

// SaveAgent inserts or updates agent. A missing ID, status or creation time
// is filled in before writing.
func (s *SQLiteStore) SaveAgent(ctx context.Context, agent *Agent) error {
	if agent.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if agent.Schedule == "" {
		agent.Schedule = ScheduleDaily
	}
	if !agent.Schedule.Valid() {
		return fmt.Errorf("unknown schedule %q", agent.Schedule)
	}
	if agent.ID == "" {
		agent.ID = "agent_" + uuid.NewString()
	}
	if agent.Status == "" {
		agent.Status = AgentDraft
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now()
	}

	tools, err := json.Marshal(nonNil(agent.Tools))
	if err != nil {
		return fmt.Errorf("failed to encode tools: %w", err)
	}
	actions, err := json.Marshal(nonNil(agent.Actions))
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, description, role, goal, schedule, tools, actions, status, created_at, last_run, next_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			role = excluded.role,
			goal = excluded.goal,
			schedule = excluded.schedule,
			tools = excluded.tools,
			actions = excluded.actions,
			status = excluded.status,
			last_run = excluded.last_run,
			next_run = excluded.next_run
	`, agent.ID, agent.Name, agent.Description, agent.Role, agent.Goal, string(agent.Schedule),
		string(tools), string(actions), string(agent.Status), agent.CreatedAt.UnixNano(),
		nanos(agent.LastRun), nanos(agent.NextRun))
	if err != nil {
		return fmt.Errorf("failed to upsert agent: %w", err)
	}
	return nil
}

const agentColumns = `id, name, description, role, goal, schedule, tools, actions, status, created_at, last_run, next_run`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var (
		a                Agent
		schedule, status string
		tools, actions   string
		created          int64
		lastRun, nextRun sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Role, &a.Goal, &schedule, &tools, &actions, &status, &created, &lastRun, &nextRun); err != nil {
		return nil, err
	}
	a.Schedule = Schedule(schedule)
	a.Status = AgentStatus(status)
	a.CreatedAt = time.Unix(0, created)
	a.LastRun = fromNanos(lastRun)
	a.NextRun = fromNanos(nextRun)
	if err := json.Unmarshal([]byte(tools), &a.Tools); err != nil {
		return nil, fmt.Errorf("failed to decode tools of agent %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(actions), &a.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions of agent %s: %w", a.ID, err)
	}
	return &a, nil
}

// GetAgent returns the agent with id, or an error wrapping ErrNotFound.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query agent: %w", err)
	}
	return a, nil
}

// ListAgents returns every agent, oldest first.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	agents := []*Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}
	return agents, nil
}

// DeleteAgent removes the agent and its logs.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_logs WHERE agent_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete agent logs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkRun records a run at `at` and schedules the next one. One-off agents
// get no next run.
func (s *SQLiteStore) MarkRun(ctx context.Context, id string, at time.Time) (*Agent, error) {
	a, err := s.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	last := at
	a.LastRun = &last
	a.NextRun = nil
	if next, ok := a.Schedule.Next(at); ok {
		a.NextRun = &next
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE agents SET last_run = ?, next_run = ? WHERE id = ?`,
		nanos(a.LastRun), nanos(a.NextRun), id); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64)
	return &t
}
