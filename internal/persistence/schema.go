package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
// Timestamps are stored as Unix nanoseconds.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		goal TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL,
		tools TEXT NOT NULL DEFAULT '[]',
		actions TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_run INTEGER,
		next_run INTEGER
	);

	CREATE TABLE IF NOT EXISTS agent_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		agent_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		details TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_agent_logs_agent_id ON agent_logs(agent_id, seq);

	CREATE TABLE IF NOT EXISTS transcript (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
