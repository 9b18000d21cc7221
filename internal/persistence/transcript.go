package persistence

import (
	"context"
	"fmt"
	"time"
)

// Turn is one message of the assistant chat.
type Turn struct {
	Role      string // "user" or "assistant"
	Content   string
	Timestamp time.Time
}

// AppendTurn adds a message to the chat transcript.
func (s *SQLiteStore) AppendTurn(ctx context.Context, role, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript (role, content, timestamp)
		VALUES (?, ?, ?)
	`, role, content, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// Transcript returns the most recent limit turns in chronological order.
// limit <= 0 returns the whole transcript. Never returns nil.
func (s *SQLiteStore) Transcript(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, timestamp FROM (
			SELECT id, role, content, timestamp FROM transcript ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var (
			t  Turn
			ts int64
		)
		if err := rows.Scan(&t.Role, &t.Content, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Timestamp = time.Unix(0, ts)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transcript: %w", err)
	}
	return turns, nil
}

// ClearTranscript deletes the whole chat transcript.
func (s *SQLiteStore) ClearTranscript(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transcript`); err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}
