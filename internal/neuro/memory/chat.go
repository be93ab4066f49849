package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/bdobrica/Neuro/internal/neuro/nlp"
)

// Append stores one conversation turn under traceID.
func (s *Store) Append(ctx context.Context, traceID string, turn nlp.Turn) error {
	if turn.Role != nlp.RoleUser && turn.Role != nlp.RoleAssistant {
		return fmt.Errorf("invalid role %q", turn.Role)
	}
	if strings.TrimSpace(turn.Content) == "" {
		return fmt.Errorf("empty %s turn", turn.Role)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_log (ts, trace_id, role, content) VALUES (?, ?, ?, ?)",
		s.now(), traceID, string(turn.Role), turn.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to append chat turn: %w", err)
	}
	return nil
}

// Recent returns the last n turns, oldest first.
func (s *Store) Recent(ctx context.Context, n int) ([]nlp.Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM (
			SELECT id, role, content FROM chat_log ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat log: %w", err)
	}
	defer rows.Close()

	var turns []nlp.Turn
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("failed to scan chat turn: %w", err)
		}
		turns = append(turns, nlp.Turn{Role: nlp.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat log: %w", err)
	}
	return turns, nil
}

// Count returns the number of stored turns.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chat turns: %w", err)
	}
	return n, nil
}
