package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/bdobrica/Neuro/internal/neuro/commands"
)

// ActionRecord is one stored outcome.
type ActionRecord struct {
	ID        int64
	Timestamp time.Time
	TraceID   string
	Index     int
	Label     string
	Verb      string
	Status    string
	Detail    string
	Duration  time.Duration
}

// RecordOutcomes stores a settled batch under traceID in one transaction.
func (s *Store) RecordOutcomes(ctx context.Context, traceID string, outcomes []commands.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin action log transaction: %w", err)
	}
	defer tx.Rollback()

	ts := s.now()
	for _, o := range outcomes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO action_log (ts, trace_id, idx, label, verb, status, detail, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, ts, traceID, o.Index, o.Label, string(o.Verb), string(o.Status), o.Detail, o.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to write action log: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit action log: %w", err)
	}
	return nil
}

// OutcomesByTrace returns the stored outcomes of one batch in index order.
func (s *Store) OutcomesByTrace(ctx context.Context, traceID string) ([]*ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, idx, label, verb, status, detail, duration_ms
		FROM action_log
		WHERE trace_id = ?
		ORDER BY idx ASC
	`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query action log by trace: %w", err)
	}
	defer rows.Close()

	var records []*ActionRecord
	for rows.Next() {
		r := &ActionRecord{}
		var ms int64
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.TraceID, &r.Index, &r.Label, &r.Verb, &r.Status, &r.Detail, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan action record: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action log: %w", err)
	}
	return records, nil
}
