package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// NOTE: This repository assumes the following tables exist:
// - call_initiated_events, call_ringing_events, call_answered_events,
//   call_completed_events:
//     event_id TEXT PRIMARY KEY, call_sid TEXT NOT NULL REFERENCES calls
//     ON DELETE CASCADE, timestamp TIMESTAMPTZ NOT NULL, additional_data JSONB
// - error_events: same shape plus error_code TEXT, error_message TEXT, and
//   a nullable call_sid.
//
// Event rows are append-only; idempotence rides on the primary key via
// ON CONFLICT DO NOTHING.

var callEventTables = map[Kind]string{
	KindInitiated: "call_initiated_events",
	KindRinging:   "call_ringing_events",
	KindAnswered:  "call_answered_events",
	KindCompleted: "call_completed_events",
}

// PostgresStore persists event rows via database/sql.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertCallEvent(ctx context.Context, kind Kind, ev CallEvent) (bool, error) {
	table, ok := callEventTables[kind]
	if !ok {
		return false, ErrUnsupportedKind
	}
	raw, err := json.Marshal(ev.AdditionalData)
	if err != nil {
		return false, fmt.Errorf("events: marshal additional_data: %w", err)
	}
	q := fmt.Sprintf(`
INSERT INTO %s (event_id, call_sid, timestamp, additional_data)
VALUES ($1, $2, $3, $4)
ON CONFLICT (event_id) DO NOTHING
`, table)
	res, err := s.db.ExecContext(ctx, q, ev.EventID, ev.CallSID, ev.Timestamp, raw)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) InsertErrorEvent(ctx context.Context, ev ErrorEvent) (bool, error) {
	raw, err := json.Marshal(ev.AdditionalData)
	if err != nil {
		return false, fmt.Errorf("events: marshal additional_data: %w", err)
	}
	const q = `
INSERT INTO error_events (event_id, call_sid, timestamp, error_code, error_message, additional_data)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (event_id) DO NOTHING
`
	res, err := s.db.ExecContext(ctx, q, ev.EventID, nullable(ev.CallSID), ev.Timestamp, ev.ErrorCode, ev.ErrorMessage, raw)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) ListCallEvents(ctx context.Context, kind Kind, limit int) ([]CallEvent, error) {
	table, ok := callEventTables[kind]
	if !ok {
		return nil, ErrUnsupportedKind
	}
	q := fmt.Sprintf(`
SELECT event_id, call_sid, timestamp, additional_data
FROM %s
ORDER BY timestamp DESC
`, table)
	return s.queryCallEvents(ctx, withLimit(q, limit))
}

func (s *PostgresStore) ListCallEventsForCall(ctx context.Context, kind Kind, callSID string) ([]CallEvent, error) {
	table, ok := callEventTables[kind]
	if !ok {
		return nil, ErrUnsupportedKind
	}
	q := fmt.Sprintf(`
SELECT event_id, call_sid, timestamp, additional_data
FROM %s
WHERE call_sid = $1
ORDER BY timestamp ASC
`, table)
	return s.queryCallEvents(ctx, q, callSID)
}

func (s *PostgresStore) queryCallEvents(ctx context.Context, q string, args ...any) ([]CallEvent, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallEvent
	for rows.Next() {
		var ev CallEvent
		var raw []byte
		if err := rows.Scan(&ev.EventID, &ev.CallSID, &ev.Timestamp, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &ev.AdditionalData)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListErrorEvents(ctx context.Context, limit int) ([]ErrorEvent, error) {
	const q = `
SELECT event_id, call_sid, timestamp, error_code, error_message, additional_data
FROM error_events
ORDER BY timestamp DESC
`
	return s.queryErrorEvents(ctx, withLimit(q, limit))
}

func (s *PostgresStore) ListErrorEventsForCall(ctx context.Context, callSID string) ([]ErrorEvent, error) {
	const q = `
SELECT event_id, call_sid, timestamp, error_code, error_message, additional_data
FROM error_events
WHERE call_sid = $1
ORDER BY timestamp ASC
`
	return s.queryErrorEvents(ctx, q, callSID)
}

func (s *PostgresStore) queryErrorEvents(ctx context.Context, q string, args ...any) ([]ErrorEvent, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ErrorEvent
	for rows.Next() {
		var ev ErrorEvent
		var callSID sql.NullString
		var raw []byte
		if err := rows.Scan(&ev.EventID, &callSID, &ev.Timestamp, &ev.ErrorCode, &ev.ErrorMessage, &raw); err != nil {
			return nil, err
		}
		ev.CallSID = callSID.String
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &ev.AdditionalData)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func withLimit(q string, limit int) string {
	if limit <= 0 {
		return q
	}
	return fmt.Sprintf("%s LIMIT %d", q, limit)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
