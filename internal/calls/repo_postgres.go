package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voiceops/pkg/utils"
)

// NOTE: This repository assumes the following table exists:
//
//	calls (
//	  call_sid        TEXT PRIMARY KEY,
//	  account_sid     TEXT NOT NULL DEFAULT '',
//	  direction       TEXT NOT NULL DEFAULT '',
//	  from_number     TEXT NOT NULL DEFAULT '',
//	  to_number       TEXT NOT NULL DEFAULT '',
//	  call_status     TEXT NOT NULL DEFAULT '',
//	  created_at      TIMESTAMPTZ NOT NULL,
//	  additional_data JSONB NOT NULL DEFAULT '{}'
//	)
//
// Per-identifier atomicity: the insert races on the primary key
// (ON CONFLICT DO NOTHING), then the merge path locks the row FOR UPDATE
// inside a transaction, so two concurrent events for one CallSid serialize
// on the row lock.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) UpsertFromEvent(ctx context.Context, callSID string, f Fields, raw map[string]any) (Call, error) {
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return Call{}, fmt.Errorf("calls: marshal additional_data: %w", err)
	}
	return s.upsert(ctx, Call{
		CallSID:        callSID,
		AccountSID:     f.AccountSID,
		Direction:      f.Direction,
		FromNumber:     f.FromNumber,
		ToNumber:       f.ToNumber,
		CallStatus:     f.CallStatus,
		AdditionalData: raw,
	}, rawJSON, f)
}

func (s *PostgresStore) GetOrCreatePlaceholder(ctx context.Context, callSID string) (Call, error) {
	noteJSON, err := json.Marshal(placeholderNote)
	if err != nil {
		return Call{}, fmt.Errorf("calls: marshal placeholder note: %w", err)
	}
	// Placeholder carries no mergeable fields, so an existing row is
	// returned untouched.
	return s.upsert(ctx, Call{
		CallSID:        callSID,
		Direction:      DirectionUnknown,
		AdditionalData: placeholderNote,
	}, noteJSON, Fields{})
}

func (s *PostgresStore) upsert(ctx context.Context, seed Call, rawJSON []byte, f Fields) (Call, error) {
	now := s.clock().UTC()
	var out Call

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const ins = `
INSERT INTO calls (call_sid, account_sid, direction, from_number, to_number, call_status, created_at, additional_data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (call_sid) DO NOTHING
`
		res, err := tx.ExecContext(ctx, ins,
			seed.CallSID, seed.AccountSID, seed.Direction, seed.FromNumber,
			seed.ToNumber, seed.CallStatus, now, rawJSON)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			out = seed
			out.CreatedAt = now
			return nil
		}

		// Row existed; lock it and apply the merge rule.
		c, err := lockCall(ctx, tx, seed.CallSID)
		if err != nil {
			return err
		}
		if merge(&c, f) {
			const upd = `
UPDATE calls
SET account_sid = $2, direction = $3, from_number = $4, to_number = $5, call_status = $6
WHERE call_sid = $1
`
			if _, err := tx.ExecContext(ctx, upd,
				c.CallSID, c.AccountSID, c.Direction, c.FromNumber, c.ToNumber, c.CallStatus); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return Call{}, err
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, callSID string) (Call, error) {
	const q = `
SELECT call_sid, account_sid, direction, from_number, to_number, call_status, created_at, additional_data
FROM calls
WHERE call_sid = $1
`
	return scanCall(s.db.QueryRowContext(ctx, q, callSID))
}

func lockCall(ctx context.Context, tx *sql.Tx, callSID string) (Call, error) {
	const q = `
SELECT call_sid, account_sid, direction, from_number, to_number, call_status, created_at, additional_data
FROM calls
WHERE call_sid = $1
FOR UPDATE
`
	return scanCall(tx.QueryRowContext(ctx, q, callSID))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var c Call
	var raw []byte
	err := row.Scan(&c.CallSID, &c.AccountSID, &c.Direction, &c.FromNumber, &c.ToNumber, &c.CallStatus, &c.CreatedAt, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &c.AdditionalData)
	}
	return c, nil
}
