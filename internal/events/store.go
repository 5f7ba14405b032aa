package events

import (
	"context"
	"errors"
)

// Store is the persistence contract for event rows.
//
// Inserts are idempotent on event_id: inserting an identifier that already
// exists reports inserted=false, never an error. Rows are append-only.
type Store interface {
	// InsertCallEvent writes one lifecycle event into the table for its
	// kind. kind must be one of the four call kinds.
	InsertCallEvent(ctx context.Context, kind Kind, ev CallEvent) (inserted bool, err error)

	// InsertErrorEvent writes one error event. ev.CallSID may be empty.
	InsertErrorEvent(ctx context.Context, ev ErrorEvent) (inserted bool, err error)

	// ListCallEvents returns events of one kind, newest first.
	// limit <= 0 means no limit.
	ListCallEvents(ctx context.Context, kind Kind, limit int) ([]CallEvent, error)

	// ListErrorEvents returns error events, newest first. limit <= 0 means
	// no limit.
	ListErrorEvents(ctx context.Context, limit int) ([]ErrorEvent, error)

	// ListCallEventsForCall returns one call's events of one kind, oldest
	// first.
	ListCallEventsForCall(ctx context.Context, kind Kind, callSID string) ([]CallEvent, error)

	// ListErrorEventsForCall returns one call's error events, oldest first.
	ListErrorEventsForCall(ctx context.Context, callSID string) ([]ErrorEvent, error)
}

var ErrUnsupportedKind = errors.New("events: kind has no event table")

// CallKinds is the fixed set of kinds backed by per-kind tables, in
// lifecycle order.
var CallKinds = []Kind{KindInitiated, KindRinging, KindAnswered, KindCompleted}
