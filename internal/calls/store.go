package calls

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("calls: not found")

// placeholderNote marks call rows synthesized purely to satisfy an error
// event's call reference.
var placeholderNote = map[string]any{"note": "synthesized from error correlation"}

// Store is the persistence contract for the call aggregate.
//
// UpsertFromEvent and GetOrCreatePlaceholder must be atomic per call
// identifier: concurrent events for the same CallSid must not race to
// create duplicate rows or lose merged fields.
type Store interface {
	// UpsertFromEvent creates the call on first sighting (CreatedAt = now,
	// AdditionalData = the full raw payload) or merges fields into the
	// existing row per the merge rule.
	UpsertFromEvent(ctx context.Context, callSID string, f Fields, raw map[string]any) (Call, error)

	// GetOrCreatePlaceholder returns the existing call or creates one with
	// direction=unknown and empty fields. Used only for error correlation.
	GetOrCreatePlaceholder(ctx context.Context, callSID string) (Call, error)

	// Get returns one call or ErrNotFound.
	Get(ctx context.Context, callSID string) (Call, error)
}
