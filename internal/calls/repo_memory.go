package calls

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory call store useful for tests.
// It is not intended for production use. The single mutex serializes all
// upserts, which trivially satisfies the per-identifier atomicity contract.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]*Call
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Call), clock: time.Now}
}

// SetClock overrides the creation-timestamp source for deterministic tests.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) UpsertFromEvent(ctx context.Context, callSID string, f Fields, raw map[string]any) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.byID[callSID]; ok {
		merge(c, f)
		return *c, nil
	}
	c := &Call{
		CallSID:        callSID,
		AccountSID:     f.AccountSID,
		Direction:      f.Direction,
		FromNumber:     f.FromNumber,
		ToNumber:       f.ToNumber,
		CallStatus:     f.CallStatus,
		CreatedAt:      s.clock().UTC(),
		AdditionalData: raw,
	}
	s.byID[callSID] = c
	return *c, nil
}

func (s *MemoryStore) GetOrCreatePlaceholder(ctx context.Context, callSID string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.byID[callSID]; ok {
		return *c, nil
	}
	c := &Call{
		CallSID:        callSID,
		Direction:      DirectionUnknown,
		CreatedAt:      s.clock().UTC(),
		AdditionalData: placeholderNote,
	}
	s.byID[callSID] = c
	return *c, nil
}

func (s *MemoryStore) Get(ctx context.Context, callSID string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[callSID]; ok {
		return *c, nil
	}
	return Call{}, ErrNotFound
}

// Len reports the number of call rows; test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
