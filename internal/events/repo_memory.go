package events

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory event store useful for tests.
// It is not intended for production use.
type MemoryStore struct {
	mu         sync.Mutex
	callEvents map[Kind][]CallEvent
	errEvents  []ErrorEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{callEvents: make(map[Kind][]CallEvent)}
}

func (s *MemoryStore) InsertCallEvent(ctx context.Context, kind Kind, ev CallEvent) (bool, error) {
	if !kind.IsCallKind() {
		return false, ErrUnsupportedKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.callEvents[kind] {
		if existing.EventID == ev.EventID {
			return false, nil
		}
	}
	s.callEvents[kind] = append(s.callEvents[kind], ev)
	return true, nil
}

func (s *MemoryStore) InsertErrorEvent(ctx context.Context, ev ErrorEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.errEvents {
		if existing.EventID == ev.EventID {
			return false, nil
		}
	}
	s.errEvents = append(s.errEvents, ev)
	return true, nil
}

func (s *MemoryStore) ListCallEvents(ctx context.Context, kind Kind, limit int) ([]CallEvent, error) {
	if !kind.IsCallKind() {
		return nil, ErrUnsupportedKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallEvent, len(s.callEvents[kind]))
	copy(out, s.callEvents[kind])
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListErrorEvents(ctx context.Context, limit int) ([]ErrorEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ErrorEvent, len(s.errEvents))
	copy(out, s.errEvents)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListCallEventsForCall(ctx context.Context, kind Kind, callSID string) ([]CallEvent, error) {
	if !kind.IsCallKind() {
		return nil, ErrUnsupportedKind
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CallEvent
	for _, ev := range s.callEvents[kind] {
		if ev.CallSID == callSID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) ListErrorEventsForCall(ctx context.Context, callSID string) ([]ErrorEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ErrorEvent
	for _, ev := range s.errEvents {
		if ev.CallSID == callSID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
