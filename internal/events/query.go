package events

import (
	"context"
	"errors"
	"sort"

	"voiceops/internal/calls"
)

// recentLimit caps the recent-events feeds unless the caller asks for
// everything. Matches what the dashboard renders.
const recentLimit = 100

// QueryService serves the historical browsing API by merging the per-kind
// event tables. Live viewers use the broadcaster; this is the system of
// record they reconcile against.
type QueryService struct {
	events Store
	calls  calls.Store
}

func NewQueryService(events Store, callStore calls.Store) *QueryService {
	return &QueryService{events: events, calls: callStore}
}

// RecentCallEvents merges the four lifecycle tables, newest first, each row
// joined with its call's current fields. all=false caps the result at 100.
func (s *QueryService) RecentCallEvents(ctx context.Context, all bool) ([]CallEventView, error) {
	limit := recentLimit
	if all {
		limit = 0
	}

	var out []CallEventView
	callCache := map[string]calls.Call{}
	for _, kind := range CallKinds {
		rows, err := s.events.ListCallEvents(ctx, kind, limit)
		if err != nil {
			return nil, err
		}
		for _, ev := range rows {
			c, ok := callCache[ev.CallSID]
			if !ok {
				var err error
				c, err = s.calls.Get(ctx, ev.CallSID)
				if err != nil && !errors.Is(err, calls.ErrNotFound) {
					return nil, err
				}
				callCache[ev.CallSID] = c
			}
			out = append(out, CallEventView{
				EventID:    ev.EventID,
				CallSID:    ev.CallSID,
				Timestamp:  ev.Timestamp,
				Direction:  c.Direction,
				EventType:  string(kind),
				FromNumber: c.FromNumber,
				ToNumber:   c.ToNumber,
				CallStatus: c.CallStatus,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if !all && len(out) > recentLimit {
		out = out[:recentLimit]
	}
	return out, nil
}

// RecentErrorEvents returns error events, newest first, capped at 100
// unless all is set.
func (s *QueryService) RecentErrorEvents(ctx context.Context, all bool) ([]ErrorEvent, error) {
	limit := recentLimit
	if all {
		limit = 0
	}
	return s.events.ListErrorEvents(ctx, limit)
}

// CallTimeline merges all five tables for one call, ascending by timestamp.
// Returns calls.ErrNotFound for an unknown call identifier.
func (s *QueryService) CallTimeline(ctx context.Context, callSID string) (CallTimeline, error) {
	c, err := s.calls.Get(ctx, callSID)
	if err != nil {
		return CallTimeline{}, err
	}

	var entries []TimelineEntry
	for _, kind := range CallKinds {
		rows, err := s.events.ListCallEventsForCall(ctx, kind, callSID)
		if err != nil {
			return CallTimeline{}, err
		}
		for _, ev := range rows {
			entries = append(entries, TimelineEntry{
				EventID:   ev.EventID,
				EventType: string(kind),
				Timestamp: ev.Timestamp,
			})
		}
	}
	errRows, err := s.events.ListErrorEventsForCall(ctx, callSID)
	if err != nil {
		return CallTimeline{}, err
	}
	for _, ev := range errRows {
		entries = append(entries, TimelineEntry{
			EventID:      ev.EventID,
			EventType:    string(KindError),
			Timestamp:    ev.Timestamp,
			ErrorCode:    ev.ErrorCode,
			ErrorMessage: ev.ErrorMessage,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })

	return CallTimeline{
		CallSID:    c.CallSID,
		Direction:  c.Direction,
		FromNumber: c.FromNumber,
		ToNumber:   c.ToNumber,
		CallStatus: c.CallStatus,
		Events:     entries,
	}, nil
}
