package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voiceops/internal/calls"
	"voiceops/internal/events"
)

type recordedMessage struct {
	Channel string
	Payload any
}

type fakeHub struct {
	mu       sync.Mutex
	messages []recordedMessage
}

func (h *fakeHub) Broadcast(channel string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, recordedMessage{Channel: channel, Payload: payload})
}

func (h *fakeHub) all() []recordedMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]recordedMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// failingEventStore rejects every insert while delegating reads.
type failingEventStore struct {
	events.Store
}

var errStoreDown = errors.New("store down")

func (failingEventStore) InsertCallEvent(context.Context, events.Kind, events.CallEvent) (bool, error) {
	return false, errStoreDown
}

func (failingEventStore) InsertErrorEvent(context.Context, events.ErrorEvent) (bool, error) {
	return false, errStoreDown
}

func callPayload(id, eventType, callSID string, params map[string]any) events.Payload {
	p := map[string]any{"CallSid": callSID}
	for k, v := range params {
		p[k] = v
	}
	return events.Payload{
		"id":   id,
		"type": eventType,
		"time": "2026-03-10T11:00:00Z",
		"data": map[string]any{
			"request": map[string]any{"parameters": p},
		},
	}
}

func errorPayload(id, correlationSID string) events.Payload {
	return events.Payload{
		"id":   id,
		"type": "com.twilio.error-logs.error.logged",
		"time": "2026-03-10T11:00:00Z",
		"data": map[string]any{
			"error_code":      "11200",
			"level":           "ERROR",
			"correlation_sid": correlationSID,
		},
	}
}

func newTestPipeline(opts ...Option) (*Pipeline, *calls.MemoryStore, *events.MemoryStore, *fakeHub) {
	callStore := calls.NewMemoryStore()
	eventStore := events.NewMemoryStore()
	hub := &fakeHub{}
	p := NewPipeline(callStore, eventStore, hub, nil, opts...)
	return p, callStore, eventStore, hub
}

func TestIngestInitiatedEventPersistsEverything(t *testing.T) {
	p, callStore, eventStore, hub := newTestPipeline()
	ctx := context.Background()

	payload := callPayload("EV1", "com.twilio.voice.status-callback.call.initiated", "CA123", map[string]any{
		"AccountSid": "AC9",
		"Direction":  "inbound",
		"From":       "+15550100",
		"To":         "+15550199",
		"CallStatus": "initiated",
	})

	if out := p.Ingest(ctx, payload); out != OutcomePersisted {
		t.Fatalf("outcome = %s, want persisted", out)
	}

	call, err := callStore.Get(ctx, "CA123")
	if err != nil {
		t.Fatalf("call not created: %v", err)
	}
	if call.Direction != "inbound" || call.FromNumber != "+15550100" || call.CallStatus != "initiated" {
		t.Fatalf("unexpected call %+v", call)
	}

	rows, err := eventStore.ListCallEvents(ctx, events.KindInitiated, 0)
	if err != nil || len(rows) != 1 || rows[0].EventID != "EV1" {
		t.Fatalf("event rows = %v, err = %v", rows, err)
	}

	msgs := hub.all()
	if len(msgs) != 1 || msgs[0].Channel != events.ChannelNewEvent {
		t.Fatalf("broadcasts = %+v", msgs)
	}
	proj, ok := msgs[0].Payload.(events.CallProjection)
	if !ok || proj.CallSID != "CA123" || proj.EventType != "initiated" {
		t.Fatalf("projection = %+v", msgs[0].Payload)
	}
}

func TestIngestDuplicateEventIsDeliveredNotDuplicated(t *testing.T) {
	p, _, eventStore, hub := newTestPipeline()
	ctx := context.Background()

	payload := callPayload("EV1", "call.ringing", "CA123", map[string]any{"CallStatus": "ringing"})

	if out := p.Ingest(ctx, payload); out != OutcomePersisted {
		t.Fatalf("first ingest = %s", out)
	}
	if out := p.Ingest(ctx, payload); out != OutcomeDelivered {
		t.Fatalf("second ingest = %s, want delivered", out)
	}

	rows, _ := eventStore.ListCallEvents(ctx, events.KindRinging, 0)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	// Duplicates still reach the dashboard.
	if len(hub.all()) != 2 {
		t.Fatalf("broadcasts = %d, want 2", len(hub.all()))
	}
}

func TestIngestDedupCacheShortCircuitsStore(t *testing.T) {
	dedupe := NewMemoryDeduper()
	p, _, eventStore, _ := newTestPipeline(WithDeduper(dedupe))
	ctx := context.Background()

	payload := callPayload("EV1", "call.completed", "CA123", nil)

	if out := p.Ingest(ctx, payload); out != OutcomePersisted {
		t.Fatalf("first ingest = %s", out)
	}
	if seen, _ := dedupe.Seen(ctx, "EV1"); !seen {
		t.Fatalf("event not marked after durable write")
	}
	if out := p.Ingest(ctx, payload); out != OutcomeDelivered {
		t.Fatalf("second ingest = %s, want delivered", out)
	}
	rows, _ := eventStore.ListCallEvents(ctx, events.KindCompleted, 0)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
}

func TestIngestBroadcastSurvivesPersistenceFailure(t *testing.T) {
	callStore := calls.NewMemoryStore()
	hub := &fakeHub{}
	p := NewPipeline(callStore, failingEventStore{events.NewMemoryStore()}, hub, nil)
	ctx := context.Background()

	payload := callPayload("EV1", "call.answer", "CA123", nil)
	if out := p.Ingest(ctx, payload); out != OutcomePersistenceFailed {
		t.Fatalf("outcome = %s, want persistence_failed", out)
	}
	if len(hub.all()) != 1 {
		t.Fatalf("broadcast did not happen before the failed write")
	}
	// Call upsert precedes the event insert and is not rolled back.
	if _, err := callStore.Get(ctx, "CA123"); err != nil {
		t.Fatalf("call upsert rolled back: %v", err)
	}
}

func TestIngestPersistenceFailureNotMarkedSeen(t *testing.T) {
	dedupe := NewMemoryDeduper()
	p := NewPipeline(calls.NewMemoryStore(), failingEventStore{events.NewMemoryStore()}, &fakeHub{}, nil, WithDeduper(dedupe))
	ctx := context.Background()

	p.Ingest(ctx, callPayload("EV1", "call.initiated", "CA123", nil))
	if seen, _ := dedupe.Seen(ctx, "EV1"); seen {
		t.Fatalf("event marked seen despite failed write; a redelivery would be lost")
	}
}

func TestIngestErrorCreatesPlaceholderCall(t *testing.T) {
	p, callStore, eventStore, hub := newTestPipeline()
	ctx := context.Background()

	if out := p.Ingest(ctx, errorPayload("EVERR", "CA999")); out != OutcomePersisted {
		t.Fatalf("outcome = %s", out)
	}

	call, err := callStore.Get(ctx, "CA999")
	if err != nil {
		t.Fatalf("placeholder not created: %v", err)
	}
	if call.Direction != calls.DirectionUnknown {
		t.Fatalf("direction = %q, want unknown", call.Direction)
	}

	rows, _ := eventStore.ListErrorEvents(ctx, 0)
	if len(rows) != 1 || rows[0].ErrorCode != "11200" || rows[0].CallSID != "CA999" {
		t.Fatalf("error rows = %+v", rows)
	}

	msgs := hub.all()
	if len(msgs) != 1 || msgs[0].Channel != events.ChannelNewError {
		t.Fatalf("broadcasts = %+v", msgs)
	}
}

func TestIngestErrorWithoutCorrelationStoresWithoutCall(t *testing.T) {
	p, callStore, eventStore, _ := newTestPipeline()
	ctx := context.Background()

	if out := p.Ingest(ctx, errorPayload("EVERR", "")); out != OutcomePersisted {
		t.Fatalf("outcome = %s", out)
	}
	rows, _ := eventStore.ListErrorEvents(ctx, 0)
	if len(rows) != 1 || rows[0].CallSID != "" {
		t.Fatalf("error rows = %+v", rows)
	}
	if n := callStore.Len(); n != 0 {
		t.Fatalf("calls created = %d, want 0", n)
	}
}

func TestIngestOutOfOrderRingingFirstCreatesCall(t *testing.T) {
	p, callStore, _, _ := newTestPipeline()
	ctx := context.Background()

	p.Ingest(ctx, callPayload("EV2", "call.ringing", "CA123", map[string]any{"CallStatus": "ringing"}))
	p.Ingest(ctx, callPayload("EV1", "call.initiated", "CA123", map[string]any{
		"Direction":  "outbound",
		"CallStatus": "initiated",
	}))

	call, err := callStore.Get(ctx, "CA123")
	if err != nil {
		t.Fatalf("call missing: %v", err)
	}
	// Direction arrived second but filled the empty field; status is
	// last-write-wins so the later-arriving "initiated" sticks.
	if call.Direction != "outbound" || call.CallStatus != "initiated" {
		t.Fatalf("call = %+v", call)
	}
}

func TestIngestUnknownKindDeliveredWithoutEventRow(t *testing.T) {
	p, callStore, eventStore, hub := newTestPipeline()
	ctx := context.Background()

	payload := callPayload("EV1", "com.twilio.voice.insights.call-summary", "CA123", nil)
	if out := p.Ingest(ctx, payload); out != OutcomeDelivered {
		t.Fatalf("outcome = %s, want delivered", out)
	}
	if _, err := callStore.Get(ctx, "CA123"); err != nil {
		t.Fatalf("unknown kind skipped the call upsert: %v", err)
	}
	for _, kind := range events.CallKinds {
		rows, _ := eventStore.ListCallEvents(ctx, kind, 0)
		if len(rows) != 0 {
			t.Fatalf("unknown kind wrote into %s table", kind)
		}
	}
	if len(hub.all()) != 1 {
		t.Fatalf("unknown kind did not reach the dashboard")
	}
}

func TestIngestRejectsUnclassifiablePayload(t *testing.T) {
	p, callStore, _, hub := newTestPipeline()
	ctx := context.Background()

	// Lifecycle event with no CallSid anywhere.
	out := p.Ingest(ctx, events.Payload{"id": "EV1", "type": "call.initiated"})
	if out != OutcomeClassificationFailed {
		t.Fatalf("outcome = %s, want classification_failed", out)
	}
	if len(hub.all()) != 0 {
		t.Fatalf("unclassifiable payload was broadcast")
	}
	if n := callStore.Len(); n != 0 {
		t.Fatalf("unclassifiable payload created calls")
	}
}

func TestIngestObservesMonitor(t *testing.T) {
	mon := &captureMonitor{}
	base := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	now := base
	p, _, _, _ := newTestPipeline(
		WithMonitor(mon),
		WithClock(func() time.Time {
			// First call stamps start, second stamps completion.
			now = now.Add(50 * time.Millisecond)
			return now
		}),
	)

	p.Ingest(context.Background(), callPayload("EV1", "call.initiated", "CA123", nil))
	if len(mon.observed) != 1 || len(mon.processed) != 1 {
		t.Fatalf("monitor calls: observed=%d processed=%d", len(mon.observed), len(mon.processed))
	}
	if mon.processed[0].eventID != "EV1" || mon.processed[0].elapsed <= 0 {
		t.Fatalf("processing sample = %+v", mon.processed[0])
	}

	p.Ingest(context.Background(), errorPayload("EVERR", "CA123"))
	if len(mon.errs) != 1 || mon.errs[0].ErrorCode != "11200" {
		t.Fatalf("error observations = %+v", mon.errs)
	}
}

type processedSample struct {
	eventID string
	elapsed time.Duration
}

type captureMonitor struct {
	observed  []time.Time
	processed []processedSample
	errs      []events.ErrorProjection
}

func (m *captureMonitor) ObserveEvent(at time.Time) { m.observed = append(m.observed, at) }
func (m *captureMonitor) ObserveProcessing(eventID string, elapsed time.Duration) {
	m.processed = append(m.processed, processedSample{eventID, elapsed})
}
func (m *captureMonitor) ObserveError(p events.ErrorProjection) { m.errs = append(m.errs, p) }
