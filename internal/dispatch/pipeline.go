package dispatch

import (
	"context"
	"log/slog"
	"time"

	"voiceops/internal/calls"
	"voiceops/internal/events"
)

// Outcome is the per-event result of one Ingest call. Every outcome is
// terminal: the webhook is acknowledged regardless, and the provider never
// retries on our behalf.
type Outcome string

const (
	// OutcomePersisted: broadcast and durably stored.
	OutcomePersisted Outcome = "persisted"
	// OutcomeDelivered: broadcast, but no event row exists for this kind
	// (unknown kinds) or the row already existed (duplicate).
	OutcomeDelivered Outcome = "delivered"
	// OutcomePersistenceFailed: broadcast happened, the store write did not.
	OutcomePersistenceFailed Outcome = "persistence_failed"
	// OutcomeClassificationFailed: the payload could not be classified; no
	// broadcast, no write.
	OutcomeClassificationFailed Outcome = "classification_failed"
)

// Broadcaster pushes a message to every live dashboard subscriber. It must
// never block the caller.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Monitor receives pipeline observations. All methods must be cheap; alert
// delivery happens off the calling goroutine.
type Monitor interface {
	ObserveEvent(at time.Time)
	ObserveProcessing(eventID string, elapsed time.Duration)
	ObserveError(p events.ErrorProjection)
}

// Deduper is the fast-path duplicate check in front of the store. It is an
// optimization only: the store's idempotent inserts remain the source of
// truth, so the deduper may fail open.
type Deduper interface {
	// Seen reports whether the event id was already durably persisted.
	Seen(ctx context.Context, eventID string) (bool, error)
	// Mark records the event id. Called only after a durable commit.
	Mark(ctx context.Context, eventID string) error
}

// Pipeline runs the ingest sequence for one webhook payload: classify,
// observe, broadcast, persist. Broadcast always precedes persistence and is
// never rolled back.
type Pipeline struct {
	calls  calls.Store
	events events.Store
	hub    Broadcaster

	// monitor and dedupe are optional.
	monitor Monitor
	dedupe  Deduper

	clock func() time.Time
	log   *slog.Logger
}

type Option func(*Pipeline)

func WithMonitor(m Monitor) Option { return func(p *Pipeline) { p.monitor = m } }

func WithDeduper(d Deduper) Option { return func(p *Pipeline) { p.dedupe = d } }

func WithClock(c func() time.Time) Option { return func(p *Pipeline) { p.clock = c } }

func NewPipeline(callStore calls.Store, eventStore events.Store, hub Broadcaster, log *slog.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		calls:  callStore,
		events: eventStore,
		hub:    hub,
		clock:  time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest processes one decoded webhook payload end to end and reports how
// far it got. It never returns an error: every failure mode maps to an
// outcome, is logged, and leaves previously persisted state untouched.
func (p *Pipeline) Ingest(ctx context.Context, raw events.Payload) Outcome {
	start := p.clock()

	ev, err := events.Classify(raw, start)
	if err != nil {
		p.log.Warn("event classification failed", "err", err)
		return OutcomeClassificationFailed
	}

	log := p.log.With("event_id", ev.EventID, "kind", string(ev.Kind))

	if p.monitor != nil {
		p.monitor.ObserveEvent(start)
	}

	var out Outcome
	if ev.Kind == events.KindError {
		out = p.ingestError(ctx, ev, log)
	} else {
		out = p.ingestCall(ctx, ev, log)
	}

	if p.monitor != nil {
		p.monitor.ObserveProcessing(ev.EventID, p.clock().Sub(start))
	}
	return out
}

func (p *Pipeline) ingestCall(ctx context.Context, ev events.Classified, log *slog.Logger) Outcome {
	// Dashboard first. Subscribers see the event even if every write below
	// fails.
	p.hub.Broadcast(events.ChannelNewEvent, ev.CallProjection())

	fields := calls.Fields{
		AccountSID: ev.Params["AccountSid"],
		Direction:  ev.Params["Direction"],
		FromNumber: ev.Params["From"],
		ToNumber:   ev.Params["To"],
		CallStatus: ev.Params["CallStatus"],
	}
	if _, err := p.calls.UpsertFromEvent(ctx, ev.CallSID, fields, ev.Raw); err != nil {
		log.Error("call upsert failed", "call_sid", ev.CallSID, "err", err)
		return OutcomePersistenceFailed
	}

	if !ev.Kind.IsCallKind() {
		// Unrecognized lifecycle kinds update the call and reach the
		// dashboard but have no event table.
		log.Info("unknown event kind delivered without event row", "call_sid", ev.CallSID)
		return OutcomeDelivered
	}

	if p.seen(ctx, ev.EventID) {
		return OutcomeDelivered
	}

	inserted, err := p.events.InsertCallEvent(ctx, ev.Kind, events.CallEvent{
		EventID:        ev.EventID,
		CallSID:        ev.CallSID,
		Timestamp:      ev.Timestamp,
		AdditionalData: ev.Raw,
	})
	if err != nil {
		log.Error("call event insert failed", "call_sid", ev.CallSID, "err", err)
		return OutcomePersistenceFailed
	}
	if !inserted {
		p.mark(ctx, ev.EventID)
		return OutcomeDelivered
	}

	p.mark(ctx, ev.EventID)
	return OutcomePersisted
}

func (p *Pipeline) ingestError(ctx context.Context, ev events.Classified, log *slog.Logger) Outcome {
	proj := ev.ErrorProjection()
	p.hub.Broadcast(events.ChannelNewError, proj)
	if p.monitor != nil {
		p.monitor.ObserveError(proj)
	}

	callSID := ev.CorrelationSID
	if callSID != "" {
		// A dangling correlation still gets a call row so the timeline
		// query has somewhere to hang the error.
		if _, err := p.calls.GetOrCreatePlaceholder(ctx, callSID); err != nil {
			log.Error("placeholder call create failed", "call_sid", callSID, "err", err)
			return OutcomePersistenceFailed
		}
	}

	if p.seen(ctx, ev.EventID) {
		return OutcomeDelivered
	}

	inserted, err := p.events.InsertErrorEvent(ctx, events.ErrorEvent{
		EventID:        ev.EventID,
		CallSID:        callSID,
		Timestamp:      ev.Timestamp,
		ErrorCode:      ev.ErrorCode,
		ErrorMessage:   ev.ErrorLevel,
		AdditionalData: ev.Raw,
	})
	if err != nil {
		log.Error("error event insert failed", "err", err)
		return OutcomePersistenceFailed
	}
	if !inserted {
		p.mark(ctx, ev.EventID)
		return OutcomeDelivered
	}

	p.mark(ctx, ev.EventID)
	return OutcomePersisted
}

// seen consults the dedup cache, failing open on cache errors.
func (p *Pipeline) seen(ctx context.Context, eventID string) bool {
	if p.dedupe == nil {
		return false
	}
	seen, err := p.dedupe.Seen(ctx, eventID)
	if err != nil {
		p.log.Warn("dedup lookup failed, falling through to store", "event_id", eventID, "err", err)
		return false
	}
	return seen
}

func (p *Pipeline) mark(ctx context.Context, eventID string) {
	if p.dedupe == nil {
		return
	}
	if err := p.dedupe.Mark(ctx, eventID); err != nil {
		p.log.Warn("dedup mark failed", "event_id", eventID, "err", err)
	}
}
