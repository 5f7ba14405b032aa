package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payload is a decoded webhook body: a nested mapping of unknown but
// bounded shape. Twilio event streams wrap the interesting fields at
// different depths depending on the event family, so extraction probes a
// fixed list of paths instead of assuming one.
type Payload map[string]any

type Kind string

const (
	KindInitiated Kind = "initiated"
	KindRinging   Kind = "ringing"
	KindAnswered  Kind = "answered"
	KindCompleted Kind = "completed"
	KindError     Kind = "error"
	KindUnknown   Kind = "unknown"
)

// IsCallKind reports whether the kind maps to one of the per-kind call
// event tables.
func (k Kind) IsCallKind() bool {
	switch k {
	case KindInitiated, KindRinging, KindAnswered, KindCompleted:
		return true
	default:
		return false
	}
}

type kindRule struct {
	marker string
	kind   Kind
}

// kindRules is evaluated top to bottom. The error marker must stay first:
// a payload carrying both an error marker and a call marker is an error
// event, never a lifecycle event.
var kindRules = []kindRule{
	{"error-logs.error.logged", KindError},
	{"call.initiated", KindInitiated},
	{"call.ringing", KindRinging},
	{"call.answer", KindAnswered},
	{"call.completed", KindCompleted},
}

// KindOf classifies a provider event-type string by substring match.
func KindOf(eventType string) Kind {
	for _, r := range kindRules {
		if strings.Contains(eventType, r.marker) {
			return r.kind
		}
	}
	return KindUnknown
}

// paramPaths lists the extraction strategies for the flat webhook parameter
// mapping, in precedence order. First path that resolves wins.
var paramPaths = [][]string{
	{"data", "request", "parameters"},
	{"request", "parameters"},
}

// Parameters extracts the flat request-parameter mapping from a payload.
// Missing paths yield an empty map, never an error.
func (p Payload) Parameters() map[string]string {
	for _, path := range paramPaths {
		if m, ok := dig(map[string]any(p), path); ok {
			out := make(map[string]string, len(m))
			for k, v := range m {
				out[k] = str(v)
			}
			return out
		}
	}
	return map[string]string{}
}

func dig(m map[string]any, path []string) (map[string]any, bool) {
	cur := m
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Classified is the classifier output: the tagged kind plus every field the
// pipeline needs downstream, extracted once.
type Classified struct {
	Kind    Kind
	EventID string
	// CallSID is set for lifecycle events (including unknown kinds).
	CallSID string
	// CorrelationSID is the call reference an error event carries; may be
	// empty or dangling.
	CorrelationSID string
	// Timestamp is the provider event time, falling back to ingestion time
	// when absent or unparseable.
	Timestamp time.Time
	Params    map[string]string

	ErrorCode  string
	ErrorLevel string

	Raw Payload
}

// ErrMissingCallSID marks a non-error event whose parameters carry no call
// identifier. Fatal for that single event, never for the process.
var ErrMissingCallSID = errors.New("events: payload has no CallSid")

// Classify extracts and tags one raw payload. now supplies the ingestion
// time used when the payload carries no usable event time.
func Classify(raw Payload, now time.Time) (Classified, error) {
	out := Classified{
		Kind:    KindOf(str(raw["type"])),
		EventID: str(raw["id"]),
		Params:  raw.Parameters(),
		Raw:     raw,
	}
	if out.EventID == "" {
		// Provider id is the idempotency key; without one, mint a surrogate
		// so the event is still storable (it just can't be deduplicated).
		out.EventID = uuid.NewString()
	}
	out.Timestamp = eventTime(str(raw["time"]), now)

	if out.Kind == KindError {
		data, _ := raw["data"].(map[string]any)
		out.ErrorCode = str(data["error_code"])
		out.ErrorLevel = str(data["level"])
		if out.ErrorLevel == "" {
			out.ErrorLevel = "WARNING"
		}
		out.CorrelationSID = str(data["correlation_sid"])
		return out, nil
	}

	out.CallSID = out.Params["CallSid"]
	if out.CallSID == "" {
		return Classified{}, ErrMissingCallSID
	}
	return out, nil
}

func eventTime(raw string, now time.Time) time.Time {
	if raw == "" {
		return now
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return now
}
