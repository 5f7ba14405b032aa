package events

import (
	"errors"
	"testing"
	"time"
)

func TestKindOf_Precedence(t *testing.T) {
	cases := []struct {
		name      string
		eventType string
		want      Kind
	}{
		{"initiated", "com.twilio.voice.call.initiated", KindInitiated},
		{"ringing", "com.twilio.voice.call.ringing", KindRinging},
		{"answered", "com.twilio.voice.call.answered", KindAnswered},
		{"completed", "com.twilio.voice.call.completed", KindCompleted},
		{"error", "com.twilio.error-logs.error.logged", KindError},
		{"unmatched", "com.twilio.messaging.inbound-message.received", KindUnknown},
		{"empty", "", KindUnknown},
		// Contrived payload carrying both markers: the error rule is
		// evaluated first.
		{"error beats call type", "error-logs.error.logged.call.initiated", KindError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.eventType); got != tc.want {
				t.Fatalf("KindOf(%q) = %q, want %q", tc.eventType, got, tc.want)
			}
		})
	}
}

func TestParameters_ProbeOrder(t *testing.T) {
	nested := Payload{
		"data": map[string]any{
			"request": map[string]any{
				"parameters": map[string]any{"CallSid": "CA-nested"},
			},
		},
		"request": map[string]any{
			"parameters": map[string]any{"CallSid": "CA-flat"},
		},
	}
	if got := nested.Parameters()["CallSid"]; got != "CA-nested" {
		t.Fatalf("expected data.request.parameters to win, got %q", got)
	}

	flat := Payload{
		"request": map[string]any{
			"parameters": map[string]any{"CallSid": "CA-flat"},
		},
	}
	if got := flat.Parameters()["CallSid"]; got != "CA-flat" {
		t.Fatalf("expected request.parameters fallback, got %q", got)
	}

	none := Payload{"type": "whatever"}
	if got := none.Parameters(); len(got) != 0 {
		t.Fatalf("expected empty parameters, got %v", got)
	}
}

func TestClassify_FullLifecyclePayload(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := Payload{
		"id":   "EV123",
		"type": "com.twilio.voice.call.initiated",
		"time": "2024-01-01T00:00:00Z",
		"data": map[string]any{
			"request": map[string]any{
				"parameters": map[string]any{
					"CallSid":    "CA123",
					"From":       "+1555",
					"To":         "+1777",
					"Direction":  "inbound",
					"CallStatus": "queued",
				},
			},
		},
	}

	cl, err := Classify(payload, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cl.Kind != KindInitiated {
		t.Fatalf("expected initiated, got %q", cl.Kind)
	}
	if cl.EventID != "EV123" || cl.CallSID != "CA123" {
		t.Fatalf("unexpected ids: %q %q", cl.EventID, cl.CallSID)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !cl.Timestamp.Equal(want) {
		t.Fatalf("expected payload time, got %v", cl.Timestamp)
	}
	if cl.Params["From"] != "+1555" || cl.Params["CallStatus"] != "queued" {
		t.Fatalf("unexpected params: %v", cl.Params)
	}
}

func TestClassify_MissingCallSIDFailsNonErrorOnly(t *testing.T) {
	now := time.Now()

	_, err := Classify(Payload{"type": "com.twilio.voice.call.ringing"}, now)
	if !errors.Is(err, ErrMissingCallSID) {
		t.Fatalf("expected ErrMissingCallSID, got %v", err)
	}

	// Error events never require a CallSid.
	cl, err := Classify(Payload{"type": "com.twilio.error-logs.error.logged"}, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cl.Kind != KindError {
		t.Fatalf("expected error kind, got %q", cl.Kind)
	}
}

func TestClassify_ErrorFields(t *testing.T) {
	now := time.Now()
	cl, err := Classify(Payload{
		"id":   "EV-err",
		"type": "com.twilio.error-logs.error.logged",
		"data": map[string]any{
			"error_code":      "13224",
			"level":           "ERROR",
			"correlation_sid": "CA999",
		},
	}, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cl.ErrorCode != "13224" || cl.ErrorLevel != "ERROR" || cl.CorrelationSID != "CA999" {
		t.Fatalf("unexpected error fields: %+v", cl)
	}
}

func TestClassify_ErrorLevelDefaultsToWarning(t *testing.T) {
	cl, err := Classify(Payload{
		"type": "com.twilio.error-logs.error.logged",
		"data": map[string]any{"error_code": "13224"},
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cl.ErrorLevel != "WARNING" {
		t.Fatalf("expected WARNING default, got %q", cl.ErrorLevel)
	}
}

func TestClassify_FallbackEventIDAndTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cl, err := Classify(Payload{
		"type": "com.twilio.voice.call.completed",
		"time": "not-a-timestamp",
		"request": map[string]any{
			"parameters": map[string]any{"CallSid": "CA123"},
		},
	}, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cl.EventID == "" {
		t.Fatalf("expected surrogate event id")
	}
	if !cl.Timestamp.Equal(now) {
		t.Fatalf("expected ingestion-time fallback, got %v", cl.Timestamp)
	}
}

func TestProjections(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cl, err := Classify(Payload{
		"id":   "EV1",
		"type": "com.twilio.voice.call.ringing",
		"data": map[string]any{
			"request": map[string]any{
				"parameters": map[string]any{
					"CallSid":    "CA123",
					"From":       "+1555",
					"To":         "+1777",
					"Direction":  "outbound",
					"CallStatus": "ringing",
				},
			},
		},
	}, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	p := cl.CallProjection()
	if p.EventID != "EV1" || p.CallSID != "CA123" || p.EventType != "ringing" {
		t.Fatalf("unexpected projection: %+v", p)
	}
	if p.Direction != "outbound" || p.FromNumber != "+1555" || p.ToNumber != "+1777" || p.CallStatus != "ringing" {
		t.Fatalf("unexpected projection fields: %+v", p)
	}

	ecl, err := Classify(Payload{
		"id":   "EV2",
		"type": "com.twilio.error-logs.error.logged",
		"data": map[string]any{"error_code": "11200", "correlation_sid": "CA123"},
	}, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ep := ecl.ErrorProjection()
	if ep.EventID != "EV2" || ep.CallSID != "CA123" || ep.ErrorCode != "11200" || ep.ErrorMessage != "WARNING" {
		t.Fatalf("unexpected error projection: %+v", ep)
	}
}
