package events

import "time"

// CallEvent is one lifecycle notification row. Four kinds map to four
// independent tables that share this shape; event_id is the primary key in
// each, and inserting an existing id is a no-op.
type CallEvent struct {
	EventID   string    `json:"event_id" db:"event_id"`
	CallSID   string    `json:"call_sid" db:"call_sid"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// AdditionalData keeps the full raw payload for future use.
	AdditionalData Payload `json:"additional_data,omitempty" db:"additional_data"`
}

// ErrorEvent is one provider error-log row. CallSID may be empty: an error
// can reference a call identifier never seen as a lifecycle event, or none
// at all.
type ErrorEvent struct {
	EventID   string    `json:"event_id" db:"event_id"`
	CallSID   string    `json:"call_sid,omitempty" db:"call_sid"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	ErrorCode    string `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	AdditionalData Payload `json:"additional_data,omitempty" db:"additional_data"`
}

// CallEventView is the dashboard-facing row for the recent-events feed:
// the event joined with its call's current fields.
type CallEventView struct {
	EventID    string    `json:"event_id"`
	CallSID    string    `json:"call_sid"`
	Timestamp  time.Time `json:"timestamp"`
	Direction  string    `json:"direction"`
	EventType  string    `json:"event_type"`
	FromNumber string    `json:"from_number"`
	ToNumber   string    `json:"to_number"`
	CallStatus string    `json:"call_status"`
}

// TimelineEntry is one event in a single call's merged history.
type TimelineEntry struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// CallTimeline is the full response for one call's history.
type CallTimeline struct {
	CallSID    string          `json:"call_sid"`
	Direction  string          `json:"direction"`
	FromNumber string          `json:"from_number"`
	ToNumber   string          `json:"to_number"`
	CallStatus string          `json:"call_status"`
	Events     []TimelineEntry `json:"events"`
}
