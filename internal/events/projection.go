package events

import "time"

// Broadcast channel names. These are part of the dashboard contract; keep
// them stable.
const (
	ChannelNewEvent = "new_event"
	ChannelNewError = "new_error"
)

// CallProjection is the flattened, client-facing view pushed on new_event.
type CallProjection struct {
	EventID    string    `json:"event_id"`
	CallSID    string    `json:"call_sid"`
	Timestamp  time.Time `json:"timestamp"`
	Direction  string    `json:"direction"`
	EventType  string    `json:"event_type"`
	FromNumber string    `json:"from_number"`
	ToNumber   string    `json:"to_number"`
	CallStatus string    `json:"call_status"`
}

// ErrorProjection is the flattened view pushed on new_error.
type ErrorProjection struct {
	EventID      string    `json:"event_id"`
	CallSID      string    `json:"call_sid"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// CallProjection builds the new_event payload for a classified lifecycle
// event. Valid for every non-error kind, unknown included.
func (c Classified) CallProjection() CallProjection {
	return CallProjection{
		EventID:    c.EventID,
		CallSID:    c.CallSID,
		Timestamp:  c.Timestamp,
		Direction:  c.Params["Direction"],
		EventType:  string(c.Kind),
		FromNumber: c.Params["From"],
		ToNumber:   c.Params["To"],
		CallStatus: c.Params["CallStatus"],
	}
}

// ErrorProjection builds the new_error payload for a classified error event.
func (c Classified) ErrorProjection() ErrorProjection {
	return ErrorProjection{
		EventID:      c.EventID,
		CallSID:      c.CorrelationSID,
		Timestamp:    c.Timestamp,
		ErrorCode:    c.ErrorCode,
		ErrorMessage: c.ErrorLevel,
	}
}
