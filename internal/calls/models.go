package calls

import "time"

// Call is the aggregate row for one provider call, keyed by CallSid.
//
// Invariants:
// - A Call is created at most once per identifier; later events merge in.
// - A field is overwritten only if currently empty and the event supplies a
//   non-empty value, except CallStatus which is last-write-wins.
// - CreatedAt and AdditionalData are set on first sighting and never
//   overwritten.
type Call struct {
	CallSID    string `json:"call_sid" db:"call_sid"`
	AccountSID string `json:"account_sid,omitempty" db:"account_sid"`

	// Direction is inbound, outbound, or unknown (placeholder calls).
	Direction  string `json:"direction" db:"direction"`
	FromNumber string `json:"from_number" db:"from_number"`
	ToNumber   string `json:"to_number" db:"to_number"`

	// CallStatus is the provider's free-text status token.
	CallStatus string `json:"call_status" db:"call_status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// AdditionalData keeps the full first-sighting payload for future use.
	AdditionalData map[string]any `json:"additional_data,omitempty" db:"additional_data"`
}

const DirectionUnknown = "unknown"

// Fields carries the call-level values extracted from one event.
type Fields struct {
	AccountSID string
	Direction  string
	FromNumber string
	ToNumber   string
	CallStatus string
}

// merge applies the field-level merge rule to an existing call and reports
// whether anything changed. Status is the only last-write-wins field.
func merge(c *Call, f Fields) bool {
	changed := false
	if f.AccountSID != "" && c.AccountSID == "" {
		c.AccountSID = f.AccountSID
		changed = true
	}
	if f.Direction != "" && (c.Direction == "" || c.Direction == DirectionUnknown) {
		c.Direction = f.Direction
		changed = true
	}
	if f.FromNumber != "" && c.FromNumber == "" {
		c.FromNumber = f.FromNumber
		changed = true
	}
	if f.ToNumber != "" && c.ToNumber == "" {
		c.ToNumber = f.ToNumber
		changed = true
	}
	if f.CallStatus != "" && f.CallStatus != c.CallStatus {
		c.CallStatus = f.CallStatus
		changed = true
	}
	return changed
}
