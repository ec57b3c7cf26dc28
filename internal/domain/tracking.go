package domain

import "time"

// TrackingEventType enumerates the engagement events the tracking endpoint
// accepts.
type TrackingEventType string

const (
	EventOpen  TrackingEventType = "open"
	EventClick TrackingEventType = "click"
)

// Valid reports whether t is a known event type.
func (t TrackingEventType) Valid() bool { return t == EventOpen || t == EventClick }

// TrackingEvent is a single open or click reported for a send.
type TrackingEvent struct {
	TrackingID string            `json:"tracking_id"`
	Type       TrackingEventType `json:"type"`
	URL        string            `json:"url,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
