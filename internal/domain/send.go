package domain

import "time"

// SendStatus enumerates the lifecycle of a single campaign send.
type SendStatus string

const (
	SendPending   SendStatus = "pending"
	SendSent      SendStatus = "sent"
	SendDelivered SendStatus = "delivered"
	SendOpened    SendStatus = "opened"
	SendClicked   SendStatus = "clicked"
	SendReplied   SendStatus = "replied"
	SendBounced   SendStatus = "bounced"
	SendFailed    SendStatus = "failed"
)

// Reached reports whether the message left the engine successfully. Statuses
// past "sent" all imply it was.
func (s SendStatus) Reached() bool {
	switch s {
	case SendSent, SendDelivered, SendOpened, SendClicked, SendReplied:
		return true
	}
	return false
}

// CampaignSend is one attempt to deliver one step to one contact. There is at
// most one row per (campaign, step_order, contact).
type CampaignSend struct {
	ID         string     `json:"id" db:"id"`
	CampaignID string     `json:"campaign_id" db:"campaign_id"`
	StepID     *string    `json:"step_id,omitempty" db:"step_id"`
	StepOrder  int        `json:"step_order" db:"step_order"`
	ContactID  string     `json:"contact_id" db:"contact_id"`
	Channel    Channel    `json:"channel" db:"channel"`
	Status     SendStatus `json:"status" db:"status"`
	ExternalID string     `json:"external_id,omitempty" db:"external_id"`
	TrackingID string     `json:"tracking_id,omitempty" db:"tracking_id"`
	Error      string     `json:"error,omitempty" db:"error"`
	SentAt     *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	OpenedAt   *time.Time `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt  *time.Time `json:"clicked_at,omitempty" db:"clicked_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// ResolvedAt is the moment the attempt finished: the send time when it went
// out, otherwise the time the row was written.
func (s *CampaignSend) ResolvedAt() time.Time {
	if s.SentAt != nil {
		return *s.SentAt
	}
	return s.CreatedAt
}

var engagementRank = map[SendStatus]int{
	SendSent:      1,
	SendDelivered: 2,
	SendOpened:    3,
	SendClicked:   4,
	SendReplied:   5,
}

// AdvancesTo reports whether moving from s to next is forward progress along
// sent → delivered → opened → clicked → replied. Pending, bounced and failed
// rows never advance.
func (s SendStatus) AdvancesTo(next SendStatus) bool {
	cur, ok := engagementRank[s]
	if !ok {
		return false
	}
	return engagementRank[next] > cur
}
