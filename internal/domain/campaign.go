package domain

import (
	"time"
)

// MaxCampaignSteps caps the length of an outreach sequence.
const MaxCampaignSteps = 5

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// Runnable reports whether a step may be executed while the campaign is in
// this status.
func (s CampaignStatus) Runnable() bool {
	return s == CampaignDraft || s == CampaignScheduled || s == CampaignSending
}

// Channel names a delivery channel. Campaigns pick a default channel and
// steps may override it.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

// Tracked reports whether sends over the channel carry open/click tracking.
func (c Channel) Tracked() bool { return c == ChannelEmail }

// Campaign is a multi-step outreach sequence aimed at one segment.
type Campaign struct {
	ID        string         `json:"id" db:"id"`
	OwnerID   string         `json:"owner_id" db:"owner_id"`
	Name      string         `json:"name" db:"name"`
	Channel   Channel        `json:"channel" db:"channel"`
	SegmentID string         `json:"segment_id" db:"segment_id"`
	Status    CampaignStatus `json:"status" db:"status"`

	// Seed template, used as the only step when no steps are defined.
	TemplateSubject string `json:"template_subject" db:"template_subject"`
	TemplateBody    string `json:"template_body" db:"template_body"`

	ScheduledAt *time.Time `json:"scheduled_at" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// StepCondition is the branching rule that gates entry to a step, evaluated
// against the recipient's send from the previous step.
type StepCondition string

const (
	ConditionAlways       StepCondition = "always"
	ConditionIfOpened     StepCondition = "if_opened"
	ConditionIfNotOpened  StepCondition = "if_not_opened"
	ConditionIfClicked    StepCondition = "if_clicked"
	ConditionIfNotClicked StepCondition = "if_not_clicked"
)

// CampaignStep is one message in a campaign's sequence.
type CampaignStep struct {
	ID         string        `json:"id" db:"id"`
	CampaignID string        `json:"campaign_id" db:"campaign_id"`
	StepOrder  int           `json:"step_order" db:"step_order"`
	Channel    Channel       `json:"channel" db:"channel"`
	Subject    string        `json:"subject" db:"subject"`
	Body       string        `json:"body" db:"body"`
	DelayHours int           `json:"delay_hours" db:"delay_hours"`
	Condition  StepCondition `json:"condition" db:"condition"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// Delay is the wait after the previous step's resolution point.
func (s CampaignStep) Delay() time.Duration {
	return time.Duration(s.DelayHours) * time.Hour
}

// Virtual reports whether the step was synthesized from a seed template
// rather than loaded from storage.
func (s CampaignStep) Virtual() bool { return s.ID == "" }
