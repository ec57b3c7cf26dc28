package campaign

import (
	"context"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/dispatch"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/segment"
)

// Repository defines the data access contract for campaigns and their steps.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// Steps returns the campaign's steps ordered by step_order.
	Steps(ctx context.Context, campaignID string) ([]domain.CampaignStep, error)

	// MarkSending moves a draft/scheduled/sending campaign to sending and
	// stamps started_at if it is unset. Returns an *InvalidStateError if the
	// campaign has already finished.
	MarkSending(ctx context.Context, id string, at time.Time) error

	// Finish moves a sending campaign to completed (stamping completed_at)
	// or failed. Returns an *InvalidStateError if it was not runnable.
	Finish(ctx context.Context, id string, status domain.CampaignStatus, at time.Time) error

	// ListActive returns sending campaigns and scheduled campaigns whose
	// scheduled_at is at or before now.
	ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error)
}

// SendRepository persists per-recipient send rows.
type SendRepository interface {
	// ListSends returns a campaign's sends for one step, or for every step
	// when stepOrder is 0, ordered by step_order then created_at.
	ListSends(ctx context.Context, campaignID string, stepOrder int) ([]domain.CampaignSend, error)

	// ClaimSend inserts s as pending. It returns false without error when a
	// row for the same (campaign, step_order, contact) already exists.
	ClaimSend(ctx context.Context, s *domain.CampaignSend) (bool, error)

	// CompleteSend records the dispatch outcome on a claimed pending row.
	CompleteSend(ctx context.Context, s *domain.CampaignSend) error
}

// SegmentResolver keeps a segment's membership current.
type SegmentResolver interface {
	Refresh(ctx context.Context, segmentID string) (*segment.RefreshResult, error)
	Members(ctx context.Context, segmentID string) ([]domain.Contact, error)
}

// Dispatcher delivers one rendered message to one recipient.
type Dispatcher interface {
	Send(ctx context.Context, channel domain.Channel, recipient domain.Contact, msg dispatch.Message) dispatch.Result
}
