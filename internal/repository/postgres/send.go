package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/tracking"
)

// SendRepo implements campaign.SendRepository and tracking.Repository.
// Engagement writes are single conditional UPDATEs so that concurrent
// tracking hits cannot regress a status or overwrite a first timestamp.
type SendRepo struct{ db *sqlx.DB }

// NewSendRepo creates a Postgres-backed send repository.
func NewSendRepo(db *sqlx.DB) *SendRepo { return &SendRepo{db: db} }

func (r *SendRepo) ListSends(ctx context.Context, campaignID string, stepOrder int) ([]domain.CampaignSend, error) {
	var out []domain.CampaignSend
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, campaign_id, step_id, step_order, contact_id, channel, status,
		       external_id, COALESCE(tracking_id, '') AS tracking_id, error,
		       sent_at, opened_at, clicked_at, created_at
		FROM campaign_sends
		WHERE campaign_id = $1 AND ($2 = 0 OR step_order = $2)
		ORDER BY step_order, created_at, contact_id`, campaignID, stepOrder)
	if err != nil {
		return nil, fmt.Errorf("list campaign sends: %w", err)
	}
	return out, nil
}

func (r *SendRepo) ClaimSend(ctx context.Context, s *domain.CampaignSend) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_sends
		       (id, campaign_id, step_id, step_order, contact_id, channel, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
		ON CONFLICT (campaign_id, step_order, contact_id) DO NOTHING`,
		s.ID, s.CampaignID, s.StepID, s.StepOrder, s.ContactID, string(s.Channel), s.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("claim send: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SendRepo) CompleteSend(ctx context.Context, s *domain.CampaignSend) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_sends
		SET status = $2, external_id = $3, tracking_id = NULLIF($4, ''), error = $5, sent_at = $6
		WHERE id = $1 AND status = 'pending'`,
		s.ID, string(s.Status), s.ExternalID, s.TrackingID, s.Error, s.SentAt)
	if err != nil {
		return fmt.Errorf("complete send: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("complete send %s: no pending row", s.ID)
	}
	return nil
}

func (r *SendRepo) MarkOpened(ctx context.Context, trackingID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_sends
		SET opened_at = $2,
		    status = CASE WHEN status IN ('sent', 'delivered') THEN 'opened' ELSE status END
		WHERE tracking_id = $1 AND opened_at IS NULL`, trackingID, at)
	if err != nil {
		return false, fmt.Errorf("mark opened: %w", err)
	}
	return r.engagementWritten(ctx, trackingID, res)
}

func (r *SendRepo) MarkClicked(ctx context.Context, trackingID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_sends
		SET clicked_at = $2,
		    opened_at = COALESCE(opened_at, $2),
		    status = CASE WHEN status IN ('sent', 'delivered', 'opened') THEN 'clicked' ELSE status END
		WHERE tracking_id = $1 AND clicked_at IS NULL`, trackingID, at)
	if err != nil {
		return false, fmt.Errorf("mark clicked: %w", err)
	}
	return r.engagementWritten(ctx, trackingID, res)
}

// engagementWritten distinguishes a repeat event from an unknown tracking id
// when the conditional update touched nothing.
func (r *SendRepo) engagementWritten(ctx context.Context, trackingID string, res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM campaign_sends WHERE tracking_id = $1)`, trackingID); err != nil {
		return false, fmt.Errorf("lookup tracking id: %w", err)
	}
	if !exists {
		return false, tracking.ErrNotFound
	}
	return false, nil
}
