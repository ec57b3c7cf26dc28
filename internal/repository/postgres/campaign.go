package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/campaign"
)

const campaignColumns = `id, owner_id, name, channel, segment_id, status,
	template_subject, template_body, scheduled_at, started_at, completed_at,
	created_at, updated_at`

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sqlx.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sqlx.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	err := r.db.GetContext(ctx, &c, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

func (r *CampaignRepo) Steps(ctx context.Context, campaignID string) ([]domain.CampaignStep, error) {
	var steps []domain.CampaignStep
	err := r.db.SelectContext(ctx, &steps, `
		SELECT id, campaign_id, step_order, channel, subject, body,
		       delay_hours, condition, created_at
		FROM campaign_steps
		WHERE campaign_id = $1
		ORDER BY step_order`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign steps: %w", err)
	}
	return steps, nil
}

func (r *CampaignRepo) MarkSending(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sending', started_at = COALESCE(started_at, $2), updated_at = $2
		WHERE id = $1 AND status IN ('draft', 'scheduled', 'sending')`, id, at)
	if err != nil {
		return fmt.Errorf("mark campaign sending: %w", err)
	}
	return r.checkTransition(ctx, id, res)
}

func (r *CampaignRepo) Finish(ctx context.Context, id string, status domain.CampaignStatus, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2,
		    completed_at = CASE WHEN $2 = 'completed' THEN $3 ELSE completed_at END,
		    updated_at = $3
		WHERE id = $1 AND status IN ('draft', 'scheduled', 'sending')`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("finish campaign: %w", err)
	}
	return r.checkTransition(ctx, id, res)
}

// checkTransition turns a zero-row status update into ErrNotFound or an
// *InvalidStateError naming the current status.
func (r *CampaignRepo) checkTransition(ctx context.Context, id string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var status domain.CampaignStatus
	err = r.db.GetContext(ctx, &status, `SELECT status FROM campaigns WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return campaign.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load campaign status: %w", err)
	}
	return &campaign.InvalidStateError{Status: status}
}

func (r *CampaignRepo) ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	var out []domain.Campaign
	err := r.db.SelectContext(ctx, &out, `SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = 'sending'
		   OR (status = 'scheduled' AND (scheduled_at IS NULL OR scheduled_at <= $1))
		ORDER BY created_at, id`, now)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	return out, nil
}
