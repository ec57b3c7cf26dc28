package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/tracking"
)

// SendRepo implements campaign.SendRepository and tracking.Repository.
type SendRepo struct{ s *Store }

func (r *SendRepo) ListSends(_ context.Context, campaignID string, stepOrder int) ([]domain.CampaignSend, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.CampaignSend
	for _, send := range r.s.sends {
		if send.CampaignID != campaignID {
			continue
		}
		if stepOrder > 0 && send.StepOrder != stepOrder {
			continue
		}
		out = append(out, copySend(send))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StepOrder != out[j].StepOrder {
			return out[i].StepOrder < out[j].StepOrder
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ContactID < out[j].ContactID
	})
	return out, nil
}

func (r *SendRepo) ClaimSend(_ context.Context, send *domain.CampaignSend) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := sendKey{send.CampaignID, send.StepOrder, send.ContactID}
	if _, exists := r.s.sendKeys[key]; exists {
		return false, nil
	}
	cp := copySend(send)
	cp.Status = domain.SendPending
	r.s.sends[cp.ID] = &cp
	r.s.sendKeys[key] = cp.ID
	return true, nil
}

func (r *SendRepo) CompleteSend(_ context.Context, send *domain.CampaignSend) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.sends[send.ID]
	if !ok || row.Status != domain.SendPending {
		return fmt.Errorf("complete send %s: no pending row", send.ID)
	}
	row.Status = send.Status
	row.ExternalID = send.ExternalID
	row.TrackingID = send.TrackingID
	row.Error = send.Error
	row.SentAt = copyTime(send.SentAt)
	if send.TrackingID != "" {
		r.s.tracking[send.TrackingID] = row.ID
	}
	return nil
}

func (r *SendRepo) MarkOpened(_ context.Context, trackingID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, err := r.byTracking(trackingID)
	if err != nil {
		return false, err
	}
	if row.OpenedAt != nil {
		return false, nil
	}
	row.OpenedAt = &at
	if row.Status.AdvancesTo(domain.SendOpened) {
		row.Status = domain.SendOpened
	}
	return true, nil
}

func (r *SendRepo) MarkClicked(_ context.Context, trackingID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, err := r.byTracking(trackingID)
	if err != nil {
		return false, err
	}
	if row.ClickedAt != nil {
		return false, nil
	}
	row.ClickedAt = &at
	if row.OpenedAt == nil {
		opened := at
		row.OpenedAt = &opened
	}
	if row.Status.AdvancesTo(domain.SendClicked) {
		row.Status = domain.SendClicked
	}
	return true, nil
}

func (r *SendRepo) byTracking(trackingID string) (*domain.CampaignSend, error) {
	id, ok := r.s.tracking[trackingID]
	if !ok {
		return nil, tracking.ErrNotFound
	}
	return r.s.sends[id], nil
}

func copySend(s *domain.CampaignSend) domain.CampaignSend {
	cp := *s
	if s.StepID != nil {
		id := *s.StepID
		cp.StepID = &id
	}
	cp.SentAt = copyTime(s.SentAt)
	cp.OpenedAt = copyTime(s.OpenedAt)
	cp.ClickedAt = copyTime(s.ClickedAt)
	return cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
