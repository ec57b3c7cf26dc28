package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository.
type CampaignRepo struct{ s *Store }

func (r *CampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CampaignRepo) Steps(_ context.Context, campaignID string) ([]domain.CampaignStep, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return slices.Clone(r.s.steps[campaignID]), nil
}

func (r *CampaignRepo) MarkSending(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if !c.Status.Runnable() {
		return &campaign.InvalidStateError{Status: c.Status}
	}
	c.Status = domain.CampaignSending
	if c.StartedAt == nil {
		started := at
		c.StartedAt = &started
	}
	c.UpdatedAt = at
	return nil
}

func (r *CampaignRepo) Finish(_ context.Context, id string, status domain.CampaignStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if !c.Status.Runnable() {
		return &campaign.InvalidStateError{Status: c.Status}
	}
	c.Status = status
	if status == domain.CampaignCompleted {
		done := at
		c.CompletedAt = &done
	}
	c.UpdatedAt = at
	return nil
}

func (r *CampaignRepo) ListActive(_ context.Context, now time.Time) ([]domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range r.s.campaigns {
		switch {
		case c.Status == domain.CampaignSending:
			out = append(out, *c)
		case c.Status == domain.CampaignScheduled && (c.ScheduledAt == nil || !c.ScheduledAt.After(now)):
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
