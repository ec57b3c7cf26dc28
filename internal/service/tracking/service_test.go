package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
)

// memRepo is an in-memory Repository for testing.
type memRepo struct {
	mu    sync.Mutex
	sends map[string]*domain.CampaignSend
	fail  error
}

func newMemRepo(sends ...domain.CampaignSend) *memRepo {
	r := &memRepo{sends: make(map[string]*domain.CampaignSend)}
	for i := range sends {
		s := sends[i]
		r.sends[s.TrackingID] = &s
	}
	return r
}

func (r *memRepo) MarkOpened(_ context.Context, tid string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return false, r.fail
	}
	s, ok := r.sends[tid]
	if !ok {
		return false, ErrNotFound
	}
	if s.OpenedAt != nil {
		return false, nil
	}
	s.OpenedAt = &at
	if s.Status.AdvancesTo(domain.SendOpened) {
		s.Status = domain.SendOpened
	}
	return true, nil
}

func (r *memRepo) MarkClicked(_ context.Context, tid string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sends[tid]
	if !ok {
		return false, ErrNotFound
	}
	if s.OpenedAt == nil {
		s.OpenedAt = &at
	}
	if s.ClickedAt != nil {
		return false, nil
	}
	s.ClickedAt = &at
	if s.Status.AdvancesTo(domain.SendClicked) {
		s.Status = domain.SendClicked
	}
	return true, nil
}

func TestRecordEventFirstOpenWins(t *testing.T) {
	repo := newMemRepo(domain.CampaignSend{TrackingID: "tid", Status: domain.SendSent})
	svc := NewService(repo, NewBotFilter())
	ctx := context.Background()

	first := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	out, err := svc.RecordEvent(ctx, domain.TrackingEvent{TrackingID: "tid", Type: domain.EventOpen, OccurredAt: first})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, out)

	out, err = svc.RecordEvent(ctx, domain.TrackingEvent{TrackingID: "tid", Type: domain.EventOpen, OccurredAt: first.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)

	s := repo.sends["tid"]
	assert.Equal(t, first, *s.OpenedAt)
	assert.Equal(t, domain.SendOpened, s.Status)
}

func TestRecordEventClickImpliesOpen(t *testing.T) {
	repo := newMemRepo(domain.CampaignSend{TrackingID: "tid", Status: domain.SendSent})
	svc := NewService(repo, nil)
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	out, err := svc.RecordEvent(context.Background(), domain.TrackingEvent{TrackingID: "tid", Type: domain.EventClick, OccurredAt: at})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, out)

	s := repo.sends["tid"]
	assert.Equal(t, at, *s.ClickedAt)
	assert.Equal(t, at, *s.OpenedAt)
	assert.Equal(t, domain.SendClicked, s.Status)

	// A late open never regresses a clicked send.
	out, err = svc.RecordEvent(context.Background(), domain.TrackingEvent{TrackingID: "tid", Type: domain.EventOpen})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
	assert.Equal(t, domain.SendClicked, s.Status)
}

func TestRecordEventUnknownAndBots(t *testing.T) {
	repo := newMemRepo(domain.CampaignSend{TrackingID: "tid", Status: domain.SendSent})
	svc := NewService(repo, NewBotFilter())
	ctx := context.Background()

	out, err := svc.RecordEvent(ctx, domain.TrackingEvent{TrackingID: "nope", Type: domain.EventOpen})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, out)

	out, err = svc.RecordEvent(ctx, domain.TrackingEvent{Type: domain.EventClick})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, out)

	out, err = svc.RecordEvent(ctx, domain.TrackingEvent{TrackingID: "tid", Type: domain.EventOpen, UserAgent: "Barracuda Sentinel"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
	assert.Nil(t, repo.sends["tid"].OpenedAt)

	_, err = svc.RecordEvent(ctx, domain.TrackingEvent{TrackingID: "tid", Type: "reply"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestRecordEventUsesClockWhenUnset(t *testing.T) {
	repo := newMemRepo(domain.CampaignSend{TrackingID: "tid", Status: domain.SendSent})
	svc := NewService(repo, nil)
	now := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.RecordEvent(context.Background(), domain.TrackingEvent{TrackingID: "tid", Type: domain.EventOpen})
	require.NoError(t, err)
	assert.Equal(t, now, *repo.sends["tid"].OpenedAt)
}

func TestRecordEventRepositoryError(t *testing.T) {
	repo := newMemRepo()
	repo.fail = errors.New("connection reset")
	svc := NewService(repo, nil)

	_, err := svc.RecordEvent(context.Background(), domain.TrackingEvent{TrackingID: "tid", Type: domain.EventOpen})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
