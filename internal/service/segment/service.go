package segment

import (
	"context"
	"fmt"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/metrics"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/logger"
)

// RefreshResult summarizes one membership refresh.
type RefreshResult struct {
	SegmentID    string    `json:"segment_id"`
	ContactCount int       `json:"contact_count"`
	Skipped      int       `json:"skipped_criteria"`
	RefreshedAt  time.Time `json:"refreshed_at"`
}

// Service recomputes segment membership from stored criteria.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a segment service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns a single segment.
func (s *Service) Get(ctx context.Context, id string) (*domain.Segment, error) {
	return s.repo.Get(ctx, id)
}

// Refresh rebuilds the segment's membership from its criteria. Malformed
// criteria are skipped and logged; the remaining criteria still apply.
func (s *Service) Refresh(ctx context.Context, segmentID string) (*RefreshResult, error) {
	seg, err := s.repo.Get(ctx, segmentID)
	if err != nil {
		metrics.SegmentRefreshes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load segment %s: %w", segmentID, err)
	}

	f, skipped := BuildFilter(seg.Criteria)
	for _, e := range skipped {
		metrics.SkippedCriteria.Inc()
		logger.Warn("skipping segment criterion", "segment_id", seg.ID, "error", e)
	}

	at := s.now().UTC()
	count, err := s.repo.ReplaceMembers(ctx, seg.ID, f, at)
	if err != nil {
		metrics.SegmentRefreshes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("replace members of segment %s: %w", seg.ID, err)
	}
	metrics.SegmentRefreshes.WithLabelValues("ok").Inc()

	logger.Info("segment refreshed", "segment_id", seg.ID, "contact_count", count, "skipped", len(skipped))
	return &RefreshResult{
		SegmentID:    seg.ID,
		ContactCount: count,
		Skipped:      len(skipped),
		RefreshedAt:  at,
	}, nil
}

// Members returns the segment's current members without refreshing.
func (s *Service) Members(ctx context.Context, segmentID string) ([]domain.Contact, error) {
	return s.repo.Members(ctx, segmentID)
}
