package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/segment"
)

// SegmentRepo implements segment.Repository.
type SegmentRepo struct{ s *Store }

func (r *SegmentRepo) Get(_ context.Context, id string) (*domain.Segment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seg, ok := r.s.segments[id]
	if !ok {
		return nil, segment.ErrNotFound
	}
	cp := *seg
	cp.Criteria = slices.Clone(seg.Criteria)
	return &cp, nil
}

// ReplaceMembers evaluates f over every contact and swaps the membership
// list while holding the write lock, so readers see old or new, never empty.
func (r *SegmentRepo) ReplaceMembers(_ context.Context, segmentID string, f segment.Filter, refreshedAt time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seg, ok := r.s.segments[segmentID]
	if !ok {
		return 0, segment.ErrNotFound
	}

	ids := make([]string, 0)
	for id, c := range r.s.contacts {
		if f.Matches(c) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	r.s.members[segmentID] = ids

	at := refreshedAt
	seg.ContactCount = len(ids)
	seg.LastRefreshedAt = &at
	seg.UpdatedAt = refreshedAt
	return len(ids), nil
}

func (r *SegmentRepo) Members(_ context.Context, segmentID string) ([]domain.Contact, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if _, ok := r.s.segments[segmentID]; !ok {
		return nil, segment.ErrNotFound
	}
	ids := r.s.members[segmentID]
	out := make([]domain.Contact, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.s.contacts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
