package segment

import (
	"context"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
)

// Repository defines the data access contract for segments.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a segment with its criteria. Returns ErrNotFound if it
	// doesn't exist.
	Get(ctx context.Context, id string) (*domain.Segment, error)

	// ReplaceMembers atomically swaps the segment's membership for the
	// contacts matching f, stamps last_refreshed_at and contact_count, and
	// returns the new member count. Concurrent calls for the same segment
	// serialize; readers see either the old or the new membership.
	ReplaceMembers(ctx context.Context, segmentID string, f Filter, refreshedAt time.Time) (int, error)

	// Members returns the segment's current member contacts ordered by id.
	Members(ctx context.Context, segmentID string) ([]domain.Contact, error)
}
