package tracking

import (
	"context"
	"time"
)

// Repository defines the engagement writes against campaign sends.
// Implementations must be safe for concurrent use and perform each update as
// a single conditional write.
type Repository interface {
	// MarkOpened sets opened_at to at if it is unset and advances the status
	// to opened when that is forward progress. It reports whether opened_at
	// was written. Returns ErrNotFound for unknown tracking ids.
	MarkOpened(ctx context.Context, trackingID string, at time.Time) (bool, error)

	// MarkClicked sets clicked_at to at if it is unset, backfills an unset
	// opened_at with the same time, and advances the status to clicked when
	// that is forward progress. It reports whether clicked_at was written.
	// Returns ErrNotFound for unknown tracking ids.
	MarkClicked(ctx context.Context, trackingID string, at time.Time) (bool, error)
}
