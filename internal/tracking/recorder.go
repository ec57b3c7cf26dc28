package tracking

import (
	"context"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	trackingsvc "github.com/Santonastaso/crm-demo-sub000/internal/service/tracking"
)

// Recorder accepts engagement events from the HTTP handler.
type Recorder interface {
	Record(ctx context.Context, evt domain.TrackingEvent) error
}

// EventRecorder is the tracking service operation a DirectRecorder or
// Consumer applies events with.
type EventRecorder interface {
	RecordEvent(ctx context.Context, evt domain.TrackingEvent) (trackingsvc.Outcome, error)
}

// DirectRecorder applies events synchronously in the request path.
type DirectRecorder struct {
	svc EventRecorder
}

// NewDirectRecorder wraps the tracking service.
func NewDirectRecorder(svc EventRecorder) *DirectRecorder {
	return &DirectRecorder{svc: svc}
}

func (d *DirectRecorder) Record(ctx context.Context, evt domain.TrackingEvent) error {
	_, err := d.svc.RecordEvent(ctx, evt)
	return err
}
