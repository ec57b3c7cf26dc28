package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/metrics"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/logger"
)

// Outcome describes what an engagement event did to its send.
type Outcome string

const (
	OutcomeRecorded  Outcome = "recorded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnknown   Outcome = "unknown"
	OutcomeIgnored   Outcome = "ignored"
)

// Service applies open and click events to campaign sends.
type Service struct {
	repo Repository
	bots *BotFilter
	now  func() time.Time
}

// NewService creates a tracking service. A nil bot filter records every
// event.
func NewService(repo Repository, bots *BotFilter) *Service {
	return &Service{repo: repo, bots: bots, now: time.Now}
}

// RecordEvent stamps the send identified by evt.TrackingID. Unknown tracking
// ids and repeated events are reported through the Outcome, not as errors.
func (s *Service) RecordEvent(ctx context.Context, evt domain.TrackingEvent) (Outcome, error) {
	if !evt.Type.Valid() {
		return "", fmt.Errorf("%w: type %q", ErrInvalidEvent, evt.Type)
	}
	outcome, err := s.record(ctx, evt)
	if err != nil {
		metrics.TrackingEvents.WithLabelValues(string(evt.Type), "error").Inc()
		return "", err
	}
	metrics.TrackingEvents.WithLabelValues(string(evt.Type), string(outcome)).Inc()
	return outcome, nil
}

func (s *Service) record(ctx context.Context, evt domain.TrackingEvent) (Outcome, error) {
	if evt.TrackingID == "" {
		return OutcomeUnknown, nil
	}
	if s.bots.IsBot(evt.UserAgent) {
		logger.Debug("ignoring automated tracking hit", "tracking_id", evt.TrackingID, "user_agent", evt.UserAgent)
		return OutcomeIgnored, nil
	}

	at := evt.OccurredAt
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	var (
		written bool
		err     error
	)
	switch evt.Type {
	case domain.EventOpen:
		written, err = s.repo.MarkOpened(ctx, evt.TrackingID, at)
	case domain.EventClick:
		written, err = s.repo.MarkClicked(ctx, evt.TrackingID, at)
	}
	if errors.Is(err, ErrNotFound) {
		return OutcomeUnknown, nil
	}
	if err != nil {
		return "", fmt.Errorf("record %s for %s: %w", evt.Type, evt.TrackingID, err)
	}
	if !written {
		return OutcomeDuplicate, nil
	}
	return OutcomeRecorded, nil
}
