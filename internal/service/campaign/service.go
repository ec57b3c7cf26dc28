package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/metrics"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/distlock"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/logger"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/condition"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/dispatch"
)

// DelayPolicy controls what happens when a step is invoked before its
// delay_hours have elapsed.
type DelayPolicy string

const (
	// DelayBestEffort runs the step whenever asked.
	DelayBestEffort DelayPolicy = "best_effort"
	// DelayStrict rejects early invocations with ErrDelayNotElapsed.
	DelayStrict DelayPolicy = "strict"
)

// Options tunes step execution.
type Options struct {
	// Concurrency bounds in-flight deliveries per step. Defaults to 8.
	Concurrency int
	DelayPolicy DelayPolicy
	// FailOnTotalFailure moves the campaign to failed when every delivery
	// attempted by a step fails.
	FailOnTotalFailure bool
	// StalePendingAfter is how long a claimed send may stay pending before
	// a later run of its step settles it as failed. Defaults to
	// DefaultStalePendingAfter.
	StalePendingAfter time.Duration
}

// DefaultStalePendingAfter matches the default step lock TTL.
const DefaultStalePendingAfter = 15 * time.Minute

// outcomeUnknown is recorded on pending rows settled after their run
// stopped before writing the dispatch result.
const outcomeUnknown = "delivery outcome was not recorded"

const completeAttempts = 3

// StepResult summarizes one RunStep call. RecipientsSent counts every
// eligible recipient whose send for this step went out, including sends made
// by earlier invocations of the same step.
type StepResult struct {
	CampaignID        string                `json:"campaign_id"`
	StepProcessed     int                   `json:"step_processed"`
	TotalSteps        int                   `json:"total_steps"`
	RecipientsTotal   int                   `json:"recipients_total"`
	RecipientsSent    int                   `json:"recipients_sent"`
	RecipientsFailed  int                   `json:"recipients_failed"`
	RecipientsSkipped int                   `json:"recipients_skipped"`
	Status            domain.CampaignStatus `json:"status"`
}

// Service runs campaign steps. It keeps no state between calls and is safe
// for concurrent use if its collaborators are.
type Service struct {
	repo       Repository
	sends      SendRepository
	segments   SegmentResolver
	dispatcher Dispatcher
	locks      distlock.Factory
	render     *Renderer
	opts       Options
	now        func() time.Time
	retryDelay time.Duration
}

// NewService creates a campaign service. A nil lock factory falls back to
// in-process locks.
func NewService(repo Repository, sends SendRepository, segments SegmentResolver, d Dispatcher, locks distlock.Factory, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.DelayPolicy == "" {
		opts.DelayPolicy = DelayBestEffort
	}
	if opts.StalePendingAfter <= 0 {
		opts.StalePendingAfter = DefaultStalePendingAfter
	}
	if locks == nil {
		locks = distlock.NewLocalFactory()
	}
	return &Service{
		repo:       repo,
		sends:      sends,
		segments:   segments,
		dispatcher: d,
		locks:      locks,
		render:     NewRenderer(),
		opts:       opts,
		now:        time.Now,
		retryDelay: 200 * time.Millisecond,
	}
}

// StalePendingAfter reports the age at which pending sends count as stale.
func (s *Service) StalePendingAfter() time.Duration { return s.opts.StalePendingAfter }

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// Sends lists a campaign's sends, optionally restricted to one step.
func (s *Service) Sends(ctx context.Context, campaignID string, stepOrder int) ([]domain.CampaignSend, error) {
	if _, err := s.repo.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.sends.ListSends(ctx, campaignID, stepOrder)
}

// Steps returns the campaign's effective steps, synthesizing the seed step
// when none are stored.
func (s *Service) Steps(ctx context.Context, campaignID string) ([]domain.CampaignStep, error) {
	c, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return s.loadSteps(ctx, c)
}

// RunStep executes step number step of a campaign. A step of zero or less
// means 1.
func (s *Service) RunStep(ctx context.Context, campaignID string, step int) (res *StepResult, err error) {
	start := s.now()
	defer func() {
		metrics.RecordStep(stepOutcome(err), s.now().Sub(start))
	}()

	if step <= 0 {
		step = 1
	}

	c, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", campaignID, err)
	}
	if !c.Status.Runnable() {
		return nil, &InvalidStateError{Status: c.Status}
	}

	lock := s.locks(fmt.Sprintf("campaign:%s:step:%d", c.ID, step))
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire step lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("campaign %s step %d: %w", c.ID, step, ErrStepInProgress)
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			logger.Warn("failed to release step lock", "campaign_id", c.ID, "step", step, "error", rerr)
		}
	}()

	steps, err := s.loadSteps(ctx, c)
	if err != nil {
		return nil, err
	}
	if step > len(steps) {
		return nil, fmt.Errorf("campaign %s has %d steps, asked for %d: %w", c.ID, len(steps), step, ErrStepOutOfRange)
	}
	current := steps[step-1]

	if err := s.settleStale(ctx, c.ID, step); err != nil {
		return nil, err
	}

	var previous []domain.CampaignSend
	if step > 1 {
		previous, err = s.sends.ListSends(ctx, c.ID, step-1)
		if err != nil {
			return nil, fmt.Errorf("load step %d sends: %w", step-1, err)
		}
		if s.opts.DelayPolicy == DelayStrict {
			if readyAt, ok := ReadyAt(current, previous); ok && s.now().Before(readyAt) {
				return nil, &DelayNotElapsedError{Step: step, ReadyAt: readyAt}
			}
		}
	}

	if err := s.repo.MarkSending(ctx, c.ID, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("mark campaign %s sending: %w", c.ID, err)
	}
	c.Status = domain.CampaignSending

	if _, rerr := s.segments.Refresh(ctx, c.SegmentID); rerr != nil {
		logger.Warn("segment refresh failed, using last known membership",
			"campaign_id", c.ID, "segment_id", c.SegmentID, "error", rerr)
	}
	members, err := s.segments.Members(ctx, c.SegmentID)
	if err != nil {
		return nil, fmt.Errorf("load segment %s members: %w", c.SegmentID, err)
	}

	res = &StepResult{CampaignID: c.ID, StepProcessed: step, TotalSteps: len(steps)}

	if len(members) == 0 {
		log.Printf("[CampaignRunner] campaign %s: segment %s is empty, completing", c.ID, c.SegmentID)
		if err := s.finish(ctx, c, domain.CampaignCompleted); err != nil {
			return nil, err
		}
		res.Status = c.Status
		return res, nil
	}

	eligible := members
	if step > 1 {
		eligible = condition.Filter(members, previous, current.Condition)
	}
	res.RecipientsTotal = len(eligible)

	tally := s.deliver(ctx, c, current, eligible)
	res.RecipientsSkipped = tally.skipped

	rows, err := s.sends.ListSends(ctx, c.ID, step)
	if err != nil {
		return nil, fmt.Errorf("load step %d sends: %w", step, err)
	}
	res.RecipientsSent, res.RecipientsFailed = countOutcomes(eligible, rows)

	switch {
	case s.opts.FailOnTotalFailure && tally.attempted > 0 && tally.sent == 0:
		log.Printf("[CampaignRunner] campaign %s step %d: all %d deliveries failed, marking campaign failed", c.ID, step, tally.attempted)
		if err := s.finish(ctx, c, domain.CampaignFailed); err != nil {
			return nil, err
		}
	case step == len(steps):
		if err := s.finish(ctx, c, domain.CampaignCompleted); err != nil {
			return nil, err
		}
	}
	res.Status = c.Status

	logger.Info("campaign step processed",
		"campaign_id", c.ID,
		"step", step,
		"total_steps", len(steps),
		"recipients_total", res.RecipientsTotal,
		"recipients_sent", res.RecipientsSent,
		"recipients_failed", res.RecipientsFailed,
		"status", c.Status)
	return res, nil
}

func (s *Service) finish(ctx context.Context, c *domain.Campaign, status domain.CampaignStatus) error {
	if err := s.repo.Finish(ctx, c.ID, status, s.now().UTC()); err != nil {
		return fmt.Errorf("mark campaign %s %s: %w", c.ID, status, err)
	}
	c.Status = status
	return nil
}

// loadSteps returns validated steps, or a virtual first step built from the
// seed template when the campaign defines none.
func (s *Service) loadSteps(ctx context.Context, c *domain.Campaign) ([]domain.CampaignStep, error) {
	steps, err := s.repo.Steps(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("load steps for campaign %s: %w", c.ID, err)
	}
	if len(steps) == 0 {
		return []domain.CampaignStep{{
			CampaignID: c.ID,
			StepOrder:  1,
			Channel:    c.Channel,
			Subject:    c.TemplateSubject,
			Body:       c.TemplateBody,
			Condition:  domain.ConditionAlways,
		}}, nil
	}
	for i := range steps {
		if steps[i].Condition == "" {
			steps[i].Condition = domain.ConditionAlways
		}
	}
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// ValidateSteps checks that step orders are 1..n with no gaps, n is within
// domain.MaxCampaignSteps and every condition is recognized. An empty
// condition means always. Steps must already be sorted.
func ValidateSteps(steps []domain.CampaignStep) error {
	if len(steps) > domain.MaxCampaignSteps {
		return fmt.Errorf("%w: %d steps, at most %d allowed", ErrInvalidSteps, len(steps), domain.MaxCampaignSteps)
	}
	for i, st := range steps {
		if st.StepOrder != i+1 {
			return fmt.Errorf("%w: expected step_order %d, found %d", ErrInvalidSteps, i+1, st.StepOrder)
		}
		if st.Condition != "" && !condition.Known(st.Condition) {
			return fmt.Errorf("%w: step %d has unknown condition %q", ErrInvalidSteps, st.StepOrder, st.Condition)
		}
	}
	return nil
}

type deliveryTally struct {
	attempted int
	sent      int
	skipped   int
}

func (s *Service) deliver(ctx context.Context, c *domain.Campaign, st domain.CampaignStep, recipients []domain.Contact) deliveryTally {
	var attempted, sent, skipped atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, r := range recipients {
		g.Go(func() error {
			switch s.deliverOne(ctx, c, st, r) {
			case outcomeSent:
				attempted.Add(1)
				sent.Add(1)
			case outcomeFailed:
				attempted.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return deliveryTally{
		attempted: int(attempted.Load()),
		sent:      int(sent.Load()),
		skipped:   int(skipped.Load()),
	}
}

type deliveryOutcome int

const (
	outcomeSent deliveryOutcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeError
)

// deliverOne claims the recipient's row before dispatching so a concurrent
// or repeated run can never send the same step twice.
func (s *Service) deliverOne(ctx context.Context, c *domain.Campaign, st domain.CampaignStep, r domain.Contact) deliveryOutcome {
	channel := st.Channel
	if channel == "" {
		channel = c.Channel
	}

	send := &domain.CampaignSend{
		ID:         uuid.New().String(),
		CampaignID: c.ID,
		StepOrder:  st.StepOrder,
		ContactID:  r.ID,
		Channel:    channel,
		Status:     domain.SendPending,
		CreatedAt:  s.now().UTC(),
	}
	if !st.Virtual() {
		stepID := st.ID
		send.StepID = &stepID
	}

	claimed, err := s.sends.ClaimSend(ctx, send)
	if err != nil {
		logger.Error("failed to claim send", "campaign_id", c.ID, "step", st.StepOrder, "contact_id", r.ID, "error", err)
		return outcomeError
	}
	if !claimed {
		return outcomeSkipped
	}

	attrs := r.Attributes()
	msg := dispatch.Message{
		CampaignID: c.ID,
		StepOrder:  st.StepOrder,
		Subject:    s.render.Render(st.Subject, attrs),
		Body:       s.render.Render(st.Body, attrs),
	}
	result := s.dispatcher.Send(ctx, channel, r, msg)

	send.Status = result.Status
	send.ExternalID = result.ExternalID
	send.TrackingID = result.TrackingID
	send.Error = result.ErrorText()
	if result.Status == domain.SendSent {
		at := s.now().UTC()
		send.SentAt = &at
	}
	if err := s.completeSend(ctx, send); err != nil {
		logger.Error("failed to record send outcome", "send_id", send.ID, "status", send.Status, "error", err)
	}

	if result.Status == domain.SendSent {
		return outcomeSent
	}
	return outcomeFailed
}

// completeSend records a dispatch result, retrying store errors. The
// recipient has already been contacted, so cancellation of ctx is ignored.
func (s *Service) completeSend(ctx context.Context, send *domain.CampaignSend) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 0; attempt < completeAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(s.retryDelay * time.Duration(attempt))
		}
		if err = s.sends.CompleteSend(ctx, send); err == nil {
			return nil
		}
	}
	return err
}

// settleStale fails the step's pending rows older than StalePendingAfter.
// Their outcome is unknown, so the recipient is not contacted again.
func (s *Service) settleStale(ctx context.Context, campaignID string, step int) error {
	rows, err := s.sends.ListSends(ctx, campaignID, step)
	if err != nil {
		return fmt.Errorf("load step %d sends: %w", step, err)
	}
	cutoff := s.now().Add(-s.opts.StalePendingAfter)
	for i := range rows {
		row := &rows[i]
		if row.Status != domain.SendPending || row.CreatedAt.After(cutoff) {
			continue
		}
		row.Status = domain.SendFailed
		row.Error = outcomeUnknown
		row.SentAt = nil
		if err := s.sends.CompleteSend(ctx, row); err != nil {
			logger.Warn("failed to settle stale send", "send_id", row.ID, "campaign_id", campaignID, "step", step, "error", err)
			continue
		}
		logger.Warn("settled stale pending send as failed",
			"send_id", row.ID, "campaign_id", campaignID, "step", step, "contact_id", row.ContactID)
	}
	return nil
}

func countOutcomes(eligible []domain.Contact, rows []domain.CampaignSend) (sent, failed int) {
	wanted := make(map[string]struct{}, len(eligible))
	for _, r := range eligible {
		wanted[r.ID] = struct{}{}
	}
	for _, row := range rows {
		if _, ok := wanted[row.ContactID]; !ok {
			continue
		}
		switch {
		case row.Status.Reached():
			sent++
		case row.Status == domain.SendFailed || row.Status == domain.SendBounced:
			failed++
		}
	}
	return sent, failed
}

func stepOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStepInProgress):
		return "locked"
	case errors.Is(err, ErrDelayNotElapsed):
		return "too_early"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotFound), errors.Is(err, ErrStepOutOfRange):
		return "rejected"
	}
	return "error"
}
