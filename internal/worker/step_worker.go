package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/logger"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/campaign"
)

// =============================================================================
// STEP WORKER
// =============================================================================
// Polls sending and due scheduled campaigns and runs the next step whose
// delay has elapsed since the previous step resolved. Every run names its
// step explicitly; the campaign service's per-step lock and claim-before-send
// make overlapping ticks across replicas harmless.

// DefaultStepPollInterval is how often the worker looks for due steps.
const DefaultStepPollInterval = time.Minute

// CampaignLister lists the campaigns the worker should look at.
type CampaignLister interface {
	ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error)
}

// StepRunner is the campaign service surface the worker drives.
type StepRunner interface {
	Steps(ctx context.Context, campaignID string) ([]domain.CampaignStep, error)
	Sends(ctx context.Context, campaignID string, stepOrder int) ([]domain.CampaignSend, error)
	RunStep(ctx context.Context, campaignID string, step int) (*campaign.StepResult, error)
	StalePendingAfter() time.Duration
}

// StepWorker runs due campaign steps on a fixed interval.
type StepWorker struct {
	campaigns    CampaignLister
	runner       StepRunner
	pollInterval time.Duration
	stepTimeout  time.Duration
	now          func() time.Time

	stepsRun atomic.Int64
	errors   atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewStepWorker creates a worker. A zero interval uses
// DefaultStepPollInterval; a zero stepTimeout leaves runs unbounded.
func NewStepWorker(campaigns CampaignLister, runner StepRunner, interval, stepTimeout time.Duration) *StepWorker {
	if interval <= 0 {
		interval = DefaultStepPollInterval
	}
	return &StepWorker{
		campaigns:    campaigns,
		runner:       runner,
		pollInterval: interval,
		stepTimeout:  stepTimeout,
		now:          time.Now,
	}
}

// Start begins the polling loop.
func (w *StepWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("step worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())

	log.Printf("[StepWorker] Starting with poll interval: %v", w.pollInterval)
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop cancels the loop and waits for the current tick to finish.
func (w *StepWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	log.Printf("[StepWorker] Stopped (steps run: %d, errors: %d)", w.stepsRun.Load(), w.errors.Load())
}

func (w *StepWorker) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(w.ctx); err != nil && w.ctx.Err() == nil {
			logger.Error("step worker tick failed", "error", err)
		}
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs every step that is due now and returns how many ran.
func (w *StepWorker) RunOnce(ctx context.Context) (int, error) {
	active, err := w.campaigns.ListActive(ctx, w.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list active campaigns: %w", err)
	}

	ran := 0
	for i := range active {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		if w.advance(ctx, &active[i]) {
			ran++
		}
	}
	return ran, nil
}

// advance runs the campaign's due step, if any.
func (w *StepWorker) advance(ctx context.Context, c *domain.Campaign) bool {
	steps, err := w.runner.Steps(ctx, c.ID)
	if err != nil {
		w.errors.Add(1)
		logger.Error("load campaign steps", "campaign_id", c.ID, "error", err)
		return false
	}
	sends, err := w.runner.Sends(ctx, c.ID, 0)
	if err != nil {
		w.errors.Add(1)
		logger.Error("load campaign sends", "campaign_id", c.ID, "error", err)
		return false
	}

	step := campaign.NextDueStep(c, steps, sends, w.now(), w.runner.StalePendingAfter())
	if step == 0 {
		return false
	}

	res, ok := w.run(ctx, c.ID, step)
	if !ok {
		return false
	}

	// Nobody entered this step, so nobody can enter any later one. Run the
	// last step to close the campaign instead of waiting on sends that
	// will never exist.
	if res.RecipientsTotal == 0 && res.Status == domain.CampaignSending && step < res.TotalSteps {
		log.Printf("[StepWorker] campaign %s step %d had no recipients, closing with step %d", c.ID, step, res.TotalSteps)
		w.run(ctx, c.ID, res.TotalSteps)
	}
	return true
}

func (w *StepWorker) run(ctx context.Context, campaignID string, step int) (*campaign.StepResult, bool) {
	if w.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.stepTimeout)
		defer cancel()
	}

	res, err := w.runner.RunStep(ctx, campaignID, step)
	switch {
	case errors.Is(err, campaign.ErrStepInProgress), errors.Is(err, campaign.ErrDelayNotElapsed):
		logger.Debug("step not run", "campaign_id", campaignID, "step", step, "reason", err)
		return nil, false
	case errors.Is(err, campaign.ErrInvalidState):
		logger.Info("campaign finished before its step ran", "campaign_id", campaignID, "step", step)
		return nil, false
	case err != nil:
		w.errors.Add(1)
		logger.Error("run campaign step", "campaign_id", campaignID, "step", step, "error", err)
		return nil, false
	}

	w.stepsRun.Add(1)
	log.Printf("[StepWorker] campaign %s step %d/%d: %d sent, %d failed, status %s",
		campaignID, step, res.TotalSteps, res.RecipientsSent, res.RecipientsFailed, res.Status)
	return res, true
}

// Stats returns the counters since start.
func (w *StepWorker) Stats() (stepsRun, errs int64) {
	return w.stepsRun.Load(), w.errors.Load()
}
