package campaign

import (
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
)

// ReadyAt is the earliest time a step may run: the latest resolution point
// of the previous step's sends plus the step's delay. ok is false when the
// previous step has no sends to measure from.
func ReadyAt(st domain.CampaignStep, previous []domain.CampaignSend) (time.Time, bool) {
	var last time.Time
	for i := range previous {
		if at := previous[i].ResolvedAt(); at.After(last) {
			last = at
		}
	}
	if last.IsZero() {
		return time.Time{}, false
	}
	return last.Add(st.Delay()), true
}

// NextDueStep decides which step of a campaign should run at now, given its
// effective steps and all of its sends. It returns 0 when nothing is due.
//
// Step 1 is due once a scheduled campaign reaches scheduled_at. Step n+1 is
// due when step n has sends, none still pending, and its delay has elapsed
// since the latest of them resolved. Pending rows older than staleAfter make
// step n due again so that its run settles them. The last step is returned
// again for a runnable campaign whose last step already has sends, which
// retries a completion that did not stick.
func NextDueStep(c *domain.Campaign, steps []domain.CampaignStep, sends []domain.CampaignSend, now time.Time, staleAfter time.Duration) int {
	if !c.Status.Runnable() || len(steps) == 0 {
		return 0
	}

	byStep := make(map[int][]domain.CampaignSend)
	for _, s := range sends {
		byStep[s.StepOrder] = append(byStep[s.StepOrder], s)
	}

	last := 0
	for _, st := range steps {
		if len(byStep[st.StepOrder]) > 0 {
			last = st.StepOrder
		}
	}

	if last == 0 {
		if c.Status == domain.CampaignDraft {
			return 0
		}
		if c.ScheduledAt != nil && now.Before(*c.ScheduledAt) {
			return 0
		}
		return 1
	}
	stale := false
	for _, s := range byStep[last] {
		if s.Status != domain.SendPending {
			continue
		}
		if now.Sub(s.CreatedAt) < staleAfter {
			return 0
		}
		stale = true
	}
	if stale {
		return last
	}
	if last >= len(steps) {
		return len(steps)
	}

	next := steps[last]
	readyAt, _ := ReadyAt(next, byStep[last])
	if now.Before(readyAt) {
		return 0
	}
	return next.StepOrder
}
