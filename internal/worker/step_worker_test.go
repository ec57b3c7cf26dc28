package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/distlock"
	"github.com/Santonastaso/crm-demo-sub000/internal/repository/memory"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/campaign"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/dispatch"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/segment"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/tracking"
	"github.com/Santonastaso/crm-demo-sub000/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type env struct {
	store   *memory.Store
	svc     *campaign.Service
	tracker *tracking.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.NewStore()
	d := dispatch.NewDispatcher()
	provider := dispatch.ProviderFunc(func(_ context.Context, out dispatch.Outbound) (string, error) {
		return "ext-" + out.ContactID, nil
	})
	d.Register(domain.ChannelEmail, dispatch.NewEmailChannel(provider, tracking.NewLinkBuilder("https://t.example.com", "")), 0, 0)

	for _, id := range []string{"a", "b", "c"} {
		st.PutContact(domain.Contact{ID: id, Email: id + "@example.com", Status: "lead"})
	}
	st.PutSegment(domain.Segment{ID: "leads", Criteria: []domain.Criterion{{Field: "status", Operator: domain.OpEq, Value: "lead"}}})

	return &env{
		store:   st,
		svc:     campaign.NewService(st.Campaigns(), st.Sends(), segment.NewService(st.Segments()), d, distlock.NewLocalFactory(), campaign.Options{}),
		tracker: tracking.NewService(st.Sends(), nil),
	}
}

func (e *env) steps(id string, delays []int, conds ...domain.StepCondition) []domain.CampaignStep {
	out := make([]domain.CampaignStep, len(delays))
	for i, d := range delays {
		cond := domain.ConditionAlways
		if i < len(conds) {
			cond = conds[i]
		}
		out[i] = domain.CampaignStep{
			ID: id + "-" + string(rune('1'+i)), CampaignID: id, StepOrder: i + 1,
			Channel: domain.ChannelEmail, Subject: "s", Body: "<p>hello</p>",
			DelayHours: d, Condition: cond,
		}
	}
	return out
}

func (e *env) status(t *testing.T, id string) domain.CampaignStatus {
	t.Helper()
	c, err := e.store.Campaigns().Get(context.Background(), id)
	require.NoError(t, err)
	return c.Status
}

func (e *env) sendCount(t *testing.T, id string, step int) int {
	t.Helper()
	rows, err := e.store.Sends().ListSends(context.Background(), id, step)
	require.NoError(t, err)
	return len(rows)
}

func TestRunOnceWalksStepsWithoutDelay(t *testing.T) {
	e := newEnv(t)
	e.store.PutCampaign(domain.Campaign{ID: "c", Channel: domain.ChannelEmail, SegmentID: "leads", Status: domain.CampaignSending},
		e.steps("c", []int{0, 0, 0})...)
	w := worker.NewStepWorker(e.store.Campaigns(), e.svc, time.Hour, 0)

	for step := 1; step <= 3; step++ {
		ran, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, ran)
		assert.Equal(t, 3, e.sendCount(t, "c", step))
	}
	assert.Equal(t, domain.CampaignCompleted, e.status(t, "c"))

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ran, "completed campaigns are no longer active")
}

func TestRunOnceWaitsForDelay(t *testing.T) {
	e := newEnv(t)
	e.store.PutCampaign(domain.Campaign{ID: "c", Channel: domain.ChannelEmail, SegmentID: "leads", Status: domain.CampaignSending},
		e.steps("c", []int{0, 48})...)
	w := worker.NewStepWorker(e.store.Campaigns(), e.svc, time.Hour, 0)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, ran)

	ran, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ran, "step 2 waits 48h after step 1")
	assert.Zero(t, e.sendCount(t, "c", 2))
	assert.Equal(t, domain.CampaignSending, e.status(t, "c"))
}

func TestRunOnceSkipsDraftAndFutureSchedules(t *testing.T) {
	e := newEnv(t)
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Minute)
	e.store.PutCampaign(domain.Campaign{ID: "draft", Channel: domain.ChannelEmail, SegmentID: "leads", Status: domain.CampaignDraft},
		e.steps("draft", []int{0})...)
	e.store.PutCampaign(domain.Campaign{ID: "later", Channel: domain.ChannelEmail, SegmentID: "leads", Status: domain.CampaignScheduled, ScheduledAt: &future},
		e.steps("later", []int{0})...)
	e.store.PutCampaign(domain.Campaign{ID: "due", Channel: domain.ChannelEmail, SegmentID: "leads", Status: domain.CampaignScheduled, ScheduledAt: &past},
		e.steps("due", []int{0})...)
	w := worker.NewStepWorker(e.store.Campaigns(), e.svc, time.Hour, 0)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ran)
	assert.Equal(t, domain.CampaignDraft, e.status(t, "draft"))
	assert.Equal(t, domain.CampaignScheduled, e.status(t, "later"))
	assert.Equal(t, domain.CampaignCompleted, e.status(t, "due"))
}

func TestRunOnceClosesCampaignWhenNobodyQualifies(t *testing.T) {
	e := newEnv(t)
	e.store.PutCampaign(domain.Campaign{ID: "c", Channel: domain.ChannelEmail, SegmentID: "leads", Status: domain.CampaignSending},
		e.steps("c", []int{0, 0, 0}, domain.ConditionAlways, domain.ConditionIfOpened, domain.ConditionAlways)...)
	w := worker.NewStepWorker(e.store.Campaigns(), e.svc, time.Hour, 0)

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Zero(t, e.sendCount(t, "c", 2), "nobody opened step 1")
	assert.Zero(t, e.sendCount(t, "c", 3))
	assert.Equal(t, domain.CampaignCompleted, e.status(t, "c"))
}

func TestRunOnceFollowsEngagement(t *testing.T) {
	e := newEnv(t)
	e.store.PutCampaign(domain.Campaign{ID: "c", Channel: domain.ChannelEmail, SegmentID: "leads", Status: domain.CampaignSending},
		e.steps("c", []int{0, 0}, domain.ConditionAlways, domain.ConditionIfOpened)...)
	w := worker.NewStepWorker(e.store.Campaigns(), e.svc, time.Hour, 0)

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	rows, err := e.store.Sends().ListSends(context.Background(), "c", 1)
	require.NoError(t, err)
	for _, r := range rows {
		if r.ContactID == "b" {
			_, err := e.tracker.RecordEvent(context.Background(), domain.TrackingEvent{TrackingID: r.TrackingID, Type: domain.EventOpen})
			require.NoError(t, err)
		}
	}

	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)

	step2, err := e.store.Sends().ListSends(context.Background(), "c", 2)
	require.NoError(t, err)
	require.Len(t, step2, 1)
	assert.Equal(t, "b", step2[0].ContactID)
	assert.Equal(t, domain.CampaignCompleted, e.status(t, "c"))
}

type failingLister struct{}

func (failingLister) ListActive(context.Context, time.Time) ([]domain.Campaign, error) {
	return nil, errors.New("db down")
}

func TestRunOnceReportsListFailure(t *testing.T) {
	w := worker.NewStepWorker(failingLister{}, nil, time.Hour, 0)
	_, err := w.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

// countingLister counts polls so the test can wait for the loop.
type countingLister struct {
	mu    sync.Mutex
	calls int
}

func (l *countingLister) ListActive(context.Context, time.Time) ([]domain.Campaign, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return nil, nil
}

func (l *countingLister) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestStartStop(t *testing.T) {
	lister := &countingLister{}
	w := worker.NewStepWorker(lister, nil, 5*time.Millisecond, 0)

	require.NoError(t, w.Start())
	assert.Error(t, w.Start(), "double start")
	require.Eventually(t, func() bool { return lister.count() >= 3 }, time.Second, time.Millisecond)

	w.Stop()
	w.Stop()
	stepsRun, errs := w.Stats()
	assert.Zero(t, stepsRun)
	assert.Zero(t, errs)
}
