package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/campaign"
)

var campaignCols = []string{"id", "owner_id", "name", "channel", "segment_id", "status",
	"template_subject", "template_body", "scheduled_at", "started_at", "completed_at",
	"created_at", "updated_at"}

func TestCampaignRepoGet(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewCampaignRepo(db)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM campaigns WHERE id = \$1`).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows(campaignCols).
			AddRow("c-1", "u-1", "Spring launch", "email", "s-1", "draft",
				"Hi", "Hello {{first_name}}", nil, nil, nil, now, now))

	c, err := repo.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignDraft, c.Status)
	assert.Equal(t, domain.ChannelEmail, c.Channel)
	assert.Nil(t, c.ScheduledAt)
}

func TestCampaignRepoGetNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewCampaignRepo(db)

	mock.ExpectQuery(`SELECT .+ FROM campaigns WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(campaignCols))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCampaignRepoSteps(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewCampaignRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM campaign_steps")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "step_order", "channel",
			"subject", "body", "delay_hours", "condition", "created_at"}).
			AddRow("st-1", "c-1", 1, "email", "A", "a", 0, "always", now).
			AddRow("st-2", "c-1", 2, "sms", "", "b", 48, "if_not_opened", now))

	steps, err := repo.Steps(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, domain.ConditionIfNotOpened, steps[1].Condition)
	assert.Equal(t, 48*time.Hour, steps[1].Delay())
}

func TestCampaignRepoMarkSending(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewCampaignRepo(db)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'sending', started_at = COALESCE(started_at, $2)")).
		WithArgs("c-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSending(context.Background(), "c-1", at))
}

func TestCampaignRepoMarkSendingTerminal(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewCampaignRepo(db)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns")).
		WithArgs("c-1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM campaigns WHERE id = $1")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

	err := repo.MarkSending(context.Background(), "c-1", at)
	require.ErrorIs(t, err, campaign.ErrInvalidState)
	var stateErr *campaign.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, domain.CampaignCompleted, stateErr.Status)
}

func TestCampaignRepoFinishMissing(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewCampaignRepo(db)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE campaigns")).
		WithArgs("gone", "completed", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM campaigns")).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	err := repo.Finish(context.Background(), "gone", domain.CampaignCompleted, at)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCampaignRepoListActive(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewCampaignRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("scheduled_at <= $1")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(campaignCols).
			AddRow("c-2", "u-1", "Follow-up", "whatsapp", "s-1", "sending",
				"", "", nil, now, nil, now, now))

	out, err := repo.ListActive(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.CampaignSending, out[0].Status)
	require.NotNil(t, out[0].StartedAt)
}
