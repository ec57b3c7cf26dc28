package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSendStatusAdvancesTo(t *testing.T) {
	tests := []struct {
		from, to SendStatus
		want     bool
	}{
		{SendSent, SendOpened, true},
		{SendOpened, SendClicked, true},
		{SendClicked, SendOpened, false},
		{SendReplied, SendClicked, false},
		{SendPending, SendOpened, false},
		{SendFailed, SendClicked, false},
		{SendOpened, SendOpened, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.AdvancesTo(tt.to))
		})
	}
}

func TestContactField(t *testing.T) {
	budget := 250000.0
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	c := Contact{LeadScore: 42, Budget: &budget, Tags: []string{"vip"}, CreatedAt: created, City: "Milano"}

	v, ok := c.Field("lead_score")
	assert.True(t, ok)
	assert.Equal(t, 42.0, v)

	v, ok = c.Field("budget")
	assert.True(t, ok)
	assert.Equal(t, budget, v)

	_, ok = Contact{}.Field("budget")
	assert.False(t, ok, "null budget")

	_, ok = c.Field("favourite_color")
	assert.False(t, ok)

	for name := range ContactFields {
		_, ok := c.Field(name)
		assert.True(t, ok, name)
	}
}

func TestContactAttributesBuiltinsWin(t *testing.T) {
	c := Contact{FirstName: "Anna", LastName: "Rossi", Custom: map[string]any{"first_name": "X", "agent": "Luca"}}
	attrs := c.Attributes()
	assert.Equal(t, "Anna", attrs["first_name"])
	assert.Equal(t, "Anna Rossi", attrs["full_name"])
	assert.Equal(t, "Luca", attrs["agent"])
	_, hasBudget := attrs["budget"]
	assert.False(t, hasBudget)
}

func TestCampaignStatusRunnable(t *testing.T) {
	assert.True(t, CampaignDraft.Runnable())
	assert.True(t, CampaignScheduled.Runnable())
	assert.True(t, CampaignSending.Runnable())
	assert.False(t, CampaignCompleted.Runnable())
	assert.False(t, CampaignFailed.Runnable())
}
