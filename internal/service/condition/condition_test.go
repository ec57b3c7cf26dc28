package condition

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
)

func ids(cs []domain.Contact) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	recipients := []domain.Contact{{ID: "opened"}, {ID: "clicked"}, {ID: "ignored"}, {ID: "failed"}, {ID: "never-sent"}}
	previous := []domain.CampaignSend{
		{ContactID: "opened", Status: domain.SendOpened, OpenedAt: &at},
		{ContactID: "clicked", Status: domain.SendClicked, OpenedAt: &at, ClickedAt: &at},
		{ContactID: "ignored", Status: domain.SendSent},
		{ContactID: "failed", Status: domain.SendFailed},
	}

	tests := []struct {
		cond domain.StepCondition
		want []string
	}{
		{domain.ConditionAlways, []string{"opened", "clicked", "ignored", "failed"}},
		{domain.ConditionIfOpened, []string{"opened", "clicked"}},
		{domain.ConditionIfNotOpened, []string{"ignored", "failed"}},
		{domain.ConditionIfClicked, []string{"clicked"}},
		{domain.ConditionIfNotClicked, []string{"opened", "ignored", "failed"}},
		{"if_replied", []string{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.cond), func(t *testing.T) {
			got := ids(Filter(recipients, previous, tt.cond))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Filter(%s) mismatch (-want +got):\n%s", tt.cond, diff)
			}
		})
	}
}

func TestFilterNoPreviousRowExcludedEverywhere(t *testing.T) {
	recipients := []domain.Contact{{ID: "newcomer"}}
	for _, cond := range []domain.StepCondition{
		domain.ConditionAlways, domain.ConditionIfOpened, domain.ConditionIfNotOpened,
		domain.ConditionIfClicked, domain.ConditionIfNotClicked,
	} {
		assert.Empty(t, Filter(recipients, nil, cond), cond)
	}
}

func TestFilterDoesNotMutateInputs(t *testing.T) {
	recipients := []domain.Contact{{ID: "a"}, {ID: "b"}}
	previous := []domain.CampaignSend{{ContactID: "b"}}
	_ = Filter(recipients, previous, domain.ConditionAlways)
	assert.Equal(t, []domain.Contact{{ID: "a"}, {ID: "b"}}, recipients)
	assert.Equal(t, []domain.CampaignSend{{ContactID: "b"}}, previous)
}

func TestKnown(t *testing.T) {
	assert.True(t, Known(domain.ConditionIfClicked))
	assert.False(t, Known("sometimes"))
}
