// Package condition decides which recipients continue to the next step of a
// campaign based on how they engaged with the previous one.
package condition

import "github.com/Santonastaso/crm-demo-sub000/internal/domain"

// Filter returns the recipients allowed into a step guarded by cond.
//
// previous holds the sends of the immediately preceding step. A recipient
// without a row there was never reached and is excluded under every
// condition, always included. Unknown conditions admit nobody. Input order
// is preserved and neither slice is modified.
func Filter(recipients []domain.Contact, previous []domain.CampaignSend, cond domain.StepCondition) []domain.Contact {
	byContact := make(map[string]*domain.CampaignSend, len(previous))
	for i := range previous {
		byContact[previous[i].ContactID] = &previous[i]
	}

	eligible := make([]domain.Contact, 0, len(recipients))
	for _, r := range recipients {
		s, ok := byContact[r.ID]
		if !ok {
			continue
		}
		if Satisfied(s, cond) {
			eligible = append(eligible, r)
		}
	}
	return eligible
}

// Satisfied evaluates cond against a single previous-step send.
func Satisfied(s *domain.CampaignSend, cond domain.StepCondition) bool {
	switch cond {
	case domain.ConditionAlways:
		return true
	case domain.ConditionIfOpened:
		return s.OpenedAt != nil
	case domain.ConditionIfNotOpened:
		return s.OpenedAt == nil
	case domain.ConditionIfClicked:
		return s.ClickedAt != nil
	case domain.ConditionIfNotClicked:
		return s.ClickedAt == nil
	}
	return false
}

// Known reports whether cond is a recognized branching rule.
func Known(cond domain.StepCondition) bool {
	switch cond {
	case domain.ConditionAlways, domain.ConditionIfOpened, domain.ConditionIfNotOpened,
		domain.ConditionIfClicked, domain.ConditionIfNotClicked:
		return true
	}
	return false
}
