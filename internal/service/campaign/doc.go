// Package campaign executes multi-step outreach campaigns.
//
// Service.RunStep is the single entry point: given a campaign and an explicit
// step number it refreshes the target segment, narrows the audience by the
// step's branching condition, renders the step per recipient, dispatches it
// and moves the campaign status forward. The service holds no state between
// calls; callers (an operator or the step worker) decide which step runs
// next, and NextDueStep helps them do so.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
