package campaign

import (
	"errors"
	"fmt"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
)

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound        = errors.New("campaign not found")
	ErrInvalidState    = errors.New("campaign is not in a runnable status")
	ErrStepOutOfRange  = errors.New("step number exceeds the campaign's steps")
	ErrDelayNotElapsed = errors.New("step delay has not elapsed")
	ErrStepInProgress  = errors.New("step is already running")
	ErrInvalidSteps    = errors.New("invalid step definitions")
)

// InvalidStateError names the status that blocked a run.
type InvalidStateError struct {
	Status domain.CampaignStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("campaign is %s, expected draft, scheduled or sending", e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// DelayNotElapsedError reports when a step becomes runnable.
type DelayNotElapsedError struct {
	Step    int
	ReadyAt time.Time
}

func (e *DelayNotElapsedError) Error() string {
	return fmt.Sprintf("step %d is not due until %s", e.Step, e.ReadyAt.UTC().Format(time.RFC3339))
}

func (e *DelayNotElapsedError) Unwrap() error { return ErrDelayNotElapsed }
