package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/httputil"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/campaign"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/segment"
)

// respondServiceError maps service sentinel errors onto HTTP statuses.
// Anything unrecognized is logged and answered with a generic 500 so storage
// details never reach the client.
func respondServiceError(w http.ResponseWriter, err error) {
	var (
		stateErr *campaign.InvalidStateError
		delayErr *campaign.DelayNotElapsedError
	)
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.ErrorCode(w, http.StatusNotFound, "campaign_not_found", "campaign not found", nil)
	case errors.Is(err, segment.ErrNotFound):
		httputil.ErrorCode(w, http.StatusNotFound, "segment_not_found", "segment not found", nil)
	case errors.As(err, &stateErr):
		httputil.ErrorCode(w, http.StatusConflict, "invalid_state", stateErr.Error(),
			map[string]string{"status": string(stateErr.Status)})
	case errors.Is(err, campaign.ErrInvalidState):
		httputil.ErrorCode(w, http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.Is(err, campaign.ErrStepInProgress):
		httputil.ErrorCode(w, http.StatusConflict, "step_in_progress", "step is already running", nil)
	case errors.As(err, &delayErr):
		httputil.ErrorCode(w, http.StatusTooEarly, "delay_not_elapsed", delayErr.Error(),
			map[string]string{"ready_at": delayErr.ReadyAt.UTC().Format(time.RFC3339)})
	case errors.Is(err, campaign.ErrStepOutOfRange):
		httputil.ErrorCode(w, http.StatusBadRequest, "step_out_of_range", err.Error(), nil)
	case errors.Is(err, campaign.ErrInvalidSteps):
		httputil.ErrorCode(w, http.StatusBadRequest, "invalid_steps", err.Error(), nil)
	default:
		httputil.InternalError(w, err)
	}
}
