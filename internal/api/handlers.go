package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Santonastaso/crm-demo-sub000/internal/domain"
	"github.com/Santonastaso/crm-demo-sub000/internal/pkg/httputil"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/campaign"
	"github.com/Santonastaso/crm-demo-sub000/internal/service/segment"
)

// CampaignService is the part of campaign.Service the API drives.
type CampaignService interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	Steps(ctx context.Context, campaignID string) ([]domain.CampaignStep, error)
	RunStep(ctx context.Context, campaignID string, step int) (*campaign.StepResult, error)
	Sends(ctx context.Context, campaignID string, stepOrder int) ([]domain.CampaignSend, error)
}

// SegmentService is the part of segment.Service the API drives.
type SegmentService interface {
	Refresh(ctx context.Context, segmentID string) (*segment.RefreshResult, error)
}

// Handlers contains the HTTP handlers for the campaign engine.
type Handlers struct {
	campaigns CampaignService
	segments  SegmentService
	validator *validator.Validate
}

// NewHandlers creates the handler set.
func NewHandlers(campaigns CampaignService, segments SegmentService) *Handlers {
	return &Handlers{
		campaigns: campaigns,
		segments:  segments,
		validator: validator.New(),
	}
}

// RunStepRequest is the body of POST /api/campaigns/{id}/run. An omitted
// step, or no body at all, runs step 1.
type RunStepRequest struct {
	Step int `json:"step" validate:"omitempty,min=1,max=5"`
}

// CampaignResponse pairs a campaign with its effective steps.
type CampaignResponse struct {
	Campaign *domain.Campaign      `json:"campaign"`
	Steps    []domain.CampaignStep `json:"steps"`
}

// SendsResponse lists a campaign's send rows.
type SendsResponse struct {
	CampaignID string                `json:"campaign_id"`
	Step       int                   `json:"step,omitempty"`
	Count      int                   `json:"count"`
	Sends      []domain.CampaignSend `json:"sends"`
}

// GetCampaign handles GET /api/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	steps, err := h.campaigns.Steps(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, CampaignResponse{Campaign: c, Steps: steps})
}

// RunStep handles POST /api/campaigns/{id}/run
func (h *Handlers) RunStep(w http.ResponseWriter, r *http.Request) {
	var req RunStepRequest
	if !httputil.DecodeOptional(w, r, &req) {
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_error", "step must be between 1 and 5", nil)
		return
	}

	res, err := h.campaigns.RunStep(r.Context(), chi.URLParam(r, "id"), req.Step)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ListSends handles GET /api/campaigns/{id}/sends?step=n
func (h *Handlers) ListSends(w http.ResponseWriter, r *http.Request) {
	step, ok := stepParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	rows, err := h.campaigns.Sends(r.Context(), id, step)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.CampaignSend{}
	}
	httputil.OK(w, SendsResponse{CampaignID: id, Step: step, Count: len(rows), Sends: rows})
}

// RefreshSegment handles POST /api/segments/{id}/refresh
func (h *Handlers) RefreshSegment(w http.ResponseWriter, r *http.Request) {
	res, err := h.segments.Refresh(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

// stepParam reads the optional ?step= filter. Zero means every step.
func stepParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("step")
	if raw == "" {
		return 0, true
	}
	step, err := strconv.Atoi(raw)
	if err != nil || step < 1 || step > domain.MaxCampaignSteps {
		httputil.ErrorCode(w, http.StatusBadRequest, "validation_error", "step must be between 1 and 5", nil)
		return 0, false
	}
	return step, true
}
