// internal/handler/campaign_state_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/outreach-backend/internal/engine"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// Runner is the slice of the engine the handlers drive.
type Runner interface {
	Start(ctx context.Context, t model.CampaignType, detail *model.CampaignDetail) error
	Stop(ctx context.Context, campaignID string, t model.CampaignType) (bool, error)
	Phase(campaignID string) engine.Phase
}

type DetailLoader interface {
	LoadDetail(ctx context.Context, campaignID string) (*model.CampaignDetail, error)
}

type StateFinder interface {
	Find(ctx context.Context, campaignID string) (*model.CampaignState, error)
}

// CampaignStateHandler exposes start/stop and progress of campaign run loops.
type CampaignStateHandler struct {
	Engine    Runner
	Campaigns DetailLoader
	States    StateFinder
	Log       logger.Logger
}

func NewCampaignStateHandler(e Runner, campaigns DetailLoader, states StateFinder, log logger.Logger) *CampaignStateHandler {
	return &CampaignStateHandler{Engine: e, Campaigns: campaigns, States: states, Log: log}
}

func (h *CampaignStateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/start", h.StartCampaignHandler)
	r.Post("/stop", h.StopCampaignHandler)
	r.Get("/{id}", h.GetCampaignStateHandler)
	return r
}

type startRequest struct {
	CampaignID string             `json:"campaign_id"`
	AccountID  string             `json:"account_id"`
	Type       model.CampaignType `json:"type"`
}

// StartCampaignHandler loads the stored campaign and hands it to the engine.
// Starting a running campaign resumes it from its persisted progress.
func (h *CampaignStateHandler) StartCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var payload startRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if payload.CampaignID == "" || payload.AccountID == "" {
		http.Error(w, "campaign_id and account_id are required", http.StatusBadRequest)
		return
	}

	detail, err := h.Campaigns.LoadDetail(r.Context(), payload.CampaignID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if payload.Type != "" && payload.Type != detail.Type {
		http.Error(w, "type does not match the stored campaign", http.StatusBadRequest)
		return
	}
	detail.AccountID = payload.AccountID

	if err := h.Engine.Start(r.Context(), detail.Type, detail); err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "campaign started",
		"campaign_id": detail.CampaignID,
		"phase":       h.Engine.Phase(detail.CampaignID),
	})
}

// StopCampaignHandler stops a campaign. The type is looked up from the stored
// campaign when the request omits it.
func (h *CampaignStateHandler) StopCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var payload startRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if payload.Type == "" && payload.CampaignID != "" {
		detail, err := h.Campaigns.LoadDetail(r.Context(), payload.CampaignID)
		if err != nil {
			h.fail(w, err)
			return
		}
		payload.Type = detail.Type
	}

	wasRunning, err := h.Engine.Stop(r.Context(), payload.CampaignID, payload.Type)
	if err != nil {
		h.fail(w, err)
		return
	}

	msg := "campaign stopped"
	if !wasRunning {
		msg = "campaign is not running"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": msg,
		"stopped": wasRunning,
	})
}

// GetCampaignStateHandler returns the persisted progress record plus the
// phase of the local run loop.
func (h *CampaignStateHandler) GetCampaignStateHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, err := h.States.Find(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state": state,
		"phase": h.Engine.Phase(id),
	})
}

func (h *CampaignStateHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("campaign state request failed", logger.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrInvalidRequest):
		return http.StatusBadRequest
	case appErrors.IsCampaignNotFound(err), errors.Is(err, appErrors.ErrStateNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrCampaignBusy):
		return http.StatusConflict
	case errors.Is(err, appErrors.ErrEngineClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
