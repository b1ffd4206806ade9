package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"submirror/internal/config"
	"submirror/internal/engine"
)

// Handlers bundles the ops endpoints.
type Handlers struct {
	engine *engine.Engine
}

// NewRouter wires the webhook and ops endpoints onto a fresh mux.
func NewRouter(eng *engine.Engine) *http.ServeMux {
	h := &Handlers{engine: eng}
	mux := http.NewServeMux()
	mux.Handle("/api/stripe/webhook", NewWebhookHandler(eng))
	mux.HandleFunc("/api/subscriptions/change-plan", h.HandleChangePlan)
	mux.HandleFunc("/api/subscriptions/sync", h.HandleSync)
	mux.HandleFunc("/api/subscriptions/cancel", h.HandleCancel)
	mux.HandleFunc("/healthz", handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

type changePlanRequest struct {
	Email             string `json:"email"`
	PlanID            string `json:"planId"`
	ProrationBehavior string `json:"prorationBehavior,omitempty"`
}

// HandleChangePlan moves a subscription to a new price tier.
func (h *Handlers) HandleChangePlan(w http.ResponseWriter, r *http.Request) {
	var req changePlanRequest
	if !decodePost(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.PlanID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email and planId are required"})
		return
	}

	opts := engine.PlanChangeOptions{
		ProrationBehavior: config.ProrationBehavior(strings.TrimSpace(req.ProrationBehavior)),
	}
	result, err := h.engine.ChangePlan(r.Context(), req.Email, req.PlanID, opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type syncRequest struct {
	Email string `json:"email"`
}

// HandleSync runs on-demand reconciliation for one identity.
func (h *Handlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !decodePost(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email is required"})
		return
	}

	result, err := h.engine.Sync(r.Context(), req.Email)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type cancelRequest struct {
	Email       string `json:"email"`
	AtPeriodEnd bool   `json:"atPeriodEnd,omitempty"`
	Prorate     bool   `json:"prorate,omitempty"`
}

// HandleCancel cancels the identity's active subscription.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decodePost(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email is required"})
		return
	}

	result, err := h.engine.Cancel(r.Context(), req.Email, engine.CancelOptions{
		AtPeriodEnd: req.AtPeriodEnd,
		Prorate:     req.Prorate,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodePost(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

// writeEngineError maps the engine's failure taxonomy to HTTP statuses.
// Adapter failures keep their message so operators can see which downstream
// system failed.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUserNotFound),
		errors.Is(err, engine.ErrCustomerNotFound),
		errors.Is(err, engine.ErrSubscriptionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("subscription operation failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
}
