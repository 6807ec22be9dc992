package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lei/screwpipe/internal/lifecycle"
	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/internal/webhook"
)

// Handlers contains HTTP handler functions
type Handlers struct {
	lifecycle *lifecycle.Manager
	webhooks  *webhook.Router
}

// NewHandlers creates a new handlers instance
func NewHandlers(lm *lifecycle.Manager, wr *webhook.Router) *Handlers {
	return &Handlers{lifecycle: lm, webhooks: wr}
}

// Health handles health check requests
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// updateBuildRequest is the body of PUT /v1/builds/{id}. StatusMessage
// distinguishes absent from explicitly empty.
type updateBuildRequest struct {
	Status        string                 `json:"status"`
	StatusMessage *string                `json:"statusMessage"`
	Meta          map[string]interface{} `json:"meta"`
	Stats         map[string]interface{} `json:"stats"`
}

// UpdateBuild handles PUT /v1/builds/{id}
func (h *Handlers) UpdateBuild(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())

	buildID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid build id")
		return
	}

	requester, ok := GetRequester(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, "missing requester identity")
		return
	}

	var req updateBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.Warn("invalid request body", "error", err)
		}
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	status := models.BuildStatus(req.Status)
	if req.Status != "" && !status.Valid() {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown build status %q", req.Status))
		return
	}

	if logger != nil {
		logger.Debug("updating build",
			"build_id", buildID,
			"status", req.Status,
			"requester", requester.Display())
	}

	build, err := h.lifecycle.UpdateBuild(r.Context(), lifecycle.UpdateRequest{
		BuildID:       buildID,
		Requester:     requester,
		Status:        status,
		StatusMessage: req.StatusMessage,
		Meta:          req.Meta,
		Stats:         req.Stats,
	})
	if err != nil {
		respondStatusError(w, r, err)
		return
	}

	if logger != nil {
		logger.Info("build updated",
			"build_id", build.ID,
			"status", build.Status)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"build": build,
	})
}

// HandleWebhook handles POST /v1/webhooks
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := GetLogger(r.Context())

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "read payload")
		return
	}

	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[http.CanonicalHeaderKey(name)] = r.Header.Get(name)
	}

	outcome, err := h.webhooks.Handle(r.Context(), headers, payload)
	if err != nil {
		respondStatusError(w, r, err)
		return
	}

	if logger != nil {
		logger.Info("webhook handled",
			"status", outcome.Status,
			"event_count", len(outcome.Events))
	}

	if outcome.Status == http.StatusCreated {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"events": outcome.Events,
		})
		return
	}
	w.WriteHeader(outcome.Status)
}

// respondStatusError maps orchestration errors to HTTP responses
func respondStatusError(w http.ResponseWriter, r *http.Request, err error) {
	logger := GetLogger(r.Context())
	if logger != nil {
		logger.Error("request failed", "error", err.Error())
	}

	var se *models.StatusError
	if errors.As(err, &se) {
		message := se.Message
		if se.Code >= 500 {
			message = "internal server error"
		}
		respondError(w, r, se.Code, message)
		return
	}
	respondError(w, r, http.StatusInternalServerError, "internal server error")
}

// respondError writes a JSON error response with logging
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logger := GetLogger(r.Context())
	requestID := GetRequestID(r.Context())

	if logger != nil {
		logger.Error("returning error response",
			"status", status,
			"message", message,
			"request_id", requestID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message":    message,
			"code":       status,
			"request_id": requestID,
		},
	})
}
