package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"focusflow-backend/internal/middleware"
	"focusflow-backend/internal/services"
)

// VisionHandler accepts camera frames for attention analysis.
type VisionHandler struct {
	sessions *services.SessionService
}

func NewVisionHandler(sessions *services.SessionService) *VisionHandler {
	return &VisionHandler{sessions: sessions}
}

// Analyze runs one frame through the classifier and attention processor. The
// response carries the session status so the client sees an auto-pause that
// this frame triggered without a second round trip.
func (h *VisionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID uuid.UUID `json:"session_id"`
		Image     string    `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.SessionID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "session_id is required", r))
		return
	}

	result, err := h.sessions.SubmitFrame(r.Context(), middleware.GetUserID(r.Context()), req.SessionID, req.Image)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
