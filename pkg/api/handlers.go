package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"page-replica/pkg/models"
	"page-replica/pkg/parse"
	"page-replica/pkg/replicate"
	"page-replica/pkg/utils"
)

// Handler holds the dependencies of the HTTP endpoints
type Handler struct {
	svc *replicate.Service
	log *logrus.Logger
}

type replicateRequest struct {
	URL string `json:"url"`
}

type replicateResponse struct {
	Success bool                     `json:"success"`
	HTML    string                   `json:"html,omitempty"`
	Stats   *models.ReplicationStats `json:"stats,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Replicate runs one replication job for the URL in the request body.
// Client errors (missing or malformed URL) are rejected before any network
// activity happens.
func (h *Handler) Replicate(w http.ResponseWriter, r *http.Request) {
	var req replicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, replicateResponse{Success: false, Error: "Invalid request body"})
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, replicateResponse{Success: false, Error: "URL is required"})
		return
	}
	if _, err := parse.ValidatePageURL(req.URL); err != nil {
		writeJSON(w, http.StatusBadRequest, replicateResponse{Success: false, Error: utils.UserFacingMessage(utils.ErrInvalidURL)})
		return
	}

	result, err := h.svc.Replicate(r.Context(), req.URL)
	if err != nil {
		writeJSON(w, statusForError(err), replicateResponse{Success: false, Error: utils.UserFacingMessage(err)})
		return
	}

	writeJSON(w, http.StatusOK, replicateResponse{
		Success: true,
		HTML:    result.HTML,
		Stats:   &result.Stats,
	})
}

// statusForError maps the fatal error taxonomy onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, utils.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrRobotsBlocked):
		return http.StatusForbidden
	case errors.Is(err, utils.ErrPageNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrPageForbidden):
		return http.StatusForbidden
	case errors.Is(err, utils.ErrFetchTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
