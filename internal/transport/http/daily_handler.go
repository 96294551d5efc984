package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"vocab-battle/internal/domain"
)

// DailyService is the daily challenge use case served over HTTP.
type DailyService interface {
	Start(ctx context.Context, userID string) (domain.DailyChallenge, error)
	Complete(ctx context.Context, userID string, answers []string) (domain.DailyResult, error)
}

type DailyHandler struct {
	service DailyService
}

func NewDailyHandler(service DailyService) *DailyHandler {
	return &DailyHandler{service: service}
}

type completeRequest struct {
	UserID  string   `json:"userId"`
	Answers []string `json:"answers"`
}

// ServeHTTP handles GET /daily?userId= (open today's challenge) and POST /daily (submit answers).
func (h *DailyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			http.Error(w, "missing userId", http.StatusBadRequest)
			return
		}
		challenge, err := h.service.Start(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, challenge)
	case http.MethodPost:
		var req completeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		result, err := h.service.Complete(r.Context(), req.UserID, req.Answers)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrDailyCompleted):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrDailyNotStarted):
		status = http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrEmptyVocabulary):
		status = http.StatusServiceUnavailable
	default:
		log.Error().Err(err).Msg("daily challenge request failed")
	}
	writeJSON(w, status, errorPayload{Code: domain.ErrorCode(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}
