// Package api exposes the HTTP trigger and read surface for challenge
// progress.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/auth"
	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/domain"
	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/event"
)

// Handler coordinates HTTP requests with the transition engine.
type Handler struct {
	service *domain.Service
	logger  *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/events/workout-completed", h.workoutCompleted)
	mux.HandleFunc("/v1/challenges", h.listChallenges)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// workoutCompleted ingests one workout envelope and applies it to the user's
// active challenges. The response contract mirrors the event-runtime one:
// every failure maps to a single generic 500 body.
func (h *Handler) workoutCompleted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeChallengesWrite) {
		writeError(w, http.StatusForbidden, "scope challenges:write required")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		status, payload := BuildResponse(h.service.TrackedActivity(), domain.Outcome{}, err)
		writeJSON(w, status, payload)
		return
	}

	details, err := event.Normalize(body)
	if err != nil {
		h.logger.Warn("malformed workout event", zap.Error(err))
		status, payload := BuildResponse(h.service.TrackedActivity(), domain.Outcome{}, err)
		writeJSON(w, status, payload)
		return
	}

	// Callers may carry the idempotency key on the standard header instead of
	// in the envelope.
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		details.EventID = key
	}

	outcome, err := h.service.ApplyWorkout(r.Context(), details)
	if err != nil {
		h.logger.Error("workout event processing failed",
			zap.String("user_id", details.UserID),
			zap.Error(err))
	}
	status, payload := BuildResponse(h.service.TrackedActivity(), outcome, err)
	writeJSON(w, status, payload)
}

func (h *Handler) listChallenges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeChallengesRead) && !claims.HasScope(auth.ScopeChallengesWrite) {
		writeError(w, http.StatusForbidden, "scope challenges:read required")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "missing user_id parameter")
		return
	}

	challenges, err := h.service.ListActiveChallenges(r.Context(), userID)
	if err != nil {
		h.logger.Error("challenge listing failed",
			zap.String("user_id", userID),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: internalErrorMessage})
		return
	}

	items := make([]ChallengeView, 0, len(challenges))
	for _, ch := range challenges {
		items = append(items, toChallengeView(ch))
	}
	writeJSON(w, http.StatusOK, ListChallengesResponse{Items: items})
}

// ChallengeView exposes a challenge's progress to API callers.
type ChallengeView struct {
	ChallengeID     string    `json:"challenge_id"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	Status          string    `json:"status"`
	CompletedMeters float64   `json:"completed_meters"`
	TargetMeters    float64   `json:"target_meters"`
	Points          int       `json:"points"`
}

// ListChallengesResponse packages list results.
type ListChallengesResponse struct {
	Items []ChallengeView `json:"items"`
}

func toChallengeView(ch domain.Challenge) ChallengeView {
	return ChallengeView{
		ChallengeID:     ch.ChallengeID,
		StartDate:       ch.StartDate,
		EndDate:         ch.EndDate,
		Status:          string(ch.Status),
		CompletedMeters: ch.CompletedMeters,
		TargetMeters:    ch.TargetMeters,
		Points:          ch.Points,
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"error": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
