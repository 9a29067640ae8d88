package handlers

import (
	"net/http"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/session"
	"github.com/wonny/predico/pkg/logger"
)

// SessionHandler handles market session endpoints
// ⭐ SSOT: 세션 API 핸들러는 이 구조체에서만
type SessionHandler struct {
	registry *session.Registry
	logger   *logger.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(registry *session.Registry, log *logger.Logger) *SessionHandler {
	return &SessionHandler{registry: registry, logger: log}
}

type sessionQuery struct {
	Status     string `json:"status" validate:"omitempty,oneof=open closed running finished"`
	Session    string `json:"session" validate:"omitempty,number"`
	LatestOnly string `json:"latest_only" validate:"omitempty,boolean"`
}

// Create opens a new session
// POST /api/market/session
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	sess, err := h.registry.Create(r.Context(), caller)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

// List returns sessions matching the query
// GET /api/market/session?status=&session=&latest_only=
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := sessionQuery{
		Status:     q.Get("status"),
		Session:    q.Get("session"),
		LatestOnly: q.Get("latest_only"),
	}
	if err := validateStruct(query); err != nil {
		respondError(w, h.logger, err)
		return
	}

	id, err := optionalInt64("session", query.Session)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	filter := contracts.SessionFilter{
		ID:         id,
		LatestOnly: parseBool(query.LatestOnly),
	}
	if query.Status != "" {
		status := contracts.SessionStatus(query.Status)
		filter.Status = &status
	}

	sessions, err := h.registry.List(r.Context(), filter)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

// Get returns one session
// GET /api/market/session/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	sess, err := h.registry.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// Update patches status and timestamps of a session
// PATCH /api/market/session/{id}
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	var patch contracts.SessionPatch
	if err := decodeBody(w, r, &patch); err != nil {
		respondError(w, h.logger, err)
		return
	}

	sess, err := h.registry.Update(r.Context(), caller, id, patch)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}
