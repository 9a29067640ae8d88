package handlers

import (
	"net/http"

	"github.com/wonny/predico/internal/challenge"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/pkg/logger"
)

// ChallengeHandler handles challenge endpoints
type ChallengeHandler struct {
	manager *challenge.Manager
	logger  *logger.Logger
}

// NewChallengeHandler creates a new challenge handler
func NewChallengeHandler(manager *challenge.Manager, log *logger.Logger) *ChallengeHandler {
	return &ChallengeHandler{manager: manager, logger: log}
}

type challengeQuery struct {
	Session   string `json:"session" validate:"omitempty,number"`
	Resource  string `json:"resource" validate:"omitempty,uuid"`
	Challenge string `json:"challenge" validate:"omitempty,uuid"`
	UseCase   string `json:"use_case" validate:"omitempty,oneof=wind_power wind_power_ramp"`
	OpenOnly  string `json:"open_only" validate:"omitempty,boolean"`
}

// Create registers a challenge for one of the caller's resources
// POST /api/market/challenges
func (h *ChallengeHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	var in challenge.CreateInput
	if err := decodeBody(w, r, &in); err != nil {
		respondError(w, h.logger, err)
		return
	}

	c, err := h.manager.Create(r.Context(), caller, in)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// List returns challenges matching the query
// GET /api/market/challenges?session=&resource=&challenge=&use_case=&open_only=
func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := challengeQuery{
		Session:   q.Get("session"),
		Resource:  q.Get("resource"),
		Challenge: q.Get("challenge"),
		UseCase:   q.Get("use_case"),
		OpenOnly:  q.Get("open_only"),
	}
	if err := validateStruct(query); err != nil {
		respondError(w, h.logger, err)
		return
	}

	sessionID, err := optionalInt64("session", query.Session)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	filter := contracts.ChallengeFilter{
		SessionID:   sessionID,
		ResourceID:  optionalUUID(query.Resource),
		ChallengeID: optionalUUID(query.Challenge),
		OpenOnly:    parseBool(query.OpenOnly),
	}
	if query.UseCase != "" {
		useCase := contracts.UseCase(query.UseCase)
		filter.UseCase = &useCase
	}

	challenges, err := h.manager.List(r.Context(), filter)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, challenges)
}

// Update patches a challenge owned by the caller
// PATCH /api/market/challenges/{id}
func (h *ChallengeHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	var patch contracts.ChallengePatch
	if err := decodeBody(w, r, &patch); err != nil {
		respondError(w, h.logger, err)
		return
	}

	c, err := h.manager.Update(r.Context(), caller, id, patch)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// Solution returns the measured data over a challenge's horizon
// GET /api/market/challenges/{id}/solution
func (h *ChallengeHandler) Solution(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	solution, err := h.manager.GetSolution(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, solution)
}
