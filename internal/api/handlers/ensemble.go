package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/wonny/predico/internal/ensemble"
	"github.com/wonny/predico/pkg/logger"
)

// EnsembleHandler handles ensemble and contribution endpoints
type EnsembleHandler struct {
	registry *ensemble.Registry
	logger   *logger.Logger
}

// NewEnsembleHandler creates a new ensemble handler
func NewEnsembleHandler(registry *ensemble.Registry, log *logger.Logger) *EnsembleHandler {
	return &EnsembleHandler{registry: registry, logger: log}
}

// Create registers an ensemble forecast
// POST /api/market/challenges/{id}/ensembles
func (h *EnsembleHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	challengeID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	var in ensemble.CreateInput
	if err := decodeBody(w, r, &in); err != nil {
		respondError(w, h.logger, err)
		return
	}

	e, err := h.registry.Create(r.Context(), caller, challengeID, in)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, e)
}

// List returns the ensembles of a challenge with their points
// GET /api/market/challenges/{id}/ensembles
func (h *EnsembleHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	challengeID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	ensembles, err := h.registry.List(r.Context(), caller, challengeID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ensembles)
}

// SetWeights stores the write-once weights payload
// PUT /api/market/ensembles/{id}/weights
func (h *EnsembleHandler) SetWeights(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	ensembleID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	var weights json.RawMessage
	if err := decodeBody(w, r, &weights); err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := h.registry.SetWeights(r.Context(), caller, ensembleID, weights); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ensemble": ensembleID})
}

// CreateContribution upserts one forecaster's contribution weight
// POST /api/market/ensembles/{id}/contributions
func (h *EnsembleHandler) CreateContribution(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	ensembleID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	var in ensemble.ContributionInput
	if err := decodeBody(w, r, &in); err != nil {
		respondError(w, h.logger, err)
		return
	}

	weight, err := h.registry.CreateWeightContribution(r.Context(), caller, ensembleID, in)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, weight)
}

// ListContributions returns ranked contributions scoped to the caller
// GET /api/market/challenges/{id}/contributions
func (h *EnsembleHandler) ListContributions(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	challengeID, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	views, err := h.registry.ListWeightContributions(r.Context(), caller, challengeID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, views)
}
