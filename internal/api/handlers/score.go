package handlers

import (
	"net/http"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/scoring"
	"github.com/wonny/predico/pkg/logger"
)

// ScoreHandler handles score endpoints
type ScoreHandler struct {
	engine *scoring.Engine
	logger *logger.Logger
}

// NewScoreHandler creates a new score handler
func NewScoreHandler(engine *scoring.Engine, log *logger.Logger) *ScoreHandler {
	return &ScoreHandler{engine: engine, logger: log}
}

// publishRequest is the body of the score publication hook
type publishRequest struct {
	Scores []contracts.SubmissionScore `json:"scores" validate:"required,min=1"`
}

// Get returns the caller's ranked scores and the challenge aggregates
// GET /api/market/challenges/{id}/scores
func (h *ScoreHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	scores, err := h.engine.GetScores(r.Context(), caller, challengeID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, scores)
}

// Publish stores scores computed by the external scoring batch
// POST /api/market/challenges/{id}/scores
func (h *ScoreHandler) Publish(w http.ResponseWriter, r *http.Request) {
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

	var req publishRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := h.engine.Publish(r.Context(), caller, challengeID, req.Scores); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"published": len(req.Scores)})
}
