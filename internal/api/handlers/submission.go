package handlers

import (
	"net/http"

	"github.com/wonny/predico/internal/submission"
	"github.com/wonny/predico/pkg/logger"
)

// SubmissionHandler handles forecast submission endpoints
type SubmissionHandler struct {
	ledger *submission.Ledger
	logger *logger.Logger
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(ledger *submission.Ledger, log *logger.Logger) *SubmissionHandler {
	return &SubmissionHandler{ledger: ledger, logger: log}
}

type submissionQuery struct {
	Challenge string `json:"challenge" validate:"omitempty,uuid"`
	User      string `json:"user" validate:"omitempty,uuid"`
}

// CreateOrUpdate stores or replaces the caller's forecast for one variable
// POST /api/market/challenges/{id}/submissions
func (h *SubmissionHandler) CreateOrUpdate(w http.ResponseWriter, r *http.Request) {
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

	var in submission.Input
	if err := decodeBody(w, r, &in); err != nil {
		respondError(w, h.logger, err)
		return
	}

	receipt, err := h.ledger.CreateOrUpdate(r.Context(), caller, challengeID, in)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	if receipt.Updated {
		status = http.StatusOK
	}
	respondJSON(w, status, receipt)
}

// List returns submissions visible to the caller
// GET /api/market/submissions?challenge=&user=
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	q := r.URL.Query()
	query := submissionQuery{Challenge: q.Get("challenge"), User: q.Get("user")}
	if err := validateStruct(query); err != nil {
		respondError(w, h.logger, err)
		return
	}

	subs, err := h.ledger.List(r.Context(), caller, submission.ListFilter{
		ChallengeID: optionalUUID(query.Challenge),
		UserID:      optionalUUID(query.User),
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, subs)
}
