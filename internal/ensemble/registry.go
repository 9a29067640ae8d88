package ensemble

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/challenge"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/horizon"
	"github.com/wonny/predico/internal/metrics"
	"github.com/wonny/predico/internal/ranking"
	"github.com/wonny/predico/pkg/logger"
)

// CreateInput is the body of create_ensemble
type CreateInput struct {
	Model     string                    `json:"ensemble_model" validate:"required,max=64"`
	Variable  contracts.Variable        `json:"variable" validate:"required"`
	Forecasts []contracts.ForecastPoint `json:"forecasts" validate:"required,min=1"`
}

// ContributionInput is the body of create_weight_contribution
type ContributionInput struct {
	UserID uuid.UUID `json:"user" validate:"required"`
	Value  float64   `json:"value"`
}

// Registry accepts ensembles and contribution weights for running challenges
type Registry struct {
	repo       contracts.EnsembleRepository
	challenges *challenge.Manager
	metrics    *metrics.Collector
	log        *logger.Logger
	now        func() time.Time
}

// NewRegistry creates an ensemble registry. m may be nil.
func NewRegistry(repo contracts.EnsembleRepository, challenges *challenge.Manager, m *metrics.Collector, log *logger.Logger) *Registry {
	return &Registry{
		repo:       repo,
		challenges: challenges,
		metrics:    m,
		log:        log.Component("ensemble"),
		now:        time.Now,
	}
}

// Create stores an ensemble forecast with its points
func (r *Registry) Create(ctx context.Context, caller contracts.Caller, challengeID uuid.UUID, in CreateInput) (*contracts.Ensemble, error) {
	if !caller.IsSessionManager() {
		return nil, apperr.PermissionDenied("only session managers may register ensembles")
	}
	in.Model = strings.TrimSpace(in.Model)
	if in.Model == "" {
		return nil, apperr.InvalidParameter("ensemble_model", "ensemble model is required")
	}
	if !in.Variable.Valid() {
		return nil, apperr.InvalidParameter("variable", fmt.Sprintf("unknown variable %q", in.Variable))
	}

	c, err := r.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	sess, err := r.challenges.Session(ctx, c)
	if err != nil {
		return nil, err
	}
	if sess.Status != contracts.SessionRunning {
		return nil, apperr.Conflict(apperr.CodeChallengeNotRunning,
			fmt.Sprintf("challenge %s is not running (session %d is %s)", c.ID, sess.ID, sess.Status))
	}

	exists, err := r.repo.Exists(ctx, c.ID, in.Model, in.Variable)
	if err != nil {
		return nil, fmt.Errorf("check existing ensemble: %w", err)
	}
	if exists {
		return nil, ensembleExists(c.ID, in.Model, in.Variable)
	}

	provided := make([]time.Time, len(in.Forecasts))
	for i, p := range in.Forecasts {
		provided[i] = p.Datetime
	}
	if err := horizon.Check(r.challenges.ExpectedLeadtimes(c), provided).Err(); err != nil {
		return nil, err
	}

	e := &contracts.Ensemble{
		ID:           uuid.New(),
		ChallengeID:  c.ID,
		Model:        in.Model,
		Variable:     in.Variable,
		RegisteredAt: r.now().UTC(),
	}
	log := r.log.WithFields(map[string]interface{}{
		"challenge_id": c.ID,
		"model":        in.Model,
		"variable":     in.Variable,
	})

	if err := r.repo.Create(ctx, e, in.Forecasts); err != nil {
		if errors.Is(err, contracts.ErrDuplicate) {
			return nil, ensembleExists(c.ID, in.Model, in.Variable)
		}
		log.WithError(err).Error("Failed to insert ensemble")
		return nil, apperr.Persistence(apperr.CodeFailedToInsertEnsemble, "failed to insert ensemble")
	}

	log.WithField("ensemble_id", e.ID).Info("Ensemble created")
	r.metrics.EnsembleCreated()
	return e, nil
}

// SetWeights stores the ensemble's weights payload. It can be set once.
func (r *Registry) SetWeights(ctx context.Context, caller contracts.Caller, ensembleID uuid.UUID, weights json.RawMessage) error {
	if !caller.IsSessionManager() {
		return apperr.PermissionDenied("only session managers may set ensemble weights")
	}
	trimmed := bytes.TrimSpace(weights)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || !json.Valid(trimmed) {
		return apperr.InvalidParameter("weights", "weights must be a JSON value")
	}

	err := r.repo.SetWeights(ctx, ensembleID, trimmed)
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		return notFound(ensembleID)
	case errors.Is(err, contracts.ErrWeightsAlreadySet):
		return apperr.Conflict(apperr.CodeEnsembleWeightsAlreadySet,
			fmt.Sprintf("weights of ensemble %s are already set", ensembleID))
	case err != nil:
		return fmt.Errorf("set ensemble weights: %w", err)
	}

	r.log.WithField("ensemble_id", ensembleID).Info("Ensemble weights set")
	return nil
}

// CreateWeightContribution upserts one forecaster's contribution value
func (r *Registry) CreateWeightContribution(ctx context.Context, caller contracts.Caller, ensembleID uuid.UUID, in ContributionInput) (*contracts.EnsembleWeight, error) {
	if !caller.IsSessionManager() {
		return nil, apperr.PermissionDenied("only session managers may register contributions")
	}
	if in.UserID == uuid.Nil {
		return nil, apperr.InvalidParameter("user", "contributing user is required")
	}

	w := contracts.EnsembleWeight{EnsembleID: ensembleID, UserID: in.UserID, Value: in.Value}
	err := r.repo.UpsertWeight(ctx, w)
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, notFound(ensembleID)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert contribution: %w", err)
	}
	return &w, nil
}

// ListWeightContributions ranks contributions per ensemble, highest first,
// and projects them to what the caller may see
func (r *Registry) ListWeightContributions(ctx context.Context, caller contracts.Caller, challengeID uuid.UUID) ([]ranking.ContributionView, error) {
	c, err := r.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	rows, err := r.repo.ListWeights(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	ranked := ranking.RankWeights(rows)
	return ranking.ProjectContributions(ranked, caller, ranking.ScopeFor(caller, c.UserID)), nil
}

// List returns the challenge's ensembles with points to its owner or a
// session manager
func (r *Registry) List(ctx context.Context, caller contracts.Caller, challengeID uuid.UUID) ([]contracts.EnsembleWithPoints, error) {
	c, err := r.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if ranking.ScopeFor(caller, c.UserID) != ranking.ScopeFull {
		return nil, apperr.PermissionDenied("ensembles are visible to the challenge owner only")
	}
	ensembles, err := r.repo.List(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list ensembles: %w", err)
	}
	return ensembles, nil
}

func notFound(id uuid.UUID) error {
	return apperr.NotFound(apperr.CodeEnsembleNotFound, fmt.Sprintf("ensemble %s not found", id))
}

func ensembleExists(challengeID uuid.UUID, model string, variable contracts.Variable) error {
	return apperr.Conflict(apperr.CodeSubmissionAlreadyExists,
		fmt.Sprintf("ensemble %s/%s already exists for challenge %s", model, variable, challengeID))
}
