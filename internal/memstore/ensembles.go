package memstore

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/wonny/predico/internal/contracts"
)

// Ensembles implements contracts.EnsembleRepository
type Ensembles struct {
	s *Store
}

var _ contracts.EnsembleRepository = (*Ensembles)(nil)

// Create stores the ensemble and its points together
func (r *Ensembles) Create(_ context.Context, e *contracts.Ensemble, points []contracts.ForecastPoint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.ensembleExists(e.ChallengeID, e.Model, e.Variable) {
		return contracts.ErrDuplicate
	}
	if _, ok := r.s.challenges[e.ChallengeID]; !ok {
		return contracts.ErrNotFound
	}
	if hasDuplicateTimes(points) {
		return contracts.ErrDuplicate
	}

	r.s.ensembles[e.ID] = *e
	r.s.ensembleOrder = append(r.s.ensembleOrder, e.ID)
	r.s.ensemblePoints[e.ID] = copyPoints(points)
	return nil
}

// Get returns one ensemble
func (r *Ensembles) Get(_ context.Context, id uuid.UUID) (*contracts.Ensemble, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.ensembles[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return &e, nil
}

// Exists reports whether (challenge, model, variable) already has an ensemble
func (r *Ensembles) Exists(_ context.Context, challengeID uuid.UUID, model string, variable contracts.Variable) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.ensembleExists(challengeID, model, variable), nil
}

// List returns a challenge's ensembles with their points
func (r *Ensembles) List(_ context.Context, challengeID uuid.UUID) ([]contracts.EnsembleWithPoints, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]contracts.EnsembleWithPoints, 0)
	for _, id := range r.s.ensembleOrder {
		e := r.s.ensembles[id]
		if e.ChallengeID != challengeID {
			continue
		}
		out = append(out, contracts.EnsembleWithPoints{Ensemble: e, Points: copyPoints(r.s.ensemblePoints[id])})
	}
	return out, nil
}

// SetWeights stores the payload once
func (r *Ensembles) SetWeights(_ context.Context, id uuid.UUID, weights json.RawMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.ensembles[id]
	if !ok {
		return contracts.ErrNotFound
	}
	if len(e.Weights) > 0 {
		return contracts.ErrWeightsAlreadySet
	}
	e.Weights = append(json.RawMessage(nil), weights...)
	r.s.ensembles[id] = e
	return nil
}

// UpsertWeight sets one forecaster's contribution value
func (r *Ensembles) UpsertWeight(_ context.Context, w contracts.EnsembleWeight) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.ensembles[w.EnsembleID]; !ok {
		return contracts.ErrNotFound
	}
	list := r.s.weights[w.EnsembleID]
	for i := range list {
		if list[i].UserID == w.UserID {
			list[i].Value = w.Value
			return nil
		}
	}
	r.s.weights[w.EnsembleID] = append(list, w)
	return nil
}

// ListWeights returns every contribution to the challenge's ensembles
func (r *Ensembles) ListWeights(_ context.Context, challengeID uuid.UUID) ([]contracts.WeightRow, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]contracts.WeightRow, 0)
	for _, id := range r.s.ensembleOrder {
		e := r.s.ensembles[id]
		if e.ChallengeID != challengeID {
			continue
		}
		for _, w := range r.s.weights[id] {
			out = append(out, contracts.WeightRow{EnsembleWeight: w, Model: e.Model, Variable: e.Variable})
		}
	}
	return out, nil
}

func (s *Store) ensembleExists(challengeID uuid.UUID, model string, variable contracts.Variable) bool {
	for _, e := range s.ensembles {
		if e.ChallengeID == challengeID && e.Model == model && e.Variable == variable {
			return true
		}
	}
	return false
}
