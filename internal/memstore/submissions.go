package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/predico/internal/contracts"
)

// Submissions implements contracts.SubmissionRepository
type Submissions struct {
	s *Store
}

var _ contracts.SubmissionRepository = (*Submissions)(nil)

// Find returns the submission of a (user, variable, challenge) triple
func (r *Submissions) Find(_ context.Context, userID, challengeID uuid.UUID, variable contracts.Variable) (*contracts.Submission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if sub, ok := r.s.findSubmission(userID, challengeID, variable); ok {
		return &sub, nil
	}
	return nil, contracts.ErrNotFound
}

// Create stores the submission and its points together
func (r *Submissions) Create(_ context.Context, sub *contracts.Submission, points []contracts.ForecastPoint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.findSubmission(sub.UserID, sub.ChallengeID, sub.Variable); ok {
		return contracts.ErrDuplicate
	}
	if _, ok := r.s.challenges[sub.ChallengeID]; !ok {
		return contracts.ErrNotFound
	}
	if hasDuplicateTimes(points) {
		return contracts.ErrDuplicate
	}

	r.s.submissions[sub.ID] = *sub
	r.s.submissionOrder = append(r.s.submissionOrder, sub.ID)
	r.s.submissionPoints[sub.ID] = copyPoints(points)
	return nil
}

// Replace swaps the whole point set of a submission
func (r *Submissions) Replace(_ context.Context, submissionID uuid.UUID, registeredAt time.Time, points []contracts.ForecastPoint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sub, ok := r.s.submissions[submissionID]
	if !ok {
		return contracts.ErrNotFound
	}
	if hasDuplicateTimes(points) {
		return contracts.ErrDuplicate
	}

	sub.RegisteredAt = registeredAt.UTC()
	r.s.submissions[submissionID] = sub
	r.s.submissionPoints[submissionID] = copyPoints(points)
	return nil
}

// Points returns a submission's points ordered by datetime
func (r *Submissions) Points(_ context.Context, submissionID uuid.UUID) ([]contracts.ForecastPoint, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	points, ok := r.s.submissionPoints[submissionID]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return copyPoints(points), nil
}

// List returns submissions in registration order
func (r *Submissions) List(_ context.Context, filter contracts.SubmissionFilter) ([]contracts.Submission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]contracts.Submission, 0)
	for _, id := range r.s.submissionOrder {
		sub := r.s.submissions[id]
		if filter.ChallengeID != nil && sub.ChallengeID != *filter.ChallengeID {
			continue
		}
		if filter.UserID != nil && sub.UserID != *filter.UserID {
			continue
		}
		if filter.OwnerID != nil && r.s.challenges[sub.ChallengeID].UserID != *filter.OwnerID {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

// ForecastTimes returns datetimes previously submitted for key in [from, to)
func (r *Submissions) ForecastTimes(_ context.Context, key contracts.SampleKey, from, to time.Time) ([]time.Time, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []time.Time
	for id, sub := range r.s.submissions {
		if sub.UserID != key.UserID || sub.Variable != key.Variable {
			continue
		}
		if r.s.challenges[sub.ChallengeID].ResourceID != key.ResourceID {
			continue
		}
		for _, p := range r.s.submissionPoints[id] {
			out = append(out, p.Datetime)
		}
	}
	return inWindow(out, from, to), nil
}

func (s *Store) findSubmission(userID, challengeID uuid.UUID, variable contracts.Variable) (contracts.Submission, bool) {
	for _, sub := range s.submissions {
		if sub.UserID == userID && sub.ChallengeID == challengeID && sub.Variable == variable {
			return sub, true
		}
	}
	return contracts.Submission{}, false
}
