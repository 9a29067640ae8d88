package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/wonny/predico/internal/contracts"
)

// Scores implements contracts.ScoreRepository
type Scores struct {
	s *Store
}

var _ contracts.ScoreRepository = (*Scores)(nil)

// ListByChallenge joins scores with their submissions
func (r *Scores) ListByChallenge(_ context.Context, challengeID uuid.UUID) ([]contracts.ScoreRow, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]contracts.ScoreRow, 0)
	for _, id := range r.s.submissionOrder {
		sub := r.s.submissions[id]
		if sub.ChallengeID != challengeID {
			continue
		}
		for _, sc := range r.s.scores[id] {
			out = append(out, contracts.ScoreRow{
				SubmissionID: id,
				UserID:       sub.UserID,
				Variable:     sub.Variable,
				Metric:       sc.Metric,
				Value:        sc.Value,
			})
		}
	}
	return out, nil
}

// Publish inserts every score or none
func (r *Scores) Publish(_ context.Context, challengeID uuid.UUID, scores []contracts.SubmissionScore) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	type key struct {
		id     uuid.UUID
		metric contracts.Metric
	}
	batch := make(map[key]bool, len(scores))
	for _, sc := range scores {
		sub, ok := r.s.submissions[sc.SubmissionID]
		if !ok || sub.ChallengeID != challengeID {
			return contracts.ErrNotFound
		}
		k := key{sc.SubmissionID, sc.Metric}
		if batch[k] {
			return contracts.ErrDuplicate
		}
		batch[k] = true
		for _, existing := range r.s.scores[sc.SubmissionID] {
			if existing.Metric == sc.Metric {
				return contracts.ErrDuplicate
			}
		}
	}

	for _, sc := range scores {
		r.s.scores[sc.SubmissionID] = append(r.s.scores[sc.SubmissionID], sc)
	}
	return nil
}
