package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/predico/internal/contracts"
)

// Challenges implements contracts.ChallengeRepository
type Challenges struct {
	s *Store
}

var _ contracts.ChallengeRepository = (*Challenges)(nil)

// Create stores c unless (session, user, resource) is taken
func (r *Challenges) Create(_ context.Context, c *contracts.Challenge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.challengeExists(c.SessionID, c.UserID, c.ResourceID) {
		return contracts.ErrDuplicate
	}
	if _, ok := r.s.challenges[c.ID]; ok {
		return contracts.ErrDuplicate
	}
	r.s.challenges[c.ID] = *c
	r.s.challengeOrder = append(r.s.challengeOrder, c.ID)
	return nil
}

// Get returns one challenge
func (r *Challenges) Get(_ context.Context, id uuid.UUID) (*contracts.Challenge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.challenges[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return &c, nil
}

// Exists reports whether a challenge already covers the triple
func (r *Challenges) Exists(_ context.Context, sessionID int64, userID, resourceID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.challengeExists(sessionID, userID, resourceID), nil
}

// Update applies the mutable fields of patch
func (r *Challenges) Update(_ context.Context, id uuid.UUID, patch contracts.ChallengePatch, updatedAt time.Time) (*contracts.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.challenges[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	if patch.UseCase != nil {
		c.UseCase = *patch.UseCase
	}
	if patch.StartDatetime != nil {
		c.StartDatetime = patch.StartDatetime.UTC()
	}
	if patch.EndDatetime != nil {
		c.EndDatetime = patch.EndDatetime.UTC()
	}
	if patch.TargetDay != nil {
		c.TargetDay = *patch.TargetDay
	}
	c.UpdatedAt = updatedAt.UTC()
	r.s.challenges[id] = c
	return &c, nil
}

// List returns challenges in registration order
func (r *Challenges) List(_ context.Context, filter contracts.ChallengeFilter) ([]contracts.Challenge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]contracts.Challenge, 0)
	for _, id := range r.s.challengeOrder {
		c := r.s.challenges[id]
		if filter.ChallengeID != nil && c.ID != *filter.ChallengeID {
			continue
		}
		if filter.SessionID != nil && c.SessionID != *filter.SessionID {
			continue
		}
		if filter.ResourceID != nil && c.ResourceID != *filter.ResourceID {
			continue
		}
		if filter.UseCase != nil && c.UseCase != *filter.UseCase {
			continue
		}
		if filter.OpenOnly {
			sess, ok := r.s.session(c.SessionID)
			if !ok || sess.Status != contracts.SessionOpen {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) challengeExists(sessionID int64, userID, resourceID uuid.UUID) bool {
	for _, c := range s.challenges {
		if c.SessionID == sessionID && c.UserID == userID && c.ResourceID == resourceID {
			return true
		}
	}
	return false
}
