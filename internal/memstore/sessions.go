package memstore

import (
	"context"
	"time"

	"github.com/wonny/predico/internal/contracts"
)

// Sessions implements contracts.SessionRepository
type Sessions struct {
	s *Store
}

var _ contracts.SessionRepository = (*Sessions)(nil)

// Create opens a new session when every existing session is finished
func (r *Sessions) Create(_ context.Context, openTS time.Time) (*contracts.MarketSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, sess := range r.s.sessions {
		if sess.Status != contracts.SessionFinished {
			return nil, contracts.ErrUnfinishedSessions
		}
	}

	sess := contracts.MarketSession{
		ID:     r.s.nextSessionID,
		OpenTS: openTS.UTC(),
		Status: contracts.SessionOpen,
	}
	r.s.nextSessionID++
	r.s.sessions = append(r.s.sessions, sess)
	return &sess, nil
}

// Get returns one session
func (r *Sessions) Get(_ context.Context, id int64) (*contracts.MarketSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sess, ok := r.s.session(id)
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return &sess, nil
}

// Update applies patch, rejecting a second open session
func (r *Sessions) Update(_ context.Context, id int64, patch contracts.SessionPatch) (*contracts.MarketSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	idx := -1
	for i, sess := range r.s.sessions {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, contracts.ErrNotFound
	}

	if patch.Status != nil && *patch.Status == contracts.SessionOpen {
		for _, other := range r.s.sessions {
			if other.ID != id && other.Status == contracts.SessionOpen {
				return nil, contracts.ErrOpenSessionExists
			}
		}
	}

	sess := r.s.sessions[idx]
	if patch.Status != nil {
		sess.Status = *patch.Status
	}
	if patch.CloseTS != nil {
		ts := patch.CloseTS.UTC()
		sess.CloseTS = &ts
	}
	if patch.LaunchTS != nil {
		ts := patch.LaunchTS.UTC()
		sess.LaunchTS = &ts
	}
	if patch.FinishTS != nil {
		ts := patch.FinishTS.UTC()
		sess.FinishTS = &ts
	}
	r.s.sessions[idx] = sess
	return &sess, nil
}

// List returns sessions ordered by id
func (r *Sessions) List(_ context.Context, filter contracts.SessionFilter) ([]contracts.MarketSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]contracts.MarketSession, 0)
	for _, sess := range r.s.sessions {
		if filter.ID != nil && sess.ID != *filter.ID {
			continue
		}
		if filter.Status != nil && sess.Status != *filter.Status {
			continue
		}
		out = append(out, sess)
	}
	if filter.LatestOnly && len(out) > 1 {
		out = out[len(out)-1:]
	}
	return out, nil
}

// session looks up by id; caller holds the lock
func (s *Store) session(id int64) (contracts.MarketSession, bool) {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess, true
		}
	}
	return contracts.MarketSession{}, false
}
