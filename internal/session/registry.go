package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/metrics"
	"github.com/wonny/predico/pkg/logger"
)

// ⭐ SSOT: 세션 상태 전이 규칙은 여기서만

// transitions is the optional strict status graph
var transitions = map[contracts.SessionStatus][]contracts.SessionStatus{
	contracts.SessionOpen:     {contracts.SessionClosed},
	contracts.SessionClosed:   {contracts.SessionRunning},
	contracts.SessionRunning:  {contracts.SessionFinished},
	contracts.SessionFinished: {},
}

// CanTransition reports whether the strict graph allows from -> to.
// Keeping the current status is always allowed.
func CanTransition(from, to contracts.SessionStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Registry owns market sessions and the single-open-session invariant
type Registry struct {
	repo     contracts.SessionRepository
	notifier contracts.Notifier
	metrics  *metrics.Collector
	log      *logger.Logger
	strict   bool
	now      func() time.Time
}

// NewRegistry creates a session registry. notifier and m may be nil.
func NewRegistry(repo contracts.SessionRepository, notifier contracts.Notifier, m *metrics.Collector, log *logger.Logger) *Registry {
	return &Registry{
		repo:     repo,
		notifier: notifier,
		metrics:  m,
		log:      log.Component("session"),
		now:      time.Now,
	}
}

// SetStrictTransitions enables the explicit status graph
func (r *Registry) SetStrictTransitions(strict bool) {
	r.strict = strict
}

// SetClock overrides the time source
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Create opens a new session. Every existing session must be finished.
func (r *Registry) Create(ctx context.Context, caller contracts.Caller) (*contracts.MarketSession, error) {
	if !caller.IsSessionManager() {
		return nil, apperr.PermissionDenied("only session managers may open sessions")
	}

	sess, err := r.repo.Create(ctx, r.now().UTC())
	switch {
	case errors.Is(err, contracts.ErrUnfinishedSessions):
		return nil, apperr.Conflict(apperr.CodeUnfinishedSessionsExist,
			"unable to create a new session while unfinished sessions exist")
	case errors.Is(err, contracts.ErrOpenSessionExists):
		return nil, apperr.Conflict(apperr.CodeMultipleOpenSessions, "another session is already open")
	case err != nil:
		return nil, fmt.Errorf("create session: %w", err)
	}

	r.log.WithField("session_id", sess.ID).Info("Market session opened")
	r.metrics.SessionTransition(string(sess.Status))
	r.notify(ctx, sess)
	return sess, nil
}

// Get returns one session
func (r *Registry) Get(ctx context.Context, id int64) (*contracts.MarketSession, error) {
	sess, err := r.repo.Get(ctx, id)
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeNoSuchSession, fmt.Sprintf("market session %d does not exist", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", id, err)
	}
	return sess, nil
}

// Update changes status and timestamps of a session. Only session managers
// may call it. A status change stamps the matching timestamp when the patch
// leaves it empty. Repeating the current status keeps the stored timestamps.
func (r *Registry) Update(ctx context.Context, caller contracts.Caller, id int64, patch contracts.SessionPatch) (*contracts.MarketSession, error) {
	if !caller.IsSessionManager() {
		return nil, apperr.PermissionDenied("only session managers may update sessions")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperr.InvalidParameter("status", fmt.Sprintf("unknown session status %q", *patch.Status))
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil {
		to := *patch.Status
		if r.strict && !CanTransition(current.Status, to) {
			return nil, apperr.Conflict(apperr.CodeInvalidSessionTransition,
				fmt.Sprintf("session %d cannot move from %s to %s", id, current.Status, to))
		}
		if to == contracts.SessionOpen && current.Status != contracts.SessionOpen {
			if err := r.ensureNoOtherOpen(ctx, id); err != nil {
				return nil, err
			}
		}
		if to != current.Status {
			r.stamp(&patch, to)
		}
	}

	sess, err := r.repo.Update(ctx, id, patch)
	switch {
	case errors.Is(err, contracts.ErrOpenSessionExists):
		return nil, apperr.Conflict(apperr.CodeMultipleOpenSessions, "another session is already open")
	case errors.Is(err, contracts.ErrNotFound):
		return nil, apperr.NotFound(apperr.CodeNoSuchSession, fmt.Sprintf("market session %d does not exist", id))
	case err != nil:
		return nil, fmt.Errorf("update session %d: %w", id, err)
	}

	if sess.Status != current.Status {
		r.log.WithFields(map[string]interface{}{
			"session_id": id,
			"from":       current.Status,
			"to":         sess.Status,
		}).Info("Market session status changed")
		r.metrics.SessionTransition(string(sess.Status))
		r.notify(ctx, sess)
	}
	return sess, nil
}

// List returns sessions ordered by id
func (r *Registry) List(ctx context.Context, filter contracts.SessionFilter) ([]contracts.MarketSession, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperr.InvalidParameter("status", fmt.Sprintf("unknown session status %q", *filter.Status))
	}
	sessions, err := r.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Latest returns the highest-id session with status, or NotFound
func (r *Registry) Latest(ctx context.Context, status contracts.SessionStatus) (*contracts.MarketSession, error) {
	sessions, err := r.List(ctx, contracts.SessionFilter{Status: &status, LatestOnly: true})
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, apperr.NotFound(apperr.CodeNoSuchSession, fmt.Sprintf("no %s market session", status))
	}
	return &sessions[0], nil
}

// ensureNoOtherOpen is the read-time check; the store re-checks at commit
func (r *Registry) ensureNoOtherOpen(ctx context.Context, id int64) error {
	open := contracts.SessionOpen
	sessions, err := r.repo.List(ctx, contracts.SessionFilter{Status: &open})
	if err != nil {
		return fmt.Errorf("list open sessions: %w", err)
	}
	for _, s := range sessions {
		if s.ID != id {
			return apperr.Conflict(apperr.CodeMultipleOpenSessions,
				fmt.Sprintf("session %d is already open", s.ID))
		}
	}
	return nil
}

func (r *Registry) stamp(patch *contracts.SessionPatch, to contracts.SessionStatus) {
	now := r.now().UTC()
	switch to {
	case contracts.SessionClosed:
		if patch.CloseTS == nil {
			patch.CloseTS = &now
		}
	case contracts.SessionRunning:
		if patch.LaunchTS == nil {
			patch.LaunchTS = &now
		}
	case contracts.SessionFinished:
		if patch.FinishTS == nil {
			patch.FinishTS = &now
		}
	}
}

func (r *Registry) notify(ctx context.Context, sess *contracts.MarketSession) {
	if r.notifier == nil {
		return
	}
	r.notifier.Notify(ctx, contracts.TemplateSessionUpdated, contracts.DestinationMarket, map[string]interface{}{
		"session_id": sess.ID,
		"status":     sess.Status,
		"open_ts":    sess.OpenTS,
	})
}
