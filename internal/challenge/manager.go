package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/horizon"
	"github.com/wonny/predico/internal/metrics"
	"github.com/wonny/predico/pkg/logger"
)

// Settings are the market rules the manager enforces
type Settings struct {
	MinRawDataPoints int
	Resolution       time.Duration
}

// CreateInput is the validated input of create_challenge
type CreateInput struct {
	SessionID  int64             `json:"market_session" validate:"required,gt=0"`
	ResourceID uuid.UUID         `json:"resource" validate:"required"`
	UseCase    contracts.UseCase `json:"use_case" validate:"required,oneof=wind_power wind_power_ramp"`
}

// Manager creates and updates challenges
type Manager struct {
	challenges   contracts.ChallengeRepository
	sessions     contracts.SessionRepository
	resources    contracts.ResourceDirectory
	measurements contracts.MeasurementStore
	notifier     contracts.Notifier
	metrics      *metrics.Collector
	settings     Settings
	log          *logger.Logger
	now          func() time.Time
}

// NewManager creates a challenge manager. notifier and m may be nil.
func NewManager(
	challenges contracts.ChallengeRepository,
	sessions contracts.SessionRepository,
	resources contracts.ResourceDirectory,
	measurements contracts.MeasurementStore,
	notifier contracts.Notifier,
	m *metrics.Collector,
	settings Settings,
	log *logger.Logger,
) *Manager {
	if settings.Resolution == 0 {
		settings.Resolution = horizon.Resolution15m
	}
	return &Manager{
		challenges:   challenges,
		sessions:     sessions,
		resources:    resources,
		measurements: measurements,
		notifier:     notifier,
		metrics:      m,
		settings:     settings,
		log:          log.Component("challenge"),
		now:          time.Now,
	}
}

// SetClock overrides the time source
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Create registers a challenge for one of the caller's resources in an open
// session and computes its day-ahead horizon in the resource's time zone
func (m *Manager) Create(ctx context.Context, caller contracts.Caller, in CreateInput) (*contracts.Challenge, error) {
	if !in.UseCase.Valid() {
		return nil, apperr.InvalidParameter("use_case", fmt.Sprintf("unknown use case %q", in.UseCase))
	}

	resource, err := m.resources.GetResource(ctx, in.ResourceID)
	if err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return nil, fmt.Errorf("get resource %s: %w", in.ResourceID, err)
	}
	if resource == nil || resource.UserID != caller.UserID {
		return nil, apperr.NotFound(apperr.CodeResourceNotRegistered,
			fmt.Sprintf("resource %s is not registered to this user", in.ResourceID))
	}

	sess, err := m.sessions.Get(ctx, in.SessionID)
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, apperr.NotFound(apperr.CodeNoSuchSession, fmt.Sprintf("market session %d does not exist", in.SessionID))
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", in.SessionID, err)
	}
	if sess.Status != contracts.SessionOpen {
		return nil, apperr.Conflict(apperr.CodeSessionNotOpenForChallenges,
			fmt.Sprintf("market session %d is %s, challenges need an open session", sess.ID, sess.Status))
	}

	exists, err := m.challenges.Exists(ctx, sess.ID, caller.UserID, resource.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing challenge: %w", err)
	}
	if exists {
		return nil, challengeExists(sess.ID, resource.ID)
	}

	count, err := m.measurements.CountMeasurements(ctx, resource.ID)
	if err != nil {
		return nil, fmt.Errorf("count raw data: %w", err)
	}
	if count < m.settings.MinRawDataPoints {
		return nil, apperr.InsufficientHistory(apperr.CodeNotEnoughHistoricalData,
			fmt.Sprintf("resource %s has %d raw measurements, %d required", resource.ID, count, m.settings.MinRawDataPoints),
			map[string]int{"required": m.settings.MinRawDataPoints, "found": count})
	}

	h, err := horizon.Compute(sess.OpenTS, resource.Timezone, m.settings.Resolution)
	if err != nil {
		return nil, fmt.Errorf("compute horizon: %w", err)
	}

	now := m.now().UTC()
	c := &contracts.Challenge{
		ID:            uuid.New(),
		UserID:        caller.UserID,
		ResourceID:    resource.ID,
		SessionID:     sess.ID,
		UseCase:       in.UseCase,
		StartDatetime: h.Start,
		EndDatetime:   h.End,
		TargetDay:     h.TargetDay,
		RegisteredAt:  now,
		UpdatedAt:     now,
	}

	if err := m.challenges.Create(ctx, c); err != nil {
		if errors.Is(err, contracts.ErrDuplicate) {
			return nil, challengeExists(sess.ID, resource.ID)
		}
		return nil, fmt.Errorf("insert challenge: %w", err)
	}

	m.log.WithFields(map[string]interface{}{
		"challenge_id": c.ID,
		"session_id":   c.SessionID,
		"resource_id":  c.ResourceID,
		"target_day":   c.TargetDay.Format("2006-01-02"),
	}).Info("Challenge created")
	m.metrics.ChallengeCreated()

	if m.notifier != nil {
		m.notifier.Notify(ctx, contracts.TemplateChallengeCreated, caller.UserID.String(), map[string]interface{}{
			"challenge_id":   c.ID,
			"market_session": in.SessionID,
			"resource":       in.ResourceID,
			"use_case":       in.UseCase,
			"target_day":     c.TargetDay.Format("2006-01-02"),
		})
	}
	return c, nil
}

// Update changes the mutable fields of the caller's challenge while its
// session is open
func (m *Manager) Update(ctx context.Context, caller contracts.Caller, id uuid.UUID, patch contracts.ChallengePatch) (*contracts.Challenge, error) {
	if patch.Empty() {
		return nil, apperr.InvalidParameter("body", "no mutable field given")
	}
	if patch.UseCase != nil && !patch.UseCase.Valid() {
		return nil, apperr.InvalidParameter("use_case", fmt.Sprintf("unknown use case %q", *patch.UseCase))
	}

	c, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != caller.UserID {
		return nil, apperr.Forbidden(apperr.CodeNotRegisteredToUser,
			fmt.Sprintf("challenge %s is not registered to this user", id))
	}

	start, end := c.StartDatetime, c.EndDatetime
	if patch.StartDatetime != nil {
		start = *patch.StartDatetime
	}
	if patch.EndDatetime != nil {
		end = *patch.EndDatetime
	}
	if end.Before(start) {
		return nil, apperr.InvalidParameter("end_datetime", "end_datetime is before start_datetime")
	}

	sess, err := m.sessions.Get(ctx, c.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", c.SessionID, err)
	}
	if sess.Status != contracts.SessionOpen {
		return nil, apperr.Conflict(apperr.CodeSessionNotOpenForChallenges,
			fmt.Sprintf("market session %d is %s, challenges can only change while it is open", sess.ID, sess.Status))
	}

	updated, err := m.challenges.Update(ctx, id, patch, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update challenge %s: %w", id, err)
	}

	m.log.WithField("challenge_id", id).Info("Challenge updated")
	return updated, nil
}

// Get returns one challenge or challenge_not_registered
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*contracts.Challenge, error) {
	c, err := m.challenges.Get(ctx, id)
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, NotRegistered(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge %s: %w", id, err)
	}
	return c, nil
}

// Session returns the parent session of c
func (m *Manager) Session(ctx context.Context, c *contracts.Challenge) (*contracts.MarketSession, error) {
	sess, err := m.sessions.Get(ctx, c.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %d of challenge %s: %w", c.SessionID, c.ID, err)
	}
	return sess, nil
}

// GetSolution returns the challenge with the raw measurements of its horizon
func (m *Manager) GetSolution(ctx context.Context, id uuid.UUID) (*contracts.Solution, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	measurements, err := m.measurements.RangeMeasurements(ctx, c.ResourceID, c.StartDatetime, c.EndDatetime)
	if err != nil {
		return nil, fmt.Errorf("read raw data of challenge %s: %w", id, err)
	}
	if measurements == nil {
		measurements = []contracts.Measurement{}
	}
	return &contracts.Solution{Challenge: *c, Measurements: measurements}, nil
}

// List returns challenges matching filter
func (m *Manager) List(ctx context.Context, filter contracts.ChallengeFilter) ([]contracts.Challenge, error) {
	if filter.UseCase != nil && !filter.UseCase.Valid() {
		return nil, apperr.InvalidParameter("use_case", fmt.Sprintf("unknown use case %q", *filter.UseCase))
	}
	challenges, err := m.challenges.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	return challenges, nil
}

// ExpectedLeadtimes returns the leadtimes a forecast for c must cover
func (m *Manager) ExpectedLeadtimes(c *contracts.Challenge) []time.Time {
	return horizon.ExpectedLeadtimes(c.StartDatetime, c.EndDatetime, m.settings.Resolution)
}

// NotRegistered is the error for an unknown challenge id
func NotRegistered(id uuid.UUID) error {
	return apperr.NotFound(apperr.CodeChallengeNotRegistered, fmt.Sprintf("challenge %s is not registered", id))
}

func challengeExists(sessionID int64, resourceID uuid.UUID) error {
	return apperr.Conflict(apperr.CodeChallengeAlreadyExists,
		fmt.Sprintf("a challenge for resource %s already exists in session %d", resourceID, sessionID))
}
