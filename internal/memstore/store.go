// Package memstore is an in-memory implementation of every market repository
// and external collaborator. It enforces the same uniqueness rules as the
// Postgres schema and backs STORE=memory and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/predico/internal/contracts"
)

// Store holds all market state behind one lock
type Store struct {
	mu sync.RWMutex

	sessions      []contracts.MarketSession
	nextSessionID int64

	challenges     map[uuid.UUID]contracts.Challenge
	challengeOrder []uuid.UUID

	submissions      map[uuid.UUID]contracts.Submission
	submissionOrder  []uuid.UUID
	submissionPoints map[uuid.UUID][]contracts.ForecastPoint

	ensembles      map[uuid.UUID]contracts.Ensemble
	ensembleOrder  []uuid.UUID
	ensemblePoints map[uuid.UUID][]contracts.ForecastPoint
	weights        map[uuid.UUID][]contracts.EnsembleWeight

	scores map[uuid.UUID][]contracts.SubmissionScore

	resources    map[uuid.UUID]contracts.Resource
	measurements map[uuid.UUID][]contracts.Measurement
	uploads      map[contracts.SampleKey][]time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		nextSessionID:    1,
		challenges:       make(map[uuid.UUID]contracts.Challenge),
		submissions:      make(map[uuid.UUID]contracts.Submission),
		submissionPoints: make(map[uuid.UUID][]contracts.ForecastPoint),
		ensembles:        make(map[uuid.UUID]contracts.Ensemble),
		ensemblePoints:   make(map[uuid.UUID][]contracts.ForecastPoint),
		weights:          make(map[uuid.UUID][]contracts.EnsembleWeight),
		scores:           make(map[uuid.UUID][]contracts.SubmissionScore),
		resources:        make(map[uuid.UUID]contracts.Resource),
		measurements:     make(map[uuid.UUID][]contracts.Measurement),
		uploads:          make(map[contracts.SampleKey][]time.Time),
	}
}

// Sessions returns the session repository view
func (s *Store) Sessions() *Sessions { return &Sessions{s: s} }

// Challenges returns the challenge repository view
func (s *Store) Challenges() *Challenges { return &Challenges{s: s} }

// Submissions returns the submission repository view
func (s *Store) Submissions() *Submissions { return &Submissions{s: s} }

// Ensembles returns the ensemble repository view
func (s *Store) Ensembles() *Ensembles { return &Ensembles{s: s} }

// Scores returns the score repository view
func (s *Store) Scores() *Scores { return &Scores{s: s} }

// AddResource registers a resource in the directory
func (s *Store) AddResource(r contracts.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[r.ID] = r
}

// AddMeasurements appends raw data for a resource
func (s *Store) AddMeasurements(resourceID uuid.UUID, ms ...contracts.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measurements[resourceID] = append(s.measurements[resourceID], ms...)
}

// AddUploads records uploaded historical forecast datetimes
func (s *Store) AddUploads(key contracts.SampleKey, ts ...time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[key] = append(s.uploads[key], ts...)
}

// GetResource implements contracts.ResourceDirectory
func (s *Store) GetResource(_ context.Context, id uuid.UUID) (*contracts.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[id]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return &r, nil
}

// CountMeasurements implements contracts.MeasurementStore
func (s *Store) CountMeasurements(_ context.Context, resourceID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.measurements[resourceID]), nil
}

// RangeMeasurements implements contracts.MeasurementStore
func (s *Store) RangeMeasurements(_ context.Context, resourceID uuid.UUID, from, to time.Time) ([]contracts.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.Measurement
	for _, m := range s.measurements[resourceID] {
		if !m.Datetime.Before(from) && !m.Datetime.After(to) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Datetime.Before(out[j].Datetime) })
	return out, nil
}

// UploadedTimes implements contracts.HistoricalForecastStore
func (s *Store) UploadedTimes(_ context.Context, key contracts.SampleKey, from, to time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return inWindow(s.uploads[key], from, to), nil
}

func inWindow(ts []time.Time, from, to time.Time) []time.Time {
	var out []time.Time
	for _, t := range ts {
		if !t.Before(from) && t.Before(to) {
			out = append(out, t)
		}
	}
	return out
}

func copyPoints(points []contracts.ForecastPoint) []contracts.ForecastPoint {
	out := make([]contracts.ForecastPoint, len(points))
	for i, p := range points {
		out[i] = contracts.ForecastPoint{Datetime: p.Datetime.UTC(), Value: p.Value}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Datetime.Before(out[j].Datetime) })
	return out
}

// hasDuplicateTimes mirrors the (parent, datetime) unique constraint
func hasDuplicateTimes(points []contracts.ForecastPoint) bool {
	seen := make(map[int64]bool, len(points))
	for _, p := range points {
		k := p.Datetime.UnixNano()
		if seen[k] {
			return true
		}
		seen[k] = true
	}
	return false
}
