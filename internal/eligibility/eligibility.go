// Package eligibility decides whether a forecaster has enough recent history
// to submit for a variable on a resource. History may come from past
// challenge submissions or from bulk uploads; both count toward one union.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/contracts"
)

// HistoricalSampleSource yields datetimes a forecaster has data for
type HistoricalSampleSource interface {
	Name() string
	// SampleTimes returns datetimes of key in [from, to)
	SampleTimes(ctx context.Context, key contracts.SampleKey, from, to time.Time) ([]time.Time, error)
}

// SubmissionHistory reads leadtimes of earlier challenge submissions
type SubmissionHistory struct {
	repo contracts.SubmissionRepository
}

// NewSubmissionHistory creates a source over the submission ledger
func NewSubmissionHistory(repo contracts.SubmissionRepository) *SubmissionHistory {
	return &SubmissionHistory{repo: repo}
}

// Name identifies the source in logs
func (s *SubmissionHistory) Name() string { return "submissions" }

// SampleTimes implements HistoricalSampleSource
func (s *SubmissionHistory) SampleTimes(ctx context.Context, key contracts.SampleKey, from, to time.Time) ([]time.Time, error) {
	return s.repo.ForecastTimes(ctx, key, from, to)
}

// UploadHistory reads bulk-uploaded historical forecasts
type UploadHistory struct {
	store contracts.HistoricalForecastStore
}

// NewUploadHistory creates a source over the upload store
func NewUploadHistory(store contracts.HistoricalForecastStore) *UploadHistory {
	return &UploadHistory{store: store}
}

// Name identifies the source in logs
func (s *UploadHistory) Name() string { return "uploads" }

// SampleTimes implements HistoricalSampleSource
func (s *UploadHistory) SampleTimes(ctx context.Context, key contracts.SampleKey, from, to time.Time) ([]time.Time, error) {
	return s.store.UploadedTimes(ctx, key, from, to)
}

// Checker counts the union of every source over a trailing window
type Checker struct {
	sources   []HistoricalSampleSource
	window    time.Duration
	minPoints int
}

// NewChecker creates a checker requiring minPoints distinct datetimes within
// windowDays before the reference time
func NewChecker(windowDays, minPoints int, sources ...HistoricalSampleSource) *Checker {
	return &Checker{
		sources:   sources,
		window:    time.Duration(windowDays) * 24 * time.Hour,
		minPoints: minPoints,
	}
}

// Shortfall is attached to a rejected check
type Shortfall struct {
	Required int       `json:"required"`
	Found    int       `json:"found"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
}

// Count returns how many distinct datetimes of key exist in the window
// ending at before
func (c *Checker) Count(ctx context.Context, key contracts.SampleKey, before time.Time) (int, error) {
	from := before.Add(-c.window)
	seen := make(map[int64]struct{})

	for _, src := range c.sources {
		times, err := src.SampleTimes(ctx, key, from, before)
		if err != nil {
			return 0, fmt.Errorf("read %s history: %w", src.Name(), err)
		}
		for _, t := range times {
			seen[t.UnixNano()] = struct{}{}
		}
	}
	return len(seen), nil
}

// Check returns not_enough_data_to_submit when the union is below the minimum
func (c *Checker) Check(ctx context.Context, key contracts.SampleKey, before time.Time) error {
	n, err := c.Count(ctx, key, before)
	if err != nil {
		return err
	}
	if n < c.minPoints {
		return apperr.InsufficientHistory(apperr.CodeNotEnoughDataToSubmit,
			fmt.Sprintf("at least %d historical forecasts are required for %s, found %d", c.minPoints, key.Variable, n),
			Shortfall{Required: c.minPoints, Found: n, From: before.Add(-c.window), To: before})
	}
	return nil
}
