package contracts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ResourceDirectory resolves resource ownership and time zone
type ResourceDirectory interface {
	GetResource(ctx context.Context, id uuid.UUID) (*Resource, error)
}

// MeasurementStore serves raw measured data of resources
type MeasurementStore interface {
	CountMeasurements(ctx context.Context, resourceID uuid.UUID) (int, error)
	// RangeMeasurements returns values with from <= datetime <= to, ordered by datetime
	RangeMeasurements(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]Measurement, error)
}

// SampleKey identifies one forecaster's history for one variable on one resource
type SampleKey struct {
	UserID     uuid.UUID
	ResourceID uuid.UUID
	Variable   Variable
}

// HistoricalForecastStore serves bulk-uploaded historical forecasts
type HistoricalForecastStore interface {
	// UploadedTimes returns uploaded datetimes of key in [from, to)
	UploadedTimes(ctx context.Context, key SampleKey, from, to time.Time) ([]time.Time, error)
}

// Notifier is a best-effort outbound hook. Notify must not block the caller
// and its failures never affect the triggering write.
type Notifier interface {
	Notify(ctx context.Context, templateKey, destination string, args map[string]interface{})
}

// DestinationMarket addresses every subscriber of the market
const DestinationMarket = "market"

// Notification template keys
const (
	TemplateChallengeCreated  = "challenge_created"
	TemplateSubmissionCreated = "submission_created"
	TemplateSessionUpdated    = "session_updated"
)
