// Package measurements reads the externally owned resource directory, raw
// measured data and bulk-uploaded historical forecasts.
package measurements

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/pkg/database"
)

// Repository serves the collaborator tables. Writers live outside this
// service; everything here is read-only.
type Repository struct {
	db *pgxpool.Pool
}

var (
	_ contracts.ResourceDirectory       = (*Repository)(nil)
	_ contracts.MeasurementStore        = (*Repository)(nil)
	_ contracts.HistoricalForecastStore = (*Repository)(nil)
)

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetResource retrieves a resource by id
func (r *Repository) GetResource(ctx context.Context, id uuid.UUID) (*contracts.Resource, error) {
	var res contracts.Resource
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, name, timezone
		FROM market.resources
		WHERE id = $1`, id,
	).Scan(&res.ID, &res.UserID, &res.Name, &res.Timezone)
	if database.IsNoRows(err) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query resource: %w", err)
	}
	return &res, nil
}

// CountMeasurements counts every raw data point of a resource
func (r *Repository) CountMeasurements(ctx context.Context, resourceID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM market.raw_data WHERE resource_id = $1`, resourceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count raw data: %w", err)
	}
	return n, nil
}

// RangeMeasurements returns raw data with from <= datetime <= to
func (r *Repository) RangeMeasurements(ctx context.Context, resourceID uuid.UUID, from, to time.Time) ([]contracts.Measurement, error) {
	rows, err := r.db.Query(ctx, `
		SELECT datetime, value
		FROM market.raw_data
		WHERE resource_id = $1 AND datetime >= $2 AND datetime <= $3
		ORDER BY datetime`, resourceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query raw data: %w", err)
	}

	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[contracts.Measurement])
	if err != nil {
		return nil, fmt.Errorf("scan raw data: %w", err)
	}
	return out, nil
}

// UploadedTimes returns historical forecast datetimes of key in [from, to)
func (r *Repository) UploadedTimes(ctx context.Context, key contracts.SampleKey, from, to time.Time) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT datetime
		FROM market.historical_forecasts
		WHERE user_id = $1 AND resource_id = $2 AND variable = $3
		  AND datetime >= $4 AND datetime < $5`,
		key.UserID, key.ResourceID, string(key.Variable), from, to)
	if err != nil {
		return nil, fmt.Errorf("query historical forecasts: %w", err)
	}

	out, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("scan historical forecasts: %w", err)
	}
	return out, nil
}
