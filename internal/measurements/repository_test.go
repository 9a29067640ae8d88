package measurements

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/pkg/config"
	"github.com/wonny/predico/pkg/database"
	"github.com/wonny/predico/pkg/logger"
)

func TestRepository_Integration(t *testing.T) {
	// Skip if DATABASE_URL is not set
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	db, err := database.New(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err = db.Migrate(ctx, logger.Nop())
	require.NoError(t, err)

	repo := NewRepository(db.Pool)

	_, err = repo.GetResource(ctx, uuid.New())
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	res := contracts.Resource{ID: uuid.New(), UserID: uuid.New(), Name: "wind-farm", Timezone: "Europe/Lisbon"}
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO market.resources (id, user_id, name, timezone) VALUES ($1, $2, $3, $4)`,
		res.ID, res.UserID, res.Name, res.Timezone)
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		_, err = db.Pool.Exec(ctx,
			`INSERT INTO market.raw_data (resource_id, datetime, value) VALUES ($1, $2, $3)`,
			res.ID, base.Add(time.Duration(i)*time.Hour), float64(i))
		require.NoError(t, err)
	}

	got, err := repo.GetResource(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res, *got)

	n, err := repo.CountMeasurements(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	ms, err := repo.RangeMeasurements(ctx, res.ID, base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, 1.0, ms[0].Value)

	key := contracts.SampleKey{UserID: uuid.New(), ResourceID: res.ID, Variable: contracts.VariableQ50}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO market.historical_forecasts (user_id, resource_id, variable, datetime, value)
		VALUES ($1, $2, $3, $4, 1), ($1, $2, $3, $5, 1)`,
		key.UserID, key.ResourceID, string(key.Variable), base, base.Add(time.Hour))
	require.NoError(t, err)

	ts, err := repo.UploadedTimes(ctx, key, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, ts, 1)
}
