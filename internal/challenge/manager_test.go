package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/horizon"
	"github.com/wonny/predico/internal/memstore"
	"github.com/wonny/predico/pkg/logger"
)

type fixture struct {
	store    *memstore.Store
	manager  *Manager
	maker    contracts.Caller
	resource contracts.Resource
	session  *contracts.MarketSession
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func newFixture(t *testing.T, minRaw int) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	maker := contracts.Caller{UserID: uuid.New(), Role: contracts.RoleMarketMaker}
	resource := contracts.Resource{ID: uuid.New(), UserID: maker.UserID, Name: "wind-farm-1", Timezone: "Europe/Brussels"}
	store.AddResource(resource)
	for i := 0; i < minRaw; i++ {
		store.AddMeasurements(resource.ID, contracts.Measurement{
			Datetime: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 15 * time.Minute),
			Value:    float64(i),
		})
	}

	sess, err := store.Sessions().Create(ctx, mustTime(t, "2024-06-24T09:19:23Z"))
	require.NoError(t, err)

	m := NewManager(store.Challenges(), store.Sessions(), store, store, nil, nil,
		Settings{MinRawDataPoints: minRaw, Resolution: horizon.Resolution15m}, logger.Nop())

	return &fixture{store: store, manager: m, maker: maker, resource: resource, session: sess}
}

func (f *fixture) input() CreateInput {
	return CreateInput{SessionID: f.session.ID, ResourceID: f.resource.ID, UseCase: contracts.UseCaseWindPower}
}

func TestCreate_ComputesBrusselsHorizon(t *testing.T) {
	f := newFixture(t, 10)

	c, err := f.manager.Create(context.Background(), f.maker, f.input())
	require.NoError(t, err)

	assert.Equal(t, "2024-06-25", c.TargetDay.Format("2006-01-02"))
	assert.Equal(t, mustTime(t, "2024-06-24T22:00:00Z"), c.StartDatetime)
	assert.Equal(t, mustTime(t, "2024-06-25T21:45:00Z"), c.EndDatetime)
	assert.Equal(t, f.maker.UserID, c.UserID)
	assert.Len(t, f.manager.ExpectedLeadtimes(c), 96)
}

func TestCreate_OneChallengePerSessionUserResource(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, f.maker, f.input())
	require.NoError(t, err)

	_, err = f.manager.Create(ctx, f.maker, f.input())
	assert.True(t, apperr.HasCode(err, apperr.CodeChallengeAlreadyExists))
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestCreate_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("resource of another user", func(t *testing.T) {
		f := newFixture(t, 10)
		other := contracts.Caller{UserID: uuid.New(), Role: contracts.RoleMarketMaker}
		_, err := f.manager.Create(ctx, other, f.input())
		assert.True(t, apperr.HasCode(err, apperr.CodeResourceNotRegistered))
	})

	t.Run("unknown resource", func(t *testing.T) {
		f := newFixture(t, 10)
		in := f.input()
		in.ResourceID = uuid.New()
		_, err := f.manager.Create(ctx, f.maker, in)
		assert.True(t, apperr.HasCode(err, apperr.CodeResourceNotRegistered))
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t, 10)
		in := f.input()
		in.SessionID = 99
		_, err := f.manager.Create(ctx, f.maker, in)
		assert.True(t, apperr.HasCode(err, apperr.CodeNoSuchSession))
	})

	t.Run("session not open", func(t *testing.T) {
		f := newFixture(t, 10)
		closed := contracts.SessionClosed
		_, err := f.store.Sessions().Update(ctx, f.session.ID, contracts.SessionPatch{Status: &closed})
		require.NoError(t, err)

		_, err = f.manager.Create(ctx, f.maker, f.input())
		assert.True(t, apperr.HasCode(err, apperr.CodeSessionNotOpenForChallenges))
	})

	t.Run("not enough raw data", func(t *testing.T) {
		f := newFixture(t, 10)
		f.manager.settings.MinRawDataPoints = 11
		_, err := f.manager.Create(ctx, f.maker, f.input())
		assert.True(t, apperr.HasCode(err, apperr.CodeNotEnoughHistoricalData))
		assert.True(t, apperr.IsKind(err, apperr.KindInsufficientHistory))
	})

	t.Run("bad use case", func(t *testing.T) {
		f := newFixture(t, 10)
		in := f.input()
		in.UseCase = "solar"
		_, err := f.manager.Create(ctx, f.maker, in)
		assert.True(t, apperr.IsKind(err, apperr.KindBadParameter))
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	c, err := f.manager.Create(ctx, f.maker, f.input())
	require.NoError(t, err)

	ramp := contracts.UseCaseWindPowerRamp
	updated, err := f.manager.Update(ctx, f.maker, c.ID, contracts.ChallengePatch{UseCase: &ramp})
	require.NoError(t, err)
	assert.Equal(t, ramp, updated.UseCase)

	stranger := contracts.Caller{UserID: uuid.New(), Role: contracts.RoleMarketMaker}
	_, err = f.manager.Update(ctx, stranger, c.ID, contracts.ChallengePatch{UseCase: &ramp})
	assert.True(t, apperr.HasCode(err, apperr.CodeNotRegisteredToUser))

	_, err = f.manager.Update(ctx, f.maker, uuid.New(), contracts.ChallengePatch{UseCase: &ramp})
	assert.True(t, apperr.HasCode(err, apperr.CodeChallengeNotRegistered))

	_, err = f.manager.Update(ctx, f.maker, c.ID, contracts.ChallengePatch{})
	assert.True(t, apperr.IsKind(err, apperr.KindBadParameter))

	running := contracts.SessionRunning
	_, err = f.store.Sessions().Update(ctx, f.session.ID, contracts.SessionPatch{Status: &running})
	require.NoError(t, err)
	_, err = f.manager.Update(ctx, f.maker, c.ID, contracts.ChallengePatch{UseCase: &ramp})
	assert.True(t, apperr.HasCode(err, apperr.CodeSessionNotOpenForChallenges))
}

func TestGetSolutionAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	c, err := f.manager.Create(ctx, f.maker, f.input())
	require.NoError(t, err)

	f.store.AddMeasurements(f.resource.ID,
		contracts.Measurement{Datetime: c.StartDatetime, Value: 1},
		contracts.Measurement{Datetime: c.EndDatetime, Value: 2},
		contracts.Measurement{Datetime: c.EndDatetime.Add(15 * time.Minute), Value: 3},
	)

	sol, err := f.manager.GetSolution(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, sol.Challenge.ID)
	assert.Len(t, sol.Measurements, 2)

	open, err := f.manager.List(ctx, contracts.ChallengeFilter{OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	other := int64(7)
	none, err := f.manager.List(ctx, contracts.ChallengeFilter{SessionID: &other})
	require.NoError(t, err)
	assert.Empty(t, none)
}
