package ensemble

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/challenge"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/horizon"
	"github.com/wonny/predico/internal/memstore"
	"github.com/wonny/predico/pkg/logger"
)

type fixture struct {
	store      *memstore.Store
	challenges *challenge.Manager
	registry   *Registry
	manager    contracts.Caller
	maker      contracts.Caller
	challenge  *contracts.Challenge
	session    *contracts.MarketSession
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	maker := contracts.Caller{UserID: uuid.New(), Role: contracts.RoleMarketMaker}
	resource := contracts.Resource{ID: uuid.New(), UserID: maker.UserID, Timezone: "UTC"}
	store.AddResource(resource)
	store.AddMeasurements(resource.ID, contracts.Measurement{Datetime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})

	sess, err := store.Sessions().Create(ctx, time.Date(2024, 6, 24, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	manager := challenge.NewManager(store.Challenges(), store.Sessions(), store, store, nil, nil,
		challenge.Settings{MinRawDataPoints: 1, Resolution: horizon.Resolution60m}, logger.Nop())
	c, err := manager.Create(ctx, maker, challenge.CreateInput{
		SessionID: sess.ID, ResourceID: resource.ID, UseCase: contracts.UseCaseWindPower,
	})
	require.NoError(t, err)

	running := contracts.SessionRunning
	_, err = store.Sessions().Update(ctx, sess.ID, contracts.SessionPatch{Status: &running})
	require.NoError(t, err)

	return &fixture{
		store:      store,
		challenges: manager,
		registry:   NewRegistry(store.Ensembles(), manager, nil, logger.Nop()),
		manager:    contracts.Caller{UserID: uuid.New(), Role: contracts.RoleSessionManager},
		maker:      maker,
		challenge:  c,
		session:    sess,
	}
}

func (f *fixture) input(model string) CreateInput {
	lts := f.challenges.ExpectedLeadtimes(f.challenge)
	points := make([]contracts.ForecastPoint, len(lts))
	for i, ts := range lts {
		points[i] = contracts.ForecastPoint{Datetime: ts, Value: float64(i)}
	}
	return CreateInput{Model: model, Variable: contracts.VariableQ50, Forecasts: points}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e, err := f.registry.Create(ctx, f.manager, f.challenge.ID, f.input("LR"))
	require.NoError(t, err)
	assert.Equal(t, "LR", e.Model)

	_, err = f.registry.Create(ctx, f.manager, f.challenge.ID, f.input("LR"))
	assert.True(t, apperr.HasCode(err, apperr.CodeSubmissionAlreadyExists))

	_, err = f.registry.Create(ctx, f.maker, f.challenge.ID, f.input("GBR"))
	assert.True(t, apperr.HasCode(err, apperr.CodePermissionDenied))

	_, err = f.registry.Create(ctx, f.manager, uuid.New(), f.input("GBR"))
	assert.True(t, apperr.HasCode(err, apperr.CodeChallengeNotRegistered))

	short := f.input("GBR")
	short.Forecasts = short.Forecasts[1:]
	_, err = f.registry.Create(ctx, f.manager, f.challenge.ID, short)
	assert.True(t, apperr.HasCode(err, apperr.CodeIncompleteSubmission))

	list, err := f.registry.List(ctx, f.maker, f.challenge.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Points, 24)

	forecaster := contracts.Caller{UserID: uuid.New(), Role: contracts.RoleForecaster}
	_, err = f.registry.List(ctx, forecaster, f.challenge.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestCreate_RequiresRunningSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	finished := contracts.SessionFinished
	_, err := f.store.Sessions().Update(ctx, f.session.ID, contracts.SessionPatch{Status: &finished})
	require.NoError(t, err)

	_, err = f.registry.Create(ctx, f.manager, f.challenge.ID, f.input("LR"))
	assert.True(t, apperr.HasCode(err, apperr.CodeChallengeNotRunning))
}

func TestSetWeights_WriteOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, err := f.registry.Create(ctx, f.manager, f.challenge.ID, f.input("LR"))
	require.NoError(t, err)

	require.NoError(t, f.registry.SetWeights(ctx, f.manager, e.ID, json.RawMessage(`{"a": 0.4}`)))

	err = f.registry.SetWeights(ctx, f.manager, e.ID, json.RawMessage(`{"a": 0.6}`))
	assert.True(t, apperr.HasCode(err, apperr.CodeEnsembleWeightsAlreadySet))
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	err = f.registry.SetWeights(ctx, f.manager, uuid.New(), json.RawMessage(`{}`))
	assert.True(t, apperr.HasCode(err, apperr.CodeEnsembleNotFound))

	err = f.registry.SetWeights(ctx, f.manager, e.ID, json.RawMessage(`null`))
	assert.True(t, apperr.IsKind(err, apperr.KindBadParameter))
}

func TestWeightContributions_Ranking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e, err := f.registry.Create(ctx, f.manager, f.challenge.ID, f.input("LR"))
	require.NoError(t, err)

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	for user, v := range map[uuid.UUID]float64{a: 0.5, b: 0.5, c: 0.1} {
		_, err := f.registry.CreateWeightContribution(ctx, f.manager, e.ID, ContributionInput{UserID: user, Value: v})
		require.NoError(t, err)
	}
	_, err = f.registry.CreateWeightContribution(ctx, f.manager, uuid.New(), ContributionInput{UserID: a, Value: 1})
	assert.True(t, apperr.HasCode(err, apperr.CodeEnsembleNotFound))

	full, err := f.registry.ListWeightContributions(ctx, f.maker, f.challenge.ID)
	require.NoError(t, err)
	require.Len(t, full, 3)
	assert.Equal(t, 1, full[0].Rank)
	assert.Equal(t, 1, full[1].Rank)
	assert.Equal(t, 3, full[2].Rank)
	require.NotNil(t, full[2].UserID)
	assert.Equal(t, c, *full[2].UserID)

	self, err := f.registry.ListWeightContributions(ctx, contracts.Caller{UserID: c, Role: contracts.RoleForecaster}, f.challenge.ID)
	require.NoError(t, err)
	require.Len(t, self, 1)
	assert.Equal(t, 3, self[0].Rank)
	assert.Equal(t, 3, self[0].TotalParticipants)
	assert.Nil(t, self[0].UserID)
	assert.Nil(t, self[0].Value)
}
