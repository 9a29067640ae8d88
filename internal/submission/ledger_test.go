package submission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/challenge"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/eligibility"
	"github.com/wonny/predico/internal/horizon"
	"github.com/wonny/predico/internal/memstore"
	"github.com/wonny/predico/pkg/logger"
)

const minHistory = 4

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Notify(context.Context, string, string, map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
}

// failingCreate fails every insert after validation passed
type failingCreate struct {
	contracts.SubmissionRepository
}

func (failingCreate) Create(context.Context, *contracts.Submission, []contracts.ForecastPoint) error {
	return errors.New("copy submission forecasts: connection reset")
}

type fixture struct {
	store      *memstore.Store
	challenges *challenge.Manager
	ledger     *Ledger
	notifier   *countingNotifier
	maker      contracts.Caller
	forecaster contracts.Caller
	challenge  *contracts.Challenge
	session    *contracts.MarketSession
}

func newFixture(t *testing.T, repo func(*memstore.Store) contracts.SubmissionRepository) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	maker := contracts.Caller{UserID: uuid.New(), Role: contracts.RoleMarketMaker}
	forecaster := contracts.Caller{UserID: uuid.New(), Role: contracts.RoleForecaster}
	resource := contracts.Resource{ID: uuid.New(), UserID: maker.UserID, Timezone: "Europe/Brussels"}
	store.AddResource(resource)
	store.AddMeasurements(resource.ID, contracts.Measurement{Datetime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})

	sess, err := store.Sessions().Create(ctx, time.Date(2024, 6, 24, 9, 19, 23, 0, time.UTC))
	require.NoError(t, err)

	manager := challenge.NewManager(store.Challenges(), store.Sessions(), store, store, nil, nil,
		challenge.Settings{MinRawDataPoints: 1, Resolution: horizon.Resolution60m}, logger.Nop())
	c, err := manager.Create(ctx, maker, challenge.CreateInput{
		SessionID: sess.ID, ResourceID: resource.ID, UseCase: contracts.UseCaseWindPower,
	})
	require.NoError(t, err)

	// enough uploaded history for q50 and q10
	for _, v := range []contracts.Variable{contracts.VariableQ50, contracts.VariableQ10} {
		key := contracts.SampleKey{UserID: forecaster.UserID, ResourceID: resource.ID, Variable: v}
		for i := 0; i < minHistory; i++ {
			store.AddUploads(key, c.StartDatetime.Add(-time.Duration(i+1)*time.Hour))
		}
	}

	var subRepo contracts.SubmissionRepository = store.Submissions()
	if repo != nil {
		subRepo = repo(store)
	}

	n := &countingNotifier{}
	checker := eligibility.NewChecker(40, minHistory,
		eligibility.NewSubmissionHistory(store.Submissions()), eligibility.NewUploadHistory(store))
	ledger := NewLedger(subRepo, manager, checker, n, nil, logger.Nop())

	return &fixture{
		store: store, challenges: manager, ledger: ledger, notifier: n,
		maker: maker, forecaster: forecaster, challenge: c, session: sess,
	}
}

func (f *fixture) points(value float64) []contracts.ForecastPoint {
	lts := f.challenges.ExpectedLeadtimes(f.challenge)
	out := make([]contracts.ForecastPoint, len(lts))
	for i, ts := range lts {
		out[i] = contracts.ForecastPoint{Datetime: ts, Value: value}
	}
	return out
}

func (f *fixture) submit(v contracts.Variable, points []contracts.ForecastPoint) (*contracts.SubmissionReceipt, error) {
	return f.ledger.CreateOrUpdate(context.Background(), f.forecaster, f.challenge.ID, Input{Variable: v, Forecasts: points})
}

func TestCreateOrUpdate_Q50Prerequisite(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.submit(contracts.VariableQ10, f.points(1))
	assert.True(t, apperr.HasCode(err, apperr.CodeMissingQ50Forecasts))
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	_, err = f.submit(contracts.VariablePoint, f.points(1))
	assert.True(t, apperr.HasCode(err, apperr.CodeMissingQ50Forecasts))

	_, err = f.submit(contracts.VariableQ50, f.points(1))
	require.NoError(t, err)

	receipt, err := f.submit(contracts.VariableQ10, f.points(1))
	require.NoError(t, err)
	assert.Equal(t, f.challenge.ID, receipt.ChallengeID)
	assert.False(t, receipt.Updated)
}

func TestCreateOrUpdate_ReplacesWholePointSet(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.submit(contracts.VariableQ50, f.points(1))
	require.NoError(t, err)
	second, err := f.submit(contracts.VariableQ50, f.points(2))
	require.NoError(t, err)

	assert.True(t, second.Updated)
	assert.Equal(t, first.SubmissionID, second.SubmissionID)

	subs, err := f.store.Submissions().List(ctx, contracts.SubmissionFilter{ChallengeID: &f.challenge.ID})
	require.NoError(t, err)
	require.Len(t, subs, 1)

	points, err := f.store.Submissions().Points(ctx, first.SubmissionID)
	require.NoError(t, err)
	require.Len(t, points, 24)
	for _, p := range points {
		assert.Equal(t, 2.0, p.Value)
	}

	// notifications fire on creation only
	assert.Equal(t, 1, f.notifier.count)
}

func TestCreateOrUpdate_LeadtimeCompleteness(t *testing.T) {
	f := newFixture(t, nil)
	full := f.points(1)

	_, err := f.submit(contracts.VariableQ50, full[1:])
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeIncompleteSubmission, e.Code)
	assert.Equal(t, apperr.KindValidationFailed, e.Kind)
	assert.Equal(t, []time.Time{full[0].Datetime}, e.Details.(horizon.Completeness).Missing)

	extra := contracts.ForecastPoint{Datetime: f.challenge.EndDatetime.Add(time.Hour), Value: 1}
	_, err = f.submit(contracts.VariableQ50, append(append([]contracts.ForecastPoint{}, full...), extra))
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeIncorrectSubmission, e.Code)
	assert.Equal(t, []time.Time{extra.Datetime}, e.Details.(horizon.Completeness).Extra)
}

func TestCreateOrUpdate_Eligibility(t *testing.T) {
	f := newFixture(t, nil)

	// q90 has no uploads at all; give it one less than required
	key := contracts.SampleKey{UserID: f.forecaster.UserID, ResourceID: f.challenge.ResourceID, Variable: contracts.VariableQ90}
	for i := 0; i < minHistory-1; i++ {
		f.store.AddUploads(key, f.challenge.StartDatetime.Add(-time.Duration(i+1)*time.Hour))
	}
	_, err := f.submit(contracts.VariableQ50, f.points(1))
	require.NoError(t, err)

	_, err = f.submit(contracts.VariableQ90, f.points(1))
	assert.True(t, apperr.HasCode(err, apperr.CodeNotEnoughDataToSubmit))
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientHistory))
}

func TestCreateOrUpdate_ChallengeState(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.ledger.CreateOrUpdate(ctx, f.forecaster, uuid.New(), Input{Variable: contracts.VariableQ50, Forecasts: f.points(1)})
	assert.True(t, apperr.HasCode(err, apperr.CodeChallengeNotRegistered))

	closed := contracts.SessionClosed
	_, err = f.store.Sessions().Update(ctx, f.session.ID, contracts.SessionPatch{Status: &closed})
	require.NoError(t, err)

	_, err = f.submit(contracts.VariableQ50, f.points(1))
	assert.True(t, apperr.HasCode(err, apperr.CodeChallengeNotOpen))

	_, err = f.submit("q99", f.points(1))
	assert.True(t, apperr.IsKind(err, apperr.KindBadParameter))
}

func TestCreateOrUpdate_PersistenceFailureWritesNothing(t *testing.T) {
	f := newFixture(t, func(s *memstore.Store) contracts.SubmissionRepository {
		return failingCreate{s.Submissions()}
	})

	_, err := f.submit(contracts.VariableQ50, f.points(1))
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeFailedToInsertSubmission))
	assert.True(t, apperr.IsKind(err, apperr.KindPersistenceFailure))
	assert.NotContains(t, err.Error(), "connection reset")

	subs, err := f.store.Submissions().List(context.Background(), contracts.SubmissionFilter{})
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Equal(t, 0, f.notifier.count)
}

func TestCreateOrUpdate_ConcurrentFirstSubmissions(t *testing.T) {
	f := newFixture(t, nil)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.submit(contracts.VariableQ50, f.points(float64(i)))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.True(t, apperr.HasCode(err, apperr.CodeSubmissionAlreadyExists), err.Error())
		}
	}

	subs, err := f.store.Submissions().List(context.Background(), contracts.SubmissionFilter{})
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestList_Scoping(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.submit(contracts.VariableQ50, f.points(1))
	require.NoError(t, err)

	own, err := f.ledger.List(ctx, f.forecaster, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, own, 1)

	other := contracts.Caller{UserID: uuid.New(), Role: contracts.RoleForecaster}
	none, err := f.ledger.List(ctx, other, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.ledger.List(ctx, other, ListFilter{UserID: &f.forecaster.UserID})
	assert.True(t, apperr.HasCode(err, apperr.CodePermissionDenied))

	asOwner, err := f.ledger.List(ctx, f.maker, ListFilter{UserID: &f.forecaster.UserID})
	require.NoError(t, err)
	assert.Len(t, asOwner, 1)

	otherMaker := contracts.Caller{UserID: uuid.New(), Role: contracts.RoleMarketMaker}
	notOwner, err := f.ledger.List(ctx, otherMaker, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, notOwner)

	all, err := f.ledger.List(ctx, contracts.SystemCaller(), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
