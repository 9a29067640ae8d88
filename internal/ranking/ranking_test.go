package ranking

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/predico/internal/contracts"
)

func TestCompetitionRanks(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		order  Order
		want   []int
	}{
		{"ties share rank", []float64{10, 10, 20}, Ascending, []int{1, 1, 3}},
		{"descending", []float64{0.2, 0.5, 0.5, 0.1}, Descending, []int{3, 1, 1, 4}},
		{"all equal", []float64{1, 1, 1}, Ascending, []int{1, 1, 1}},
		{"unsorted input", []float64{3, 1, 2}, Ascending, []int{3, 1, 2}},
		{"empty", nil, Ascending, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompetitionRanks(tt.values, tt.order))
		})
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{10, 10, 20})
	assert.Equal(t, 13.333, s.Mean)
	assert.Equal(t, 10.0, s.Min)
	assert.Equal(t, 20.0, s.Max)
	assert.Equal(t, 4.714, s.Std) // population standard deviation
	assert.Equal(t, 3, s.Participants)

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestRankScores_TiesAndPartitions(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	rows := []contracts.ScoreRow{
		{SubmissionID: uuid.New(), UserID: a, Variable: contracts.VariableQ50, Metric: contracts.MetricMAE, Value: 10},
		{SubmissionID: uuid.New(), UserID: b, Variable: contracts.VariableQ50, Metric: contracts.MetricMAE, Value: 10},
		{SubmissionID: uuid.New(), UserID: c, Variable: contracts.VariableQ50, Metric: contracts.MetricMAE, Value: 20},
		{SubmissionID: uuid.New(), UserID: a, Variable: contracts.VariableQ50, Metric: contracts.MetricRMSE, Value: 3},
	}

	ranked := RankScores(rows)
	require.Len(t, ranked, 4)

	byUser := map[uuid.UUID]RankedScore{}
	for _, r := range ranked {
		if r.Metric == contracts.MetricMAE {
			byUser[r.UserID] = r
		}
	}
	assert.Equal(t, 1, byUser[a].Rank)
	assert.Equal(t, 1, byUser[b].Rank)
	assert.Equal(t, 3, byUser[c].Rank)
	for _, r := range byUser {
		assert.Equal(t, 3, r.TotalParticipants)
	}

	rmse := ranked[3]
	assert.Equal(t, contracts.MetricRMSE, rmse.Metric)
	assert.Equal(t, 1, rmse.Rank)
	assert.Equal(t, 1, rmse.TotalParticipants)
}

func TestAggregateScores(t *testing.T) {
	rows := []contracts.ScoreRow{
		{UserID: uuid.New(), Variable: contracts.VariableQ10, Metric: contracts.MetricPinball, Value: 1.2344},
		{UserID: uuid.New(), Variable: contracts.VariableQ10, Metric: contracts.MetricPinball, Value: 2.0},
		{UserID: uuid.New(), Variable: contracts.VariableQ50, Metric: contracts.MetricPinball, Value: 5},
	}

	aggs := AggregateScores(rows)
	require.Len(t, aggs, 2)
	assert.Equal(t, contracts.VariableQ10, aggs[0].Variable)
	assert.Equal(t, 1.617, aggs[0].Mean)
	assert.Equal(t, 1.234, aggs[0].Min)
	assert.Equal(t, 2, aggs[0].Participants)
	assert.Equal(t, contracts.VariableQ50, aggs[1].Variable)
	assert.Equal(t, 0.0, aggs[1].Std)
}

func TestRankWeights_PerEnsemble(t *testing.T) {
	e1, e2 := uuid.New(), uuid.New()
	a, b := uuid.New(), uuid.New()
	rows := []contracts.WeightRow{
		{EnsembleWeight: contracts.EnsembleWeight{EnsembleID: e1, UserID: a, Value: 0.3}},
		{EnsembleWeight: contracts.EnsembleWeight{EnsembleID: e1, UserID: b, Value: 0.7}},
		{EnsembleWeight: contracts.EnsembleWeight{EnsembleID: e2, UserID: a, Value: 1.0}},
	}

	ranked := RankWeights(rows)
	require.Len(t, ranked, 3)
	assert.Equal(t, b, ranked[0].UserID)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Equal(t, 2, ranked[1].TotalParticipants)
	assert.Equal(t, e2, ranked[2].EnsembleID)
	assert.Equal(t, 1, ranked[2].TotalParticipants)
}

func TestProjectContributions(t *testing.T) {
	owner, a, b := uuid.New(), uuid.New(), uuid.New()
	e := uuid.New()
	ranked := RankWeights([]contracts.WeightRow{
		{EnsembleWeight: contracts.EnsembleWeight{EnsembleID: e, UserID: a, Value: 0.4}, Model: "LR"},
		{EnsembleWeight: contracts.EnsembleWeight{EnsembleID: e, UserID: b, Value: 0.6}, Model: "LR"},
	})

	t.Run("owner sees everything", func(t *testing.T) {
		caller := contracts.Caller{UserID: owner, Role: contracts.RoleMarketMaker}
		views := ProjectContributions(ranked, caller, ScopeFor(caller, owner))
		require.Len(t, views, 2)
		require.NotNil(t, views[0].UserID)
		assert.Equal(t, b, *views[0].UserID)
		assert.Equal(t, 0.6, *views[0].Value)
	})

	t.Run("forecaster sees own stripped row", func(t *testing.T) {
		caller := contracts.Caller{UserID: a, Role: contracts.RoleForecaster}
		views := ProjectContributions(ranked, caller, ScopeFor(caller, owner))
		require.Len(t, views, 1)
		assert.Nil(t, views[0].UserID)
		assert.Nil(t, views[0].Value)
		assert.Equal(t, 2, views[0].Rank)
		assert.Equal(t, 2, views[0].TotalParticipants)
	})

	t.Run("session manager sees everything", func(t *testing.T) {
		caller := contracts.Caller{UserID: uuid.New(), Role: contracts.RoleSessionManager}
		assert.Equal(t, ScopeFull, ScopeFor(caller, owner))
	})
}

func TestProjectPersonalScores(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ranked := RankScores([]contracts.ScoreRow{
		{UserID: a, Variable: contracts.VariableQ50, Metric: contracts.MetricMAE, Value: 1},
		{UserID: b, Variable: contracts.VariableQ50, Metric: contracts.MetricMAE, Value: 2},
	})

	own := ProjectPersonalScores(ranked, contracts.Caller{UserID: b}, ScopeSelf)
	require.Len(t, own, 1)
	assert.Equal(t, 2, own[0].Rank)

	assert.Len(t, ProjectPersonalScores(ranked, contracts.Caller{UserID: b}, ScopeFull), 2)
}

func TestRankScores_QuantilesRankedSeparately(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	rows := []contracts.ScoreRow{
		{SubmissionID: uuid.New(), UserID: a, Variable: contracts.VariableQ10, Metric: contracts.MetricPinball, Value: 5},
		{SubmissionID: uuid.New(), UserID: b, Variable: contracts.VariableQ90, Metric: contracts.MetricPinball, Value: 1},
	}

	ranked := RankScores(rows)
	require.Len(t, ranked, 2)
	for _, r := range ranked {
		assert.Equal(t, 1, r.Rank, "variable %s", r.Variable)
		assert.Equal(t, 1, r.TotalParticipants)
	}
}
