package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/memstore"
	"github.com/wonny/predico/internal/scheduler"
	"github.com/wonny/predico/internal/session"
	"github.com/wonny/predico/pkg/config"
	"github.com/wonny/predico/pkg/logger"
)

func newRegistry() *session.Registry {
	r := session.NewRegistry(memstore.New().Sessions(), nil, nil, logger.Nop())
	r.SetStrictTransitions(true)
	return r
}

func latestStatus(t *testing.T, r *session.Registry) contracts.SessionStatus {
	t.Helper()
	sessions, err := r.List(context.Background(), contracts.SessionFilter{LatestOnly: true})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	return sessions[0].Status
}

func TestSessionLifecycle_FullDay(t *testing.T) {
	ctx := context.Background()
	registry := newRegistry()
	log := logger.Nop()

	open := NewOpenSessionJob(registry, "0 0 9 * * *", log)
	require.NoError(t, open.Run(ctx))
	assert.Equal(t, contracts.SessionOpen, latestStatus(t, registry))

	// an unfinished session blocks the next open without failing the job
	require.NoError(t, open.Run(ctx))
	all, err := registry.List(ctx, contracts.SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	steps := []struct {
		job  *TransitionJob
		want contracts.SessionStatus
	}{
		{NewCloseSessionJob(registry, "0 0 10 * * *", log), contracts.SessionClosed},
		{NewRunSessionJob(registry, "0 5 10 * * *", log), contracts.SessionRunning},
		{NewFinishSessionJob(registry, "0 0 8 * * *", log), contracts.SessionFinished},
	}
	for _, step := range steps {
		require.NoError(t, step.job.Run(ctx), step.job.Name())
		assert.Equal(t, step.want, latestStatus(t, registry))
	}

	sess, err := registry.Latest(ctx, contracts.SessionFinished)
	require.NoError(t, err)
	assert.NotNil(t, sess.CloseTS)
	assert.NotNil(t, sess.LaunchTS)
	assert.NotNil(t, sess.FinishTS)

	// a finished session frees the market for the next day
	require.NoError(t, open.Run(ctx))
	assert.Equal(t, contracts.SessionOpen, latestStatus(t, registry))
}

func TestTransitionJob_NothingToMove(t *testing.T) {
	registry := newRegistry()
	job := NewRunSessionJob(registry, "0 5 10 * * *", logger.Nop())

	assert.NoError(t, job.Run(context.Background()))
	all, err := registry.List(context.Background(), contracts.SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSessionLifecycle_Schedules(t *testing.T) {
	cfg := config.MarketConfig{
		SessionOpenCron:   "0 0 9 * * *",
		SessionCloseCron:  "0 0 10 * * *",
		SessionRunCron:    "0 5 10 * * *",
		SessionFinishCron: "0 0 8 * * *",
	}
	lifecycle := SessionLifecycle(newRegistry(), cfg, logger.Nop())
	require.Len(t, lifecycle, 4)

	s := scheduler.New(logger.Nop())
	for _, job := range lifecycle {
		require.NoError(t, s.AddJob(job))
	}
	assert.Equal(t, []string{"session_close", "session_finish", "session_open", "session_run"}, s.GetAllJobs())
	assert.Equal(t, "0 5 10 * * *", s.GetJobStats()["session_run"].Schedule)
}
