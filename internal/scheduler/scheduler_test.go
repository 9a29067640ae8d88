package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/pkg/logger"
)

type stubJob struct {
	name     string
	schedule string
	calls    atomic.Int32
	run      func(attempt int32) error
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }
func (j *stubJob) Run(context.Context) error {
	n := j.calls.Add(1)
	if j.run == nil {
		return nil
	}
	return j.run(n)
}

func newTestScheduler() *Scheduler {
	return New(logger.Nop(), WithRetry(2, time.Millisecond), WithTimeout(time.Second))
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddJob(&stubJob{name: "a", schedule: "0 0 9 * * *"}))
	assert.Error(t, s.AddJob(&stubJob{name: "a", schedule: "0 0 9 * * *"}), "duplicate name")
	assert.Error(t, s.AddJob(&stubJob{name: "b", schedule: "0 9 * * *"}), "five fields")

	require.NoError(t, s.AddJob(&stubJob{name: "c", schedule: "0 0 10 * * *"}))
	assert.Equal(t, []string{"a", "c"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"c"}, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("a"))
}

func TestRunJob_RetriesTransientErrors(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "flaky", schedule: "0 0 9 * * *", run: func(n int32) error {
		if n < 3 {
			return errors.New("connection reset")
		}
		return nil
	}}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(3), job.calls.Load())
}

func TestRunJob_GivesUpAfterMaxRetries(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "broken", schedule: "0 0 9 * * *", run: func(int32) error {
		return errors.New("connection reset")
	}}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "connection reset", result.Error)
	assert.Equal(t, int32(3), job.calls.Load())
}

func TestRunJob_MarketErrorsAreFinal(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "conflict", schedule: "0 0 9 * * *", run: func(int32) error {
		return apperr.Conflict(apperr.CodeInvalidSessionTransition, "cannot move")
	}}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob(context.Background(), "conflict")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestRunJob_Unknown(t *testing.T) {
	_, err := newTestScheduler().RunJob(context.Background(), "missing")
	assert.Error(t, err)
}

func TestGetJobStats(t *testing.T) {
	s := newTestScheduler()
	fail := true
	job := &stubJob{name: "stats", schedule: "0 0 9 * * *", run: func(int32) error {
		if fail {
			return apperr.Conflict("x", "y")
		}
		return nil
	}}
	require.NoError(t, s.AddJob(job))

	_, _ = s.RunJob(context.Background(), "stats")
	fail = false
	_, _ = s.RunJob(context.Background(), "stats")

	stats := s.GetJobStats()["stats"]
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)
	require.NotNil(t, stats.LastSuccess)
	assert.Nil(t, stats.LastFailure)

	history, err := s.GetJobHistory("stats")
	require.NoError(t, err)
	assert.Len(t, history.GetFailedResults(), 1)
}

func TestJobHistory_Cap(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < historyLimit+5; i++ {
		h.AddResult(JobResult{Success: true})
	}
	assert.Len(t, h.Results, historyLimit)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Empty(t, (&JobHistory{}).GetLatestResults(3))
	assert.Equal(t, 0.0, (&JobHistory{}).GetSuccessRate())
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&stubJob{name: "tick", schedule: "* * * * * *"}))
	s.Start()
	s.Stop()
}
