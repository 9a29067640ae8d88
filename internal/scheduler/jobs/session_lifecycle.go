package jobs

import (
	"context"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/scheduler"
	"github.com/wonny/predico/internal/session"
	"github.com/wonny/predico/pkg/config"
	"github.com/wonny/predico/pkg/logger"
)

// OpenSessionJob opens the daily market session
type OpenSessionJob struct {
	registry *session.Registry
	schedule string
	logger   *logger.Logger
}

// NewOpenSessionJob creates a new session opening job
func NewOpenSessionJob(registry *session.Registry, schedule string, log *logger.Logger) *OpenSessionJob {
	return &OpenSessionJob{registry: registry, schedule: schedule, logger: log}
}

// Name returns the job name
func (j *OpenSessionJob) Name() string { return "session_open" }

// Schedule returns the cron schedule
func (j *OpenSessionJob) Schedule() string { return j.schedule }

// Run opens a session unless an unfinished one is still around
func (j *OpenSessionJob) Run(ctx context.Context) error {
	sess, err := j.registry.Create(ctx, contracts.SystemCaller())
	if apperr.HasCode(err, apperr.CodeUnfinishedSessionsExist) || apperr.HasCode(err, apperr.CodeMultipleOpenSessions) {
		j.logger.WithField("reason", err.Error()).Info("Skipping session open")
		return nil
	}
	if err != nil {
		return err
	}

	j.logger.WithField("session_id", sess.ID).Info("Scheduled session opened")
	return nil
}

// TransitionJob moves the latest session in one status to the next
type TransitionJob struct {
	registry *session.Registry
	name     string
	schedule string
	from     contracts.SessionStatus
	to       contracts.SessionStatus
	logger   *logger.Logger
}

// NewCloseSessionJob stops accepting challenges and submissions
func NewCloseSessionJob(registry *session.Registry, schedule string, log *logger.Logger) *TransitionJob {
	return newTransitionJob(registry, "session_close", schedule, contracts.SessionOpen, contracts.SessionClosed, log)
}

// NewRunSessionJob starts ensemble computation of the closed session
func NewRunSessionJob(registry *session.Registry, schedule string, log *logger.Logger) *TransitionJob {
	return newTransitionJob(registry, "session_run", schedule, contracts.SessionClosed, contracts.SessionRunning, log)
}

// NewFinishSessionJob finishes the running session
func NewFinishSessionJob(registry *session.Registry, schedule string, log *logger.Logger) *TransitionJob {
	return newTransitionJob(registry, "session_finish", schedule, contracts.SessionRunning, contracts.SessionFinished, log)
}

func newTransitionJob(registry *session.Registry, name, schedule string, from, to contracts.SessionStatus, log *logger.Logger) *TransitionJob {
	return &TransitionJob{
		registry: registry,
		name:     name,
		schedule: schedule,
		from:     from,
		to:       to,
		logger:   log,
	}
}

// Name returns the job name
func (j *TransitionJob) Name() string { return j.name }

// Schedule returns the cron schedule
func (j *TransitionJob) Schedule() string { return j.schedule }

// Run applies the transition; no session in the source status is a no-op
func (j *TransitionJob) Run(ctx context.Context) error {
	sess, err := j.registry.Latest(ctx, j.from)
	if apperr.HasCode(err, apperr.CodeNoSuchSession) {
		j.logger.WithField("status", j.from).Debug("No session to move")
		return nil
	}
	if err != nil {
		return err
	}

	to := j.to
	updated, err := j.registry.Update(ctx, contracts.SystemCaller(), sess.ID, contracts.SessionPatch{Status: &to})
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"session_id": updated.ID,
		"from":       j.from,
		"to":         updated.Status,
	}).Info("Scheduled session transition applied")
	return nil
}

// SessionLifecycle returns the four lifecycle jobs in schedule order
func SessionLifecycle(registry *session.Registry, cfg config.MarketConfig, log *logger.Logger) []scheduler.Job {
	return []scheduler.Job{
		NewOpenSessionJob(registry, cfg.SessionOpenCron, log),
		NewCloseSessionJob(registry, cfg.SessionCloseCron, log),
		NewRunSessionJob(registry, cfg.SessionRunCron, log),
		NewFinishSessionJob(registry, cfg.SessionFinishCron, log),
	}
}
