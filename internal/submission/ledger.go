package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/challenge"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/eligibility"
	"github.com/wonny/predico/internal/horizon"
	"github.com/wonny/predico/internal/metrics"
	"github.com/wonny/predico/pkg/logger"
)

// Input is the body of create_or_update_submission
type Input struct {
	Variable  contracts.Variable        `json:"variable" validate:"required"`
	Forecasts []contracts.ForecastPoint `json:"forecasts" validate:"required,min=1"`
}

// ListFilter is the caller-supplied part of list_submissions
type ListFilter struct {
	ChallengeID *uuid.UUID
	UserID      *uuid.UUID
}

// Ledger accepts per-quantile forecasts against open challenges
type Ledger struct {
	repo        contracts.SubmissionRepository
	challenges  *challenge.Manager
	eligibility *eligibility.Checker
	notifier    contracts.Notifier
	metrics     *metrics.Collector
	log         *logger.Logger
	now         func() time.Time
}

// NewLedger creates a submission ledger. notifier and m may be nil.
func NewLedger(
	repo contracts.SubmissionRepository,
	challenges *challenge.Manager,
	checker *eligibility.Checker,
	notifier contracts.Notifier,
	m *metrics.Collector,
	log *logger.Logger,
) *Ledger {
	return &Ledger{
		repo:        repo,
		challenges:  challenges,
		eligibility: checker,
		notifier:    notifier,
		metrics:     m,
		log:         log.Component("submission"),
		now:         time.Now,
	}
}

// SetClock overrides the time source
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// CreateOrUpdate stores the caller's forecast for one variable of a
// challenge. The first call creates the submission; later calls replace its
// whole point set. Every rule is checked before any write.
func (l *Ledger) CreateOrUpdate(ctx context.Context, caller contracts.Caller, challengeID uuid.UUID, in Input) (receipt *contracts.SubmissionReceipt, err error) {
	defer func() {
		if err == nil {
			l.metrics.SubmissionAccepted(receipt.Updated)
			return
		}
		if e, ok := apperr.As(err); ok {
			l.metrics.SubmissionRejected(e.Code)
		} else {
			l.metrics.SubmissionRejected("internal")
		}
	}()

	if !in.Variable.Valid() {
		return nil, apperr.InvalidParameter("variable", fmt.Sprintf("unknown variable %q", in.Variable))
	}

	c, err := l.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	sess, err := l.challenges.Session(ctx, c)
	if err != nil {
		return nil, err
	}
	if sess.Status != contracts.SessionOpen {
		return nil, apperr.Conflict(apperr.CodeChallengeNotOpen,
			fmt.Sprintf("challenge %s is not open for submissions (session %d is %s)", c.ID, sess.ID, sess.Status))
	}

	if in.Variable != contracts.VariableQ50 {
		if err := l.requireQ50(ctx, caller.UserID, c.ID); err != nil {
			return nil, err
		}
	}

	provided := make([]time.Time, len(in.Forecasts))
	for i, p := range in.Forecasts {
		provided[i] = p.Datetime
	}
	if err := horizon.Check(l.challenges.ExpectedLeadtimes(c), provided).Err(); err != nil {
		return nil, err
	}

	key := contracts.SampleKey{UserID: caller.UserID, ResourceID: c.ResourceID, Variable: in.Variable}
	if err := l.eligibility.Check(ctx, key, c.StartDatetime); err != nil {
		return nil, err
	}

	existing, err := l.repo.Find(ctx, caller.UserID, c.ID, in.Variable)
	if err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return nil, fmt.Errorf("find submission: %w", err)
	}

	now := l.now().UTC()
	log := l.log.WithFields(map[string]interface{}{
		"challenge_id": c.ID,
		"user_id":      caller.UserID,
		"variable":     in.Variable,
	})

	if existing != nil {
		if err := l.repo.Replace(ctx, existing.ID, now, in.Forecasts); err != nil {
			log.WithError(err).Error("Failed to replace submission forecasts")
			return nil, apperr.Persistence(apperr.CodeFailedToInsertSubmission, "failed to update submission")
		}
		log.WithField("submission_id", existing.ID).Info("Submission updated")
		return &contracts.SubmissionReceipt{ChallengeID: c.ID, SubmissionID: existing.ID, Updated: true}, nil
	}

	sub := &contracts.Submission{
		ID:           uuid.New(),
		ChallengeID:  c.ID,
		UserID:       caller.UserID,
		Variable:     in.Variable,
		RegisteredAt: now,
	}
	if err := l.repo.Create(ctx, sub, in.Forecasts); err != nil {
		if errors.Is(err, contracts.ErrDuplicate) {
			log.Warn("Concurrent submission won the insert")
			return nil, apperr.Conflict(apperr.CodeSubmissionAlreadyExists,
				fmt.Sprintf("a %s submission for challenge %s already exists, retry to update it", in.Variable, c.ID))
		}
		log.WithError(err).Error("Failed to insert submission")
		return nil, apperr.Persistence(apperr.CodeFailedToInsertSubmission, "failed to insert submission")
	}

	log.WithField("submission_id", sub.ID).Info("Submission created")
	if l.notifier != nil {
		l.notifier.Notify(ctx, contracts.TemplateSubmissionCreated, caller.UserID.String(), map[string]interface{}{
			"challenge_id":  c.ID,
			"submission_id": sub.ID,
			"variable":      in.Variable,
			"points":        len(in.Forecasts),
		})
	}
	return &contracts.SubmissionReceipt{ChallengeID: c.ID, SubmissionID: sub.ID}, nil
}

// List returns submissions visible to the caller. Superusers see everything;
// market makers and session managers see submissions to challenges they own
// and may narrow by user; forecasters see only their own.
func (l *Ledger) List(ctx context.Context, caller contracts.Caller, in ListFilter) ([]contracts.Submission, error) {
	filter := contracts.SubmissionFilter{ChallengeID: in.ChallengeID, UserID: in.UserID}

	switch {
	case caller.Unrestricted():
	case caller.IsMarketMaker() || caller.IsSessionManager():
		owner := caller.UserID
		filter.OwnerID = &owner
	default:
		if in.UserID != nil && *in.UserID != caller.UserID {
			return nil, apperr.PermissionDenied("forecasters may only list their own submissions")
		}
		self := caller.UserID
		filter.UserID = &self
	}

	subs, err := l.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

func (l *Ledger) requireQ50(ctx context.Context, userID, challengeID uuid.UUID) error {
	_, err := l.repo.Find(ctx, userID, challengeID, contracts.VariableQ50)
	if errors.Is(err, contracts.ErrNotFound) {
		return apperr.Conflict(apperr.CodeMissingQ50Forecasts,
			"a q50 forecast must be submitted before other variables")
	}
	if err != nil {
		return fmt.Errorf("find q50 submission: %w", err)
	}
	return nil
}
