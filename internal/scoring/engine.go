// Package scoring serves the published accuracy scores of a challenge as a
// ranked personal view plus per (variable, metric) aggregates.
package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/challenge"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/ranking"
	"github.com/wonny/predico/pkg/logger"
	"github.com/wonny/predico/pkg/redis"
)

// Scores is the response of get_scores
type Scores struct {
	Personal   []ranking.RankedScore    `json:"personal"`
	Aggregated []ranking.ScoreAggregate `json:"aggregated"`
}

// board is the unscoped leaderboard cached per challenge
type board struct {
	Ranked     []ranking.RankedScore    `json:"ranked"`
	Aggregated []ranking.ScoreAggregate `json:"aggregated"`
}

// Engine reads published scores. Scores are immutable once written, so the
// full board is cached and only the projection runs per caller.
type Engine struct {
	repo       contracts.ScoreRepository
	challenges *challenge.Manager
	cache      *redis.Cache
	log        *logger.Logger
}

// NewEngine creates a scoring engine. cache may be nil.
func NewEngine(repo contracts.ScoreRepository, challenges *challenge.Manager, cache *redis.Cache, log *logger.Logger) *Engine {
	return &Engine{
		repo:       repo,
		challenges: challenges,
		cache:      cache,
		log:        log.Component("scoring"),
	}
}

// GetScores returns the caller's ranked rows and the full aggregate.
// A market maker who is not a session manager must own the challenge.
func (e *Engine) GetScores(ctx context.Context, caller contracts.Caller, challengeID uuid.UUID) (*Scores, error) {
	c, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if caller.IsMarketMaker() && !caller.IsSessionManager() && c.UserID != caller.UserID {
		return nil, apperr.PermissionDenied("challenge is not owned by caller")
	}

	b, err := e.board(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	return &Scores{
		Personal:   ranking.ProjectPersonalScores(b.Ranked, caller, ranking.ScopeFor(caller, c.UserID)),
		Aggregated: b.Aggregated,
	}, nil
}

func (e *Engine) board(ctx context.Context, challengeID uuid.UUID) (*board, error) {
	load := func() (interface{}, error) {
		rows, err := e.repo.ListByChallenge(ctx, challengeID)
		if err != nil {
			return nil, fmt.Errorf("list scores: %w", err)
		}
		return &board{
			Ranked:     ranking.RankScores(rows),
			Aggregated: ranking.AggregateScores(rows),
		}, nil
	}

	if e.cache == nil {
		v, err := load()
		if err != nil {
			return nil, err
		}
		return v.(*board), nil
	}

	var b board
	if err := e.cache.GetOrSet(ctx, redis.ScoreBoardKey(challengeID.String()), &b, redis.TTLMedium, load); err != nil {
		return nil, err
	}
	return &b, nil
}

// Publish stores a batch of scores for one challenge. Nothing is written
// when any score is already published or names a submission that is not
// part of the challenge.
func (e *Engine) Publish(ctx context.Context, caller contracts.Caller, challengeID uuid.UUID, scores []contracts.SubmissionScore) error {
	if !caller.IsSessionManager() {
		return apperr.PermissionDenied("only session managers may publish scores")
	}
	if len(scores) == 0 {
		return apperr.InvalidParameter("scores", "at least one score is required")
	}
	for _, sc := range scores {
		if !sc.Metric.Valid() {
			return apperr.InvalidParameter("metric", fmt.Sprintf("unknown metric %q", sc.Metric))
		}
	}

	c, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		return err
	}

	err = e.repo.Publish(ctx, c.ID, scores)
	switch {
	case errors.Is(err, contracts.ErrDuplicate):
		return apperr.Conflict(apperr.CodeScoresAlreadyPublished, "scores already published for submission and metric")
	case errors.Is(err, contracts.ErrNotFound):
		return apperr.NotFound(apperr.CodeSubmissionNotFound, "score references a submission outside the challenge")
	case err != nil:
		e.log.WithError(err).WithField("challenge", c.ID).Error("failed to publish scores")
		return apperr.Persistence(apperr.CodeFailedToPublishScores, "failed to publish scores")
	}

	if e.cache != nil {
		if err := e.cache.Delete(ctx, redis.ScoreBoardKey(c.ID.String())); err != nil {
			e.log.WithError(err).Warn("score board cache invalidation failed")
		}
	}

	e.log.WithFields(map[string]interface{}{
		"challenge": c.ID,
		"scores":    len(scores),
	}).Info("scores published")
	return nil
}
