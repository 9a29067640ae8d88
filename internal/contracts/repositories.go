package contracts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// SessionRepository persists market sessions.
// Create and Update must re-check the single-open invariant at commit.
type SessionRepository interface {
	// Create opens a session. Returns ErrUnfinishedSessions when any session
	// is not finished and ErrOpenSessionExists when the commit races another open.
	Create(ctx context.Context, openTS time.Time) (*MarketSession, error)
	Get(ctx context.Context, id int64) (*MarketSession, error)
	// Update applies patch. Returns ErrOpenSessionExists when the new status
	// would leave two sessions open.
	Update(ctx context.Context, id int64, patch SessionPatch) (*MarketSession, error)
	List(ctx context.Context, filter SessionFilter) ([]MarketSession, error)
}

// ChallengeRepository persists challenges
type ChallengeRepository interface {
	// Create returns ErrDuplicate on (session, user, resource) collision
	Create(ctx context.Context, c *Challenge) error
	Get(ctx context.Context, id uuid.UUID) (*Challenge, error)
	Exists(ctx context.Context, sessionID int64, userID, resourceID uuid.UUID) (bool, error)
	Update(ctx context.Context, id uuid.UUID, patch ChallengePatch, updatedAt time.Time) (*Challenge, error)
	List(ctx context.Context, filter ChallengeFilter) ([]Challenge, error)
}

// SubmissionRepository persists submissions and their forecast points
type SubmissionRepository interface {
	Find(ctx context.Context, userID, challengeID uuid.UUID, variable Variable) (*Submission, error)
	// Create inserts the submission and every point atomically.
	// Returns ErrDuplicate on (user, variable, challenge) collision.
	Create(ctx context.Context, s *Submission, points []ForecastPoint) error
	// Replace deletes every point of the submission and inserts points atomically
	Replace(ctx context.Context, submissionID uuid.UUID, registeredAt time.Time, points []ForecastPoint) error
	List(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
	// ForecastTimes returns past submitted leadtimes of key in [from, to)
	ForecastTimes(ctx context.Context, key SampleKey, from, to time.Time) ([]time.Time, error)
}

// EnsembleRepository persists ensembles, their points and weight contributions
type EnsembleRepository interface {
	// Create returns ErrDuplicate on (challenge, model, variable) collision
	Create(ctx context.Context, e *Ensemble, points []ForecastPoint) error
	Get(ctx context.Context, id uuid.UUID) (*Ensemble, error)
	Exists(ctx context.Context, challengeID uuid.UUID, model string, variable Variable) (bool, error)
	List(ctx context.Context, challengeID uuid.UUID) ([]EnsembleWithPoints, error)
	// SetWeights stores the payload only while it is unset.
	// Returns ErrNotFound or ErrWeightsAlreadySet.
	SetWeights(ctx context.Context, id uuid.UUID, weights json.RawMessage) error
	UpsertWeight(ctx context.Context, w EnsembleWeight) error
	ListWeights(ctx context.Context, challengeID uuid.UUID) ([]WeightRow, error)
}

// ScoreRepository reads published scores. Publish is used by the external
// scoring batch only and never overwrites. A submission of another challenge
// is reported as ErrNotFound.
type ScoreRepository interface {
	ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]ScoreRow, error)
	Publish(ctx context.Context, challengeID uuid.UUID, scores []SubmissionScore) error
}
