package scoring

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/pkg/database"
)

const uniqueScore = "submission_scores_submission_metric_key"

// Repository handles score persistence in PostgreSQL
type Repository struct {
	db *pgxpool.Pool
}

var _ contracts.ScoreRepository = (*Repository)(nil)

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListByChallenge joins every published score of the challenge with its submission
func (r *Repository) ListByChallenge(ctx context.Context, challengeID uuid.UUID) ([]contracts.ScoreRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT sc.submission_id, s.user_id, s.variable, sc.metric, sc.value
		FROM market.submission_scores sc
		JOIN market.submissions s ON s.id = sc.submission_id
		WHERE s.challenge_id = $1
		ORDER BY s.variable, sc.metric, sc.value`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.ScoreRow, error) {
		var sr contracts.ScoreRow
		var variable, metric string
		err := row.Scan(&sr.SubmissionID, &sr.UserID, &variable, &metric, &sr.Value)
		sr.Variable = contracts.Variable(variable)
		sr.Metric = contracts.Metric(metric)
		return sr, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan scores: %w", err)
	}
	return out, nil
}

// Publish inserts the batch in one transaction. A row is only written when
// its submission belongs to challengeID.
func (r *Repository) Publish(ctx context.Context, challengeID uuid.UUID, scores []contracts.SubmissionScore) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, sc := range scores {
			batch.Queue(`
				INSERT INTO market.submission_scores (submission_id, metric, value)
				SELECT $1::uuid, $2::text, $3::double precision
				WHERE EXISTS (
					SELECT 1 FROM market.submissions WHERE id = $1::uuid AND challenge_id = $4::uuid
				)`,
				sc.SubmissionID, string(sc.Metric), sc.Value, challengeID)
		}

		results := tx.SendBatch(ctx, batch)
		for range scores {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				switch {
				case database.IsUniqueViolation(err, uniqueScore):
					return contracts.ErrDuplicate
				case database.IsForeignKeyViolation(err):
					return contracts.ErrNotFound
				}
				return fmt.Errorf("insert score: %w", err)
			}
			if tag.RowsAffected() == 0 {
				_ = results.Close()
				return contracts.ErrNotFound
			}
		}
		return results.Close()
	})
}
