package challenge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/pkg/database"
)

const uniqueChallenge = "challenges_session_user_resource_key"

// Repository handles challenge persistence in PostgreSQL
type Repository struct {
	db *pgxpool.Pool
}

var _ contracts.ChallengeRepository = (*Repository)(nil)

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const challengeColumns = `c.id, c.user_id, c.resource_id, c.session_id, c.use_case,
	c.start_datetime, c.end_datetime, c.target_day, c.registered_at, c.updated_at`

func scanChallenge(row pgx.Row) (*contracts.Challenge, error) {
	var c contracts.Challenge
	var useCase string
	err := row.Scan(&c.ID, &c.UserID, &c.ResourceID, &c.SessionID, &useCase,
		&c.StartDatetime, &c.EndDatetime, &c.TargetDay, &c.RegisteredAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.UseCase = contracts.UseCase(useCase)
	return &c, nil
}

// Create inserts c. The unique constraint decides concurrent duplicates.
func (r *Repository) Create(ctx context.Context, c *contracts.Challenge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO market.challenges (
			id, user_id, resource_id, session_id, use_case,
			start_datetime, end_datetime, target_day, registered_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.UserID, c.ResourceID, c.SessionID, string(c.UseCase),
		c.StartDatetime, c.EndDatetime, c.TargetDay, c.RegisteredAt, c.UpdatedAt,
	)
	if database.IsUniqueViolation(err, uniqueChallenge) {
		return contracts.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

// Get retrieves a challenge by id
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*contracts.Challenge, error) {
	c, err := scanChallenge(r.db.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM market.challenges c WHERE c.id = $1`, id))
	if database.IsNoRows(err) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query challenge: %w", err)
	}
	return c, nil
}

// Exists reports whether (session, user, resource) already has a challenge
func (r *Repository) Exists(ctx context.Context, sessionID int64, userID, resourceID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM market.challenges
			WHERE session_id = $1 AND user_id = $2 AND resource_id = $3
		)`, sessionID, userID, resourceID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query challenge existence: %w", err)
	}
	return exists, nil
}

// Update applies the non-nil fields of patch
func (r *Repository) Update(ctx context.Context, id uuid.UUID, patch contracts.ChallengePatch, updatedAt time.Time) (*contracts.Challenge, error) {
	var useCase *string
	if patch.UseCase != nil {
		s := string(*patch.UseCase)
		useCase = &s
	}

	c, err := scanChallenge(r.db.QueryRow(ctx, `
		UPDATE market.challenges c SET
			use_case       = COALESCE($2, c.use_case),
			start_datetime = COALESCE($3, c.start_datetime),
			end_datetime   = COALESCE($4, c.end_datetime),
			target_day     = COALESCE($5, c.target_day),
			updated_at     = $6
		WHERE c.id = $1
		RETURNING `+challengeColumns,
		id, useCase, patch.StartDatetime, patch.EndDatetime, patch.TargetDay, updatedAt,
	))
	if database.IsNoRows(err) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update challenge: %w", err)
	}
	return c, nil
}

// List returns challenges matching filter in registration order
func (r *Repository) List(ctx context.Context, filter contracts.ChallengeFilter) ([]contracts.Challenge, error) {
	var where []string
	var args []interface{}

	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ChallengeID != nil {
		add("c.id = $%d", *filter.ChallengeID)
	}
	if filter.SessionID != nil {
		add("c.session_id = $%d", *filter.SessionID)
	}
	if filter.ResourceID != nil {
		add("c.resource_id = $%d", *filter.ResourceID)
	}
	if filter.UseCase != nil {
		add("c.use_case = $%d", string(*filter.UseCase))
	}
	if filter.OpenOnly {
		where = append(where, "s.status = 'open'")
	}

	query := `SELECT ` + challengeColumns + `
		FROM market.challenges c
		JOIN market.sessions s ON s.id = c.session_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY c.registered_at, c.id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query challenges: %w", err)
	}
	defer rows.Close()

	challenges := make([]contracts.Challenge, 0)
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenges = append(challenges, *c)
	}
	return challenges, rows.Err()
}
