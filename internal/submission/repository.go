package submission

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

const uniqueSubmission = "submissions_user_variable_challenge_key"

// Repository handles submission persistence in PostgreSQL
type Repository struct {
	db *pgxpool.Pool
}

var _ contracts.SubmissionRepository = (*Repository)(nil)

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const submissionColumns = `s.id, s.challenge_id, s.user_id, s.variable, s.registered_at`

func scanSubmission(row pgx.Row) (*contracts.Submission, error) {
	var s contracts.Submission
	var variable string
	if err := row.Scan(&s.ID, &s.ChallengeID, &s.UserID, &variable, &s.RegisteredAt); err != nil {
		return nil, err
	}
	s.Variable = contracts.Variable(variable)
	return &s, nil
}

// Find retrieves the submission of (user, challenge, variable)
func (r *Repository) Find(ctx context.Context, userID, challengeID uuid.UUID, variable contracts.Variable) (*contracts.Submission, error) {
	s, err := scanSubmission(r.db.QueryRow(ctx, `
		SELECT `+submissionColumns+`
		FROM market.submissions s
		WHERE s.user_id = $1 AND s.challenge_id = $2 AND s.variable = $3`,
		userID, challengeID, string(variable)))
	if database.IsNoRows(err) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query submission: %w", err)
	}
	return s, nil
}

// Create inserts the submission row and copies every point in one transaction
func (r *Repository) Create(ctx context.Context, s *contracts.Submission, points []contracts.ForecastPoint) error {
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO market.submissions (id, challenge_id, user_id, variable, registered_at)
			VALUES ($1, $2, $3, $4, $5)`,
			s.ID, s.ChallengeID, s.UserID, string(s.Variable), s.RegisteredAt)
		if err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		return copyPoints(ctx, tx, s.ID, points)
	})
	if database.IsUniqueViolation(err, uniqueSubmission) {
		return contracts.ErrDuplicate
	}
	return err
}

// Replace refreshes registered_at and swaps the point set in one transaction
func (r *Repository) Replace(ctx context.Context, submissionID uuid.UUID, registeredAt time.Time, points []contracts.ForecastPoint) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE market.submissions SET registered_at = $2 WHERE id = $1`,
			submissionID, registeredAt)
		if err != nil {
			return fmt.Errorf("update submission: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return contracts.ErrNotFound
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM market.submission_forecasts WHERE submission_id = $1`, submissionID); err != nil {
			return fmt.Errorf("delete submission forecasts: %w", err)
		}
		return copyPoints(ctx, tx, submissionID, points)
	})
}

// List returns submissions matching filter in registration order
func (r *Repository) List(ctx context.Context, filter contracts.SubmissionFilter) ([]contracts.Submission, error) {
	var where []string
	var args []interface{}

	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ChallengeID != nil {
		add("s.challenge_id = $%d", *filter.ChallengeID)
	}
	if filter.UserID != nil {
		add("s.user_id = $%d", *filter.UserID)
	}
	if filter.OwnerID != nil {
		add("c.user_id = $%d", *filter.OwnerID)
	}

	query := `SELECT ` + submissionColumns + `
		FROM market.submissions s
		JOIN market.challenges c ON c.id = s.challenge_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY s.registered_at, s.id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	subs := make([]contracts.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// ForecastTimes returns datetimes the user submitted for the variable on the
// resource across earlier challenges, within [from, to)
func (r *Repository) ForecastTimes(ctx context.Context, key contracts.SampleKey, from, to time.Time) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT f.datetime
		FROM market.submission_forecasts f
		JOIN market.submissions s ON s.id = f.submission_id
		JOIN market.challenges c ON c.id = s.challenge_id
		WHERE s.user_id = $1
		  AND s.variable = $2
		  AND c.resource_id = $3
		  AND f.datetime >= $4
		  AND f.datetime < $5`,
		key.UserID, string(key.Variable), key.ResourceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query submitted datetimes: %w", err)
	}
	defer rows.Close()

	times, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("collect submitted datetimes: %w", err)
	}
	return times, nil
}

// copyPoints bulk-loads points with COPY inside tx
func copyPoints(ctx context.Context, tx pgx.Tx, submissionID uuid.UUID, points []contracts.ForecastPoint) error {
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"market", "submission_forecasts"},
		[]string{"submission_id", "datetime", "value"},
		pgx.CopyFromSlice(len(points), func(i int) ([]interface{}, error) {
			return []interface{}{submissionID, points[i].Datetime.UTC(), points[i].Value}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy submission forecasts: %w", err)
	}
	return nil
}
