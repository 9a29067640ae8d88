package ensemble

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/pkg/database"
)

const uniqueEnsemble = "ensembles_challenge_model_variable_key"

// Repository handles ensemble persistence in PostgreSQL
type Repository struct {
	db *pgxpool.Pool
}

var _ contracts.EnsembleRepository = (*Repository)(nil)

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const ensembleColumns = `e.id, e.challenge_id, e.model, e.variable, e.weights, e.registered_at`

func scanEnsemble(row pgx.Row) (*contracts.Ensemble, error) {
	var e contracts.Ensemble
	var variable string
	var weights []byte
	if err := row.Scan(&e.ID, &e.ChallengeID, &e.Model, &variable, &weights, &e.RegisteredAt); err != nil {
		return nil, err
	}
	e.Variable = contracts.Variable(variable)
	if len(weights) > 0 {
		e.Weights = json.RawMessage(weights)
	}
	return &e, nil
}

// Create inserts the ensemble and copies its points in one transaction
func (r *Repository) Create(ctx context.Context, e *contracts.Ensemble, points []contracts.ForecastPoint) error {
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO market.ensembles (id, challenge_id, model, variable, registered_at)
			VALUES ($1, $2, $3, $4, $5)`,
			e.ID, e.ChallengeID, e.Model, string(e.Variable), e.RegisteredAt)
		if err != nil {
			return fmt.Errorf("insert ensemble: %w", err)
		}

		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"market", "ensemble_forecasts"},
			[]string{"ensemble_id", "datetime", "value"},
			pgx.CopyFromSlice(len(points), func(i int) ([]interface{}, error) {
				return []interface{}{e.ID, points[i].Datetime.UTC(), points[i].Value}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy ensemble forecasts: %w", err)
		}
		return nil
	})
	if database.IsUniqueViolation(err, uniqueEnsemble) {
		return contracts.ErrDuplicate
	}
	return err
}

// Get retrieves an ensemble by id
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*contracts.Ensemble, error) {
	e, err := scanEnsemble(r.db.QueryRow(ctx,
		`SELECT `+ensembleColumns+` FROM market.ensembles e WHERE e.id = $1`, id))
	if database.IsNoRows(err) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query ensemble: %w", err)
	}
	return e, nil
}

// Exists reports whether (challenge, model, variable) has an ensemble
func (r *Repository) Exists(ctx context.Context, challengeID uuid.UUID, model string, variable contracts.Variable) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM market.ensembles
			WHERE challenge_id = $1 AND model = $2 AND variable = $3
		)`, challengeID, model, string(variable),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query ensemble existence: %w", err)
	}
	return exists, nil
}

// List returns a challenge's ensembles with their points
func (r *Repository) List(ctx context.Context, challengeID uuid.UUID) ([]contracts.EnsembleWithPoints, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+ensembleColumns+`
		FROM market.ensembles e
		WHERE e.challenge_id = $1
		ORDER BY e.registered_at, e.id`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("query ensembles: %w", err)
	}

	var out []contracts.EnsembleWithPoints
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		e, err := scanEnsemble(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan ensemble: %w", err)
		}
		index[e.ID] = len(out)
		out = append(out, contracts.EnsembleWithPoints{Ensemble: *e, Points: []contracts.ForecastPoint{}})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ensembles: %w", err)
	}
	if len(out) == 0 {
		return []contracts.EnsembleWithPoints{}, nil
	}

	pointRows, err := r.db.Query(ctx, `
		SELECT f.ensemble_id, f.datetime, f.value
		FROM market.ensemble_forecasts f
		JOIN market.ensembles e ON e.id = f.ensemble_id
		WHERE e.challenge_id = $1
		ORDER BY f.ensemble_id, f.datetime`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("query ensemble forecasts: %w", err)
	}
	defer pointRows.Close()

	for pointRows.Next() {
		var id uuid.UUID
		var p contracts.ForecastPoint
		if err := pointRows.Scan(&id, &p.Datetime, &p.Value); err != nil {
			return nil, fmt.Errorf("scan ensemble forecast: %w", err)
		}
		if i, ok := index[id]; ok {
			out[i].Points = append(out[i].Points, p)
		}
	}
	return out, pointRows.Err()
}

// SetWeights writes the payload only while it is NULL
func (r *Repository) SetWeights(ctx context.Context, id uuid.UUID, weights json.RawMessage) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE market.ensembles SET weights = $2 WHERE id = $1 AND weights IS NULL`,
		id, []byte(weights))
	if err != nil {
		return fmt.Errorf("update ensemble weights: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return contracts.ErrWeightsAlreadySet
}

// UpsertWeight sets one forecaster's contribution value
func (r *Repository) UpsertWeight(ctx context.Context, w contracts.EnsembleWeight) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO market.ensemble_weights (ensemble_id, user_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (ensemble_id, user_id) DO UPDATE SET value = EXCLUDED.value`,
		w.EnsembleID, w.UserID, w.Value)
	if database.IsForeignKeyViolation(err) {
		return contracts.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("upsert ensemble weight: %w", err)
	}
	return nil
}

// ListWeights returns every contribution to the challenge's ensembles
func (r *Repository) ListWeights(ctx context.Context, challengeID uuid.UUID) ([]contracts.WeightRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT w.ensemble_id, w.user_id, w.value, e.model, e.variable
		FROM market.ensemble_weights w
		JOIN market.ensembles e ON e.id = w.ensemble_id
		WHERE e.challenge_id = $1
		ORDER BY e.registered_at, w.ensemble_id, w.user_id`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("query ensemble weights: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.WeightRow, 0)
	for rows.Next() {
		var w contracts.WeightRow
		var variable string
		if err := rows.Scan(&w.EnsembleID, &w.UserID, &w.Value, &w.Model, &variable); err != nil {
			return nil, fmt.Errorf("scan ensemble weight: %w", err)
		}
		w.Variable = contracts.Variable(variable)
		out = append(out, w)
	}
	return out, rows.Err()
}
