package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/pkg/database"
)

const singleOpenIndex = "sessions_single_open_idx"

// Repository handles session persistence in PostgreSQL
type Repository struct {
	db *pgxpool.Pool
}

var _ contracts.SessionRepository = (*Repository)(nil)

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, open_ts, close_ts, launch_ts, finish_ts, status`

func scanSession(row pgx.Row) (*contracts.MarketSession, error) {
	var s contracts.MarketSession
	var status string
	if err := row.Scan(&s.ID, &s.OpenTS, &s.CloseTS, &s.LaunchTS, &s.FinishTS, &status); err != nil {
		return nil, err
	}
	s.Status = contracts.SessionStatus(status)
	return &s, nil
}

// Create inserts an open session. The advisory lock serializes concurrent
// creators; the partial unique index rejects a second open row at commit.
func (r *Repository) Create(ctx context.Context, openTS time.Time) (*contracts.MarketSession, error) {
	var sess *contracts.MarketSession

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('market.sessions'))`); err != nil {
			return fmt.Errorf("lock sessions: %w", err)
		}

		var unfinished bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM market.sessions WHERE status <> 'finished')`,
		).Scan(&unfinished)
		if err != nil {
			return fmt.Errorf("check unfinished sessions: %w", err)
		}
		if unfinished {
			return contracts.ErrUnfinishedSessions
		}

		sess, err = scanSession(tx.QueryRow(ctx, `
			INSERT INTO market.sessions (open_ts, status)
			VALUES ($1, 'open')
			RETURNING `+sessionColumns, openTS))
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if database.IsUniqueViolation(err, singleOpenIndex) {
		return nil, contracts.ErrOpenSessionExists
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Get retrieves a session by id
func (r *Repository) Get(ctx context.Context, id int64) (*contracts.MarketSession, error) {
	sess, err := scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM market.sessions WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

// Update applies the non-nil fields of patch
func (r *Repository) Update(ctx context.Context, id int64, patch contracts.SessionPatch) (*contracts.MarketSession, error) {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}

	sess, err := scanSession(r.db.QueryRow(ctx, `
		UPDATE market.sessions SET
			status    = COALESCE($2, status),
			close_ts  = COALESCE($3, close_ts),
			launch_ts = COALESCE($4, launch_ts),
			finish_ts = COALESCE($5, finish_ts)
		WHERE id = $1
		RETURNING `+sessionColumns,
		id, status, patch.CloseTS, patch.LaunchTS, patch.FinishTS,
	))
	switch {
	case database.IsUniqueViolation(err, singleOpenIndex):
		return nil, contracts.ErrOpenSessionExists
	case database.IsNoRows(err):
		return nil, contracts.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("update session: %w", err)
	}
	return sess, nil
}

// List returns sessions matching filter ordered by id
func (r *Repository) List(ctx context.Context, filter contracts.SessionFilter) ([]contracts.MarketSession, error) {
	var where []string
	var args []interface{}

	if filter.ID != nil {
		args = append(args, *filter.ID)
		where = append(where, fmt.Sprintf("id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + sessionColumns + ` FROM market.sessions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if filter.LatestOnly {
		query += ` ORDER BY id DESC LIMIT 1`
	} else {
		query += ` ORDER BY id`
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]contracts.MarketSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
