// Package postgres provides the Postgres-backed challenge store.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/domain"
)

// Repository implements domain.ChallengeStore on a pgx connection pool. The
// pool is safe to share across concurrent invocations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActive returns the user's challenges with status current whose validity
// window covers at. The user match is the indexed equality lookup; status and
// window predicates are applied in the same scan.
func (r *Repository) ListActive(ctx context.Context, userID string, at time.Time) ([]domain.Challenge, error) {
	const query = `SELECT user_id, challenge_id, start_date, end_date, status, completed_meters, target_meters, points, created_at, updated_at
        FROM challenges
        WHERE user_id = $1 AND status = 'current' AND start_date <= $2 AND end_date >= $2
        ORDER BY challenge_id`

	rows, err := r.pool.Query(ctx, query, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	challenges := make([]domain.Challenge, 0)
	for rows.Next() {
		var ch domain.Challenge
		if err := rows.Scan(&ch.UserID, &ch.ChallengeID, &ch.StartDate, &ch.EndDate, &ch.Status, &ch.CompletedMeters, &ch.TargetMeters, &ch.Points, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, err
		}
		challenges = append(challenges, ch)
	}
	return challenges, rows.Err()
}

// ApplyProgress adds distance to the keyed challenge in a single atomic
// statement. The increment and the completion decision happen inside the
// store, so concurrent events for the same challenge serialize on the row
// lock and no increment is lost. The status guard keeps completion one-way: a
// completed row never accrues again and never fires a second transition.
//
// When eventID is non-empty the increment is recorded in progress_events
// within the same transaction; a conflict there means this event was already
// applied to this challenge and the update is skipped (Replayed).
func (r *Repository) ApplyProgress(ctx context.Context, userID, challengeID string, distance float64, eventID string) (domain.ProgressUpdate, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.ProgressUpdate{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if eventID != "" {
		const ledger = `INSERT INTO progress_events (event_id, user_id, challenge_id, distance_meters)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT DO NOTHING`
		tag, execErr := tx.Exec(ctx, ledger, eventID, userID, challengeID, distance)
		if execErr != nil {
			err = execErr
			return domain.ProgressUpdate{}, err
		}
		if tag.RowsAffected() == 0 {
			tx.Rollback(ctx)
			return domain.ProgressUpdate{Replayed: true}, nil
		}
	}

	const update = `UPDATE challenges
        SET completed_meters = completed_meters + $3,
            status = CASE WHEN completed_meters + $3 >= target_meters THEN 'completed' ELSE status END,
            updated_at = NOW()
        WHERE user_id = $1 AND challenge_id = $2 AND status = 'current'
        RETURNING completed_meters, status, points`

	var upd domain.ProgressUpdate
	row := tx.QueryRow(ctx, update, userID, challengeID, distance)
	if scanErr := row.Scan(&upd.CompletedMeters, &upd.Status, &upd.Points); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			tx.Rollback(ctx)
			return domain.ProgressUpdate{}, domain.ErrChallengeNotActive
		}
		err = scanErr
		return domain.ProgressUpdate{}, err
	}

	// The WHERE clause admits only current rows, so a completed status in the
	// returned row is always a fresh transition.
	upd.Transitioned = upd.Status == domain.StatusCompleted

	if err = tx.Commit(ctx); err != nil {
		return domain.ProgressUpdate{}, err
	}
	return upd, nil
}
