package strike

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// Repository persists user flags.
type Repository interface {
	// Increment adds one strike at the given time. A non-empty source that was
	// already recorded for the user leaves the count unchanged and reports
	// added=false.
	Increment(ctx context.Context, userID, source string, at time.Time) (count int, added bool, err error)
	GetFlag(ctx context.Context, userID string) (*UserFlag, error)
}

// PostgresRepository stores flags in user_flags and dedupe keys in
// user_strike_events.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Increment(ctx context.Context, userID, source string, at time.Time) (int, bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return 0, false, fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	defer tx.Rollback()

	if source != "" {
		result, err := tx.ExecContext(ctx2, `
			INSERT INTO user_strike_events (user_id, object_path, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, object_path) DO NOTHING
		`, userID, source, at)
		if err != nil {
			return 0, false, fmt.Errorf("%w: insert strike event: %v", ErrInternal, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, false, fmt.Errorf("%w: rows affected: %v", ErrInternal, err)
		}
		if rows == 0 {
			count, err := currentCount(ctx2, tx, userID)
			if err != nil {
				return 0, false, err
			}
			return count, false, nil
		}
	}

	var count int
	err = tx.QueryRowContext(ctx2, `
		INSERT INTO user_flags (user_id, strike_count, last_strike_at, updated_at)
		VALUES ($1, 1, $2, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET strike_count = user_flags.strike_count + 1,
		    last_strike_at = EXCLUDED.last_strike_at,
		    updated_at = EXCLUDED.updated_at
		RETURNING strike_count
	`, userID, at).Scan(&count)
	if err != nil {
		return 0, false, fmt.Errorf("%w: upsert user flag: %v", ErrInternal, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("%w: commit tx: %v", ErrInternal, err)
	}
	return count, true, nil
}

func currentCount(ctx context.Context, tx *sqlx.Tx, userID string) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, `SELECT strike_count FROM user_flags WHERE user_id = $1`, userID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read strike count: %v", ErrInternal, err)
	}
	return count, nil
}

func (r *PostgresRepository) GetFlag(ctx context.Context, userID string) (*UserFlag, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var flag UserFlag
	err := r.db.GetContext(ctx2, &flag, `
		SELECT user_id, strike_count, last_strike_at, updated_at
		FROM user_flags
		WHERE user_id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFlagNotFound
		}
		return nil, fmt.Errorf("%w: get user flag: %v", ErrInternal, err)
	}
	return &flag, nil
}
