package moderation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

// RejectionLog remembers which pending objects were deleted as unsafe, so a
// missing object can be told apart from one that was never in the bucket.
type RejectionLog interface {
	RecordRejection(ctx context.Context, bucket, key string) error
	WasRejected(ctx context.Context, bucket, key string) (bool, error)
}

// RejectionRepository stores rejections in moderation_rejections.
type RejectionRepository struct {
	db *sqlx.DB
}

func NewRejectionRepository(db *sqlx.DB) *RejectionRepository {
	return &RejectionRepository{db: db}
}

func (r *RejectionRepository) RecordRejection(ctx context.Context, bucket, key string) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO moderation_rejections (bucket, object_key, rejected_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (bucket, object_key) DO UPDATE SET rejected_at = EXCLUDED.rejected_at
	`, bucket, key)
	if err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	return nil
}

func (r *RejectionRepository) WasRejected(ctx context.Context, bucket, key string) (bool, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var found int
	err := r.db.GetContext(ctx2, &found, `
		SELECT 1 FROM moderation_rejections WHERE bucket = $1 AND object_key = $2
	`, bucket, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read rejection: %w", err)
	}
	return true, nil
}
