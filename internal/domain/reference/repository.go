// Package reference updates the sale and profile fields that point at
// moderated images. Every operation is keyed by the pending object path and
// is a no-op when no document holds that path.
package reference

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const queryTimeout = 5 * time.Second

// Repository defines the reference updates the moderation pipeline performs.
type Repository interface {
	RejectSaleCover(ctx context.Context, pendingPath string) error
	ApproveSaleCover(ctx context.Context, pendingPath, url string) error
	RejectItemImage(ctx context.Context, pendingPath string) error
	ApproveItemImage(ctx context.Context, pendingPath, url string) error
	RejectProfilePhoto(ctx context.Context, pendingPath string) error
	ApproveProfilePhoto(ctx context.Context, pendingPath, url string) error

	// ListPending returns up to limit references still pointing under
	// pending/ whose document was last updated before olderThan, ordered by
	// (updated_at, document_id, path) and starting after the given cursor.
	// The zero Cursor starts at the beginning.
	ListPending(ctx context.Context, olderThan time.Time, after Cursor, limit int) ([]PendingReference, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates a PostgreSQL reference repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) RejectSaleCover(ctx context.Context, pendingPath string) error {
	return r.setColumn(ctx, `
		UPDATE sales SET cover_photo = NULL, updated_at = NOW()
		WHERE cover_photo = $1
	`, pendingPath)
}

func (r *repository) ApproveSaleCover(ctx context.Context, pendingPath, url string) error {
	return r.setColumn(ctx, `
		UPDATE sales SET cover_photo = $2, updated_at = NOW()
		WHERE cover_photo = $1
	`, pendingPath, url)
}

func (r *repository) RejectProfilePhoto(ctx context.Context, pendingPath string) error {
	return r.setColumn(ctx, `
		UPDATE profiles SET photo_url = NULL, updated_at = NOW()
		WHERE photo_url = $1
	`, pendingPath)
}

func (r *repository) ApproveProfilePhoto(ctx context.Context, pendingPath, url string) error {
	return r.setColumn(ctx, `
		UPDATE profiles SET photo_url = $2, updated_at = NOW()
		WHERE photo_url = $1
	`, pendingPath, url)
}

func (r *repository) RejectItemImage(ctx context.Context, pendingPath string) error {
	return r.rewriteItemPhotos(ctx, pendingPath, nil)
}

func (r *repository) ApproveItemImage(ctx context.Context, pendingPath, url string) error {
	return r.rewriteItemPhotos(ctx, pendingPath, &url)
}

func (r *repository) setColumn(ctx context.Context, query, pendingPath string, args ...interface{}) error {
	if pendingPath == "" {
		return ErrEmptyPath
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx2, query, append([]interface{}{pendingPath}, args...)...); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

type saleItemsRow struct {
	ID    string `db:"id"`
	Items []byte `db:"items"`
}

// rewriteItemPhotos replaces the photo of every item equal to pendingPath
// with photo (nil clears it), locking the matching sales for the update.
func (r *repository) rewriteItemPhotos(ctx context.Context, pendingPath string, photo *string) error {
	if pendingPath == "" {
		return ErrEmptyPath
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	containment, err := json.Marshal([]map[string]string{{"photo": pendingPath}})
	if err != nil {
		return fmt.Errorf("%w: marshal containment: %v", ErrInternal, err)
	}

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", ErrInternal, err)
	}
	defer tx.Rollback()

	var rows []saleItemsRow
	err = tx.SelectContext(ctx2, &rows, `
		SELECT id::text AS id, items
		FROM sales
		WHERE items @> $1::jsonb
		FOR UPDATE
	`, string(containment))
	if err != nil {
		return fmt.Errorf("%w: select sales: %v", ErrInternal, err)
	}

	for _, row := range rows {
		items, changed, err := rewriteItems(row.Items, pendingPath, photo)
		if err != nil {
			return fmt.Errorf("%w: sale %s: %v", ErrInternal, row.ID, err)
		}
		if !changed {
			continue
		}
		if _, err := tx.ExecContext(ctx2, `
			UPDATE sales SET items = $2::jsonb, updated_at = NOW()
			WHERE id::text = $1
		`, row.ID, string(items)); err != nil {
			return fmt.Errorf("%w: update sale %s: %v", ErrInternal, row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx: %v", ErrInternal, err)
	}
	return nil
}

// rewriteItems sets the "photo" field of each item whose photo equals
// pendingPath. Other fields and items are preserved.
func rewriteItems(raw json.RawMessage, pendingPath string, photo *string) (json.RawMessage, bool, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("decode items: %w", err)
	}

	replacement := json.RawMessage("null")
	if photo != nil {
		b, err := json.Marshal(*photo)
		if err != nil {
			return nil, false, err
		}
		replacement = b
	}

	changed := false
	for _, item := range items {
		current, ok := item["photo"]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(current, &value); err != nil || value != pendingPath {
			continue
		}
		item["photo"] = replacement
		changed = true
	}
	if !changed {
		return raw, false, nil
	}

	out, err := json.Marshal(items)
	if err != nil {
		return nil, false, fmt.Errorf("encode items: %w", err)
	}
	return out, true, nil
}

func (r *repository) ListPending(ctx context.Context, olderThan time.Time, after Cursor, limit int) ([]PendingReference, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT target, document_id, path, updated_at FROM (
			SELECT 'sale_cover' AS target, id::text AS document_id, cover_photo AS path, updated_at
			FROM sales
			WHERE cover_photo LIKE 'pending/%' AND updated_at < $1
			UNION ALL
			SELECT 'sale_item', s.id::text, item->>'photo', s.updated_at
			FROM sales s CROSS JOIN LATERAL jsonb_array_elements(s.items) AS item
			WHERE item->>'photo' LIKE 'pending/%' AND s.updated_at < $1
			UNION ALL
			SELECT 'profile_photo', id::text, photo_url, updated_at
			FROM profiles
			WHERE photo_url LIKE 'pending/%' AND updated_at < $1
		) pending
		WHERE (updated_at, document_id, path) > ($3::timestamptz, $4::text, $5::text)
		ORDER BY updated_at, document_id, path
		LIMIT $2
	`

	var refs []PendingReference
	if err := r.db.SelectContext(ctx2, &refs, query, olderThan, limit, after.UpdatedAt.UTC(), after.DocumentID, after.Path); err != nil {
		return nil, fmt.Errorf("%w: list pending: %v", ErrInternal, err)
	}
	return refs, nil
}
