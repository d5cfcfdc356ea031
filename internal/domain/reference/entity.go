package reference

import "time"

// Target names a document field that can hold a pending image path.
type Target string

const (
	TargetSaleCover    Target = "sale_cover"
	TargetSaleItem     Target = "sale_item"
	TargetProfilePhoto Target = "profile_photo"
)

// PendingReference is a document field still pointing at a pending path.
type PendingReference struct {
	Target     Target    `db:"target"`
	DocumentID string    `db:"document_id"`
	Path       string    `db:"path"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Cursor is a position in the ListPending order.
type Cursor struct {
	UpdatedAt  time.Time
	DocumentID string
	Path       string
}

// Cursor returns the position just past r.
func (r PendingReference) Cursor() Cursor {
	return Cursor{UpdatedAt: r.UpdatedAt, DocumentID: r.DocumentID, Path: r.Path}
}

// Before reports whether c sorts before other.
func (c Cursor) Before(other Cursor) bool {
	if !c.UpdatedAt.Equal(other.UpdatedAt) {
		return c.UpdatedAt.Before(other.UpdatedAt)
	}
	if c.DocumentID != other.DocumentID {
		return c.DocumentID < other.DocumentID
	}
	return c.Path < other.Path
}
