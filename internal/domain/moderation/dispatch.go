package moderation

import (
	"context"

	"github.com/salehop/salehop-api/internal/domain/reference"
)

// referenceOps are the document updates for one content kind.
type referenceOps struct {
	reject  func(ctx context.Context, pendingPath string) error
	approve func(ctx context.Context, pendingPath, url string) error
}

// dispatchTable maps every known ContentKind to its reference operations.
// KindUnknown has no entry.
func dispatchTable(refs reference.Repository) map[ContentKind]referenceOps {
	return map[ContentKind]referenceOps{
		KindSaleCover: {
			reject:  refs.RejectSaleCover,
			approve: refs.ApproveSaleCover,
		},
		KindSaleItem: {
			reject:  refs.RejectItemImage,
			approve: refs.ApproveItemImage,
		},
		KindProfilePhoto: {
			reject:  refs.RejectProfilePhoto,
			approve: refs.ApproveProfilePhoto,
		},
	}
}

// kindForTarget maps a stored reference target back to its ContentKind.
func kindForTarget(t reference.Target) ContentKind {
	switch t {
	case reference.TargetSaleCover:
		return KindSaleCover
	case reference.TargetSaleItem:
		return KindSaleItem
	case reference.TargetProfilePhoto:
		return KindProfilePhoto
	default:
		return KindUnknown
	}
}
