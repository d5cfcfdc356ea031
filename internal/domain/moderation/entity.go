package moderation

import (
	"strings"

	"github.com/salehop/salehop-api/internal/pkg/storage"
)

// PendingPrefix is the reserved key prefix of uploads awaiting moderation.
const PendingPrefix = "pending/"

// Object metadata written on approval.
const (
	MetaModeration    = "moderation"
	MetaDownloadToken = "download-token"

	ModerationApproved = "approved"
)

// ContentKind selects the document field an image belongs to.
type ContentKind int

const (
	KindUnknown ContentKind = iota
	KindSaleCover
	KindSaleItem
	KindProfilePhoto
)

func (k ContentKind) String() string {
	switch k {
	case KindSaleCover:
		return "sale_cover"
	case KindSaleItem:
		return "sale_item"
	case KindProfilePhoto:
		return "profile_photo"
	default:
		return "unknown"
	}
}

// ParseContentKind maps a metadata value to a ContentKind. Unrecognized
// values map to KindUnknown.
func ParseContentKind(s string) ContentKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sale_cover", "cover", "salecover":
		return KindSaleCover
	case "sale_item", "item", "saleitem":
		return KindSaleItem
	case "profile_photo", "profile", "avatar", "profilephoto":
		return KindProfilePhoto
	default:
		return KindUnknown
	}
}

// PendingObject is an uploaded image awaiting a decision, identified by
// bucket and key alone.
type PendingObject struct {
	Bucket      string
	Key         string
	Kind        ContentKind
	OwnerID     string
	ContentType string
	Metadata    map[string]string

	// info caches a metadata lookup already made for this object; absent
	// records that the lookup found nothing.
	info   *storage.ObjectInfo
	absent bool
}

// FinalKey is the key the object is promoted to on approval.
func (o *PendingObject) FinalKey() string {
	return strings.TrimPrefix(o.Key, PendingPrefix)
}

// Source identifies the object in logs and strike records.
func (o *PendingObject) Source() string {
	return o.Bucket + "/" + o.Key
}

var (
	ownerKeys = []string{"owner", "ownerid", "owner_id", "uid", "userid", "user_id"}
	kindKeys  = []string{"kind", "type", "contentkind", "content_kind", "category"}
)

// applyMetadata fills owner and kind from metadata when they are not set yet.
func (o *PendingObject) applyMetadata(metadata map[string]string) {
	normalized := storage.NormalizeMetadata(metadata)
	if o.OwnerID == "" {
		o.OwnerID = firstValue(normalized, ownerKeys)
	}
	if o.Kind == KindUnknown {
		o.Kind = ParseContentKind(firstValue(normalized, kindKeys))
	}
}

func (o *PendingObject) routed() bool {
	return o.OwnerID != "" && o.Kind != KindUnknown
}

func firstValue(metadata map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(metadata[k]); v != "" {
			return v
		}
	}
	return ""
}
