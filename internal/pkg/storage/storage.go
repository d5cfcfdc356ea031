package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"
)

// ErrObjectNotFound is returned when the addressed object does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectInfo is the metadata view of a stored object.
type ObjectInfo struct {
	Bucket      string
	Key         string
	ContentType string
	Size        int64
	// Metadata holds user metadata. Keys are lower-cased, as S3 returns them.
	Metadata map[string]string
}

// CopyOptions controls the destination object of a copy.
// Metadata replaces the source metadata entirely.
type CopyOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore is the object-store surface used by the moderation pipeline.
// Every operation addresses objects by bucket and key.
type ObjectStore interface {
	// GetMetadata returns ErrObjectNotFound if the object is absent.
	GetMetadata(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// Delete removes an object. Deleting an absent object is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// Copy returns ErrObjectNotFound if the source is absent.
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string, opts CopyOptions) error

	// UpdateMetadata replaces the user metadata of an existing object.
	UpdateMetadata(ctx context.Context, bucket, key string, metadata map[string]string) error

	// Open streams the object's content. The caller closes the reader.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// PresignGet returns a time-limited URL for reading the object.
	PresignGet(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}

// PublicURL builds the public download URL of an approved object.
// The result depends only on its inputs.
func PublicURL(baseURL, bucket, key, token string) string {
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(bucket) + "/" + EscapeKey(key) +
		"?token=" + url.QueryEscape(token)
}

// EscapeKey percent-encodes each segment of an object key, keeping the separators.
func EscapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// NormalizeMetadata lower-cases metadata keys and drops empty ones.
func NormalizeMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
