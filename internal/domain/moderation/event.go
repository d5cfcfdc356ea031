package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/salehop/salehop-api/internal/pkg/logger"
	"github.com/salehop/salehop-api/internal/pkg/storage"
)

// MetadataReader looks up object metadata.
type MetadataReader interface {
	GetMetadata(ctx context.Context, bucket, key string) (*storage.ObjectInfo, error)
}

// Normalizer turns a raw storage event into a PendingObject.
type Normalizer struct {
	store MetadataReader
}

// NewNormalizer creates a Normalizer that falls back to store for missing
// routing metadata.
func NewNormalizer(store MetadataReader) *Normalizer {
	return &Normalizer{store: store}
}

// objectFields is one wire shape: the flat event, or the inner "data" object.
type objectFields struct {
	Bucket      string
	Name        string
	ContentType string
	Metadata    map[string]string
}

// Normalize parses body. Errors wrap ErrMalformedEvent when body is not a
// JSON object, and ErrUnroutableEvent when it names no pending object.
func (n *Normalizer) Normalize(ctx context.Context, body []byte) (*PendingObject, error) {
	top, err := decodeObject(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	fields := readFields(top)
	if fields.Bucket == "" || fields.Name == "" {
		if raw, ok := top["data"]; ok {
			if inner, err := decodeObject(raw); err == nil {
				fields = readFields(inner)
			}
		}
	}
	if fields.Bucket == "" || fields.Name == "" {
		return nil, fmt.Errorf("%w: event has no bucket or object name", ErrUnroutableEvent)
	}
	if !strings.HasPrefix(fields.Name, PendingPrefix) {
		return nil, fmt.Errorf("%w: %s/%s is not pending", ErrUnroutableEvent, fields.Bucket, fields.Name)
	}

	obj := &PendingObject{
		Bucket:      fields.Bucket,
		Key:         fields.Name,
		ContentType: fields.ContentType,
		Metadata:    storage.NormalizeMetadata(fields.Metadata),
	}
	obj.applyMetadata(obj.Metadata)

	if !obj.routed() && n.store != nil {
		n.lookup(ctx, obj)
	}
	return obj, nil
}

// lookup merges the stored object's metadata into obj. Event values win.
func (n *Normalizer) lookup(ctx context.Context, obj *PendingObject) {
	info, err := n.store.GetMetadata(ctx, obj.Bucket, obj.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			obj.absent = true
			return
		}
		logger.FromContext(ctx).Warn().
			Err(err).
			Str("bucket", obj.Bucket).
			Str("key", obj.Key).
			Msg("Metadata lookup failed, continuing with event metadata")
		return
	}

	obj.info = info
	for k, v := range info.Metadata {
		if _, ok := obj.Metadata[k]; !ok {
			obj.Metadata[k] = v
		}
	}
	if obj.ContentType == "" {
		obj.ContentType = info.ContentType
	}
	obj.applyMetadata(obj.Metadata)
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, errors.New("body is not a JSON object")
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readFields(obj map[string]json.RawMessage) objectFields {
	f := objectFields{
		Bucket:      stringField(obj["bucket"]),
		Name:        stringField(obj["name"]),
		ContentType: stringField(obj["contentType"]),
	}

	if raw, ok := obj["metadata"]; ok {
		var values map[string]json.RawMessage
		if err := json.Unmarshal(raw, &values); err == nil {
			f.Metadata = make(map[string]string, len(values))
			for k, v := range values {
				if s, ok := scalarString(v); ok {
					f.Metadata[k] = s
				}
			}
		}
	}
	return f
}

// stringField returns raw as a string, or "" when it is not a JSON string.
func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// scalarString stringifies a metadata value. Null is dropped.
func scalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}
