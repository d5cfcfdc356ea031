package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// MemoryStore is an in-process ObjectStore for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*memoryObject)}
}

func objectID(bucket, key string) string {
	return bucket + "/" + key
}

// Put stores an object, replacing any existing one
func (s *MemoryStore) Put(bucket, key string, data []byte, contentType string, metadata map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectID(bucket, key)] = &memoryObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		metadata:    NormalizeMetadata(metadata),
	}
}

// Exists reports whether an object is present
func (s *MemoryStore) Exists(bucket, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[objectID(bucket, key)]
	return ok
}

// Len returns the number of stored objects
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *MemoryStore) GetMetadata(_ context.Context, bucket, key string) (*ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[objectID(bucket, key)]
	if !ok {
		return nil, ErrObjectNotFound
	}

	metadata := make(map[string]string, len(obj.metadata))
	for k, v := range obj.metadata {
		metadata[k] = v
	}
	return &ObjectInfo{
		Bucket:      bucket,
		Key:         key,
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
		Metadata:    metadata,
	}, nil
}

func (s *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectID(bucket, key))
	return nil
}

func (s *MemoryStore) Copy(_ context.Context, srcBucket, srcKey, dstBucket, dstKey string, opts CopyOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.objects[objectID(srcBucket, srcKey)]
	if !ok {
		return ErrObjectNotFound
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = src.contentType
	}
	s.objects[objectID(dstBucket, dstKey)] = &memoryObject{
		data:        append([]byte(nil), src.data...),
		contentType: contentType,
		metadata:    NormalizeMetadata(opts.Metadata),
	}
	return nil
}

func (s *MemoryStore) UpdateMetadata(_ context.Context, bucket, key string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[objectID(bucket, key)]
	if !ok {
		return ErrObjectNotFound
	}
	obj.metadata = NormalizeMetadata(metadata)
	return nil
}

func (s *MemoryStore) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[objectID(bucket, key)]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MemoryStore) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	if !s.Exists(bucket, key) {
		return "", ErrObjectNotFound
	}
	return "memory://" + objectID(bucket, EscapeKey(key)), nil
}
