// Package objectstore models the S3-like collaborator room.dump_events
// persists an event log dump to, and provides an in-memory implementation
// for development and tests.
package objectstore

import (
	"context"
	"fmt"
	"sync"
)

// Store puts an object at key within a bucket and reports its URI. The
// donor's S3 collaborator is the grounding: a bucket-scoped put returning a
// fully-qualified URI the caller broadcasts to clients.
type Store interface {
	Put(ctx context.Context, bucket, key string, data []byte) (uri string, err error)
}

// Memory is an in-process Store, standing in for the donor's real S3
// client in development and tests — the same "dev stub implements the
// real collaborator's interface" shape as internal/authz's AllowAll.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory constructs an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put stores data under bucket/key and returns its s3:// URI, matching the
// donor's "s3://eventsdump.{audience}/{room_id}.json" key shape.
func (m *Memory) Put(ctx context.Context, bucket, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

// Get returns the bytes stored under bucket/key, for test assertions.
func (m *Memory) Get(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	return data, ok
}
