// Package storagetest provides an in-memory storage.Storage for tests.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/pkg/storage"
)

// Object is one stored blob.
type Object struct {
	Body        []byte
	ContentType string
}

// Memory is a bucket held in memory.
type Memory struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]Object

	// StoreErr, when set, is returned by every Store call.
	StoreErr error
	// StoreErrFor, when set, is consulted per key; a non-nil result fails
	// that Store call and leaves the object unwritten.
	StoreErrFor func(key string) error
}

var _ storage.Storage = (*Memory)(nil)

func NewMemory(bucket string) *Memory {
	return &Memory{bucket: bucket, objects: make(map[string]Object)}
}

func (m *Memory) Store(_ context.Context, key string, body io.Reader, contentType string) error {
	if m.StoreErr != nil {
		return m.StoreErr
	}
	if m.StoreErrFor != nil {
		if err := m.StoreErrFor(key); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Body: data, ContentType: contentType}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.Body)), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return errors.New("object not found: " + key)
	}
	delete(m.objects, key)
	return nil
}

func (m *Memory) Bucket() string { return m.bucket }

// Put seeds an object.
func (m *Memory) Put(key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Body: body}
}

// Object returns the stored object at key.
func (m *Memory) Object(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
