package kvcache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/domain/repository"
)

// memStore is an in-memory repository.KVStore for engine tests.
type memStore struct {
	mu      sync.Mutex
	values  map[string][]byte
	metas   map[string]model.TransformationMetadata
	ints    map[string]int64
	putErrs map[string]error // key -> error to return on next Put
}

func newMemStore() *memStore {
	return &memStore{
		values: map[string][]byte{},
		metas:  map[string]model.TransformationMetadata{},
		ints:   map[string]int64{},
	}
}

func (m *memStore) Get(ctx context.Context, key string) (repository.KVEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return repository.KVEntry{}, repository.ErrNotFound
	}
	return repository.KVEntry{Value: v, Metadata: m.metas[key]}, nil
}

func (m *memStore) Put(ctx context.Context, key string, value []byte, metadata model.TransformationMetadata, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.putErrs[key]; ok {
		delete(m.putErrs, key)
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[key] = cp
	m.metas[key] = metadata
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.metas, key)
	return nil
}

func (m *memStore) Keys(ctx context.Context, contains string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.values {
		if strings.Contains(k, contains) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memStore) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[key]++
	return m.ints[key], nil
}

func (m *memStore) GetInt(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.ints[key]
	return v, ok, nil
}
