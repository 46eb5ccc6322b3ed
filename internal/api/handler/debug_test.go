package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgestream/videocache/internal/chunklock"
	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/domain/repository"
	"github.com/edgestream/videocache/internal/kvcache"
)

// memStore is a minimal in-memory repository.KVStore for exercising the
// debug handlers without standing up Redis.
type memStore struct {
	mu     sync.Mutex
	values map[string][]byte
	metas  map[string]model.TransformationMetadata
}

func newMemStore() *memStore {
	return &memStore{values: map[string][]byte{}, metas: map[string]model.TransformationMetadata{}}
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
	m.values[key] = value
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

func (m *memStore) Incr(ctx context.Context, key string) (int64, error) { return 1, nil }

func (m *memStore) GetInt(ctx context.Context, key string) (int64, bool, error) { return 0, false, nil }

func TestDebugConfigHandler_RequiresDebugFlag(t *testing.T) {
	h := NewDebugConfigHandler(repository.RuntimeConfig{})

	req := httptest.NewRequest(http.MethodGet, "/debug/config", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without ?debug, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/debug/config?debug", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with ?debug, got %d", rec.Code)
	}
}

func TestDebugCacheHandler_RequiresPath(t *testing.T) {
	store := newMemStore()
	locks := chunklock.New()
	defer locks.Stop()
	engine := kvcache.New(store, nil, locks, nil, kvcache.Config{})
	h := NewDebugCacheHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/debug/cache", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without ?path, got %d", rec.Code)
	}
}

func TestDebugCacheHandler_ListsMatchingEntries(t *testing.T) {
	store := newMemStore()
	locks := chunklock.New()
	defer locks.Stop()
	engine := kvcache.New(store, nil, locks, nil, kvcache.Config{SingleEntryMax: 1024, StandardChunkSize: 256})

	if _, err := engine.Store(context.Background(), "video:videos/a.mp4", kvcache.StoreInput{
		Body:        strings.NewReader("x"),
		ContentType: "video/mp4",
	}); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/cache?path=videos/a", nil)
	rec := httptest.NewRecorder()
	h := NewDebugCacheHandler(engine)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out []DebugCacheEntry
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(out) != 1 || out[0].Key != "video:videos/a.mp4" {
		t.Fatalf("unexpected entries: %+v", out)
	}
}
