package kvcache

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/edgestream/videocache/internal/cachekey"
	"github.com/edgestream/videocache/internal/chunklock"
	"github.com/edgestream/videocache/internal/domain/model"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memStore) {
	t.Helper()
	store := newMemStore()
	locks := chunklock.New()
	t.Cleanup(locks.Stop)
	v := cachekey.NewVersioner(store, nil, nil)
	return New(store, v, locks, nil, cfg), store
}

func TestStore_SingleEntryPath(t *testing.T) {
	e, store := newTestEngine(t, Config{SingleEntryMax: 1024, StandardChunkSize: 256})
	body := bytes.Repeat([]byte("a"), 500)

	ok, err := e.Store(context.Background(), "video:x", StoreInput{Body: bytes.NewReader(body), ContentType: "video/mp4"})
	if err != nil || !ok {
		t.Fatalf("expected successful store, got ok=%v err=%v", ok, err)
	}

	entry, err := store.Get(context.Background(), "video:x")
	if err != nil {
		t.Fatalf("unexpected error reading back: %v", err)
	}
	if entry.Metadata.IsChunked {
		t.Fatal("expected single-entry metadata")
	}
	if entry.Metadata.ActualTotalVideoSize != 500 {
		t.Fatalf("expected size 500, got %d", entry.Metadata.ActualTotalVideoSize)
	}
	if !bytes.Equal(entry.Value, body) {
		t.Fatal("stored bytes mismatch")
	}
}

func TestStore_BoundaryExactlyAtSingleEntryMax(t *testing.T) {
	e, store := newTestEngine(t, Config{SingleEntryMax: 100, StandardChunkSize: 50})
	body := bytes.Repeat([]byte("b"), 100)

	ok, err := e.Store(context.Background(), "video:boundary", StoreInput{Body: bytes.NewReader(body), ContentType: "video/mp4"})
	if err != nil || !ok {
		t.Fatalf("expected store success, got ok=%v err=%v", ok, err)
	}
	entry, _ := store.Get(context.Background(), "video:boundary")
	if entry.Metadata.IsChunked {
		t.Fatal("expected boundary-sized payload to use single-entry path")
	}
}

func TestStore_OneByteOverMax_GoesChunked(t *testing.T) {
	e, store := newTestEngine(t, Config{SingleEntryMax: 100, StandardChunkSize: 50})
	body := bytes.Repeat([]byte("c"), 101)

	ok, err := e.Store(context.Background(), "video:over", StoreInput{Body: bytes.NewReader(body), ContentType: "video/mp4"})
	if err != nil || !ok {
		t.Fatalf("expected store success, got ok=%v err=%v", ok, err)
	}
	entry, _ := store.Get(context.Background(), "video:over")
	if !entry.Metadata.IsChunked {
		t.Fatal("expected chunked path for over-threshold payload")
	}
}

func TestStore_ChunkedManifestInvariants(t *testing.T) {
	e, store := newTestEngine(t, Config{SingleEntryMax: 10, StandardChunkSize: 10})
	body := bytes.Repeat([]byte("d"), 25) // 10,10,5

	ok, err := e.Store(context.Background(), "video:chunked", StoreInput{Body: bytes.NewReader(body), ContentType: "video/mp4"})
	if err != nil || !ok {
		t.Fatalf("expected store success, got ok=%v err=%v", ok, err)
	}

	entry, _ := store.Get(context.Background(), "video:chunked")
	var manifest model.ChunkManifest
	if err := json.Unmarshal(entry.Value, &manifest); err != nil {
		t.Fatalf("expected valid manifest JSON: %v", err)
	}
	if err := manifest.Validate(); err != nil {
		t.Fatalf("manifest failed validation: %v", err)
	}
	if manifest.TotalSize != 25 || manifest.ChunkCount != 3 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}

	c0, err := store.Get(context.Background(), cachekey.ChunkKey("video:chunked", 0))
	if err != nil || len(c0.Value) != 10 {
		t.Fatalf("unexpected chunk 0: err=%v len=%d", err, len(c0.Value))
	}
	c2, err := store.Get(context.Background(), cachekey.ChunkKey("video:chunked", 2))
	if err != nil || len(c2.Value) != 5 {
		t.Fatalf("unexpected chunk 2: err=%v len=%d", err, len(c2.Value))
	}
}

func TestStore_RefusesPartialResponse(t *testing.T) {
	e, store := newTestEngine(t, Config{SingleEntryMax: 100, StandardChunkSize: 50})
	ok, err := e.Store(context.Background(), "video:partial", StoreInput{
		Body:      bytes.NewReader([]byte("abc")),
		IsPartial: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected partial response to be refused")
	}
	if _, err := store.Get(context.Background(), "video:partial"); err == nil {
		t.Fatal("expected nothing to be stored for a refused partial response")
	}
}

func TestStore_RefusesOversizedKey(t *testing.T) {
	e, _ := newTestEngine(t, Config{SingleEntryMax: 1024, StandardChunkSize: 256})
	oversizedKey := "video:" + string(bytes.Repeat([]byte("k"), keyErrorBytes))

	ok, err := e.Store(context.Background(), oversizedKey, StoreInput{Body: bytes.NewReader([]byte("x")), ContentType: "video/mp4"})
	if err == nil {
		t.Fatal("expected an error for an oversized key")
	}
	if ok {
		t.Fatal("expected store to refuse an oversized key")
	}
}

func TestStore_RefusesOversizedMetadata(t *testing.T) {
	e, _ := newTestEngine(t, Config{SingleEntryMax: 1024, StandardChunkSize: 256})
	bigTags := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		bigTags = append(bigTags, "tag-that-is-fairly-long-to-pad-out-the-metadata-json-payload")
	}

	ok, err := e.Store(context.Background(), "video:bigmeta", StoreInput{
		Body:        bytes.NewReader([]byte("x")),
		ContentType: "video/mp4",
		CacheTags:   bigTags,
	})
	if err == nil {
		t.Fatal("expected an error for an oversized metadata payload")
	}
	if ok {
		t.Fatal("expected store to refuse oversized metadata")
	}
}

func TestStore_RefusesOverSafetyCeiling(t *testing.T) {
	e, _ := newTestEngine(t, Config{SingleEntryMax: 10, StandardChunkSize: 10, SafetyCeiling: 25})
	body := bytes.Repeat([]byte("e"), 30)

	ok, err := e.Store(context.Background(), "video:huge", StoreInput{Body: bytes.NewReader(body), ContentType: "video/mp4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected oversized payload to be refused")
	}
}
