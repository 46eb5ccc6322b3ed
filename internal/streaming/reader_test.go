package streaming

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
)

func chunksOf(data []byte, chunkSize int) [][]byte {
	var chunks [][]byte
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}

func TestStreamFull_WritesAllChunksInOrder(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 25)
	chunks := chunksOf(data, 10)

	read := func(ctx context.Context, index int) ([]byte, error) {
		return chunks[index], nil
	}

	var buf bytes.Buffer
	if err := StreamFull(context.Background(), len(chunks), read, &buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Fatalf("streamed data mismatch")
	}
}

func TestStreamFull_PropagatesFetchError(t *testing.T) {
	boom := errors.New("boom")
	read := func(ctx context.Context, index int) ([]byte, error) {
		return nil, boom
	}
	var buf bytes.Buffer
	err := StreamFull(context.Background(), 3, read, &buf, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStreamFull_SkipsChunkErrorAfterBytesWritten(t *testing.T) {
	boom := errors.New("boom")
	read := func(ctx context.Context, index int) ([]byte, error) {
		if index == 1 {
			return nil, boom
		}
		return []byte{byte('a' + index)}, nil
	}
	var buf bytes.Buffer
	if err := StreamFull(context.Background(), 3, read, &buf, nil); err != nil {
		t.Fatalf("expected the stream to survive a mid-stream chunk error, got %v", err)
	}
	want := []byte{'a', 'c'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got %q want %q", buf.Bytes(), want)
	}
}

func TestStreamFull_ClassifiesWriteErrorAsDisconnect(t *testing.T) {
	read := func(ctx context.Context, index int) ([]byte, error) {
		return []byte("abc"), nil
	}
	w := failingWriter{}
	err := StreamFull(context.Background(), 1, read, w, nil)
	if !errors.Is(err, ErrClientDisconnected) {
		t.Fatalf("expected ErrClientDisconnected, got %v", err)
	}
}

func TestStreamRange_WritesOnlyRequestedBytes(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 10) // 100 bytes, chunk size 10 -> chunks 0..9
	chunkSize := int64(10)
	chunks := chunksOf(data, int(chunkSize))

	read := func(ctx context.Context, index int) ([]byte, error) {
		return chunks[index], nil
	}

	// Range [15, 34] spans chunk 1 (bytes 10-19), chunk 2 (20-29), chunk 3 (30-39).
	start, end := int64(15), int64(34)
	first := int(start / chunkSize)
	last := int(end / chunkSize)

	var buf bytes.Buffer
	if err := StreamRange(context.Background(), first, last, chunkSize, start, end, read, &buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := data[start : end+1]
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("range mismatch: got %q want %q", buf.Bytes(), want)
	}
}

func TestStreamRange_SingleChunkRange(t *testing.T) {
	data := bytes.Repeat([]byte("z"), 30)
	chunkSize := int64(10)
	chunks := chunksOf(data, int(chunkSize))
	read := func(ctx context.Context, index int) ([]byte, error) {
		return chunks[index], nil
	}

	start, end := int64(12), int64(17)
	var buf bytes.Buffer
	if err := StreamRange(context.Background(), 1, 1, chunkSize, start, end, read, &buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := data[start : end+1]
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got %q want %q", buf.Bytes(), want)
	}
}

func TestStreamRange_PropagatesFetchErrorOnFirstChunk(t *testing.T) {
	boom := errors.New("boom")
	read := func(ctx context.Context, index int) ([]byte, error) {
		return nil, boom
	}
	var buf bytes.Buffer
	err := StreamRange(context.Background(), 0, 2, 10, 0, 29, read, &buf, nil)
	if err == nil {
		t.Fatal("expected error when the very first chunk fails")
	}
}

func TestStreamRange_SkipsChunkErrorAfterBytesWritten(t *testing.T) {
	boom := errors.New("boom")
	chunkSize := int64(10)
	read := func(ctx context.Context, index int) ([]byte, error) {
		if index == 1 {
			return nil, boom
		}
		return bytes.Repeat([]byte{byte('a' + index)}, int(chunkSize)), nil
	}

	var buf bytes.Buffer
	err := StreamRange(context.Background(), 0, 2, chunkSize, 0, 29, read, &buf, nil)
	if err != nil {
		t.Fatalf("expected the range stream to survive a mid-stream chunk error, got %v", err)
	}
	want := append(bytes.Repeat([]byte{'a'}, 10), bytes.Repeat([]byte{'c'}, 10)...)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got %q want %q", buf.Bytes(), want)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("broken pipe")
}
