package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrClientDisconnected is returned when the destination writer fails mid
// stream, distinguishing a client hangup from an upstream read failure
// (§4.E).
var ErrClientDisconnected = errors.New("streaming: client disconnected")

// ChunkReadFunc fetches the bytes of chunk index, sized per the manifest.
type ChunkReadFunc func(ctx context.Context, index int) ([]byte, error)

// ChunkTimeout bounds how long a single chunk fetch may take before the
// stream aborts (§4.E).
const ChunkTimeout = 10 * time.Second

// StreamFull writes every chunk in order to dst. A write error to dst is
// always fatal, since it means the client is gone. A chunk fetch error is
// fatal only if nothing has been written to dst yet; once the response has
// started, a failed chunk is logged and skipped so the rest of the stream
// still reaches the client (§4.E).
func StreamFull(ctx context.Context, chunkCount int, read ChunkReadFunc, dst io.Writer, logger *slog.Logger) error {
	logger = orDefault(logger)
	var written int64

	for i := 0; i < chunkCount; i++ {
		data, err := fetchWithTimeout(ctx, i, read)
		if err != nil {
			if written == 0 {
				return fmt.Errorf("streaming: fetch chunk %d: %w", i, err)
			}
			logger.Warn("mid-stream chunk fetch failed, skipping", "chunk_index", i, "error", err)
			continue
		}
		if _, werr := dst.Write(data); werr != nil {
			return fmt.Errorf("%w: %v", ErrClientDisconnected, werr)
		}
		written += int64(len(data))
	}
	return nil
}

// StreamRange writes only the bytes in [start, end] (inclusive) of the
// logical asset, spanning chunk indices firstChunk..lastChunk of size
// standardChunkSize. It fetches the next chunk while the current one is
// still being written when a next chunk exists (prefetch), so client I/O
// does not serialize with the next origin-chunk read (§4.E, §4.H). The same
// skip-and-continue policy as StreamFull applies to chunk fetch errors once
// the range response has already started.
func StreamRange(ctx context.Context, firstChunk, lastChunk int, standardChunkSize, start, end int64, read ChunkReadFunc, dst io.Writer, logger *slog.Logger) error {
	logger = orDefault(logger)

	type fetched struct {
		data []byte
		err  error
	}

	next := make(chan fetched, 1)
	fetch := func(idx int) {
		data, err := fetchWithTimeout(ctx, idx, read)
		next <- fetched{data: data, err: err}
	}

	go fetch(firstChunk)

	var written int64
	for idx := firstChunk; idx <= lastChunk; idx++ {
		res := <-next

		if idx+1 <= lastChunk {
			go fetch(idx + 1)
		}

		if res.err != nil {
			if written == 0 {
				return fmt.Errorf("streaming: fetch chunk %d: %w", idx, res.err)
			}
			logger.Warn("mid-stream range chunk fetch failed, skipping", "chunk_index", idx, "error", res.err)
			continue
		}

		chunkStart := int64(idx) * standardChunkSize
		chunkEnd := chunkStart + int64(len(res.data)) - 1

		lo := int64(0)
		if start > chunkStart {
			lo = start - chunkStart
		}
		hi := int64(len(res.data)) - 1
		if end < chunkEnd {
			hi = end - chunkStart
		}
		if lo > hi {
			continue
		}

		if _, werr := dst.Write(res.data[lo : hi+1]); werr != nil {
			return fmt.Errorf("%w: %v", ErrClientDisconnected, werr)
		}
		written += hi - lo + 1
	}
	return nil
}

func fetchWithTimeout(ctx context.Context, index int, read ChunkReadFunc) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, ChunkTimeout)
	defer cancel()
	return read(cctx, index)
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
