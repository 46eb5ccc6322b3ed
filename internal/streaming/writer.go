// Package streaming implements the chunked write and read paths (§4.E) used
// once an artifact exceeds the single-entry threshold: fixed-size chunk
// emission on write, and full/range chunk assembly on read.
package streaming

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/edgestream/videocache/internal/chunklock"
)

// MaxConcurrentChunkWrites bounds in-flight chunk uploads per artifact (§5).
const MaxConcurrentChunkWrites = 5

// ChunkWriteFunc persists chunk index's bytes, e.g. to the KV store under its
// derived chunk key. Implementations must not retain data beyond the call.
type ChunkWriteFunc func(ctx context.Context, index int, data []byte) error

// Processor splits a source reader into fixed-size chunks and dispatches
// their writes with bounded concurrency, serializing each chunk's write
// behind the process-local chunk lock so a retried/overlapping store for the
// same chunk index cannot interleave (§4.F).
type Processor struct {
	chunkSize int64
	locks     *chunklock.Manager
	keyPrefix func(index int) string
}

// NewProcessor builds a Processor. keyPrefix derives the chunk-lock key for
// a chunk index (normally cachekey.ChunkKey(baseKey, index)).
func NewProcessor(chunkSize int64, locks *chunklock.Manager, keyPrefix func(index int) string) *Processor {
	return &Processor{chunkSize: chunkSize, locks: locks, keyPrefix: keyPrefix}
}

// Process reads r to EOF in chunkSize-sized pieces, calling write for each
// chunk with bounded concurrency (MaxConcurrentChunkWrites). It returns the
// actual size of every chunk in order and the total bytes read. Reading is
// inherently sequential (io.Reader has no random access); only the
// downstream write of a completed chunk runs concurrently with reading the
// next one.
func (p *Processor) Process(ctx context.Context, r io.Reader, write ChunkWriteFunc) ([]int64, int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentChunkWrites)

	var sizes []int64
	var total int64
	index := 0

	for {
		buf := make([]byte, p.chunkSize)
		n, readErr := io.ReadFull(r, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			_ = g.Wait()
			return nil, 0, fmt.Errorf("streaming: read chunk %d: %w", index, readErr)
		}
		if n == 0 {
			break
		}

		chunk := buf[:n]
		sizes = append(sizes, int64(n))
		total += int64(n)

		idx := index
		key := p.keyPrefix(idx)
		g.Go(func() error {
			release := p.locks.Acquire(key)
			defer release()
			return write(gctx, idx, chunk)
		})

		index++
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return sizes, total, nil
}
