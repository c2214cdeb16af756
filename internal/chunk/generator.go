// Package chunk splits a source into fixed-size chunks and writes them
// to the CAS in parallel.
//
// A generator yields chunks lazily: each Chunk carries its position
// and a Read that materializes the bytes at most once. Random-access
// sources are chunked without buffering anything ahead; purely
// sequential sources must be read in order, so the streaming generator
// buffers each chunk at Next time and a semaphore bounds how many
// materialized chunks can be outstanding before consumers drain them.
package chunk

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Chunk is one fixed-size piece of a source. Read returns its bytes;
// the underlying read happens at most once and the result is reused
// on repeated calls.
type Chunk struct {
	// Offset is the chunk's byte position in the source.
	Offset uint64

	// Length is the number of bytes the chunk covers. Every chunk but
	// the last covers the full chunk size.
	Length uint64

	read func() ([]byte, error)
	once *sync.Once
	data []byte
	err  error
}

// End returns the first byte position past the chunk.
func (c *Chunk) End() uint64 {
	return c.Offset + c.Length
}

// Read materializes the chunk's bytes.
func (c *Chunk) Read() ([]byte, error) {
	c.once.Do(func() {
		c.data, c.err = c.read()
	})
	return c.data, c.err
}

// Generator yields the chunks of a source in offset order. Next
// returns io.EOF after the last chunk.
type Generator interface {
	Next(ctx context.Context) (*Chunk, error)
}

// RandomAccessSource is a source that can be chunked without
// buffering: size discovery via Seek, positioned reads via ReadAt.
// *os.File and *bytes.Reader qualify.
type RandomAccessSource interface {
	io.ReaderAt
	io.Seeker
}

// readerAtGenerator chunks a random-access source. Chunks are yielded
// eagerly but their bytes are read lazily, so consumers in a worker
// pool perform the actual reads concurrently.
type readerAtGenerator struct {
	src       io.ReaderAt
	size      uint64
	chunkSize uint64
	offset    uint64
}

// NewReaderAtGenerator builds a generator over a random-access source.
// The source size is discovered by seeking to the end.
func NewReaderAtGenerator(src RandomAccessSource, chunkSize uint64) (Generator, error) {
	if chunkSize == 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	end, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to determine source size: %w", err)
	}
	return &readerAtGenerator{
		src:       src,
		size:      uint64(end),
		chunkSize: chunkSize,
	}, nil
}

func (g *readerAtGenerator) Next(ctx context.Context) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.offset >= g.size {
		return nil, io.EOF
	}

	offset := g.offset
	length := g.chunkSize
	if remaining := g.size - offset; remaining < length {
		length = remaining
	}
	g.offset += length

	src := g.src
	return &Chunk{
		Offset: offset,
		Length: length,
		once:   &sync.Once{},
		read: func() ([]byte, error) {
			buf := make([]byte, length)
			n, err := src.ReadAt(buf, int64(offset))
			if uint64(n) == length {
				return buf, nil
			}
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("failed to read chunk at %d: %w", offset, err)
		},
	}, nil
}

// streamGenerator chunks a sequential source. Bytes must be consumed
// in order, so each chunk is materialized during Next; the semaphore
// caps how many materialized chunks exist at once, keeping memory
// bounded no matter how far the consumer pool lags.
type streamGenerator struct {
	src         io.Reader
	chunkSize   uint64
	offset      uint64
	done        bool
	outstanding *semaphore.Weighted
}

// NewStreamGenerator builds a generator over a sequential source.
// maxOutstanding bounds the number of chunk buffers held in memory.
func NewStreamGenerator(src io.Reader, chunkSize uint64, maxOutstanding int64) (Generator, error) {
	if chunkSize == 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	if maxOutstanding < 1 {
		return nil, fmt.Errorf("max outstanding chunks must be at least 1")
	}
	return &streamGenerator{
		src:         src,
		chunkSize:   chunkSize,
		outstanding: semaphore.NewWeighted(maxOutstanding),
	}, nil
}

func (g *streamGenerator) Next(ctx context.Context) (*Chunk, error) {
	if g.done {
		return nil, io.EOF
	}
	if err := g.outstanding.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	buf := make([]byte, g.chunkSize)
	n, err := io.ReadFull(g.src, buf)
	switch err {
	case nil:
	case io.ErrUnexpectedEOF:
		g.done = true
		buf = buf[:n]
	case io.EOF:
		g.done = true
		g.outstanding.Release(1)
		return nil, io.EOF
	default:
		g.done = true
		g.outstanding.Release(1)
		return nil, fmt.Errorf("failed to read chunk at %d: %w", g.offset, err)
	}

	offset := g.offset
	g.offset += uint64(n)

	// The buffer's semaphore token is released the first time the
	// chunk is read, when ownership passes to the consumer.
	release := &sync.Once{}
	sem := g.outstanding
	return &Chunk{
		Offset: offset,
		Length: uint64(n),
		once:   &sync.Once{},
		read: func() ([]byte, error) {
			release.Do(func() { sem.Release(1) })
			return buf, nil
		},
	}, nil
}
