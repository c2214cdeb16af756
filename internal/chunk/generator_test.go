package chunk

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain collects all chunks and their materialized bytes.
func drain(t *testing.T, gen Generator) ([]*Chunk, []byte) {
	t.Helper()
	ctx := context.Background()

	var chunks []*Chunk
	var assembled []byte
	for {
		c, err := gen.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := c.Read()
		require.NoError(t, err)
		require.Equal(t, c.Length, uint64(len(data)))
		chunks = append(chunks, c)
		assembled = append(assembled, data...)
	}
	return chunks, assembled
}

func patterned(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}

func TestReaderAtGenerator(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		chunkSize  uint64
		wantChunks int
		wantLast   uint64
	}{
		{"exact multiple", 16384, 4096, 4, 4096},
		{"trailing partial chunk", 10000, 4096, 3, 10000 - 2*4096},
		{"single short chunk", 100, 4096, 1, 100},
		{"chunk size one", 5, 1, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := patterned(tt.size)
			gen, err := NewReaderAtGenerator(bytes.NewReader(src), tt.chunkSize)
			require.NoError(t, err)

			chunks, assembled := drain(t, gen)
			require.Len(t, chunks, tt.wantChunks)
			assert.Equal(t, src, assembled)
			assert.Equal(t, tt.wantLast, chunks[len(chunks)-1].Length)

			// Contiguous, offset-ordered coverage.
			var next uint64
			for _, c := range chunks {
				assert.Equal(t, next, c.Offset)
				next = c.End()
			}
		})
	}
}

func TestReaderAtGenerator_EmptySource(t *testing.T) {
	gen, err := NewReaderAtGenerator(bytes.NewReader(nil), 4096)
	require.NoError(t, err)

	_, err = gen.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestReaderAtGenerator_ReadIsIdempotent(t *testing.T) {
	gen, err := NewReaderAtGenerator(bytes.NewReader(patterned(64)), 64)
	require.NoError(t, err)

	c, err := gen.Next(context.Background())
	require.NoError(t, err)

	first, err := c.Read()
	require.NoError(t, err)
	second, err := c.Read()
	require.NoError(t, err)

	// Same backing slice, not a re-read.
	assert.Equal(t, &first[0], &second[0])
}

func TestReaderAtGenerator_CancelledContext(t *testing.T) {
	gen, err := NewReaderAtGenerator(bytes.NewReader(patterned(100)), 10)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = gen.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamGenerator(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		chunkSize  uint64
		wantChunks int
	}{
		{"exact multiple", 16384, 4096, 4},
		{"trailing partial chunk", 10000, 4096, 3},
		{"single short chunk", 100, 4096, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := patterned(tt.size)
			gen, err := NewStreamGenerator(bytes.NewReader(src), tt.chunkSize, 4)
			require.NoError(t, err)

			chunks, assembled := drain(t, gen)
			require.Len(t, chunks, tt.wantChunks)
			assert.Equal(t, src, assembled)
		})
	}
}

func TestStreamGenerator_EmptySource(t *testing.T) {
	gen, err := NewStreamGenerator(bytes.NewReader(nil), 4096, 4)
	require.NoError(t, err)

	_, err = gen.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestStreamGenerator_BoundsOutstandingChunks(t *testing.T) {
	const limit = 2
	gen, err := NewStreamGenerator(bytes.NewReader(patterned(1000)), 10, limit)
	require.NoError(t, err)
	ctx := context.Background()

	// Materialize up to the bound without consuming anything.
	held := make([]*Chunk, 0, limit)
	for i := 0; i < limit; i++ {
		c, err := gen.Next(ctx)
		require.NoError(t, err)
		held = append(held, c)
	}

	// The next chunk must block until one is consumed.
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = gen.Next(blocked)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = held[0].Read()
	require.NoError(t, err)

	c, err := gen.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*10), c.Offset)
}

func TestStreamGenerator_PreservesOrder(t *testing.T) {
	src := patterned(997) // deliberately not a chunk multiple
	gen, err := NewStreamGenerator(bytes.NewReader(src), 64, 100)
	require.NoError(t, err)

	chunks, assembled := drain(t, gen)
	assert.Equal(t, src, assembled)

	var next uint64
	for _, c := range chunks {
		require.Equal(t, next, c.Offset)
		next = c.End()
	}
	assert.Equal(t, uint64(len(src)), next)
}
