package chunk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/cascade-store/internal/backend"
	"github.com/prn-tf/cascade-store/internal/cas"
	"github.com/prn-tf/cascade-store/internal/compress"
	"github.com/prn-tf/cascade-store/internal/domain"
)

func newTestCAS(t *testing.T) cas.Store {
	t.Helper()
	s, err := cas.NewStore(backend.NewMemoryStore(), cas.Options{
		Compression: compress.IdentifierSnappy,
		Algorithm:   domain.AlgorithmSHA256,
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestWriter_ExtentsInSourceOrder(t *testing.T) {
	store := newTestCAS(t)
	writer := NewWriter(store, 8, 16, zerolog.Nop())

	// Random content so every chunk is distinct and completion order
	// cannot mask an ordering bug.
	src := make([]byte, 256*1024+337)
	rng := rand.New(rand.NewSource(42))
	_, err := rng.Read(src)
	require.NoError(t, err)

	const chunkSize = 4096
	gen, err := NewReaderAtGenerator(bytes.NewReader(src), chunkSize)
	require.NoError(t, err)

	extents, err := writer.Write(context.Background(), gen)
	require.NoError(t, err)

	var next uint64
	for _, ext := range extents {
		require.Equal(t, next, ext.Offset)
		next = ext.End()
	}
	require.Equal(t, uint64(len(src)), next)

	// Every extent's object holds exactly its slice of the source.
	for _, ext := range extents {
		data, err := store.Get(context.Background(), ext.Fingerprint)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(src[ext.Offset:ext.End()], data))
	}
}

func TestWriter_StreamSource(t *testing.T) {
	store := newTestCAS(t)
	writer := NewWriter(store, 4, 8, zerolog.Nop())

	src := make([]byte, 100*1024)
	rng := rand.New(rand.NewSource(7))
	_, err := rng.Read(src)
	require.NoError(t, err)

	// The bound is far below the chunk count; the pool must keep
	// draining for the generator to finish.
	gen, err := NewStreamGenerator(bytes.NewReader(src), 4096, 3)
	require.NoError(t, err)

	extents, err := writer.Write(context.Background(), gen)
	require.NoError(t, err)
	require.Len(t, extents, 25)

	var next uint64
	for _, ext := range extents {
		require.Equal(t, next, ext.Offset)
		next = ext.End()
	}
}

func TestWriter_EmptySource(t *testing.T) {
	writer := NewWriter(newTestCAS(t), 4, 8, zerolog.Nop())

	gen, err := NewReaderAtGenerator(bytes.NewReader(nil), 4096)
	require.NoError(t, err)

	extents, err := writer.Write(context.Background(), gen)
	require.NoError(t, err)
	assert.Empty(t, extents)
}

// fakeGenerator yields scripted chunks.
type fakeGenerator struct {
	mu     sync.Mutex
	chunks []*Chunk
}

func (g *fakeGenerator) Next(ctx context.Context) (*Chunk, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.chunks) == 0 {
		return nil, io.EOF
	}
	c := g.chunks[0]
	g.chunks = g.chunks[1:]
	return c, nil
}

func scriptedChunk(offset, length uint64, data []byte, err error) *Chunk {
	return &Chunk{
		Offset: offset,
		Length: length,
		once:   &sync.Once{},
		read:   func() ([]byte, error) { return data, err },
	}
}

func TestWriter_LengthMismatchIsFatal(t *testing.T) {
	writer := NewWriter(newTestCAS(t), 2, 4, zerolog.Nop())

	gen := &fakeGenerator{chunks: []*Chunk{
		scriptedChunk(0, 8, []byte("12345678"), nil),
		// Declares 8 bytes, materializes 5.
		scriptedChunk(8, 8, []byte("short"), nil),
	}}

	_, err := writer.Write(context.Background(), gen)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInternalConsistency)
}

func TestWriter_PropagatesReadErrors(t *testing.T) {
	writer := NewWriter(newTestCAS(t), 2, 4, zerolog.Nop())

	readErr := errors.New("disk gone")
	gen := &fakeGenerator{chunks: []*Chunk{
		scriptedChunk(0, 4, []byte("good"), nil),
		scriptedChunk(4, 4, nil, readErr),
	}}

	_, err := writer.Write(context.Background(), gen)
	assert.ErrorIs(t, err, readErr)
}
