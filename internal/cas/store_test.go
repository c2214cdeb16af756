package cas

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/cascade-store/internal/backend"
	"github.com/prn-tf/cascade-store/internal/compress"
	"github.com/prn-tf/cascade-store/internal/domain"
)

func newTestStore(t *testing.T, compression string) (Store, *backend.MemoryStore) {
	t.Helper()
	b := backend.NewMemoryStore()
	s, err := NewStore(b, Options{
		Compression: compression,
		Algorithm:   domain.AlgorithmSHA256,
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	return s, b
}

func TestNewStore_Validation(t *testing.T) {
	b := backend.NewMemoryStore()

	t.Run("unknown compressor", func(t *testing.T) {
		_, err := NewStore(b, Options{Compression: "gzip", Algorithm: domain.AlgorithmSHA256}, nil, zerolog.Nop())
		assert.ErrorIs(t, err, domain.ErrUnknownCompressor)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		_, err := NewStore(b, Options{Compression: compress.IdentifierNone, Algorithm: "MD5"}, nil, zerolog.Nop())
		assert.ErrorIs(t, err, domain.ErrUnknownAlgorithm)
	})
}

func TestStore_PutGet_RoundTrip(t *testing.T) {
	payload := make([]byte, 64*1024)
	rng := rand.New(rand.NewSource(7))
	_, err := rng.Read(payload)
	require.NoError(t, err)

	for _, compression := range compress.Supported() {
		t.Run(compression, func(t *testing.T) {
			s, _ := newTestStore(t, compression)
			ctx := context.Background()

			fp, err := s.Put(ctx, payload)
			require.NoError(t, err)
			require.True(t, domain.ValidDigest(fp.Digest))

			got, err := s.Get(ctx, fp)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(payload, got))
		})
	}
}

func TestStore_Put_Deduplicates(t *testing.T) {
	s, b := newTestStore(t, compress.IdentifierSnappy)
	ctx := context.Background()
	payload := bytes.Repeat([]byte("dedup me "), 1000)

	fp1, err := s.Put(ctx, payload)
	require.NoError(t, err)
	fp2, err := s.Put(ctx, payload)
	require.NoError(t, err)

	// Identical bytes, identical fingerprint, one physical object.
	assert.Equal(t, fp1, fp2)
	count, err := b.RefCount(ctx, fp1.Key())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	objects, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestStore_Get_DispatchesOnStoredCompression(t *testing.T) {
	ctx := context.Background()
	b := backend.NewMemoryStore()
	payload := bytes.Repeat([]byte("policy change "), 500)

	writer, err := NewStore(b, Options{Compression: compress.IdentifierZstd, Algorithm: domain.AlgorithmSHA256}, nil, zerolog.Nop())
	require.NoError(t, err)
	fp, err := writer.Put(ctx, payload)
	require.NoError(t, err)

	// A store configured for a different policy still reads the object.
	reader, err := NewStore(b, Options{Compression: compress.IdentifierNone, Algorithm: domain.AlgorithmSHA256}, nil, zerolog.Nop())
	require.NoError(t, err)
	got, err := reader.Get(ctx, fp)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
}

func TestStore_GetRange(t *testing.T) {
	s, _ := newTestStore(t, compress.IdentifierNone)
	ctx := context.Background()
	payload := []byte("0123456789")

	fp, err := s.Put(ctx, payload)
	require.NoError(t, err)

	tests := []struct {
		name   string
		offset uint64
		length uint64
		want   string
	}{
		{"interior", 2, 4, "2345"},
		{"prefix", 0, 3, "012"},
		{"clamped to end", 8, 100, "89"},
		{"length wraps uint64", 1, math.MaxUint64, "123456789"},
		{"offset past end", 100, 4, ""},
		{"zero length", 3, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetRange(ctx, fp, tt.offset, tt.length)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	s, _ := newTestStore(t, compress.IdentifierNone)

	fp := domain.Fingerprint{
		Algorithm: domain.AlgorithmSHA256,
		Digest:    "0000000000000000000000000000000000000000000000000000000000000aa",
	}
	_, err := s.Get(context.Background(), fp)
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)
}

func TestStore_UpDown_Lifecycle(t *testing.T) {
	s, b := newTestStore(t, compress.IdentifierNone)
	ctx := context.Background()

	fp, err := s.Put(ctx, []byte("lifecycle"))
	require.NoError(t, err)

	ok, err := s.Up(ctx, fp)
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := b.RefCount(ctx, fp.Key())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	// Two downs drain the count; the backend destroys the object.
	for i := 0; i < 2; i++ {
		ok, err = s.Down(ctx, fp)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err = s.Get(ctx, fp)
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)

	// Further operations on the destroyed object report false.
	ok, err = s.Up(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.Down(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Info(t *testing.T) {
	s, _ := newTestStore(t, compress.IdentifierSnappy)
	ctx := context.Background()
	payload := bytes.Repeat([]byte("metadata "), 200)

	fp, err := s.Put(ctx, payload)
	require.NoError(t, err)
	_, err = s.Put(ctx, payload)
	require.NoError(t, err)

	meta, err := s.Info(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, compress.IdentifierSnappy, meta.Compression)
	assert.Equal(t, int64(len(payload)), meta.OrigSize)
	assert.Equal(t, domain.AlgorithmSHA256, meta.Algorithm)
	assert.Equal(t, libraryVersion, meta.Library)
	assert.Equal(t, uint64(2), meta.RefCount)
}

func TestStore_Put_EmptyChunk(t *testing.T) {
	s, _ := newTestStore(t, compress.IdentifierLZ4)
	ctx := context.Background()

	fp, err := s.Put(ctx, []byte{})
	require.NoError(t, err)

	got, err := s.Get(ctx, fp)
	require.NoError(t, err)
	assert.Empty(t, got)
}
