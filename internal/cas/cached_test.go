package cas

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/cascade-store/internal/backend"
	"github.com/prn-tf/cascade-store/internal/cache"
	"github.com/prn-tf/cascade-store/internal/compress"
	"github.com/prn-tf/cascade-store/internal/domain"
)

func TestCachedStore_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	b := backend.NewMemoryStore()
	inner, err := NewStore(b, Options{
		Compression: compress.IdentifierSnappy,
		Algorithm:   domain.AlgorithmSHA256,
	}, nil, zerolog.Nop())
	require.NoError(t, err)

	c := cache.NewCache(1 << 20)
	store := NewCachedStore(inner, c)

	payload := bytes.Repeat([]byte("cached "), 500)
	fp, err := store.Put(ctx, payload)
	require.NoError(t, err)

	got, err := store.Get(ctx, fp)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
	assert.Equal(t, 1, c.Len())

	// Destroy the backing object; the cached copy still serves reads,
	// which is sound because the digest pins the content.
	ok, err := store.Down(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)

	got, err = store.Get(ctx, fp)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))

	sub, err := store.GetRange(ctx, fp, 7, 6)
	require.NoError(t, err)
	assert.Equal(t, "cached", string(sub))

	// A length large enough to wrap the uint64 sum clamps to the end.
	sub, err = store.GetRange(ctx, fp, 1, math.MaxUint64)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload[1:], sub))
}

func TestCachedStore_MissFallsThrough(t *testing.T) {
	ctx := context.Background()
	b := backend.NewMemoryStore()
	inner, err := NewStore(b, Options{
		Compression: compress.IdentifierNone,
		Algorithm:   domain.AlgorithmSHA256,
	}, nil, zerolog.Nop())
	require.NoError(t, err)

	store := NewCachedStore(inner, cache.NewCache(1<<20))

	fp := domain.Fingerprint{
		Algorithm: domain.AlgorithmSHA256,
		Digest:    "00000000000000000000000000000000000000000000000000000000000000bb",
	}
	_, err = store.Get(ctx, fp)
	assert.ErrorIs(t, err, domain.ErrObjectNotFound)
}
