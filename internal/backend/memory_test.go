package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPutRefLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.PutRef(ctx, "k", []byte("v"), map[string]string{"a": "1"})
	require.NoError(t, err)
	assert.True(t, created)

	// Second put of the same key bumps the count and keeps the
	// original value and attrs.
	created, err = s.PutRef(ctx, "k", []byte("ignored"), map[string]string{"a": "2"})
	require.NoError(t, err)
	assert.False(t, created)

	value, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	attrs, err := s.Attrs(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "1", attrs["a"])

	count, err := s.RefCount(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	// Two downs destroy the object.
	require.NoError(t, s.Down(ctx, "k"))
	require.NoError(t, s.Down(ctx, "k"))

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, s.Down(ctx, "k"), ErrKeyNotFound)
}

func TestMemoryUpMissingKey(t *testing.T) {
	s := NewMemoryStore()
	assert.ErrorIs(t, s.Up(context.Background(), "absent"), ErrKeyNotFound)
}

func TestMemoryIndexLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.IndexGet(ctx, "file")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.IndexSet(ctx, "file", map[string]string{"1": "fp1"}))
	require.NoError(t, s.IndexSet(ctx, "file", map[string]string{"2": "fp2"}))

	entries, err := s.IndexGet(ctx, "file")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "fp1", "2": "fp2"}, entries)

	// Removing the last key leaves an empty, but existing, index object.
	require.NoError(t, s.IndexRemoveKeys(ctx, "file", []string{"1", "2"}))
	entries, err = s.IndexGet(ctx, "file")
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.IndexDelete(ctx, "file"))
	_, err = s.IndexGet(ctx, "file")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryNamespacesDoNotAlias(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.PutRef(ctx, "same-key", []byte("blob"), nil)
	require.NoError(t, err)
	require.NoError(t, s.IndexSet(ctx, "same-key", map[string]string{"v": "fp"}))

	require.NoError(t, s.IndexDelete(ctx, "same-key"))

	// The CAS object must be untouched by index-namespace operations.
	value, err := s.Get(ctx, "same-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), value)
}
