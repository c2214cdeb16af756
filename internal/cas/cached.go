package cas

import (
	"context"

	"github.com/prn-tf/cascade-store/internal/cache"
	"github.com/prn-tf/cascade-store/internal/domain"
)

// cachedStore decorates a Store with an in-memory chunk cache.
// Content addressing makes this safe without invalidation: a digest
// can only ever map to one byte sequence, so a hit is always correct
// even if the underlying object was destroyed and re-created since.
type cachedStore struct {
	Store
	cache *cache.Cache
}

// NewCachedStore wraps inner so reads are served from c when possible.
// Writes and refcount operations pass through untouched.
func NewCachedStore(inner Store, c *cache.Cache) Store {
	return &cachedStore{Store: inner, cache: c}
}

func (s *cachedStore) Get(ctx context.Context, fp domain.Fingerprint) ([]byte, error) {
	if data, ok := s.cache.Get(fp.Key()); ok {
		return data, nil
	}
	data, err := s.Store.Get(ctx, fp)
	if err != nil {
		return nil, err
	}
	s.cache.Set(fp.Key(), data)
	return data, nil
}

func (s *cachedStore) GetRange(ctx context.Context, fp domain.Fingerprint, offset, length uint64) ([]byte, error) {
	data, err := s.Get(ctx, fp)
	if err != nil {
		return nil, err
	}
	size := uint64(len(data))
	if offset >= size {
		return []byte{}, nil
	}
	// Clamp before adding so a huge length cannot wrap the sum.
	if length > size-offset {
		length = size - offset
	}
	return data[offset : offset+length], nil
}

// Ensure cachedStore implements Store.
var _ Store = (*cachedStore)(nil)
