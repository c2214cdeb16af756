package backend

import (
	"context"
	"sync"

	"github.com/prn-tf/cascade-store/internal/domain"
)

// memoryObject is one refcounted blob in the CAS namespace.
type memoryObject struct {
	value    []byte
	attrs    map[string]string
	refCount uint64
}

// MemoryStore is an in-memory Store for tests and single-process use.
// A single mutex guards both namespaces; every operation is trivially
// atomic under it.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]*memoryObject
	indexes map[string]map[string]string
}

// NewMemoryStore creates an empty in-memory backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*memoryObject),
		indexes: make(map[string]map[string]string),
	}
}

// PutRef creates the object with refcount 1 or bumps an existing one.
func (s *MemoryStore) PutRef(ctx context.Context, key string, value []byte, attrs map[string]string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obj, ok := s.objects[key]; ok {
		obj.refCount++
		return false, nil
	}

	copied := make([]byte, len(value))
	copy(copied, value)
	attrCopy := make(map[string]string, len(attrs))
	for k, v := range attrs {
		attrCopy[k] = v
	}
	s.objects[key] = &memoryObject{value: copied, attrs: attrCopy, refCount: 1}
	return true, nil
}

// Get returns the stored value.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(obj.value))
	copy(out, obj.value)
	return out, nil
}

// Up increments the refcount.
func (s *MemoryStore) Up(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return ErrKeyNotFound
	}
	obj.refCount++
	return nil
}

// Down decrements the refcount, destroying the object at zero.
func (s *MemoryStore) Down(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return ErrKeyNotFound
	}
	obj.refCount--
	if obj.refCount == 0 {
		delete(s.objects, key)
	}
	return nil
}

// Attrs returns a copy of the object's attributes.
func (s *MemoryStore) Attrs(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make(map[string]string, len(obj.attrs))
	for k, v := range obj.attrs {
		out[k] = v
	}
	return out, nil
}

// RefCount returns the object's current refcount.
func (s *MemoryStore) RefCount(ctx context.Context, key string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return 0, ErrKeyNotFound
	}
	return obj.refCount, nil
}

// List returns every object with its refcount.
func (s *MemoryStore) List(ctx context.Context) ([]domain.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ObjectInfo, 0, len(s.objects))
	for key, obj := range s.objects {
		out = append(out, domain.ObjectInfo{Key: key, RefCount: obj.refCount})
	}
	return out, nil
}

// IndexSet inserts or replaces entries, creating the index object.
func (s *MemoryStore) IndexSet(ctx context.Context, name string, entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[name]
	if !ok {
		idx = make(map[string]string)
		s.indexes[name] = idx
	}
	for k, v := range entries {
		idx[k] = v
	}
	return nil
}

// IndexGet returns all entries of name's index map.
func (s *MemoryStore) IndexGet(ctx context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[name]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make(map[string]string, len(idx))
	for k, v := range idx {
		out[k] = v
	}
	return out, nil
}

// IndexRemoveKeys removes keys; the index object survives.
func (s *MemoryStore) IndexRemoveKeys(ctx context.Context, name string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[name]
	if !ok {
		return ErrKeyNotFound
	}
	for _, k := range keys {
		delete(idx, k)
	}
	return nil
}

// IndexDelete removes the index object entirely.
func (s *MemoryStore) IndexDelete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[name]; !ok {
		return ErrKeyNotFound
	}
	delete(s.indexes, name)
	return nil
}

// IndexNames returns the names of all index objects.
func (s *MemoryStore) IndexNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		out = append(out, name)
	}
	return out, nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error { return nil }

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
