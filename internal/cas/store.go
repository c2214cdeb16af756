// Package cas implements the content-addressable chunk store.
//
// A put fingerprints the uncompressed bytes, compresses them under the
// store's policy, and hands the compressed object to the backend's
// create-or-bump primitive, so identical content always lands on one
// physical object regardless of how often it is written. Reads
// dispatch decompression on the metadata stored with the object, not
// on the store's current policy.
package cas

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/prn-tf/cascade-store/internal/backend"
	"github.com/prn-tf/cascade-store/internal/compress"
	"github.com/prn-tf/cascade-store/internal/domain"
	"github.com/prn-tf/cascade-store/internal/fingerprint"
	"github.com/prn-tf/cascade-store/internal/metrics"
)

// libraryVersion is written into object metadata on put.
const libraryVersion = "cascade 0.1"

// Object attribute names.
const (
	attrCompression = "cas.meta.compression"
	attrOrigSize    = "cas.meta.orig_size"
	attrFPAlgo      = "cas.meta.fp_algo"
	attrLib         = "cas.meta.lib"
)

// Store is the chunk-level interface of the CAS.
type Store interface {
	// Put stores data and returns its fingerprint. Writing the same
	// bytes again bumps the existing object's refcount instead of
	// storing a second copy.
	Put(ctx context.Context, data []byte) (domain.Fingerprint, error)

	// Get returns the uncompressed content of the object.
	Get(ctx context.Context, fp domain.Fingerprint) ([]byte, error)

	// GetRange returns up to length uncompressed bytes starting at
	// offset. Requests past the end of the object yield empty output.
	GetRange(ctx context.Context, fp domain.Fingerprint, offset, length uint64) ([]byte, error)

	// Up increments the object's refcount. Returns false if the object
	// does not exist.
	Up(ctx context.Context, fp domain.Fingerprint) (bool, error)

	// Down decrements the object's refcount; the backend destroys the
	// object when the count reaches zero. Returns false if the object
	// does not exist.
	Down(ctx context.Context, fp domain.Fingerprint) (bool, error)

	// Info returns the object's decoded metadata and refcount.
	Info(ctx context.Context, fp domain.Fingerprint) (domain.ObjectMeta, error)

	// List returns every object in the store with its refcount.
	List(ctx context.Context) ([]domain.ObjectInfo, error)
}

// Options configure a Store.
type Options struct {
	// Compression is the identifier of the compressor applied on put.
	Compression string

	// Algorithm is the fingerprint algorithm used on put.
	Algorithm domain.Algorithm
}

type store struct {
	backend    backend.Store
	compressor compress.Compressor
	algorithm  domain.Algorithm
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewStore creates a CAS store over the given backend. The compression
// identifier must be registered and the algorithm supported.
func NewStore(b backend.Store, opts Options, m *metrics.Metrics, logger zerolog.Logger) (Store, error) {
	compressor, err := compress.Select(opts.Compression)
	if err != nil {
		return nil, err
	}
	if !opts.Algorithm.Valid() {
		return nil, domain.NewStoreError(domain.ErrUnknownAlgorithm, "", string(opts.Algorithm))
	}
	return &store{
		backend:    b,
		compressor: compressor,
		algorithm:  opts.Algorithm,
		metrics:    m,
		logger:     logger.With().Str("component", "cas").Logger(),
	}, nil
}

func (s *store) Put(ctx context.Context, data []byte) (domain.Fingerprint, error) {
	fp, err := fingerprint.Sum(s.algorithm, data)
	if err != nil {
		return domain.Fingerprint{}, err
	}

	meta, compressed, err := s.compressor.Compress(data)
	if err != nil {
		return domain.Fingerprint{}, fmt.Errorf("failed to compress object %s: %w", fp.Key(), err)
	}

	attrs := map[string]string{
		attrCompression: meta.Identifier,
		attrOrigSize:    strconv.FormatInt(meta.OrigSize, 10),
		attrFPAlgo:      string(fp.Algorithm),
		attrLib:         libraryVersion,
	}

	created, err := s.backend.PutRef(ctx, fp.Key(), compressed, attrs)
	if err != nil {
		return domain.Fingerprint{}, domain.NewStoreError(domain.ErrCASOperation,
			fmt.Sprintf("put failed: %v", err), fp.Key())
	}

	s.metrics.ObservePut(created, len(data), len(compressed))
	s.logger.Debug().
		Str("key", fp.Key()).
		Bool("created", created).
		Int("orig_size", len(data)).
		Int("stored_size", len(compressed)).
		Msg("put chunk")
	return fp, nil
}

func (s *store) Get(ctx context.Context, fp domain.Fingerprint) ([]byte, error) {
	data, err := s.get(ctx, fp)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveGet(len(data))
	return data, nil
}

func (s *store) GetRange(ctx context.Context, fp domain.Fingerprint, offset, length uint64) ([]byte, error) {
	data, err := s.get(ctx, fp)
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
	out := data[offset : offset+length]
	s.metrics.ObserveGet(len(out))
	return out, nil
}

// get fetches and decompresses one object.
func (s *store) get(ctx context.Context, fp domain.Fingerprint) ([]byte, error) {
	compressed, err := s.backend.Get(ctx, fp.Key())
	if err != nil {
		if errors.Is(err, backend.ErrKeyNotFound) {
			return nil, domain.NewStoreError(domain.ErrObjectNotFound, "", fp.Key())
		}
		return nil, domain.NewStoreError(domain.ErrCASOperation,
			fmt.Sprintf("get failed: %v", err), fp.Key())
	}

	meta, err := s.objectMeta(ctx, fp)
	if err != nil {
		return nil, err
	}

	compressor, err := compress.Select(meta.Compression)
	if err != nil {
		return nil, err
	}
	data, err := compressor.Decompress(compressed, meta.OrigSize)
	if err != nil {
		return nil, domain.NewStoreError(domain.ErrCASOperation,
			fmt.Sprintf("decompress failed: %v", err), fp.Key())
	}
	return data, nil
}

func (s *store) Up(ctx context.Context, fp domain.Fingerprint) (bool, error) {
	if err := s.backend.Up(ctx, fp.Key()); err != nil {
		if errors.Is(err, backend.ErrKeyNotFound) {
			return false, nil
		}
		return false, domain.NewStoreError(domain.ErrCASOperation,
			fmt.Sprintf("up failed: %v", err), fp.Key())
	}
	return true, nil
}

func (s *store) Down(ctx context.Context, fp domain.Fingerprint) (bool, error) {
	if err := s.backend.Down(ctx, fp.Key()); err != nil {
		if errors.Is(err, backend.ErrKeyNotFound) {
			return false, nil
		}
		return false, domain.NewStoreError(domain.ErrCASOperation,
			fmt.Sprintf("down failed: %v", err), fp.Key())
	}
	return true, nil
}

func (s *store) Info(ctx context.Context, fp domain.Fingerprint) (domain.ObjectMeta, error) {
	meta, err := s.objectMeta(ctx, fp)
	if err != nil {
		return domain.ObjectMeta{}, err
	}
	count, err := s.backend.RefCount(ctx, fp.Key())
	if err != nil {
		if errors.Is(err, backend.ErrKeyNotFound) {
			return domain.ObjectMeta{}, domain.NewStoreError(domain.ErrObjectNotFound, "", fp.Key())
		}
		return domain.ObjectMeta{}, domain.NewStoreError(domain.ErrCASOperation,
			fmt.Sprintf("refcount failed: %v", err), fp.Key())
	}
	meta.RefCount = count
	return meta, nil
}

func (s *store) List(ctx context.Context) ([]domain.ObjectInfo, error) {
	objects, err := s.backend.List(ctx)
	if err != nil {
		return nil, domain.NewStoreError(domain.ErrCASOperation, fmt.Sprintf("list failed: %v", err), "")
	}
	return objects, nil
}

// objectMeta reads and decodes the object's attributes.
func (s *store) objectMeta(ctx context.Context, fp domain.Fingerprint) (domain.ObjectMeta, error) {
	attrs, err := s.backend.Attrs(ctx, fp.Key())
	if err != nil {
		if errors.Is(err, backend.ErrKeyNotFound) {
			return domain.ObjectMeta{}, domain.NewStoreError(domain.ErrObjectNotFound, "", fp.Key())
		}
		return domain.ObjectMeta{}, domain.NewStoreError(domain.ErrCASOperation,
			fmt.Sprintf("attrs failed: %v", err), fp.Key())
	}

	origSize, err := strconv.ParseInt(attrs[attrOrigSize], 10, 64)
	if err != nil {
		return domain.ObjectMeta{}, domain.NewStoreError(domain.ErrCASOperation,
			fmt.Sprintf("malformed orig_size attribute %q", attrs[attrOrigSize]), fp.Key())
	}
	return domain.ObjectMeta{
		Compression: attrs[attrCompression],
		OrigSize:    origSize,
		Algorithm:   domain.Algorithm(attrs[attrFPAlgo]),
		Library:     attrs[attrLib],
	}, nil
}

// Ensure store implements Store.
var _ Store = (*store)(nil)
