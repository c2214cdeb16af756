// Package service contains the orchestration layer: versioned,
// chunked files over the CAS and the version index.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/cascade-store/internal/backend"
	"github.com/prn-tf/cascade-store/internal/cas"
	"github.com/prn-tf/cascade-store/internal/chunk"
	"github.com/prn-tf/cascade-store/internal/domain"
	"github.com/prn-tf/cascade-store/internal/metrics"
	"github.com/prn-tf/cascade-store/internal/recipe"
)

// HeadVersionKey selects the newest version of a name. The empty
// string is accepted as a synonym.
const HeadVersionKey = "HEAD"

// Version pairs a version key with the recipe object it points to.
type Version struct {
	Key    string             `json:"key"`
	Recipe domain.Fingerprint `json:"recipe"`
}

// FileService is the file-level interface of the store: whole files
// in, versioned recipes and chunks underneath.
type FileService interface {
	// WriteFull chunks src, stores every chunk and the resulting
	// recipe, and records a new version under name. Returns the new
	// version key.
	WriteFull(ctx context.Context, name string, src io.Reader) (string, error)

	// ReadFull reassembles the file into dst and returns its size.
	// Holes in sparse recipes are written as zeros.
	ReadFull(ctx context.Context, name, version string, dst io.WriterAt) (uint64, error)

	// Read returns up to length bytes of the file starting at offset.
	// Byte ranges no extent covers come back zero-filled; requests at
	// or past the end of the file yield empty output.
	Read(ctx context.Context, name, version string, offset, length uint64) ([]byte, error)

	// Size returns the logical file size of the version.
	Size(ctx context.Context, name, version string) (uint64, error)

	// Versions returns all versions of name, oldest first.
	Versions(ctx context.Context, name string) ([]Version, error)

	// HeadVersion returns the newest version of name.
	HeadVersion(ctx context.Context, name string) (Version, error)

	// Names returns every name with an index entry.
	Names(ctx context.Context) ([]string, error)

	// RemoveVersion drops one version: every chunk and the recipe get
	// a refcount decrement, and the version key leaves the index. The
	// name's index entry survives even when emptied.
	RemoveVersion(ctx context.Context, name, version string) error

	// RemoveAllVersions drops every version of name and the index
	// entry itself.
	RemoveAllVersions(ctx context.Context, name string) error
}

// Options configure a FileService.
type Options struct {
	// ChunkSize is the fixed chunk size for writes.
	ChunkSize uint64

	// MaxOutstanding bounds buffered chunks for sequential sources.
	MaxOutstanding int64
}

type fileService struct {
	index   backend.Store
	store   cas.Store
	writer  *chunk.Writer
	clock   *versionClock
	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewFileService creates the orchestrator.
func NewFileService(index backend.Store, store cas.Store, writer *chunk.Writer, opts Options, m *metrics.Metrics, logger zerolog.Logger) FileService {
	return &fileService{
		index:   index,
		store:   store,
		writer:  writer,
		clock:   newVersionClock(),
		opts:    opts,
		metrics: m,
		logger:  logger.With().Str("component", "file_service").Logger(),
	}
}

func (s *fileService) WriteFull(ctx context.Context, name string, src io.Reader) (string, error) {
	start := time.Now()

	gen, err := s.newGenerator(src)
	if err != nil {
		return "", err
	}

	extents, err := s.writer.Write(ctx, gen)
	if err != nil {
		return "", fmt.Errorf("failed to write chunks for %q: %w", name, err)
	}

	r := recipe.New(extents)
	encoded, err := recipe.Encode(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode recipe for %q: %w", name, err)
	}
	recipeFP, err := s.store.Put(ctx, encoded)
	if err != nil {
		return "", fmt.Errorf("failed to store recipe for %q: %w", name, err)
	}

	versionKey := s.clock.Next()
	if err := s.index.IndexSet(ctx, name, map[string]string{versionKey: recipeFP.String()}); err != nil {
		return "", fmt.Errorf("failed to record version for %q: %w", name, err)
	}

	s.metrics.VersionAdded()
	s.metrics.ObserveWrite(time.Since(start).Seconds())
	s.logger.Info().
		Str("name", name).
		Str("version", versionKey).
		Uint64("size", r.Size()).
		Int("chunks", len(extents)).
		Msg("wrote file version")
	return versionKey, nil
}

// newGenerator picks the chunking strategy for the source. Sources
// with random access are chunked without buffering; anything else is
// streamed under the outstanding-chunk bound.
func (s *fileService) newGenerator(src io.Reader) (chunk.Generator, error) {
	if ra, ok := src.(chunk.RandomAccessSource); ok {
		return chunk.NewReaderAtGenerator(ra, s.opts.ChunkSize)
	}
	return chunk.NewStreamGenerator(src, s.opts.ChunkSize, s.opts.MaxOutstanding)
}

func (s *fileService) ReadFull(ctx context.Context, name, version string, dst io.WriterAt) (uint64, error) {
	start := time.Now()

	r, _, err := s.loadRecipe(ctx, name, version)
	if err != nil {
		return 0, err
	}

	// Zero-fill up to each extent so holes in sparse recipes come out
	// as zeros even on destinations without implicit sparseness.
	var pos uint64
	for _, ext := range r.Extents {
		if ext.Offset > pos {
			if err := writeZeros(dst, pos, ext.Offset-pos); err != nil {
				return 0, err
			}
		}
		data, err := s.store.Get(ctx, ext.Fingerprint)
		if err != nil {
			return 0, err
		}
		if _, err := dst.WriteAt(data, int64(ext.Offset)); err != nil {
			return 0, fmt.Errorf("failed to write extent at %d: %w", ext.Offset, err)
		}
		pos = ext.End()
	}

	s.metrics.ObserveRead(time.Since(start).Seconds())
	return r.Size(), nil
}

func (s *fileService) Read(ctx context.Context, name, version string, offset, length uint64) ([]byte, error) {
	start := time.Now()

	r, _, err := s.loadRecipe(ctx, name, version)
	if err != nil {
		return nil, err
	}

	size := r.Size()
	if offset >= size || length == 0 {
		return []byte{}, nil
	}
	// Clamp before adding so a huge length cannot wrap the sum.
	if length > size-offset {
		length = size - offset
	}
	end := offset + length

	// The result starts zeroed; only covered ranges are filled in, so
	// holes read as zeros.
	buf := make([]byte, end-offset)
	for _, ext := range r.ExtentsInRange(offset, end-offset) {
		lo := max(offset, ext.Offset)
		hi := min(end, ext.End())
		data, err := s.store.GetRange(ctx, ext.Fingerprint, lo-ext.Offset, hi-lo)
		if err != nil {
			return nil, err
		}
		copy(buf[lo-offset:], data)
	}

	s.metrics.ObserveRead(time.Since(start).Seconds())
	return buf, nil
}

func (s *fileService) Size(ctx context.Context, name, version string) (uint64, error) {
	r, _, err := s.loadRecipe(ctx, name, version)
	if err != nil {
		return 0, err
	}
	return r.Size(), nil
}

func (s *fileService) Versions(ctx context.Context, name string) ([]Version, error) {
	entries, err := s.entries(ctx, name)
	if err != nil {
		return nil, err
	}

	versions := make([]Version, 0, len(entries))
	for key, value := range entries {
		fp, err := domain.ParseFingerprint(value)
		if err != nil {
			return nil, fmt.Errorf("index entry %q of %q: %w", key, name, err)
		}
		versions = append(versions, Version{Key: key, Recipe: fp})
	}
	sort.Slice(versions, func(i, j int) bool {
		return versionLess(versions[i].Key, versions[j].Key)
	})
	return versions, nil
}

func (s *fileService) HeadVersion(ctx context.Context, name string) (Version, error) {
	versions, err := s.Versions(ctx, name)
	if err != nil {
		return Version{}, err
	}
	if len(versions) == 0 {
		return Version{}, domain.NewStoreError(domain.ErrNoVersions, "", name)
	}
	return versions[len(versions)-1], nil
}

func (s *fileService) Names(ctx context.Context) ([]string, error) {
	names, err := s.index.IndexNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list names: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileService) RemoveVersion(ctx context.Context, name, version string) error {
	resolved, err := s.resolve(ctx, name, version)
	if err != nil {
		return err
	}

	if err := s.releaseVersion(ctx, resolved); err != nil {
		return err
	}
	if err := s.index.IndexRemoveKeys(ctx, name, []string{resolved.Key}); err != nil {
		return fmt.Errorf("failed to remove version %q of %q: %w", resolved.Key, name, err)
	}

	s.metrics.VersionsRemoved(1)
	s.logger.Info().Str("name", name).Str("version", resolved.Key).Msg("removed version")
	return nil
}

func (s *fileService) RemoveAllVersions(ctx context.Context, name string) error {
	versions, err := s.Versions(ctx, name)
	if err != nil {
		return err
	}

	for _, v := range versions {
		if err := s.releaseVersion(ctx, v); err != nil {
			return err
		}
	}
	if err := s.index.IndexDelete(ctx, name); err != nil && !errors.Is(err, backend.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete index entry for %q: %w", name, err)
	}

	s.metrics.VersionsRemoved(len(versions))
	s.logger.Info().Str("name", name).Int("versions", len(versions)).Msg("removed all versions")
	return nil
}

// releaseVersion decrements every chunk the version references, then
// the recipe object itself. The recipe must be read before its own
// decrement can destroy it.
func (s *fileService) releaseVersion(ctx context.Context, v Version) error {
	encoded, err := s.store.Get(ctx, v.Recipe)
	if err != nil {
		return fmt.Errorf("failed to load recipe %s: %w", v.Recipe.Key(), err)
	}
	r, err := recipe.Decode(encoded)
	if err != nil {
		return fmt.Errorf("recipe %s: %w", v.Recipe.Key(), err)
	}

	for _, ext := range r.Extents {
		if _, err := s.store.Down(ctx, ext.Fingerprint); err != nil {
			return err
		}
	}
	if _, err := s.store.Down(ctx, v.Recipe); err != nil {
		return err
	}
	return nil
}

// entries loads name's index map, translating backend absence into
// the domain error.
func (s *fileService) entries(ctx context.Context, name string) (map[string]string, error) {
	entries, err := s.index.IndexGet(ctx, name)
	if err != nil {
		if errors.Is(err, backend.ErrKeyNotFound) {
			return nil, domain.NewStoreError(domain.ErrNameNotFound, "", name)
		}
		return nil, fmt.Errorf("failed to read index for %q: %w", name, err)
	}
	return entries, nil
}

// resolve maps a version selector to a concrete version. HEAD and the
// empty string select the newest; anything else must match exactly.
func (s *fileService) resolve(ctx context.Context, name, version string) (Version, error) {
	if version == "" || version == HeadVersionKey {
		return s.HeadVersion(ctx, name)
	}

	entries, err := s.entries(ctx, name)
	if err != nil {
		return Version{}, err
	}
	value, ok := entries[version]
	if !ok {
		return Version{}, domain.NewStoreError(domain.ErrVersionNotFound, "", name+"/"+version)
	}
	fp, err := domain.ParseFingerprint(value)
	if err != nil {
		return Version{}, fmt.Errorf("index entry %q of %q: %w", version, name, err)
	}
	return Version{Key: version, Recipe: fp}, nil
}

// loadRecipe resolves a version and decodes its recipe.
func (s *fileService) loadRecipe(ctx context.Context, name, version string) (*recipe.Recipe, Version, error) {
	v, err := s.resolve(ctx, name, version)
	if err != nil {
		return nil, Version{}, err
	}
	encoded, err := s.store.Get(ctx, v.Recipe)
	if err != nil {
		return nil, Version{}, fmt.Errorf("failed to load recipe %s: %w", v.Recipe.Key(), err)
	}
	r, err := recipe.Decode(encoded)
	if err != nil {
		return nil, Version{}, fmt.Errorf("recipe %s: %w", v.Recipe.Key(), err)
	}
	return r, v, nil
}

// versionLess orders version keys numerically, falling back to string
// order for keys that are not decimal numbers.
func versionLess(a, b string) bool {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// writeZeros writes length zero bytes at offset.
func writeZeros(dst io.WriterAt, offset, length uint64) error {
	const zeroBufSize = 64 * 1024
	zeros := make([]byte, min(length, zeroBufSize))
	for length > 0 {
		n := min(length, zeroBufSize)
		if _, err := dst.WriteAt(zeros[:n], int64(offset)); err != nil {
			return fmt.Errorf("failed to zero-fill at %d: %w", offset, err)
		}
		offset += n
		length -= n
	}
	return nil
}
