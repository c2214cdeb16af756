package chunk

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/prn-tf/cascade-store/internal/cas"
	"github.com/prn-tf/cascade-store/internal/domain"
)

// Writer stores a generator's chunks in the CAS through a pool of
// concurrent workers. Extents come back in source offset order no
// matter which worker finishes first.
type Writer struct {
	store   cas.Store
	workers int
	batch   int
	logger  zerolog.Logger
}

// NewWriter creates a Writer with the given worker count and job
// channel capacity.
func NewWriter(store cas.Store, workers, batch int, logger zerolog.Logger) *Writer {
	if workers < 1 {
		workers = 1
	}
	if batch < 1 {
		batch = 1
	}
	return &Writer{
		store:   store,
		workers: workers,
		batch:   batch,
		logger:  logger.With().Str("component", "chunk_writer").Logger(),
	}
}

// Write drains the generator, stores every chunk, and returns the
// resulting extents ordered by offset. The first failing chunk cancels
// the pool; a chunk whose materialized length differs from its
// declared length is a generator bug and reported as
// domain.ErrInternalConsistency.
func (w *Writer) Write(ctx context.Context, gen Generator) ([]domain.Extent, error) {
	group, ctx := errgroup.WithContext(ctx)
	jobs := make(chan *Chunk, w.batch)

	var (
		mu      sync.Mutex
		extents []domain.Extent
	)

	group.Go(func() error {
		defer close(jobs)
		for {
			chunk, err := gen.Next(ctx)
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			select {
			case jobs <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	for i := 0; i < w.workers; i++ {
		group.Go(func() error {
			for chunk := range jobs {
				data, err := chunk.Read()
				if err != nil {
					return err
				}
				if uint64(len(data)) != chunk.Length {
					return domain.NewStoreError(domain.ErrInternalConsistency,
						fmt.Sprintf("chunk at %d materialized %d bytes, declared %d",
							chunk.Offset, len(data), chunk.Length), "")
				}

				fp, err := w.store.Put(ctx, data)
				if err != nil {
					return err
				}

				mu.Lock()
				extents = append(extents, domain.Extent{
					Offset:      chunk.Offset,
					Length:      chunk.Length,
					Fingerprint: fp,
				})
				mu.Unlock()
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(extents, func(i, j int) bool {
		return extents[i].Offset < extents[j].Offset
	})
	w.logger.Debug().Int("extents", len(extents)).Msg("wrote chunks")
	return extents, nil
}
