// Package recipe models how a file's bytes map onto content-addressed
// chunks. A recipe is an ordered list of extents; each extent names a
// byte range of the file and the fingerprint of the chunk that holds
// it. Recipes are themselves stored as CAS objects, serialized with
// the binary codec in this package.
package recipe

import (
	"sort"

	"github.com/prn-tf/cascade-store/internal/domain"
)

// Recipe is an ordered list of extents describing one file version.
// Extents are sorted by offset and do not overlap.
type Recipe struct {
	Extents []domain.Extent
}

// New builds a recipe from extents, sorting them by offset.
func New(extents []domain.Extent) *Recipe {
	sorted := make([]domain.Extent, len(extents))
	copy(sorted, extents)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})
	return &Recipe{Extents: sorted}
}

// Size returns the logical file size: the end of the last extent.
// An empty recipe describes an empty file.
func (r *Recipe) Size() uint64 {
	if len(r.Extents) == 0 {
		return 0
	}
	return r.Extents[len(r.Extents)-1].End()
}

// ExtentsInRange returns the extents overlapping [offset, offset+length),
// in offset order. Gaps in the range are simply absent from the result;
// readers interpret them as zero-filled holes.
func (r *Recipe) ExtentsInRange(offset, length uint64) []domain.Extent {
	var overlapping []domain.Extent
	for _, ext := range r.Extents {
		if ext.Overlaps(offset, length) {
			overlapping = append(overlapping, ext)
		}
	}
	return overlapping
}
