package domain

// Extent describes one contiguous byte range of a logical file and
// the CAS object holding its bytes. For the static chunker all
// extents except possibly the last share the same length, and extents
// are contiguous, ordered by offset, and non-overlapping.
type Extent struct {
	// Offset is the byte position of this extent in the logical file.
	Offset uint64 `json:"offset"`

	// Length is the number of bytes the extent covers.
	Length uint64 `json:"length"`

	// Fingerprint identifies the CAS object holding the bytes.
	Fingerprint Fingerprint `json:"fingerprint"`
}

// End returns the first byte position past the extent.
func (e Extent) End() uint64 {
	return e.Offset + e.Length
}

// Overlaps reports whether the extent intersects [offset, offset+length).
func (e Extent) Overlaps(offset, length uint64) bool {
	return e.Offset < offset+length && e.End() > offset
}

// ObjectInfo describes one CAS object for introspection and ops
// tooling: its key in the CAS namespace and the backend-maintained
// reference count.
type ObjectInfo struct {
	Key      string `json:"key"`
	RefCount uint64 `json:"ref_count"`
}

// ObjectMeta is the decoded metadata of a CAS object.
type ObjectMeta struct {
	// Compression is the identifier of the compressor the object was
	// written with.
	Compression string `json:"compression"`

	// OrigSize is the uncompressed size in bytes.
	OrigSize int64 `json:"orig_size"`

	// Algorithm is the fingerprint algorithm tag.
	Algorithm Algorithm `json:"fp_algo"`

	// Library is the library version string that wrote the object.
	Library string `json:"lib"`

	// RefCount is the backend-maintained reference count.
	RefCount uint64 `json:"ref_count"`
}
