package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/cascade-store/internal/domain"
)

func testFingerprint(seed string) domain.Fingerprint {
	sum := sha256.Sum256([]byte(seed))
	return domain.Fingerprint{
		Algorithm: domain.AlgorithmSHA256,
		Digest:    hex.EncodeToString(sum[:]),
	}
}

func testExtent(offset, length uint64, seed string) domain.Extent {
	return domain.Extent{
		Offset:      offset,
		Length:      length,
		Fingerprint: testFingerprint(seed),
	}
}

func TestRecipe_Size(t *testing.T) {
	t.Run("empty recipe has zero size", func(t *testing.T) {
		assert.Equal(t, uint64(0), New(nil).Size())
	})

	t.Run("size is the end of the last extent", func(t *testing.T) {
		r := New([]domain.Extent{
			testExtent(0, 4096, "a"),
			testExtent(4096, 100, "b"),
		})
		assert.Equal(t, uint64(4196), r.Size())
	})

	t.Run("sparse tail counts toward size", func(t *testing.T) {
		r := New([]domain.Extent{
			testExtent(0, 4096, "a"),
			testExtent(1<<20, 512, "b"),
		})
		assert.Equal(t, uint64(1<<20+512), r.Size())
	})
}

func TestRecipe_New_SortsByOffset(t *testing.T) {
	r := New([]domain.Extent{
		testExtent(8192, 4096, "c"),
		testExtent(0, 4096, "a"),
		testExtent(4096, 4096, "b"),
	})

	require.Len(t, r.Extents, 3)
	assert.Equal(t, uint64(0), r.Extents[0].Offset)
	assert.Equal(t, uint64(4096), r.Extents[1].Offset)
	assert.Equal(t, uint64(8192), r.Extents[2].Offset)
}

func TestRecipe_ExtentsInRange(t *testing.T) {
	r := New([]domain.Extent{
		testExtent(0, 4096, "a"),
		testExtent(4096, 4096, "b"),
		testExtent(8192, 4096, "c"),
	})

	tests := []struct {
		name    string
		offset  uint64
		length  uint64
		wantOff []uint64
	}{
		{"full file", 0, 12288, []uint64{0, 4096, 8192}},
		{"single extent interior", 4100, 100, []uint64{4096}},
		{"straddles boundary", 4000, 200, []uint64{0, 4096}},
		{"past end of file", 20000, 100, nil},
		{"zero length", 100, 0, nil},
		{"exact extent", 8192, 4096, []uint64{8192}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.ExtentsInRange(tt.offset, tt.length)
			require.Len(t, got, len(tt.wantOff))
			for i, off := range tt.wantOff {
				assert.Equal(t, off, got[i].Offset)
			}
		})
	}
}

func TestRecipe_ExtentsInRange_SparseHole(t *testing.T) {
	r := New([]domain.Extent{
		testExtent(0, 4096, "a"),
		testExtent(1<<20, 4096, "b"),
	})

	// A range entirely inside the hole overlaps nothing.
	assert.Empty(t, r.ExtentsInRange(8192, 4096))

	// A range spanning the hole yields just the bracketing extents.
	got := r.ExtentsInRange(0, 1<<21)
	require.Len(t, got, 2)
}

func TestCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		extents []domain.Extent
	}{
		{"empty", nil},
		{"single extent", []domain.Extent{testExtent(0, 4096, "only")}},
		{"mixed algorithms", []domain.Extent{
			testExtent(0, 4096, "a"),
			{
				Offset: 4096,
				Length: 512,
				Fingerprint: domain.Fingerprint{
					Algorithm: domain.AlgorithmBLAKE3,
					Digest:    testFingerprint("b").Digest,
				},
			},
		}},
		{"sparse", []domain.Extent{
			testExtent(0, 4096, "a"),
			testExtent(1<<30, 4096, "b"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := New(tt.extents)
			data, err := Encode(original)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, original.Extents, decoded.Extents)
		})
	}
}

func TestCodec_RoundTrip_ManyExtents(t *testing.T) {
	count := 1_000_000
	if testing.Short() {
		count = 100_000
	}

	extents := make([]domain.Extent, count)
	for i := range extents {
		extents[i] = testExtent(uint64(i)*4096, 4096, fmt.Sprintf("chunk-%d", i))
	}
	original := New(extents)

	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded.Extents, count)
	assert.Equal(t, original.Extents, decoded.Extents)
	assert.Equal(t, original.Size(), decoded.Size())
}

func TestCodec_Decode_Corrupt(t *testing.T) {
	valid, err := Encode(New([]domain.Extent{testExtent(0, 4096, "a")}))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"empty input", func(b []byte) []byte { return nil }},
		{"truncated header", func(b []byte) []byte { return b[:8] }},
		{"bad magic", func(b []byte) []byte { b[0] ^= 0xFF; return b }},
		{"unsupported version", func(b []byte) []byte { b[4] = 99; return b }},
		{"truncated body", func(b []byte) []byte { return b[:len(b)-1] }},
		{"trailing bytes", func(b []byte) []byte { return append(b, 0x00) }},
		{"unknown algorithm tag", func(b []byte) []byte { b[12+16] = 0xEE; return b }},
		{"non-hex digest", func(b []byte) []byte { b[12+17] = 'Z'; return b }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, len(valid))
			copy(data, valid)

			_, err := Decode(tt.mutate(data))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrCorruptRecipe)
		})
	}
}

func TestCodec_Encode_RejectsMalformedFingerprint(t *testing.T) {
	t.Run("unknown algorithm", func(t *testing.T) {
		r := New([]domain.Extent{{
			Offset: 0, Length: 16,
			Fingerprint: domain.Fingerprint{Algorithm: "MD5", Digest: testFingerprint("x").Digest},
		}})
		_, err := Encode(r)
		assert.ErrorIs(t, err, domain.ErrUnknownAlgorithm)
	})

	t.Run("short digest", func(t *testing.T) {
		r := New([]domain.Extent{{
			Offset: 0, Length: 16,
			Fingerprint: domain.Fingerprint{Algorithm: domain.AlgorithmSHA256, Digest: "abc"},
		}})
		_, err := Encode(r)
		assert.Error(t, err)
	})
}
