package recipe

import (
	"encoding/binary"
	"fmt"

	"github.com/prn-tf/cascade-store/internal/domain"
)

// Binary recipe format, version 1. All integers little-endian:
//
//	magic   u32
//	version u32
//	count   u32
//	count × (offset u64, length u64, algo u8, digest [64]byte hex)
//
// The fixed record width makes decoding a bounds check and a copy;
// anything left over after the last record is rejected.
const (
	recipeMagic = 0x45504352 // "RCPE"
	recipeV1    = 1

	headerLen = 4 + 4 + 4
	recordLen = 8 + 8 + 1 + domain.DigestHexLen
)

// Algorithm tags on the wire.
const (
	algoTagSHA256 = 1
	algoTagBLAKE3 = 2
)

func algoTag(a domain.Algorithm) (byte, error) {
	switch a {
	case domain.AlgorithmSHA256:
		return algoTagSHA256, nil
	case domain.AlgorithmBLAKE3:
		return algoTagBLAKE3, nil
	default:
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownAlgorithm, a)
	}
}

func algoFromTag(tag byte) (domain.Algorithm, error) {
	switch tag {
	case algoTagSHA256:
		return domain.AlgorithmSHA256, nil
	case algoTagBLAKE3:
		return domain.AlgorithmBLAKE3, nil
	default:
		return "", fmt.Errorf("%w: unknown algorithm tag %d", domain.ErrCorruptRecipe, tag)
	}
}

// Encode serializes the recipe.
func Encode(r *Recipe) ([]byte, error) {
	buf := make([]byte, 0, headerLen+len(r.Extents)*recordLen)
	buf = binary.LittleEndian.AppendUint32(buf, recipeMagic)
	buf = binary.LittleEndian.AppendUint32(buf, recipeV1)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Extents)))

	for i, ext := range r.Extents {
		tag, err := algoTag(ext.Fingerprint.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("extent %d: %w", i, err)
		}
		if !domain.ValidDigest(ext.Fingerprint.Digest) {
			return nil, fmt.Errorf("extent %d: malformed digest %q", i, ext.Fingerprint.Digest)
		}
		buf = binary.LittleEndian.AppendUint64(buf, ext.Offset)
		buf = binary.LittleEndian.AppendUint64(buf, ext.Length)
		buf = append(buf, tag)
		buf = append(buf, ext.Fingerprint.Digest...)
	}
	return buf, nil
}

// Decode parses a serialized recipe. Any structural defect, bad
// magic, unsupported version, truncation or trailing bytes, yields
// domain.ErrCorruptRecipe.
func Decode(data []byte) (*Recipe, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: truncated header", domain.ErrCorruptRecipe)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != recipeMagic {
		return nil, fmt.Errorf("%w: bad magic", domain.ErrCorruptRecipe)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != recipeV1 {
		return nil, fmt.Errorf("%w: unsupported version %d", domain.ErrCorruptRecipe, v)
	}
	count := int(binary.LittleEndian.Uint32(data[8:12]))

	if len(data) != headerLen+count*recordLen {
		if len(data) < headerLen+count*recordLen {
			return nil, fmt.Errorf("%w: truncated body", domain.ErrCorruptRecipe)
		}
		return nil, fmt.Errorf("%w: trailing bytes", domain.ErrCorruptRecipe)
	}

	extents := make([]domain.Extent, 0, count)
	offset := headerLen
	for i := 0; i < count; i++ {
		rec := data[offset : offset+recordLen]
		algo, err := algoFromTag(rec[16])
		if err != nil {
			return nil, err
		}
		digest := string(rec[17 : 17+domain.DigestHexLen])
		if !domain.ValidDigest(digest) {
			return nil, fmt.Errorf("%w: malformed digest in extent %d", domain.ErrCorruptRecipe, i)
		}
		extents = append(extents, domain.Extent{
			Offset: binary.LittleEndian.Uint64(rec[0:8]),
			Length: binary.LittleEndian.Uint64(rec[8:16]),
			Fingerprint: domain.Fingerprint{
				Algorithm: algo,
				Digest:    digest,
			},
		})
		offset += recordLen
	}
	return &Recipe{Extents: extents}, nil
}
