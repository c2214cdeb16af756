// Package compress provides the pluggable compressors used by the CAS
// store. A compressor is selected by an identifier string; the
// identifier is written into object metadata on put, and reads
// dispatch decompression on the stored identifier rather than the
// store's current policy, so objects written under one policy remain
// readable under another.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/prn-tf/cascade-store/internal/domain"
)

// Identifiers of the registered compressors.
const (
	IdentifierNone   = "no"
	IdentifierSnappy = "snappy"
	IdentifierZstd   = "zstd"
	IdentifierLZ4    = "lz4"
)

// Meta is the metadata a compressor attaches to a compressed
// representation. It is persisted as object attributes so that get can
// pick the right decompressor.
type Meta struct {
	// Identifier names the compressor that produced the bytes.
	Identifier string

	// OrigSize is the uncompressed size in bytes.
	OrigSize int64
}

// Compressor adapts one compression algorithm to what the CAS store
// needs. Round-trip law: Decompress(Compress(x)) == x for all byte
// sequences, including empty.
type Compressor interface {
	// Identifier returns the registry identifier.
	Identifier() string

	// Compress returns the compressed representation of data together
	// with its metadata.
	Compress(data []byte) (Meta, []byte, error)

	// Decompress restores the original bytes. origSize is the
	// uncompressed size from object metadata; block formats that do
	// not self-describe their output size require it.
	Decompress(data []byte, origSize int64) ([]byte, error)
}

var registry = map[string]Compressor{
	IdentifierNone:   noneCompressor{},
	IdentifierSnappy: snappyCompressor{},
	IdentifierZstd:   zstdCompressor{},
	IdentifierLZ4:    lz4Compressor{},
}

// Select returns the compressor registered under identifier.
func Select(identifier string) (Compressor, error) {
	c, ok := registry[identifier]
	if !ok {
		return nil, domain.NewStoreError(domain.ErrUnknownCompressor, "", identifier)
	}
	return c, nil
}

// Supported returns the registered identifiers in sorted order.
func Supported() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// noneCompressor is the identity compressor. Always registered.
type noneCompressor struct{}

func (noneCompressor) Identifier() string { return IdentifierNone }

func (noneCompressor) Compress(data []byte) (Meta, []byte, error) {
	return Meta{Identifier: IdentifierNone, OrigSize: int64(len(data))}, data, nil
}

func (noneCompressor) Decompress(data []byte, origSize int64) ([]byte, error) {
	if int64(len(data)) != origSize {
		return nil, fmt.Errorf("uncompressed object: size %d does not match recorded %d",
			len(data), origSize)
	}
	return data, nil
}

// snappyCompressor uses snappy block encoding, the original default
// for chunk-sized payloads.
type snappyCompressor struct{}

func (snappyCompressor) Identifier() string { return IdentifierSnappy }

func (snappyCompressor) Compress(data []byte) (Meta, []byte, error) {
	return Meta{Identifier: IdentifierSnappy, OrigSize: int64(len(data))},
		snappy.Encode(nil, data), nil
}

func (snappyCompressor) Decompress(data []byte, origSize int64) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress: %w", err)
	}
	if int64(len(out)) != origSize {
		return nil, fmt.Errorf("snappy decompress: got %d bytes, expected %d",
			len(out), origSize)
	}
	return out, nil
}

// zstdCompressor uses zstd at the default level. Encoder and decoder
// are reused across calls; both are safe for concurrent use.
type zstdCompressor struct{}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

func (zstdCompressor) Identifier() string { return IdentifierZstd }

func (zstdCompressor) Compress(data []byte) (Meta, []byte, error) {
	return Meta{Identifier: IdentifierZstd, OrigSize: int64(len(data))},
		zstdEncoder.EncodeAll(data, nil), nil
}

func (zstdCompressor) Decompress(data []byte, origSize int64) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, origSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if int64(len(out)) != origSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d",
			len(out), origSize)
	}
	return out, nil
}

// lz4Compressor uses the lz4 frame format. The frame format (unlike
// raw blocks) stores incompressible input verbatim, which keeps the
// round-trip law unconditional.
type lz4Compressor struct{}

func (lz4Compressor) Identifier() string { return IdentifierLZ4 }

func (lz4Compressor) Compress(data []byte) (Meta, []byte, error) {
	meta := Meta{Identifier: IdentifierLZ4, OrigSize: int64(len(data))}

	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return Meta{}, nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return Meta{}, nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return meta, buf.Bytes(), nil
}

func (lz4Compressor) Decompress(data []byte, origSize int64) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out := make([]byte, 0, origSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if int64(buf.Len()) != origSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d",
			buf.Len(), origSize)
	}
	return buf.Bytes(), nil
}
