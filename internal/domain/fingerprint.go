// Package domain contains the core entities for Cascade Store.
package domain

import (
	"fmt"
	"strings"
)

// Algorithm identifies a fingerprint algorithm.
type Algorithm string

const (
	// AlgorithmSHA256 is the default fingerprint algorithm.
	AlgorithmSHA256 Algorithm = "SHA-256"

	// AlgorithmBLAKE3 is an alternative fingerprint algorithm with
	// significantly higher throughput on large chunks.
	AlgorithmBLAKE3 Algorithm = "BLAKE3"
)

// Valid reports whether the algorithm is one this build understands.
func (a Algorithm) Valid() bool {
	return a == AlgorithmSHA256 || a == AlgorithmBLAKE3
}

// Fingerprint is the content identifier of a byte buffer.
// Two buffers with identical bytes always yield the identical
// fingerprint; the digest doubles as the backend object key.
type Fingerprint struct {
	// Algorithm is the hash algorithm tag.
	Algorithm Algorithm `json:"algorithm"`

	// Digest is the hex-encoded hash of the (uncompressed) content.
	// 64 characters for both supported algorithms.
	Digest string `json:"digest"`
}

// Key returns the backend object key for this fingerprint.
func (f Fingerprint) Key() string {
	return f.Digest
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool {
	return f.Digest == ""
}

// String returns the fingerprint in "algorithm:digest" form.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%s:%s", f.Algorithm, f.Digest)
}

// ParseFingerprint parses the "algorithm:digest" form produced by
// String.
func ParseFingerprint(s string) (Fingerprint, error) {
	algo, digest, ok := strings.Cut(s, ":")
	if !ok {
		return Fingerprint{}, fmt.Errorf("malformed fingerprint %q", s)
	}
	fp := Fingerprint{Algorithm: Algorithm(algo), Digest: digest}
	if !fp.Algorithm.Valid() {
		return Fingerprint{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	if !ValidDigest(digest) {
		return Fingerprint{}, fmt.Errorf("malformed fingerprint digest %q", digest)
	}
	return fp, nil
}

// DigestHexLen is the fixed width of a hex-encoded digest. Both
// supported algorithms produce 32-byte digests, so this is a format
// constant the recipe codec relies on.
const DigestHexLen = 64

// ValidDigest reports whether s is a well-formed hex digest.
func ValidDigest(s string) bool {
	if len(s) != DigestHexLen {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
