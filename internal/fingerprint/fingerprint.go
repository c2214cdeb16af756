// Package fingerprint maps byte buffers to stable content identifiers.
// The digest doubles as the CAS object key, so it must be deterministic
// and collision-free for practical purposes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/prn-tf/cascade-store/internal/domain"
)

// Sum computes the fingerprint of data using the given algorithm.
func Sum(algo domain.Algorithm, data []byte) (domain.Fingerprint, error) {
	switch algo {
	case domain.AlgorithmSHA256:
		sum := sha256.Sum256(data)
		return domain.Fingerprint{
			Algorithm: domain.AlgorithmSHA256,
			Digest:    hex.EncodeToString(sum[:]),
		}, nil

	case domain.AlgorithmBLAKE3:
		sum := blake3.Sum256(data)
		return domain.Fingerprint{
			Algorithm: domain.AlgorithmBLAKE3,
			Digest:    hex.EncodeToString(sum[:]),
		}, nil

	default:
		return domain.Fingerprint{}, domain.NewStoreError(
			domain.ErrUnknownAlgorithm, "", string(algo))
	}
}

// Supported returns the algorithms this build can fingerprint with.
func Supported() []domain.Algorithm {
	return []domain.Algorithm{domain.AlgorithmSHA256, domain.AlgorithmBLAKE3}
}
