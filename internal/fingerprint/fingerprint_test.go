package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/cascade-store/internal/domain"
)

func TestSumDeterministic(t *testing.T) {
	for _, algo := range Supported() {
		data := []byte("the same bytes every time")

		first, err := Sum(algo, data)
		require.NoError(t, err)
		second, err := Sum(algo, data)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, algo, first.Algorithm)
		assert.True(t, domain.ValidDigest(first.Digest))
	}
}

func TestSumDistinguishesContent(t *testing.T) {
	for _, algo := range Supported() {
		a, err := Sum(algo, []byte("a"))
		require.NoError(t, err)
		b, err := Sum(algo, []byte("b"))
		require.NoError(t, err)

		assert.NotEqual(t, a.Digest, b.Digest)
	}
}

func TestSumEmptyInput(t *testing.T) {
	// The empty buffer is a legitimate chunk (zero-length source).
	fp, err := Sum(domain.AlgorithmSHA256, nil)
	require.NoError(t, err)
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		fp.Digest)
}

func TestSumUnknownAlgorithm(t *testing.T) {
	_, err := Sum(domain.Algorithm("MD5"), []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownAlgorithm)
}
