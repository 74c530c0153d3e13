package shamir

import (
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Validation(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	// Threshold below 2
	_, err = Split(secret, 3, 1)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold, "Should fail when threshold < 2")

	// Threshold above share count
	_, err = Split(secret, 3, 4)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold, "Should fail when threshold > shares")

	// Share count above the field bound
	_, err = Split(secret, 256, 2)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold, "Should fail when shares > 255")

	// Empty secret
	_, err = Split(nil, 3, 2)
	assert.Error(t, err, "Should fail with an empty secret")
}

func TestSplit_ShareFormat(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	shares, err := Split(secret, 3, 2)
	require.NoError(t, err, "Split should succeed with valid parameters")
	require.Equal(t, 3, len(shares), "Should produce 3 shares")

	for i, share := range shares {
		assert.Equal(t, len(secret)+1, len(share), "Share should be one byte longer than the secret")
		assert.Equal(t, byte(i+1), share.XCoordinate(), "X-coordinates should be 1-indexed and sequential")
		assert.NoError(t, share.Validate(), "Produced share should validate")
	}

	// A share must not leak the secret verbatim
	for _, share := range shares {
		assert.NotEqual(t, secret, []byte(share[1:]), "Share body should not equal the secret")
	}
}

func TestSplitReconstruct_RoundTrip(t *testing.T) {
	schemes := []struct {
		n, k int
	}{
		{3, 2},
		{5, 3},
		{7, 5},
		{12, 2},
		{255, 3},
	}

	for _, secretLen := range []int{16, 32, 64} {
		secret := make([]byte, secretLen)
		_, err := rand.Read(secret)
		require.NoError(t, err, "Failed to generate test secret")

		for _, scheme := range schemes {
			shares, err := Split(secret, scheme.n, scheme.k)
			require.NoError(t, err, "Split should succeed for %d-of-%d", scheme.k, scheme.n)

			// Exactly the threshold
			recovered, err := Reconstruct(shares[:scheme.k])
			require.NoError(t, err, "Reconstruct should succeed with threshold shares")
			assert.Equal(t, secret, recovered, "Threshold shares should recover the secret for %d-of-%d len %d", scheme.k, scheme.n, secretLen)

			// More than the threshold
			recovered, err = Reconstruct(shares)
			require.NoError(t, err, "Reconstruct should succeed with all shares")
			assert.Equal(t, secret, recovered, "All shares should recover the secret")
		}
	}
}

func TestReconstruct_SubsetInvariance(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	shares, err := Split(secret, 5, 3)
	require.NoError(t, err, "Split should succeed")

	// Every 3-subset, in multiple orders, yields the same secret.
	for a := 0; a < 5; a++ {
		for b := a + 1; b < 5; b++ {
			for c := b + 1; c < 5; c++ {
				subset := []interfaces.Share{shares[a], shares[b], shares[c]}
				recovered, err := Reconstruct(subset)
				require.NoError(t, err, "Reconstruct should succeed for subset {%d,%d,%d}", a, b, c)
				assert.Equal(t, secret, recovered, "Subset {%d,%d,%d} should recover the secret", a, b, c)

				reversed := []interfaces.Share{shares[c], shares[b], shares[a]}
				recovered, err = Reconstruct(reversed)
				require.NoError(t, err, "Reconstruct should succeed regardless of order")
				assert.Equal(t, secret, recovered, "Share order should not matter")
			}
		}
	}
}

func TestReconstruct_ThresholdBoundary(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	shares, err := Split(secret, 5, 3)
	require.NoError(t, err, "Split should succeed")

	// k-1 shares interpolate to garbage, silently.
	recovered, err := Reconstruct(shares[:2])
	require.NoError(t, err, "Reconstruct does not detect sub-threshold input")
	assert.NotEqual(t, secret, recovered, "Fewer than threshold shares must not recover the secret")
}

func TestReconstruct_Validation(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	shares, err := Split(secret, 3, 2)
	require.NoError(t, err, "Split should succeed")

	// Too few shares
	_, err = Reconstruct(shares[:1])
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares, "Should fail with a single share")

	_, err = Reconstruct(nil)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares, "Should fail with no shares")

	// Duplicate x-coordinate
	_, err = Reconstruct([]interfaces.Share{shares[0], shares[0]})
	assert.ErrorIs(t, err, interfaces.ErrShareMismatch, "Should reject duplicate x-coordinates")

	// Mismatched lengths
	truncated := shares[1][:len(shares[1])-1]
	_, err = Reconstruct([]interfaces.Share{shares[0], truncated})
	assert.ErrorIs(t, err, interfaces.ErrShareMismatch, "Should reject shares of differing length")

	// Zero x-coordinate
	forged := make(interfaces.Share, len(shares[0]))
	copy(forged, shares[0])
	forged[0] = 0
	_, err = Reconstruct([]interfaces.Share{forged, shares[1]})
	assert.ErrorIs(t, err, interfaces.ErrShareMismatch, "Should reject a zero x-coordinate")
}

func TestSplitReconstruct_ZeroSecret(t *testing.T) {
	secret := make([]byte, 32)

	shares, err := Split(secret, 3, 2)
	require.NoError(t, err, "Split should succeed for the all-zero secret")
	require.Equal(t, 3, len(shares), "Should produce 3 shares")

	for _, share := range shares {
		assert.Equal(t, 33, len(share), "Shares of a 32-byte secret should be 33 bytes")
	}

	// Every pair recovers the all-zero secret.
	pairs := [][2]int{{0, 1}, {0, 2}, {1, 2}}
	for _, pair := range pairs {
		recovered, err := Reconstruct([]interfaces.Share{shares[pair[0]], shares[pair[1]]})
		require.NoError(t, err, "Reconstruct should succeed for pair %v", pair)
		assert.Equal(t, secret, recovered, "Pair %v should recover the zero secret", pair)
	}
}

func TestSplitReconstruct_AlphaGamma(t *testing.T) {
	digest := sha256.Sum256([]byte("test"))
	secret := digest[:]

	shares, err := Split(secret, 3, 2)
	require.NoError(t, err, "Split should succeed")

	// Custodians alpha and gamma hold x-coordinates 1 and 3.
	require.Equal(t, byte(1), shares[0].XCoordinate(), "First share should sit at x=1")
	require.Equal(t, byte(3), shares[2].XCoordinate(), "Third share should sit at x=3")

	recovered, err := Reconstruct([]interfaces.Share{shares[0], shares[2]})
	require.NoError(t, err, "Reconstruct should succeed from alpha and gamma")
	assert.Equal(t, secret, recovered, "Shares at x={1,3} should recover the secret")
}

func TestSplit_SharesDifferAcrossSplits(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	first, err := Split(secret, 3, 2)
	require.NoError(t, err, "First split should succeed")
	second, err := Split(secret, 3, 2)
	require.NoError(t, err, "Second split should succeed")

	// Fresh random polynomials per split: share bodies must differ.
	assert.False(t, first[0].Equal(second[0]), "Independent splits should not produce identical shares")
}
