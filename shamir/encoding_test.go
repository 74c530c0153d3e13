package shamir

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShareHexRoundTrip(t *testing.T) {
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	shares, err := Split(secret, 3, 2)
	require.NoError(t, err, "Split should succeed")

	for i, share := range shares {
		encoded := ShareToHex(share)
		assert.Equal(t, 2*len(share), len(encoded), "Hex encoding should use two characters per byte")
		assert.Equal(t, strings.ToLower(encoded), encoded, "Canonical encoding is lowercase")

		decoded, err := HexToShare(encoded)
		require.NoError(t, err, "Decoding share %d should succeed", i)
		assert.True(t, share.Equal(decoded), "Decoded share %d should equal the original", i)
	}
}

func TestHexToShare_Invalid(t *testing.T) {
	// Not hex at all
	_, err := HexToShare("not-hex!")
	assert.Error(t, err, "Should reject non-hex input")

	// Odd length
	_, err = HexToShare("0ab")
	assert.Error(t, err, "Should reject odd-length input")

	// Too short to carry a coordinate and a body
	_, err = HexToShare("01")
	assert.Error(t, err, "Should reject a share without evaluations")

	// Zero x-coordinate
	_, err = HexToShare("00ff")
	assert.Error(t, err, "Should reject a zero x-coordinate")
}

func TestSharesHexRoundTrip(t *testing.T) {
	secret := make([]byte, 16)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")

	shares, err := Split(secret, 5, 2)
	require.NoError(t, err, "Split should succeed")

	encoded := SharesToHex(shares)
	require.Equal(t, len(shares), len(encoded), "Should encode every share")

	decoded, err := SharesFromHex(encoded)
	require.NoError(t, err, "Decoding the set should succeed")
	require.Equal(t, len(shares), len(decoded), "Should decode every share")

	for i := range shares {
		assert.True(t, shares[i].Equal(decoded[i]), "Share %d should round-trip", i)
	}

	// Reconstruction from the decoded set still works.
	recovered, err := Reconstruct(decoded[:2])
	require.NoError(t, err, "Reconstruct should succeed from decoded shares")
	assert.Equal(t, secret, recovered, "Decoded shares should recover the secret")

	// One malformed entry fails the whole set.
	encoded[1] = "zz"
	_, err = SharesFromHex(encoded)
	assert.Error(t, err, "Should reject a set containing a malformed share")
}

func TestShareValidate(t *testing.T) {
	assert.Error(t, interfaces.Share{}.Validate(), "Empty share should not validate")
	assert.Error(t, interfaces.Share{0x01}.Validate(), "Coordinate-only share should not validate")
	assert.Error(t, interfaces.Share{0x00, 0xab}.Validate(), "Zero coordinate should not validate")
	assert.NoError(t, interfaces.Share{0x01, 0xab}.Validate(), "Minimal well-formed share should validate")
}
