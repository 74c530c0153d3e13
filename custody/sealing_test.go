package custody

import (
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShare(t *testing.T) []byte {
	t.Helper()
	share := make([]byte, 33)
	_, err := rand.Read(share)
	require.NoError(t, err, "Failed to generate test share")
	share[0] = 1
	return share
}

func TestSealOpenRoundTrip(t *testing.T) {
	uploader, err := NewEphemeralIdentity()
	require.NoError(t, err, "Should create uploader identity")
	node, err := NewIdentity(interfaces.AlphaNode)
	require.NoError(t, err, "Should create node identity")

	share := testShare(t)

	sealed, err := uploader.SealTo(node.PublicKey(), share)
	require.NoError(t, err, "Sealing should succeed")
	assert.Equal(t, uploader.PublicKey(), sealed.Sender, "Sealed share should carry the sender key")
	assert.NotEqual(t, share, sealed.Ciphertext, "Ciphertext should not equal the plaintext")

	opened, err := node.OpenFrom(sealed.Sender, sealed)
	require.NoError(t, err, "Opening should succeed")
	assert.Equal(t, share, opened, "Opened share should equal the original")
}

func TestSealTo_FreshNonces(t *testing.T) {
	uploader, err := NewEphemeralIdentity()
	require.NoError(t, err, "Should create uploader identity")
	node, err := NewIdentity(interfaces.BetaNode)
	require.NoError(t, err, "Should create node identity")

	share := testShare(t)

	first, err := uploader.SealTo(node.PublicKey(), share)
	require.NoError(t, err, "First seal should succeed")
	second, err := uploader.SealTo(node.PublicKey(), share)
	require.NoError(t, err, "Second seal should succeed")

	assert.NotEqual(t, first.Nonce, second.Nonce, "Each seal should draw a fresh nonce")
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext, "Same plaintext should never repeat ciphertext")
}

func TestOpenFrom_FailsClosed(t *testing.T) {
	uploader, err := NewEphemeralIdentity()
	require.NoError(t, err, "Should create uploader identity")
	node, err := NewIdentity(interfaces.AlphaNode)
	require.NoError(t, err, "Should create node identity")
	stranger, err := NewEphemeralIdentity()
	require.NoError(t, err, "Should create stranger identity")

	share := testShare(t)
	sealed, err := uploader.SealTo(node.PublicKey(), share)
	require.NoError(t, err, "Sealing should succeed")

	// Wrong declared sender
	_, err = node.OpenFrom(stranger.PublicKey(), sealed)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "Wrong sender key should fail authentication")

	// Wrong recipient
	_, err = stranger.OpenFrom(uploader.PublicKey(), sealed)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "Only the sealed-to node can open")

	// Tampered ciphertext
	tampered := sealed
	tampered.Ciphertext = append([]byte(nil), sealed.Ciphertext...)
	tampered.Ciphertext[0] ^= 0x01
	_, err = node.OpenFrom(uploader.PublicKey(), tampered)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "Tampered ciphertext should fail authentication")

	// Tampered nonce
	tampered = sealed
	tampered.Nonce[0] ^= 0x01
	_, err = node.OpenFrom(uploader.PublicKey(), tampered)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "Tampered nonce should fail authentication")
}

func TestSharedSecretRoundTrip(t *testing.T) {
	var key interfaces.SharedSecret
	_, err := rand.Read(key[:])
	require.NoError(t, err, "Failed to generate shared key")

	share := testShare(t)

	sealed, err := SealWithSharedSecret(share, key)
	require.NoError(t, err, "Sealing should succeed")
	assert.True(t, sealed.Sender.IsZero(), "Symmetric sealing carries no sender key")

	opened, err := OpenWithSharedSecret(sealed, key)
	require.NoError(t, err, "Opening should succeed")
	assert.Equal(t, share, opened, "Opened share should equal the original")

	// Wrong key fails closed
	var wrongKey interfaces.SharedSecret
	_, err = rand.Read(wrongKey[:])
	require.NoError(t, err, "Failed to generate wrong key")
	_, err = OpenWithSharedSecret(sealed, wrongKey)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "Wrong shared key should fail authentication")

	// Tamper fails closed
	sealed.Ciphertext[len(sealed.Ciphertext)-1] ^= 0x80
	_, err = OpenWithSharedSecret(sealed, key)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "Tampered ciphertext should fail authentication")
}

func TestEncryptedShareJSON(t *testing.T) {
	uploader, err := NewEphemeralIdentity()
	require.NoError(t, err, "Should create uploader identity")
	node, err := NewIdentity(interfaces.GammaNode)
	require.NoError(t, err, "Should create node identity")

	share := testShare(t)
	sealed, err := uploader.SealTo(node.PublicKey(), share)
	require.NoError(t, err, "Sealing should succeed")

	encoded, err := json.Marshal(sealed)
	require.NoError(t, err, "Marshalling should succeed")

	var decoded interfaces.EncryptedShare
	require.NoError(t, json.Unmarshal(encoded, &decoded), "Unmarshalling should succeed")
	assert.Equal(t, sealed.Nonce, decoded.Nonce, "Nonce should round-trip")
	assert.Equal(t, sealed.Ciphertext, decoded.Ciphertext, "Ciphertext should round-trip")
	assert.Equal(t, sealed.Sender, decoded.Sender, "Sender should round-trip")

	// The decoded share still opens
	opened, err := node.OpenFrom(decoded.Sender, decoded)
	require.NoError(t, err, "Decoded share should open")
	assert.Equal(t, share, opened, "Share should survive the wire format")
}
