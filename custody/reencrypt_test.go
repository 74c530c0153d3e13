package custody

import (
	"testing"

	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReencrypt(t *testing.T) {
	uploader, err := NewEphemeralIdentity()
	require.NoError(t, err, "Should create uploader identity")
	node, err := NewIdentity(interfaces.BetaNode)
	require.NoError(t, err, "Should create node identity")
	requester, err := NewEphemeralIdentity()
	require.NoError(t, err, "Should create requester identity")

	share := testShare(t)

	// Uploader seals the share to the node at upload time.
	sealed, err := uploader.SealTo(node.PublicKey(), share)
	require.NoError(t, err, "Sealing to node should succeed")

	// On release the node re-seals for the requester.
	released, err := node.Reencrypt(sealed, requester.PublicKey())
	require.NoError(t, err, "Re-encryption should succeed")
	assert.Equal(t, node.PublicKey(), released.Sender, "Released share should name the node as sender")
	assert.NotEqual(t, sealed.Ciphertext, released.Ciphertext, "Re-sealed ciphertext should differ from the input")

	// The requester, and only the requester, recovers the share.
	opened, err := requester.OpenFrom(released.Sender, released)
	require.NoError(t, err, "Requester should open the released share")
	assert.Equal(t, share, opened, "Released share should equal the original")

	_, err = uploader.OpenFrom(released.Sender, released)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "Parties other than the requester cannot open")
}

func TestReencrypt_PropagatesOpenFailure(t *testing.T) {
	uploader, err := NewEphemeralIdentity()
	require.NoError(t, err, "Should create uploader identity")
	node, err := NewIdentity(interfaces.BetaNode)
	require.NoError(t, err, "Should create node identity")
	otherNode, err := NewIdentity(interfaces.GammaNode)
	require.NoError(t, err, "Should create second node identity")
	requester, err := NewEphemeralIdentity()
	require.NoError(t, err, "Should create requester identity")

	share := testShare(t)
	sealed, err := uploader.SealTo(node.PublicKey(), share)
	require.NoError(t, err, "Sealing should succeed")

	// A node the share was not sealed to must report failure, not
	// produce output.
	_, err = otherNode.Reencrypt(sealed, requester.PublicKey())
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "Re-encryption by the wrong node should fail typed")

	// Tampered input fails the same way.
	tampered := sealed
	tampered.Ciphertext = append([]byte(nil), sealed.Ciphertext...)
	tampered.Ciphertext[3] ^= 0xff
	_, err = node.Reencrypt(tampered, requester.PublicKey())
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "Tampered input should fail typed")

	// A share with no declared sender cannot be opened.
	anonymous := sealed
	anonymous.Sender = interfaces.NodePublicKey{}
	_, err = node.Reencrypt(anonymous, requester.PublicKey())
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "Missing sender should fail typed")
}
