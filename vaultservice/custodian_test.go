package vaultservice

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNode(t *testing.T, id interfaces.NodeID) *CustodianNode {
	t.Helper()
	identity, err := custody.IdentityFromSeed(id, []byte("custodian-test-seed-"+id.String()), custody.DeriveHKDF)
	require.NoError(t, err, "should derive node identity")
	node, err := NewCustodianNode(identity, testLogger())
	require.NoError(t, err, "should create custodian node")
	return node
}

// TestCustodianNode_StoreAndReencrypt tests the share custody round trip
func TestCustodianNode_StoreAndReencrypt(t *testing.T) {
	ctx := context.Background()
	node := testNode(t, interfaces.AlphaNode)

	uploader, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create uploader identity")
	requester, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create requester identity")

	share := interfaces.Share{1, 0xde, 0xad, 0xbe, 0xef}
	sealed, err := uploader.SealTo(node.PublicKey(), share)
	require.NoError(t, err, "should seal share to node")

	boxID := interfaces.ComputeID([]byte("payload"))
	require.NoError(t, node.StoreShare(ctx, boxID, sealed), "node should accept its share")
	assert.True(t, node.HasShare(boxID), "share should be on file")
	assert.Equal(t, 1, node.SharesHeld(), "node should hold one share")

	resealed, err := node.Reencrypt(ctx, boxID, requester.PublicKey())
	require.NoError(t, err, "re-encrypt should succeed")
	assert.Equal(t, node.PublicKey(), resealed.Sender, "re-encrypted share should declare the node as sender")

	opened, err := requester.OpenFrom(resealed.Sender, resealed)
	require.NoError(t, err, "requester should open the re-encrypted share")
	assert.Equal(t, []byte(share), opened, "share should survive re-encryption")
}

// TestCustodianNode_RejectsForeignShare tests delivery addressing
func TestCustodianNode_RejectsForeignShare(t *testing.T) {
	ctx := context.Background()
	alpha := testNode(t, interfaces.AlphaNode)
	beta := testNode(t, interfaces.BetaNode)

	uploader, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create uploader identity")

	// Seal to beta, deliver to alpha.
	sealed, err := uploader.SealTo(beta.PublicKey(), interfaces.Share{1, 0x01, 0x02})
	require.NoError(t, err, "should seal share")

	err = alpha.StoreShare(ctx, interfaces.ComputeID([]byte("payload")), sealed)
	require.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "mis-addressed share must be rejected")
	assert.Equal(t, 0, alpha.SharesHeld(), "rejected share must not be stored")
}

// TestCustodianNode_ReencryptUnknownBox tests the missing-share path
func TestCustodianNode_ReencryptUnknownBox(t *testing.T) {
	ctx := context.Background()
	node := testNode(t, interfaces.GammaNode)

	requester, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create requester identity")

	_, err = node.Reencrypt(ctx, interfaces.ComputeID([]byte("missing")), requester.PublicKey())
	require.ErrorIs(t, err, interfaces.ErrShareNotFound, "unknown box must report ErrShareNotFound")
}

// TestCustodianNode_ReplaceAndDrop tests share lifecycle
func TestCustodianNode_ReplaceAndDrop(t *testing.T) {
	ctx := context.Background()
	node := testNode(t, interfaces.BetaNode)

	uploader, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create uploader identity")
	requester, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create requester identity")

	boxID := interfaces.ComputeID([]byte("payload"))

	first, err := uploader.SealTo(node.PublicKey(), interfaces.Share{2, 0x01})
	require.NoError(t, err, "should seal first share")
	require.NoError(t, node.StoreShare(ctx, boxID, first), "should store first share")

	second, err := uploader.SealTo(node.PublicKey(), interfaces.Share{2, 0x99})
	require.NoError(t, err, "should seal replacement share")
	require.NoError(t, node.StoreShare(ctx, boxID, second), "redelivery should replace the share")
	assert.Equal(t, 1, node.SharesHeld(), "replacement must not duplicate")

	resealed, err := node.Reencrypt(ctx, boxID, requester.PublicKey())
	require.NoError(t, err, "re-encrypt should succeed")
	opened, err := requester.OpenFrom(resealed.Sender, resealed)
	require.NoError(t, err, "requester should open the share")
	assert.Equal(t, []byte{2, 0x99}, opened, "node should serve the replacement share")

	node.DropShare(boxID)
	assert.False(t, node.HasShare(boxID), "dropped share should be gone")
}

// TestNewCustodianNode_RejectsEphemeral tests identity validation
func TestNewCustodianNode_RejectsEphemeral(t *testing.T) {
	identity, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create ephemeral identity")

	_, err = NewCustodianNode(identity, testLogger())
	require.Error(t, err, "ephemeral identity must not back a custodian node")

	_, err = NewCustodianNode(nil, testLogger())
	require.Error(t, err, "nil identity must be rejected")
}
