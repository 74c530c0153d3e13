package custodianapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/key-custody-backend/api"
	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/ruteri/key-custody-backend/vaultservice"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIdentity(t *testing.T, id interfaces.NodeID) *custody.Identity {
	t.Helper()
	identity, err := custody.IdentityFromSeed(id, []byte("custodian-api-test-seed-"+id.String()), custody.DeriveHKDF)
	require.NoError(t, err, "should derive node identity")
	return identity
}

func testRouter(t *testing.T) (chi.Router, *vaultservice.CustodianNode) {
	t.Helper()
	node, err := vaultservice.NewCustodianNode(testIdentity(t, interfaces.AlphaNode), testLogger())
	require.NoError(t, err, "should create custodian node")

	mux := chi.NewRouter()
	NewHandler(node, testLogger()).RegisterRoutes(mux)
	return mux, node
}

// sealTestShare seals plaintext to the given key from a fresh sender.
func sealTestShare(t *testing.T, recipient interfaces.NodePublicKey, plaintext []byte) interfaces.EncryptedShare {
	t.Helper()
	sender, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create sender identity")
	sealed, err := sender.SealTo(recipient, plaintext)
	require.NoError(t, err, "should seal share")
	return sealed
}

func TestCustodianHandler_ShareFlow(t *testing.T) {
	mux, node := testRouter(t)
	boxID := interfaces.ComputeID([]byte("payload"))
	plaintext := []byte{1, 0xaa, 0xbb, 0xcc}

	// Deliver a share sealed to the node.
	storeJSON, err := json.Marshal(api.StoreShareRequest{
		BoxID: boxID,
		Share: sealTestShare(t, node.PublicKey(), plaintext),
	})
	require.NoError(t, err, "should marshal store request")

	req := httptest.NewRequest("POST", "/api/custodian/shares", bytes.NewBuffer(storeJSON))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "share delivery should succeed")
	assert.True(t, node.HasShare(boxID), "node should hold the share")

	// Info reflects the stored share.
	req = httptest.NewRequest("GET", "/api/custodian/info", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "info should succeed")

	var info api.CustodianInfoResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info), "should decode info response")
	assert.Equal(t, interfaces.AlphaNode, info.NodeID, "info should carry the node id")
	assert.Equal(t, node.PublicKey(), info.PublicKey, "info should carry the public key")
	assert.Equal(t, 1, info.SharesHeld, "info should count held shares")

	// Re-encrypt toward a requester.
	requester, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create requester identity")

	reencJSON, err := json.Marshal(api.ReencryptRequest{
		BoxID:           boxID,
		RecipientPubkey: requester.PublicKey(),
	})
	require.NoError(t, err, "should marshal re-encrypt request")

	req = httptest.NewRequest("POST", "/api/custodian/reencrypt", bytes.NewBuffer(reencJSON))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "re-encrypt should succeed")

	var reencrypted api.ReencryptResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&reencrypted), "should decode re-encrypt response")
	assert.Equal(t, node.PublicKey(), reencrypted.Share.Sender, "re-sealed share should name the node as sender")

	opened, err := requester.OpenFrom(reencrypted.Share.Sender, reencrypted.Share)
	require.NoError(t, err, "requester should open the re-sealed share")
	assert.Equal(t, plaintext, opened, "share plaintext should survive the round trip")
}

func TestCustodianHandler_RejectsForeignShare(t *testing.T) {
	mux, node := testRouter(t)
	beta := testIdentity(t, interfaces.BetaNode)

	storeJSON, err := json.Marshal(api.StoreShareRequest{
		BoxID: interfaces.ComputeID([]byte("payload")),
		Share: sealTestShare(t, beta.PublicKey(), []byte{1, 2, 3}),
	})
	require.NoError(t, err, "should marshal store request")

	req := httptest.NewRequest("POST", "/api/custodian/shares", bytes.NewBuffer(storeJSON))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "share sealed to another node must be rejected")
	assert.Equal(t, 0, node.SharesHeld(), "rejected share must not be stored")
}

func TestCustodianHandler_ReencryptUnknownBox(t *testing.T) {
	mux, _ := testRouter(t)

	requester, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create requester identity")

	reencJSON, err := json.Marshal(api.ReencryptRequest{
		BoxID:           interfaces.ComputeID([]byte("never stored")),
		RecipientPubkey: requester.PublicKey(),
	})
	require.NoError(t, err, "should marshal re-encrypt request")

	req := httptest.NewRequest("POST", "/api/custodian/reencrypt", bytes.NewBuffer(reencJSON))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown box should 404")
}

func TestCustodianHandler_BadRequestBody(t *testing.T) {
	mux, _ := testRouter(t)

	for _, path := range []string{"/api/custodian/shares", "/api/custodian/reencrypt"} {
		req := httptest.NewRequest("POST", path, bytes.NewBufferString("not json"))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "malformed body should 400 on %s", path)
	}
}

func TestCustodianClient_AgainstServer(t *testing.T) {
	mux, node := testRouter(t)
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	client, err := NewClient(ctx, server.URL)
	require.NoError(t, err, "client should resolve the node")
	assert.Equal(t, interfaces.AlphaNode, client.NodeID(), "client should cache the node id")
	assert.Equal(t, node.PublicKey(), client.PublicKey(), "client should cache the public key")

	boxID := interfaces.ComputeID([]byte("payload"))
	plaintext := []byte{3, 0x11, 0x22}

	err = client.StoreShare(ctx, boxID, sealTestShare(t, client.PublicKey(), plaintext))
	require.NoError(t, err, "share delivery through the client should succeed")

	requester, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create requester identity")

	reencrypted, err := client.Reencrypt(ctx, boxID, requester.PublicKey())
	require.NoError(t, err, "re-encrypt through the client should succeed")

	opened, err := requester.OpenFrom(reencrypted.Sender, reencrypted)
	require.NoError(t, err, "requester should open the re-sealed share")
	assert.Equal(t, plaintext, opened, "share plaintext should survive the round trip")

	// Typed errors map back across the wire.
	beta := testIdentity(t, interfaces.BetaNode)
	err = client.StoreShare(ctx, boxID, sealTestShare(t, beta.PublicKey(), plaintext))
	require.ErrorIs(t, err, interfaces.ErrDecryptionFailure, "foreign share rejection should map to ErrDecryptionFailure")

	_, err = client.Reencrypt(ctx, interfaces.ComputeID([]byte("missing")), requester.PublicKey())
	require.ErrorIs(t, err, interfaces.ErrShareNotFound, "unknown box should map to ErrShareNotFound")
}
