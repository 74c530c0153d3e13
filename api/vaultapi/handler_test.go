package vaultapi

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/key-custody-backend/api"
	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/governance"
	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/ruteri/key-custody-backend/registry"
	"github.com/ruteri/key-custody-backend/storage"
	"github.com/ruteri/key-custody-backend/vaultservice"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type apiFixture struct {
	mux      chi.Router
	server   *httptest.Server
	client   *Client
	nodes    map[interfaces.NodeID]*vaultservice.CustodianNode
	registry *registry.MockBoxRegistryClient
	wallet   *ecdsa.PrivateKey
	owner    interfaces.ContractAddress
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := testLogger()

	identities, err := custody.NewIdentitySet(nil, custody.DeriveSHA256)
	require.NoError(t, err, "should build identity set")

	custodianSet, err := governance.NewStaticCustodianSet(2, 3)
	require.NoError(t, err, "should build custodian set")

	nodes := make(map[interfaces.NodeID]*vaultservice.CustodianNode)
	clients := make(map[interfaces.NodeID]interfaces.ShareCustodian)
	for _, id := range interfaces.AllNodeIDs() {
		identity, err := identities.Identity(id)
		require.NoError(t, err, "identity for %s", id)

		node, err := vaultservice.NewCustodianNode(identity, log)
		require.NoError(t, err, "node for %s", id)

		_, err = custodianSet.RegisterCustodian(id, node.PublicKey(), "https://"+id.String()+".example.com:8082")
		require.NoError(t, err, "should register %s", id)

		nodes[id] = node
		clients[id] = node
	}

	mockRegistry := registry.NewMockBoxRegistryClient()
	mockRegistry.SetTransactOpts()

	factory := storage.NewStorageBackendFactory(log, registry.NewMockBoxRegistryFactory(mockRegistry))
	location, err := interfaces.NewStorageBackendLocation("memory://vault-api-test")
	require.NoError(t, err, "should parse storage location")

	serviceIdentity, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create service identity")

	vault, err := vaultservice.NewKeyVault(&vaultservice.KeyVaultConfig{
		Log:              log,
		Custodians:       custodianSet,
		Nodes:            clients,
		Registry:         mockRegistry,
		StorageFactory:   factory,
		StorageLocations: []interfaces.StorageBackendLocation{location},
		Identity:         serviceIdentity,
	})
	require.NoError(t, err, "should create key vault")

	mux := chi.NewRouter()
	NewHandler(vault, vaultservice.NewChallengeStore(0), log).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	wallet, err := crypto.GenerateKey()
	require.NoError(t, err, "should generate owner wallet")

	return &apiFixture{
		mux:      mux,
		server:   server,
		client:   NewClient(server.URL),
		nodes:    nodes,
		registry: mockRegistry,
		wallet:   wallet,
		owner:    interfaces.ContractAddress(crypto.PubkeyToAddress(wallet.PublicKey)),
	}
}

// TestVaultAPI_ShardedReleaseFlow tests upload, signed release and
// requester-side reconstruction through the HTTP surface
func TestVaultAPI_ShardedReleaseFlow(t *testing.T) {
	ctx := context.Background()
	fixture := newAPIFixture(t)

	payload := []byte(`{"api_key":"credential-behind-quorum"}`)
	result, err := fixture.client.Upload(ctx, payload, fixture.owner, true)
	require.NoError(t, err, "upload should succeed")
	assert.True(t, result.Sharded, "result should record sharding")

	for id, node := range fixture.nodes {
		assert.True(t, node.HasShare(result.BoxID), "custodian %s should hold a share", id)
	}

	box, err := fixture.client.BoxInfo(ctx, result.BoxID)
	require.NoError(t, err, "box lookup should succeed")
	assert.Equal(t, fixture.owner, box.Owner, "box should record the owner")
	assert.Equal(t, result.BundleID, box.BundleID, "box should reference the bundle")

	requester, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create requester identity")

	release, err := fixture.client.RequestRelease(ctx, result.BoxID, fixture.wallet, requester.PublicKey())
	require.NoError(t, err, "owner release should succeed")
	assert.Equal(t, interfaces.ReleaseModeQuorum, release.Record.Mode, "sharded box releases in quorum mode")
	assert.Len(t, release.Shares, 2, "exactly threshold shares are disclosed")

	session, err := vaultservice.NewReconstructionSession(requester, release.Record.Threshold)
	require.NoError(t, err, "should create reconstruction session")
	require.NoError(t, session.AddRelease(release), "session should accept the release")
	require.True(t, session.Complete(), "threshold shares should reconstruct the key")

	ciphertext, err := fixture.client.FetchPayload(ctx, result.BoxID)
	require.NoError(t, err, "payload fetch should succeed")
	assert.NotEqual(t, payload, ciphertext, "stored payload must be ciphertext")

	plaintext, err := session.Decrypt(ciphertext)
	require.NoError(t, err, "decryption should succeed")
	assert.Equal(t, payload, plaintext, "payload should survive the round trip")
}

// TestVaultAPI_DirectReleaseFlow tests the unsharded custody path
func TestVaultAPI_DirectReleaseFlow(t *testing.T) {
	ctx := context.Background()
	fixture := newAPIFixture(t)

	payload := []byte("directly held payload")
	result, err := fixture.client.Upload(ctx, payload, fixture.owner, false)
	require.NoError(t, err, "upload should succeed")
	assert.False(t, result.Sharded, "result should record direct custody")

	for id, node := range fixture.nodes {
		assert.False(t, node.HasShare(result.BoxID), "custodian %s should hold no share", id)
	}

	requester, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create requester identity")

	release, err := fixture.client.RequestRelease(ctx, result.BoxID, fixture.wallet, requester.PublicKey())
	require.NoError(t, err, "owner release should succeed")
	assert.Equal(t, interfaces.ReleaseModeDirect, release.Record.Mode, "direct box releases in direct mode")
	require.NotNil(t, release.Key, "direct release carries the sealed key")
	assert.Empty(t, release.Shares, "direct release carries no shares")

	session, err := vaultservice.NewReconstructionSession(requester, 2)
	require.NoError(t, err, "should create reconstruction session")
	require.NoError(t, session.AddRelease(release), "session should accept the release")
	require.True(t, session.Complete(), "direct key completes the session")

	ciphertext, err := fixture.client.FetchPayload(ctx, result.BoxID)
	require.NoError(t, err, "payload fetch should succeed")

	plaintext, err := session.Decrypt(ciphertext)
	require.NoError(t, err, "decryption should succeed")
	assert.Equal(t, payload, plaintext, "payload should survive the round trip")
}

// TestVaultAPI_GrantEnforcement tests that release follows registry
// grants
func TestVaultAPI_GrantEnforcement(t *testing.T) {
	ctx := context.Background()
	fixture := newAPIFixture(t)

	result, err := fixture.client.Upload(ctx, []byte("guarded payload"), fixture.owner, true)
	require.NoError(t, err, "upload should succeed")

	stranger, err := crypto.GenerateKey()
	require.NoError(t, err, "should generate stranger wallet")
	strangerAddr := interfaces.ContractAddress(crypto.PubkeyToAddress(stranger.PublicKey))

	requester, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create requester identity")

	_, err = fixture.client.RequestRelease(ctx, result.BoxID, stranger, requester.PublicKey())
	require.ErrorIs(t, err, interfaces.ErrAccessDenied, "stranger must be denied")

	_, err = fixture.registry.GrantAccess(result.BoxID, strangerAddr)
	require.NoError(t, err, "should grant access")

	release, err := fixture.client.RequestRelease(ctx, result.BoxID, stranger, requester.PublicKey())
	require.NoError(t, err, "granted stranger should succeed")
	assert.Len(t, release.Shares, 2, "granted release discloses threshold shares")
}

// TestVaultAPI_ReleaseRequiresChallenge tests redeeming without a
// matching challenge
func TestVaultAPI_ReleaseRequiresChallenge(t *testing.T) {
	ctx := context.Background()
	fixture := newAPIFixture(t)

	result, err := fixture.client.Upload(ctx, []byte("payload"), fixture.owner, true)
	require.NoError(t, err, "upload should succeed")

	requester, err := custody.NewEphemeralIdentity()
	require.NoError(t, err, "should create requester identity")

	releaseJSON, err := json.Marshal(api.ReleaseRequest{
		ChallengeID:     uuid.New(),
		Signature:       []byte("no challenge was issued"),
		RecipientPubkey: requester.PublicKey(),
	})
	require.NoError(t, err, "should marshal release request")

	req := httptest.NewRequest("POST", "/api/vault/boxes/"+result.BoxID.String()+"/release", bytes.NewBuffer(releaseJSON))
	w := httptest.NewRecorder()
	fixture.mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "unissued challenge must be rejected")
}

// TestVaultAPI_UnknownBox tests lookups and challenges for boxes not on
// file
func TestVaultAPI_UnknownBox(t *testing.T) {
	ctx := context.Background()
	fixture := newAPIFixture(t)
	missing := interfaces.ComputeID([]byte("never uploaded"))

	_, err := fixture.client.BoxInfo(ctx, missing)
	require.ErrorIs(t, err, interfaces.ErrBoxNotFound, "unknown box lookup must fail")

	req := httptest.NewRequest("POST", "/api/vault/boxes/"+missing.String()+"/challenge", nil)
	w := httptest.NewRecorder()
	fixture.mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "no challenge for unknown boxes")

	req = httptest.NewRequest("GET", "/api/vault/boxes/not-hex", nil)
	w = httptest.NewRecorder()
	fixture.mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "malformed box id must 400")
}

// TestVaultAPI_Redeliver tests share redelivery for custodians that
// lost state
func TestVaultAPI_Redeliver(t *testing.T) {
	ctx := context.Background()
	fixture := newAPIFixture(t)

	result, err := fixture.client.Upload(ctx, []byte("payload"), fixture.owner, true)
	require.NoError(t, err, "upload should succeed")

	for _, node := range fixture.nodes {
		node.DropShare(result.BoxID)
	}

	require.NoError(t, fixture.client.Redeliver(ctx, result.BoxID), "redelivery should succeed")
	for id, node := range fixture.nodes {
		assert.True(t, node.HasShare(result.BoxID), "custodian %s should hold a share again", id)
	}
}
