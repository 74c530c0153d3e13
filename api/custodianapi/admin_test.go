package custodianapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/key-custody-backend/api"
	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/interfaces"
)

func TestAdminHandler_ProvisionSeed(t *testing.T) {
	privPEM, pubPEM, err := GenerateAdminKeyPair()
	require.NoError(t, err, "should generate admin keypair")

	privateKey, err := ParsePrivateKey([]byte(privPEM))
	require.NoError(t, err, "should parse admin private key")

	var sunkSeed []byte
	var sunkDerivation custody.SeedDerivation
	sink := func(seed []byte, derivation custody.SeedDerivation) error {
		sunkSeed = append([]byte(nil), seed...)
		sunkDerivation = derivation
		return nil
	}

	handler, err := NewAdminHandler(testLogger(), interfaces.GammaNode, map[string][]byte{"admin1": []byte(pubPEM)}, sink)
	require.NoError(t, err, "should create admin handler")

	mux := chi.NewRouter()
	handler.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	client := NewAdminClient(server.URL, "admin1", privateKey)

	status, err := client.Status(ctx)
	require.NoError(t, err, "status should succeed")
	assert.Equal(t, "awaiting_seed", status["state"], "node should start unprovisioned")

	seed := []byte("gamma-node-identity-seed")
	resp, err := client.ProvisionSeed(ctx, seed, custody.DeriveHKDF)
	require.NoError(t, err, "provisioning should succeed")
	assert.Equal(t, interfaces.GammaNode, resp.NodeID, "response should name the node")

	expected, err := custody.IdentityFromSeed(interfaces.GammaNode, seed, custody.DeriveHKDF)
	require.NoError(t, err, "should derive reference identity")
	assert.Equal(t, expected.PublicKey(), resp.PublicKey, "derived key must be deterministic")

	assert.Equal(t, seed, sunkSeed, "sink should receive the seed")
	assert.Equal(t, custody.DeriveHKDF, sunkDerivation, "sink should receive the derivation")

	identity, err := handler.WaitForIdentity(ctx)
	require.NoError(t, err, "wait should return immediately once provisioned")
	assert.Equal(t, expected.PublicKey(), identity.PublicKey(), "handler should hold the derived identity")

	status, err = client.Status(ctx)
	require.NoError(t, err, "status should succeed")
	assert.Equal(t, "provisioned", status["state"], "state should advance")
	assert.Equal(t, expected.PublicKey().String(), status["public_key"], "status should publish the node key")

	// A second seed is refused.
	_, err = client.ProvisionSeed(ctx, []byte("another seed"), custody.DeriveHKDF)
	require.Error(t, err, "re-provisioning must fail")
	assert.Contains(t, err.Error(), "already provisioned", "error should say the node is provisioned")
}

func TestAdminHandler_RejectsUnauthorized(t *testing.T) {
	_, pubPEM, err := GenerateAdminKeyPair()
	require.NoError(t, err, "should generate admin keypair")

	handler, err := NewAdminHandler(testLogger(), interfaces.AlphaNode, map[string][]byte{"admin1": []byte(pubPEM)}, nil)
	require.NoError(t, err, "should create admin handler")

	mux := chi.NewRouter()
	handler.RegisterRoutes(mux)

	seedJSON, err := json.Marshal(api.ProvisionSeedRequest{Seed: []byte("seed"), Derivation: "hkdf"})
	require.NoError(t, err, "should marshal seed request")

	// No signature headers at all.
	req := httptest.NewRequest("POST", "/admin/seed", bytes.NewBuffer(seedJSON))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "unsigned request must be rejected")

	// Signed by a key that is not whitelisted for admin1.
	roguePEM, _, err := GenerateAdminKeyPair()
	require.NoError(t, err, "should generate rogue keypair")
	rogueKey, err := ParsePrivateKey([]byte(roguePEM))
	require.NoError(t, err, "should parse rogue key")

	signed, err := NewSignedAdminRequest("POST", "http://node/admin/seed", seedJSON, "admin1", rogueKey)
	require.NoError(t, err, "should build signed request")
	req = httptest.NewRequest("POST", "/admin/seed", bytes.NewBuffer(seedJSON))
	req.Header = signed.Header
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "wrong key must be rejected")

	// Unknown admin id.
	signed, err = NewSignedAdminRequest("POST", "http://node/admin/seed", seedJSON, "impostor", rogueKey)
	require.NoError(t, err, "should build signed request")
	req = httptest.NewRequest("POST", "/admin/seed", bytes.NewBuffer(seedJSON))
	req.Header = signed.Header
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "unknown admin must be rejected")

	assert.Nil(t, handler.Identity(), "no identity may exist after rejected requests")
}

func TestAdminHandler_SignatureCoversBody(t *testing.T) {
	privPEM, pubPEM, err := GenerateAdminKeyPair()
	require.NoError(t, err, "should generate admin keypair")
	privateKey, err := ParsePrivateKey([]byte(privPEM))
	require.NoError(t, err, "should parse admin private key")

	handler, err := NewAdminHandler(testLogger(), interfaces.AlphaNode, map[string][]byte{"admin1": []byte(pubPEM)}, nil)
	require.NoError(t, err, "should create admin handler")

	mux := chi.NewRouter()
	handler.RegisterRoutes(mux)

	signedJSON, err := json.Marshal(api.ProvisionSeedRequest{Seed: []byte("signed seed"), Derivation: "hkdf"})
	require.NoError(t, err, "should marshal seed request")
	swappedJSON, err := json.Marshal(api.ProvisionSeedRequest{Seed: []byte("swapped seed"), Derivation: "hkdf"})
	require.NoError(t, err, "should marshal swapped request")

	signed, err := NewSignedAdminRequest("POST", "http://node/admin/seed", signedJSON, "admin1", privateKey)
	require.NoError(t, err, "should build signed request")

	// Replay the headers over a different body.
	req := httptest.NewRequest("POST", "/admin/seed", bytes.NewBuffer(swappedJSON))
	req.Header = signed.Header
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "tampered body must invalidate the signature")
	assert.Nil(t, handler.Identity(), "tampered request must not provision")
}

func TestAdminHandler_WaitForIdentityHonorsContext(t *testing.T) {
	_, pubPEM, err := GenerateAdminKeyPair()
	require.NoError(t, err, "should generate admin keypair")

	handler, err := NewAdminHandler(testLogger(), interfaces.BetaNode, map[string][]byte{"admin1": []byte(pubPEM)}, nil)
	require.NoError(t, err, "should create admin handler")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = handler.WaitForIdentity(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "wait must respect the context")
}

func TestLoadAdminKeys(t *testing.T) {
	_, pubPEM, err := GenerateAdminKeyPair()
	require.NoError(t, err, "should generate admin keypair")

	doc, err := json.Marshal(AdminsConfig{Admins: []AdminMetadata{{ID: "ops-1", PubKey: pubPEM}}})
	require.NoError(t, err, "should marshal admins config")

	keys, err := LoadAdminKeys(bytes.NewReader(doc))
	require.NoError(t, err, "should load admin keys")
	assert.Equal(t, []byte(pubPEM), keys["ops-1"], "loaded key should match the document")

	fingerprint := ComputeFingerprint(keys["ops-1"])
	assert.Len(t, fingerprint, 64, "fingerprint should be a hex sha256")

	_, err = LoadAdminKeys(strings.NewReader(`{"admins":[{"id":"bad","pubkey":"not pem"}]}`))
	require.Error(t, err, "invalid PEM must be rejected")
}
