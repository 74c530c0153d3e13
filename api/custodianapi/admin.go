package custodianapi

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/key-custody-backend/api"
	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/interfaces"
)

// ProvisionState tracks whether a node has received its identity seed.
type ProvisionState int

const (
	// StateAwaitingSeed is the state before any seed has been accepted.
	StateAwaitingSeed ProvisionState = iota

	// StateProvisioned indicates the node identity is derived and live.
	StateProvisioned
)

// stateToString converts a ProvisionState to its wire representation.
func stateToString(state ProvisionState) string {
	switch state {
	case StateAwaitingSeed:
		return "awaiting_seed"
	case StateProvisioned:
		return "provisioned"
	default:
		return "unknown"
	}
}

// SeedSink persists an accepted seed before the identity goes live, so a
// restart can re-derive the same keypair. Implementations are expected
// to seal the seed at rest.
type SeedSink func(seed []byte, derivation custody.SeedDerivation) error

// AdminHandler serves the provisioning flow a custodian node runs when
// it boots without an identity seed.
//
// The handler:
//   - Verifies each provisioning request against a whitelist of admin
//     ECDSA public keys
//   - Accepts exactly one seed, derives the node keypair from it, and
//     rejects later attempts
//   - Optionally hands the seed to a SeedSink for sealed persistence
//   - Signals completion so the node can start its share endpoints
type AdminHandler struct {
	mu           sync.RWMutex
	log          *slog.Logger
	nodeID       interfaces.NodeID
	adminPubKeys map[string][]byte // admin ID to public key PEM
	seedSink     SeedSink
	state        ProvisionState
	identity     *custody.Identity
	completeChan chan struct{}
}

// NewAdminHandler creates a provisioning handler for one custodian node.
// seedSink may be nil when the operator does not persist seeds.
func NewAdminHandler(log *slog.Logger, nodeID interfaces.NodeID, adminPubKeys map[string][]byte, seedSink SeedSink) (*AdminHandler, error) {
	if err := nodeID.Validate(); err != nil {
		return nil, err
	}
	if len(adminPubKeys) == 0 {
		return nil, errors.New("no admin keys configured")
	}

	return &AdminHandler{
		log:          log,
		nodeID:       nodeID,
		adminPubKeys: adminPubKeys,
		seedSink:     seedSink,
		state:        StateAwaitingSeed,
		completeChan: make(chan struct{}),
	}, nil
}

// WaitForIdentity blocks until a seed has been provisioned or the
// context is cancelled.
func (h *AdminHandler) WaitForIdentity(ctx context.Context) (*custody.Identity, error) {
	select {
	case <-h.completeChan:
		return h.Identity(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Identity returns the derived node identity, nil until provisioned.
func (h *AdminHandler) Identity() *custody.Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.identity
}

// RegisterRoutes configures the HTTP router for the provisioning API.
//
// The router provides endpoints:
//   - /admin/status: check provisioning state
//   - /admin/seed: submit the identity seed (admin signature required)
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/admin/status", h.handleStatus)
	r.Post("/admin/seed", h.handleProvisionSeed)
}

// handleStatus returns the provisioning state and, once provisioned,
// the node's public key.
//
// Endpoint: GET /admin/status
func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	state := h.state
	identity := h.identity
	h.mu.RUnlock()

	resp := map[string]interface{}{
		"state":   stateToString(state),
		"node_id": h.nodeID.String(),
	}
	if identity != nil {
		resp["public_key"] = identity.PublicKey().String()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleProvisionSeed accepts the node's identity seed from an
// authenticated admin and derives the node keypair from it.
//
// Endpoint: POST /admin/seed
func (h *AdminHandler) handleProvisionSeed(w http.ResponseWriter, r *http.Request) {
	adminID, authorized := h.verifyAdmin(r)
	if !authorized {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.ProvisionSeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Seed) == 0 {
		http.Error(w, "Empty seed in request body", http.StatusBadRequest)
		return
	}

	derivation, err := custody.ParseSeedDerivation(req.Derivation)
	if err != nil {
		http.Error(w, "Unknown seed derivation: "+req.Derivation, http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateAwaitingSeed {
		http.Error(w, "Node already provisioned", http.StatusBadRequest)
		return
	}

	identity, err := custody.IdentityFromSeed(h.nodeID, req.Seed, derivation)
	if err != nil {
		h.log.Error("Failed to derive node identity", "err", err, "adminID", adminID)
		http.Error(w, "Failed to derive node identity: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if h.seedSink != nil {
		if err := h.seedSink(req.Seed, derivation); err != nil {
			h.log.Error("Failed to persist seed", "err", err, "adminID", adminID)
			http.Error(w, "Failed to persist seed", http.StatusInternalServerError)
			return
		}
	}

	h.identity = identity
	h.state = StateProvisioned
	close(h.completeChan)

	h.log.Info("Node identity provisioned",
		"node", h.nodeID,
		"adminID", adminID,
		"pubkey", identity.PublicKey().String(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.ProvisionSeedResponse{
		NodeID:    h.nodeID,
		PublicKey: identity.PublicKey(),
	})
}

// verifyAdmin checks that the request carries a valid signature from a
// whitelisted admin.
//
// The signature covers sha256(request path + request body) and arrives
// base64-encoded in the X-Admin-Signature header alongside the admin's
// ID in X-Admin-ID.
func (h *AdminHandler) verifyAdmin(r *http.Request) (string, bool) {
	adminID := r.Header.Get("X-Admin-ID")
	adminSignatureStr := r.Header.Get("X-Admin-Signature")

	if adminID == "" || adminSignatureStr == "" {
		return "", false
	}

	h.mu.RLock()
	pubKeyPEM, exists := h.adminPubKeys[adminID]
	h.mu.RUnlock()

	if !exists {
		h.log.Warn("Authentication failed: unknown admin ID", "adminID", adminID)
		return adminID, false
	}

	adminSignature, err := base64.StdEncoding.DecodeString(adminSignatureStr)
	if err != nil {
		h.log.Warn("Authentication failed: invalid signature encoding", "adminID", adminID, "err", err)
		return adminID, false
	}

	block, _ := pem.Decode(pubKeyPEM)
	if block == nil {
		h.log.Error("Failed to decode admin public key PEM", "adminID", adminID)
		return adminID, false
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		h.log.Error("Failed to parse admin public key", "adminID", adminID, "err", err)
		return adminID, false
	}

	ecdsaPubKey, ok := pubKey.(*ecdsa.PublicKey)
	if !ok {
		h.log.Error("Admin public key is not an ECDSA key", "adminID", adminID)
		return adminID, false
	}

	var bodyBytes []byte
	if r.Body != nil {
		bodyBytes, err = io.ReadAll(r.Body)
		if err != nil {
			h.log.Error("Failed to read request body", "err", err)
			return adminID, false
		}

		// Restore the body for the handler behind this check.
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	message := r.URL.Path
	if len(bodyBytes) > 0 {
		message += string(bodyBytes)
	}
	hash := sha256.Sum256([]byte(message))

	if !ecdsa.VerifyASN1(ecdsaPubKey, hash[:], adminSignature) {
		h.log.Warn("Authentication failed: invalid signature", "adminID", adminID)
		return adminID, false
	}

	return adminID, true
}

// AdminsConfig is the on-disk format for the admin whitelist.
type AdminsConfig struct {
	Admins []AdminMetadata `json:"admins"`
}

// AdminMetadata describes one whitelisted admin.
type AdminMetadata struct {
	ID     string `json:"id"`
	PubKey string `json:"pubkey"`
}

// LoadAdminKeys loads admin public keys from JSON.
//
// The document carries an "admins" array whose entries hold an "id" and
// a PEM-encoded ECDSA public key under "pubkey". Every key is validated
// before the map is returned.
func LoadAdminKeys(r io.Reader) (map[string][]byte, error) {
	var data AdminsConfig
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode admin keys JSON: %w", err)
	}

	result := make(map[string][]byte)
	for _, admin := range data.Admins {
		block, _ := pem.Decode([]byte(admin.PubKey))
		if block == nil {
			return nil, fmt.Errorf("invalid PEM data for admin %s", admin.ID)
		}

		if _, err := x509.ParsePKIXPublicKey(block.Bytes); err != nil {
			return nil, fmt.Errorf("invalid public key for admin %s: %w", admin.ID, err)
		}

		result[admin.ID] = []byte(admin.PubKey)
	}

	return result, nil
}

// GenerateAdminKeyPair generates a fresh ECDSA P-256 admin keypair.
//
// Returns the private and public keys in PEM format. The public key is
// what gets registered in the node's admin whitelist.
func GenerateAdminKeyPair() (string, string, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate ECDSA key: %w", err)
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: privateKeyBytes,
	})

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	})

	return string(privateKeyPEM), string(publicKeyPEM), nil
}

// ParsePrivateKey parses a PEM-encoded ECDSA private key for signing
// admin requests.
func ParsePrivateKey(privateKeyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode PEM block containing private key")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ECDSA private key: %w", err)
	}

	return privateKey, nil
}

// ComputeFingerprint returns the hex SHA-256 fingerprint of a
// PEM-encoded public key.
func ComputeFingerprint(publicKeyPEM []byte) string {
	h := sha256.Sum256(publicKeyPEM)
	return hex.EncodeToString(h[:])
}
