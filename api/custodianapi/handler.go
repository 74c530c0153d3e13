// Package custodianapi exposes a single custodian node over HTTP: share
// delivery, share re-encryption toward a requester, and node metadata.
// The package also carries the admin-authenticated seed provisioning
// endpoint a node serves before its identity exists.
package custodianapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/key-custody-backend/api"
	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/ruteri/key-custody-backend/metrics"
	"github.com/ruteri/key-custody-backend/vaultservice"
)

// Handler serves one custodian node's share operations.
//
// Endpoints:
//   - GET /api/custodian/info: node id, public key, and held-share count
//   - POST /api/custodian/shares: deliver a sealed share for a box
//   - POST /api/custodian/reencrypt: re-seal a held share to a recipient
//
// Delivery of a share the node cannot open is rejected with 400 rather
// than stored, so a mis-sealed bundle surfaces at distribution time.
type Handler struct {
	node *vaultservice.CustodianNode
	log  *slog.Logger
}

// NewHandler creates a handler around a provisioned custodian node.
func NewHandler(node *vaultservice.CustodianNode, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{node: node, log: log}
}

// RegisterRoutes mounts the custodian endpoints on the provided router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/custodian/info", h.HandleInfo)
	r.Post("/api/custodian/shares", h.HandleStoreShare)
	r.Post("/api/custodian/reencrypt", h.HandleReencrypt)
}

// HandleInfo reports the node's identity and how many shares it holds.
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	resp := api.CustodianInfoResponse{
		NodeID:     h.node.NodeID(),
		PublicKey:  h.node.PublicKey(),
		SharesHeld: h.node.SharesHeld(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode info response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// HandleStoreShare accepts a sealed share and files it under its box id.
func (h *Handler) HandleStoreShare(w http.ResponseWriter, r *http.Request) {
	var req api.StoreShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.node.StoreShare(r.Context(), req.BoxID, req.Share); err != nil {
		if errors.Is(err, interfaces.ErrDecryptionFailure) {
			metrics.ShareDeliveriesTotal.WithLabelValues("rejected").Inc()
			http.Error(w, "Share not sealed to this node: "+err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error("Failed to store share", "err", err, "box", req.BoxID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	metrics.ShareDeliveriesTotal.WithLabelValues("stored").Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "stored",
		"box_id": req.BoxID.String(),
	})
}

// HandleReencrypt re-seals the held share for a box to the requested
// recipient key. The share plaintext never leaves the node unsealed.
func (h *Handler) HandleReencrypt(w http.ResponseWriter, r *http.Request) {
	var req api.ReencryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reencrypted, err := h.node.Reencrypt(r.Context(), req.BoxID, req.RecipientPubkey)
	if err != nil {
		if errors.Is(err, interfaces.ErrShareNotFound) {
			metrics.ReencryptionsTotal.WithLabelValues("missing").Inc()
			http.Error(w, "No share held for box", http.StatusNotFound)
			return
		}
		metrics.ReencryptionsTotal.WithLabelValues("failed").Inc()
		h.log.Error("Failed to re-encrypt share", "err", err, "box", req.BoxID)
		http.Error(w, "Share re-encryption failed", http.StatusInternalServerError)
		return
	}
	metrics.ReencryptionsTotal.WithLabelValues("ok").Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.ReencryptResponse{Share: reencrypted}); err != nil {
		h.log.Error("Failed to encode re-encrypt response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
