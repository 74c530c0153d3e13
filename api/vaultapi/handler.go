// Package vaultapi exposes the key service over HTTP: payload upload,
// box metadata, encrypted payload retrieval, and the challenge-response
// release protocol. Release requests are authenticated by a wallet
// signature over a single-use challenge, so the service never sees a
// requester's key.
package vaultapi

import (
	"encoding/hex"
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

// Handler serves the key service API.
//
// Endpoints:
//   - POST /api/vault/boxes: encrypt and register a payload
//   - GET /api/vault/boxes/{box_id}: box metadata
//   - GET /api/vault/boxes/{box_id}/payload: encrypted payload bytes
//   - POST /api/vault/boxes/{box_id}/challenge: issue a release challenge
//   - POST /api/vault/boxes/{box_id}/release: redeem a signed challenge
//   - POST /api/vault/boxes/{box_id}/redeliver: re-push bundle shares
//
// The release flow takes two round trips: the requester fetches a
// challenge, signs its digest with their wallet key, and posts the
// signature together with the X25519 key the material should be sealed
// to. Grant checks run against the recovered signer address.
type Handler struct {
	vault      *vaultservice.KeyVault
	challenges *vaultservice.ChallengeStore
	log        *slog.Logger
}

// NewHandler creates a key service handler.
func NewHandler(vault *vaultservice.KeyVault, challenges *vaultservice.ChallengeStore, log *slog.Logger) *Handler {
	if challenges == nil {
		challenges = vaultservice.NewChallengeStore(0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{vault: vault, challenges: challenges, log: log}
}

// RegisterRoutes mounts the key service endpoints on the provided
// router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/vault/boxes", h.HandleUpload)
	r.Get("/api/vault/boxes/{box_id}", h.HandleBoxInfo)
	r.Get("/api/vault/boxes/{box_id}/payload", h.HandleFetchPayload)
	r.Post("/api/vault/boxes/{box_id}/challenge", h.HandleChallenge)
	r.Post("/api/vault/boxes/{box_id}/release", h.HandleRelease)
	r.Post("/api/vault/boxes/{box_id}/redeliver", h.HandleRedeliver)
}

// HandleUpload encrypts the posted payload under a fresh file key and
// places it in custody for the named owner.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	var req api.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Payload) == 0 {
		http.Error(w, "Empty payload in request body", http.StatusBadRequest)
		return
	}
	if req.Owner == (interfaces.ContractAddress{}) {
		http.Error(w, "Missing owner address", http.StatusBadRequest)
		return
	}

	result, err := h.vault.UploadPayload(r.Context(), req.Payload, req.Owner, req.Sharded)
	if err != nil {
		h.log.Error("Failed to place payload in custody", "err", err, "owner", req.Owner)
		http.Error(w, "Failed to place payload in custody", http.StatusInternalServerError)
		return
	}

	mode := interfaces.ReleaseModeDirect
	if req.Sharded {
		mode = interfaces.ReleaseModeQuorum
	}
	metrics.UploadsTotal.WithLabelValues(mode.String()).Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.log.Error("Failed to encode upload response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// HandleBoxInfo returns the registry record for a box.
func (h *Handler) HandleBoxInfo(w http.ResponseWriter, r *http.Request) {
	boxID, err := interfaces.NewContentIDFromHex(r.PathValue("box_id"))
	if err != nil {
		http.Error(w, "Invalid box id format", http.StatusBadRequest)
		return
	}

	box, err := h.vault.BoxInfo(r.Context(), boxID)
	if err != nil {
		if errors.Is(err, interfaces.ErrBoxNotFound) {
			http.Error(w, "Box not found", http.StatusNotFound)
			return
		}
		h.log.Error("Failed to fetch box record", "err", err, "box", boxID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(box); err != nil {
		h.log.Error("Failed to encode box response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// HandleFetchPayload streams the encrypted payload. The response is
// ciphertext; decryption needs key material from a granted release.
func (h *Handler) HandleFetchPayload(w http.ResponseWriter, r *http.Request) {
	boxID, err := interfaces.NewContentIDFromHex(r.PathValue("box_id"))
	if err != nil {
		http.Error(w, "Invalid box id format", http.StatusBadRequest)
		return
	}

	data, err := h.vault.FetchPayload(r.Context(), boxID)
	if err != nil {
		if errors.Is(err, interfaces.ErrBoxNotFound) || errors.Is(err, interfaces.ErrContentNotFound) {
			http.Error(w, "Payload not found", http.StatusNotFound)
			return
		}
		h.log.Error("Failed to fetch payload", "err", err, "box", boxID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// HandleChallenge issues a single-use release challenge for a box. The
// requester proves wallet control by signing the challenge digest.
func (h *Handler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	boxID, err := interfaces.NewContentIDFromHex(r.PathValue("box_id"))
	if err != nil {
		http.Error(w, "Invalid box id format", http.StatusBadRequest)
		return
	}

	// Challenges are only issued for boxes on file.
	if _, err := h.vault.BoxInfo(r.Context(), boxID); err != nil {
		if errors.Is(err, interfaces.ErrBoxNotFound) {
			http.Error(w, "Box not found", http.StatusNotFound)
			return
		}
		h.log.Error("Failed to fetch box record", "err", err, "box", boxID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	challenge, err := h.challenges.Issue(boxID)
	if err != nil {
		h.log.Error("Failed to issue challenge", "err", err, "box", boxID)
		http.Error(w, "Failed to issue challenge", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.ChallengeResponse{
		ChallengeID: challenge.ID,
		BoxID:       challenge.BoxID,
		Nonce:       hex.EncodeToString(challenge.Nonce[:]),
	})
}

// HandleRelease redeems a signed challenge and runs the release
// protocol. The requester address is recovered from the signature and
// checked against the box's grants; released material is sealed to the
// posted recipient key.
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	boxID, err := interfaces.NewContentIDFromHex(r.PathValue("box_id"))
	if err != nil {
		http.Error(w, "Invalid box id format", http.StatusBadRequest)
		return
	}

	var req api.ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RecipientPubkey == (interfaces.NodePublicKey{}) {
		http.Error(w, "Missing recipient public key", http.StatusBadRequest)
		return
	}

	requester, err := h.challenges.Redeem(req.ChallengeID, boxID, req.Signature)
	if err != nil {
		metrics.ReleaseFailuresTotal.WithLabelValues("unauthorized").Inc()
		if errors.Is(err, vaultservice.ErrUnknownChallenge) {
			http.Error(w, "Unknown or expired challenge", http.StatusUnauthorized)
			return
		}
		h.log.Warn("Rejected release signature", "err", err, "box", boxID)
		http.Error(w, "Invalid challenge signature", http.StatusUnauthorized)
		return
	}

	release, err := h.vault.RequestRelease(r.Context(), boxID, requester, req.RecipientPubkey)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrBoxNotFound):
			metrics.ReleaseFailuresTotal.WithLabelValues("not_found").Inc()
			http.Error(w, "Box not found", http.StatusNotFound)
		case errors.Is(err, interfaces.ErrAccessDenied):
			metrics.ReleaseFailuresTotal.WithLabelValues("denied").Inc()
			http.Error(w, "Requester holds no grant for box", http.StatusForbidden)
		case errors.Is(err, interfaces.ErrNoQuorum):
			metrics.ReleaseFailuresTotal.WithLabelValues("quorum_unavailable").Inc()
			h.log.Error("Release quorum unavailable", "err", err, "box", boxID)
			http.Error(w, "Release quorum unavailable", http.StatusServiceUnavailable)
		default:
			metrics.ReleaseFailuresTotal.WithLabelValues("error").Inc()
			h.log.Error("Failed to release key material", "err", err, "box", boxID)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	metrics.ReleasesTotal.WithLabelValues(release.Record.Mode.String()).Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(release); err != nil {
		h.log.Error("Failed to encode release response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// HandleRedeliver re-pushes a sharded box's sealed shares from the
// stored bundle to the registered custodians. Shares stay sealed to
// their custodians, so redelivery discloses nothing.
func (h *Handler) HandleRedeliver(w http.ResponseWriter, r *http.Request) {
	boxID, err := interfaces.NewContentIDFromHex(r.PathValue("box_id"))
	if err != nil {
		http.Error(w, "Invalid box id format", http.StatusBadRequest)
		return
	}

	if err := h.vault.RedeliverShares(r.Context(), boxID); err != nil {
		if errors.Is(err, interfaces.ErrBoxNotFound) {
			http.Error(w, "Box not found", http.StatusNotFound)
			return
		}
		h.log.Error("Failed to redeliver shares", "err", err, "box", boxID)
		http.Error(w, "Failed to redeliver shares: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "redelivered",
		"box_id": boxID.String(),
	})
}
