package api

import (
	"github.com/google/uuid"
	"github.com/ruteri/key-custody-backend/interfaces"
)

// UploadRequest asks the key service to place a payload in custody.
type UploadRequest struct {
	// Payload is the plaintext to protect, base64 on the wire.
	Payload []byte `json:"payload"`

	// Owner is the wallet address the box is registered to.
	Owner interfaces.ContractAddress `json:"owner"`

	// Sharded selects quorum custody; false keeps the whole key sealed
	// to the service.
	Sharded bool `json:"sharded"`
}

// ChallengeResponse carries a release challenge for the requester to
// sign. The requester recomputes the signing digest from the box id and
// nonce rather than trusting a server-provided digest.
type ChallengeResponse struct {
	// ChallengeID identifies the challenge on redemption.
	ChallengeID uuid.UUID `json:"challenge_id"`

	// BoxID is the box the challenge was issued for.
	BoxID interfaces.ContentID `json:"box_id"`

	// Nonce is the challenge material, hex encoded.
	Nonce string `json:"nonce"`
}

// ReleaseRequest redeems a signed challenge for key material.
type ReleaseRequest struct {
	// ChallengeID identifies the challenge being redeemed.
	ChallengeID uuid.UUID `json:"challenge_id"`

	// Signature is the requester's 65-byte wallet signature over the
	// challenge digest, base64 on the wire.
	Signature []byte `json:"signature"`

	// RecipientPubkey is the X25519 key released material is sealed to.
	RecipientPubkey interfaces.NodePublicKey `json:"recipient_pubkey"`
}

// StoreShareRequest delivers a sealed share to a custodian.
type StoreShareRequest struct {
	// BoxID keys the share at the custodian.
	BoxID interfaces.ContentID `json:"box_id"`

	// Share is the share sealed to the custodian's public key.
	Share interfaces.EncryptedShare `json:"share"`
}

// ReencryptRequest asks a custodian to re-seal its held share.
type ReencryptRequest struct {
	// BoxID identifies the held share.
	BoxID interfaces.ContentID `json:"box_id"`

	// RecipientPubkey is the key the share is re-sealed to.
	RecipientPubkey interfaces.NodePublicKey `json:"recipient_pubkey"`
}

// ReencryptResponse returns the re-sealed share.
type ReencryptResponse struct {
	Share interfaces.EncryptedShare `json:"share"`
}

// CustodianInfoResponse describes a custodian node.
type CustodianInfoResponse struct {
	// NodeID is the custodian's identifier within the fixed set.
	NodeID interfaces.NodeID `json:"node_id"`

	// PublicKey is the node's X25519 sealing key.
	PublicKey interfaces.NodePublicKey `json:"public_key"`

	// SharesHeld is the number of boxes the node holds shares for.
	SharesHeld int `json:"shares_held"`
}

// ProvisionSeedRequest provisions a custodian's identity seed.
type ProvisionSeedRequest struct {
	// Seed is the identity seed, base64 on the wire.
	Seed []byte `json:"seed"`

	// Derivation selects the seed derivation: "sha256" or "hkdf".
	Derivation string `json:"derivation"`
}

// ProvisionSeedResponse confirms a provisioned identity.
type ProvisionSeedResponse struct {
	// NodeID is the provisioned custodian.
	NodeID interfaces.NodeID `json:"node_id"`

	// PublicKey is the derived X25519 public key.
	PublicKey interfaces.NodePublicKey `json:"public_key"`
}
