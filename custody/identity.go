package custody

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/ruteri/key-custody-backend/interfaces"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/box"
)

// hkdfInfoPrefix domain-separates node identity derivation from any
// other HKDF use of the same seed.
const hkdfInfoPrefix = "key-custody-backend/node-identity/v1/"

// SeedDerivation selects how a node keypair is derived from a seed.
type SeedDerivation int

const (
	// DeriveSHA256 uses a single SHA-256 pass over the seed as the
	// X25519 secret scalar. Wire-compatible with previously deployed
	// node keys.
	DeriveSHA256 SeedDerivation = iota

	// DeriveHKDF expands the seed through HKDF-SHA256 with a per-node
	// info string. Preferred for new deployments.
	DeriveHKDF
)

// String returns the derivation's flag and wire name.
func (d SeedDerivation) String() string {
	switch d {
	case DeriveSHA256:
		return "sha256"
	case DeriveHKDF:
		return "hkdf"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// ParseSeedDerivation maps a flag or wire name to a derivation.
func ParseSeedDerivation(name string) (SeedDerivation, error) {
	switch name {
	case "sha256":
		return DeriveSHA256, nil
	case "hkdf":
		return DeriveHKDF, nil
	default:
		return 0, fmt.Errorf("unknown seed derivation %q", name)
	}
}

// Identity is one custodian node's X25519 keypair. The secret key is
// exclusively owned here: it is never serialized, logged, or returned,
// and all operations needing it are methods on this type.
type Identity struct {
	id        interfaces.NodeID
	publicKey interfaces.NodePublicKey
	secretKey *[32]byte
}

// NewIdentity generates a fresh random keypair for a node.
func NewIdentity(id interfaces.NodeID) (*Identity, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	publicKey, secretKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate node keypair: %w", err)
	}

	return &Identity{
		id:        id,
		publicKey: interfaces.NodePublicKey(*publicKey),
		secretKey: secretKey,
	}, nil
}

// IdentityFromSeed derives a node keypair deterministically from a seed
// using the selected derivation. The same seed, node id, and derivation
// always produce the same keypair.
func IdentityFromSeed(id interfaces.NodeID, seed []byte, derivation SeedDerivation) (*Identity, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if len(seed) == 0 {
		return nil, errors.New("empty identity seed")
	}

	var secretKey [32]byte
	switch derivation {
	case DeriveSHA256:
		secretKey = sha256.Sum256(seed)
	case DeriveHKDF:
		expand := hkdf.New(sha256.New, seed, nil, []byte(hkdfInfoPrefix+id.String()))
		if _, err := io.ReadFull(expand, secretKey[:]); err != nil {
			return nil, fmt.Errorf("failed to expand identity seed: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown seed derivation %d", derivation)
	}

	var publicKey [32]byte
	curve25519.ScalarBaseMult(&publicKey, &secretKey)

	return &Identity{
		id:        id,
		publicKey: interfaces.NodePublicKey(publicKey),
		secretKey: &secretKey,
	}, nil
}

// NewEphemeralIdentity generates a keypair for a party outside the
// custodian set: an uploader sealing shares toward the nodes, or a
// requester receiving re-encrypted shares. Ephemeral identities carry
// no node id.
func NewEphemeralIdentity() (*Identity, error) {
	publicKey, secretKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral keypair: %w", err)
	}

	return &Identity{
		id:        "",
		publicKey: interfaces.NodePublicKey(*publicKey),
		secretKey: secretKey,
	}, nil
}

// EphemeralFromSecretKey reconstructs a client-side identity from a
// saved 32-byte secret scalar. Custodian identities never pass through
// here; persistence of client keys is their owner's concern.
func EphemeralFromSecretKey(secret [32]byte) *Identity {
	var publicKey [32]byte
	curve25519.ScalarBaseMult(&publicKey, &secret)

	return &Identity{
		id:        "",
		publicKey: interfaces.NodePublicKey(publicKey),
		secretKey: &secret,
	}
}

// NodeID returns the custodian identifier, empty for ephemeral
// identities.
func (n *Identity) NodeID() interfaces.NodeID {
	return n.id
}

// PublicKey returns the node's public key, safe to publish.
func (n *Identity) PublicKey() interfaces.NodePublicKey {
	return n.publicKey
}

// ExportSecretKey returns the secret scalar of an ephemeral identity so
// its owner can persist it. Custodian node keys are exclusively owned
// by their Identity and are never exported.
func (n *Identity) ExportSecretKey() ([32]byte, error) {
	if n.id != "" {
		return [32]byte{}, fmt.Errorf("secret key of custodian node %s is not exportable", n.id)
	}
	return *n.secretKey, nil
}

// describe names the identity in error messages.
func (n *Identity) describe() string {
	if n.id == "" {
		return "ephemeral identity"
	}
	return "node " + string(n.id)
}

// IdentitySet holds exactly one identity per custodian node for the
// process lifetime. Built once at startup and immutable afterwards, so
// it is safe to share across concurrent request handlers.
type IdentitySet struct {
	identities map[interfaces.NodeID]*Identity
}

// NewIdentitySet creates one identity per custodian. Nodes present in
// seeds derive deterministically; the rest get fresh random keypairs.
func NewIdentitySet(seeds map[interfaces.NodeID][]byte, derivation SeedDerivation) (*IdentitySet, error) {
	for id := range seeds {
		if err := id.Validate(); err != nil {
			return nil, err
		}
	}

	identities := make(map[interfaces.NodeID]*Identity, len(interfaces.AllNodeIDs()))
	for _, id := range interfaces.AllNodeIDs() {
		var (
			identity *Identity
			err      error
		)
		if seed, ok := seeds[id]; ok {
			identity, err = IdentityFromSeed(id, seed, derivation)
		} else {
			identity, err = NewIdentity(id)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize node %s: %w", id, err)
		}
		identities[id] = identity
	}

	return &IdentitySet{identities: identities}, nil
}

// Identity returns the identity for a node id.
func (s *IdentitySet) Identity(id interfaces.NodeID) (*Identity, error) {
	identity, ok := s.identities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnknownNode, id)
	}
	return identity, nil
}

// PublicKeys returns the publishable key of every node.
func (s *IdentitySet) PublicKeys() map[interfaces.NodeID]interfaces.NodePublicKey {
	keys := make(map[interfaces.NodeID]interfaces.NodePublicKey, len(s.identities))
	for id, identity := range s.identities {
		keys[id] = identity.publicKey
	}
	return keys
}
