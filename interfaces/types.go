// Package interfaces defines the core interfaces and types for the key
// custody system. It provides the contract between different components
// without implementation details.
package interfaces

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NodeID identifies one of the fixed custodian nodes.
type NodeID string

const (
	// AlphaNode holds shares at x-coordinate 1.
	AlphaNode NodeID = "alpha"

	// BetaNode holds shares at x-coordinate 2.
	BetaNode NodeID = "beta"

	// GammaNode holds shares at x-coordinate 3.
	GammaNode NodeID = "gamma"
)

// AllNodeIDs returns the custodian identifiers in x-coordinate order.
func AllNodeIDs() []NodeID {
	return []NodeID{AlphaNode, BetaNode, GammaNode}
}

// Index returns the node's 1-based share x-coordinate, or 0 for an
// unknown identifier.
func (id NodeID) Index() int {
	switch id {
	case AlphaNode:
		return 1
	case BetaNode:
		return 2
	case GammaNode:
		return 3
	default:
		return 0
	}
}

// NodeIDFromIndex maps a 1-based share x-coordinate back to its custodian.
func NodeIDFromIndex(index int) (NodeID, error) {
	switch index {
	case 1:
		return AlphaNode, nil
	case 2:
		return BetaNode, nil
	case 3:
		return GammaNode, nil
	default:
		return "", fmt.Errorf("%w: no custodian at index %d", ErrUnknownNode, index)
	}
}

// String returns the node identifier as a string.
func (id NodeID) String() string {
	return string(id)
}

// Validate checks that the identifier names a known custodian.
func (id NodeID) Validate() error {
	if id.Index() == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownNode, string(id))
	}
	return nil
}

// Share is a single Shamir share. Byte 0 is the share's x-coordinate
// (1-indexed, unique per share); bytes 1..end hold the polynomial
// evaluation for each secret byte at that x-coordinate. A share is
// always exactly one byte longer than the secret it was derived from.
type Share []byte

// XCoordinate returns the share's evaluation point.
func (s Share) XCoordinate() byte {
	if len(s) == 0 {
		return 0
	}
	return s[0]
}

// SecretLen returns the length of the secret this share was derived from.
func (s Share) SecretLen() int {
	if len(s) == 0 {
		return 0
	}
	return len(s) - 1
}

// Validate checks the share carries an x-coordinate and at least one
// evaluation byte.
func (s Share) Validate() error {
	if len(s) < 2 {
		return fmt.Errorf("share too short: %d bytes", len(s))
	}
	if s[0] == 0 {
		return errors.New("share x-coordinate must be non-zero")
	}
	return nil
}

// Equal compares two shares byte-for-byte.
func (s Share) Equal(other Share) bool {
	return bytes.Equal(s, other)
}

// FileKey is a 32-byte symmetric key protecting a file payload.
type FileKey []byte

// FileKeySize is the required key length for the AES-256-GCM payload cipher.
const FileKeySize = 32

// Validate checks the key has the required length.
func (k FileKey) Validate() error {
	if len(k) != FileKeySize {
		return fmt.Errorf("file key must be %d bytes, got %d", FileKeySize, len(k))
	}
	return nil
}

// SharedSecret is a 32-byte pre-shared symmetric key for secretbox sealing.
type SharedSecret [32]byte

// NodePublicKey is a custodian's X25519 public key. Safe to publish.
type NodePublicKey [32]byte

// NewNodePublicKeyFromBytes creates a public key from a 32-byte slice.
func NewNodePublicKeyFromBytes(b []byte) (NodePublicKey, error) {
	if len(b) != 32 {
		return NodePublicKey{}, fmt.Errorf("invalid public key length: must be 32 bytes, got %d", len(b))
	}
	var pk NodePublicKey
	copy(pk[:], b)
	return pk, nil
}

// NewNodePublicKeyFromHex creates a public key from a 64-character hex string.
func NewNodePublicKeyFromHex(s string) (NodePublicKey, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 64 {
		return NodePublicKey{}, errors.New("invalid public key length: hex string must be 64 characters")
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return NodePublicKey{}, fmt.Errorf("invalid hex format: %w", err)
	}
	return NewNodePublicKeyFromBytes(b)
}

// String returns the hex representation of the public key.
func (pk NodePublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// MarshalText encodes the key as lowercase hex, its JSON wire form.
func (pk NodePublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText decodes a 64-character hex public key.
func (pk *NodePublicKey) UnmarshalText(text []byte) error {
	decoded, err := NewNodePublicKeyFromHex(string(text))
	if err != nil {
		return err
	}
	*pk = decoded
	return nil
}

// Bytes returns the raw 32-byte key.
func (pk NodePublicKey) Bytes() []byte {
	return pk[:]
}

// IsZero reports whether the key is unset.
func (pk NodePublicKey) IsZero() bool {
	return pk == NodePublicKey{}
}

// NonceSize is the nonce length used by box and secretbox sealing.
const NonceSize = 24

// EncryptedShare is a share sealed for a specific recipient. Sender is
// the public key the recipient must open against; it is zero for shares
// sealed with a pre-shared symmetric key.
type EncryptedShare struct {
	Nonce      [NonceSize]byte
	Ciphertext []byte
	Sender     NodePublicKey
}

type encryptedShareJSON struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Sender     string `json:"sender,omitempty"`
}

// MarshalJSON encodes the nonce and ciphertext as base64 and the sender
// public key as hex, the canonical wire form.
func (es EncryptedShare) MarshalJSON() ([]byte, error) {
	out := encryptedShareJSON{
		Nonce:      base64.StdEncoding.EncodeToString(es.Nonce[:]),
		Ciphertext: base64.StdEncoding.EncodeToString(es.Ciphertext),
	}
	if !es.Sender.IsZero() {
		out.Sender = es.Sender.String()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the canonical wire form.
func (es *EncryptedShare) UnmarshalJSON(data []byte) error {
	var in encryptedShareJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	nonce, err := base64.StdEncoding.DecodeString(in.Nonce)
	if err != nil {
		return fmt.Errorf("invalid nonce encoding: %w", err)
	}
	if len(nonce) != NonceSize {
		return fmt.Errorf("invalid nonce length: must be %d bytes, got %d", NonceSize, len(nonce))
	}
	copy(es.Nonce[:], nonce)

	es.Ciphertext, err = base64.StdEncoding.DecodeString(in.Ciphertext)
	if err != nil {
		return fmt.Errorf("invalid ciphertext encoding: %w", err)
	}

	if in.Sender != "" {
		es.Sender, err = NewNodePublicKeyFromHex(in.Sender)
		if err != nil {
			return fmt.Errorf("invalid sender key: %w", err)
		}
	} else {
		es.Sender = NodePublicKey{}
	}
	return nil
}

// ReleaseMode indicates how key material is disclosed to a requester.
type ReleaseMode int

const (
	// ReleaseModeQuorum discloses a threshold subset of shares.
	ReleaseModeQuorum ReleaseMode = iota

	// ReleaseModeDirect discloses the whole key, used for boxes stored
	// without Shamir splitting.
	ReleaseModeDirect
)

// String returns the mode name.
func (m ReleaseMode) String() string {
	switch m {
	case ReleaseModeQuorum:
		return "quorum"
	case ReleaseModeDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// ReleaseRecord captures one quorum release decision. Selection is
// re-randomized on every request; records are never reused.
type ReleaseRecord struct {
	// Mode is quorum for sharded boxes, direct otherwise.
	Mode ReleaseMode `json:"mode"`

	// ReleasedIndices are the 1-based x-coordinates of disclosed shares.
	ReleasedIndices []int `json:"released_indices,omitempty"`

	// WithheldIndex is the 1-based x-coordinate kept back, or 0 in
	// direct mode.
	WithheldIndex int `json:"withheld_index,omitempty"`

	// Threshold is the number of shares needed to reconstruct.
	Threshold int `json:"threshold"`

	// Total is the number of shares on file.
	Total int `json:"total"`
}

// FileKeyMaterial is the key custody state for one box. Both fields are
// independently optional: a sharded box carries shares and no key, a
// directly-released box carries the key and no shares.
type FileKeyMaterial struct {
	// EncryptionKey is the 64-character hex encoding of the file key.
	EncryptionKey string `json:"encryption_key,omitempty"`

	// Shares are hex-encoded Shamir shares.
	Shares []string `json:"shares,omitempty"`
}

// ContractAddress represents an Ethereum contract or account address.
type ContractAddress [20]byte

// NewContractAddressFromBytes creates an address from a 20-byte slice.
func NewContractAddressFromBytes(addr []byte) (ContractAddress, error) {
	if len(addr) != 20 {
		return ContractAddress{}, errors.New("invalid address length: must be 20 bytes")
	}

	var res ContractAddress
	copy(res[:], addr)
	return res, nil
}

// NewContractAddressFromHex creates an address from a 40-character hex
// string, with or without the 0x prefix.
func NewContractAddressFromHex(addr string) (ContractAddress, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return ContractAddress{}, errors.New("invalid address length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContractAddress{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewContractAddressFromBytes(addrBytes)
}

// String returns the hex string representation of the address.
func (addr ContractAddress) String() string {
	return hex.EncodeToString(addr[:])
}

// MarshalText encodes the address as lowercase hex, its JSON wire form.
func (addr ContractAddress) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

// UnmarshalText decodes a 40-character hex address.
func (addr *ContractAddress) UnmarshalText(text []byte) error {
	decoded, err := NewContractAddressFromHex(string(text))
	if err != nil {
		return err
	}
	*addr = decoded
	return nil
}

// Bytes returns the raw 20-byte address.
func (addr ContractAddress) Bytes() []byte {
	return addr[:]
}

// Equal compares two addresses for equality.
func (addr ContractAddress) Equal(other ContractAddress) bool {
	return addr == other
}
