package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
)

// ShareCustodian is the surface one custody node exposes to the key
// service. The node's secret key never crosses this boundary: shares
// arrive sealed to the node and leave re-sealed to a requester.
type ShareCustodian interface {
	// NodeID returns the custodian's identifier within the fixed set.
	NodeID() NodeID

	// PublicKey returns the node's X25519 public key for sealing.
	PublicKey() NodePublicKey

	// StoreShare accepts a share sealed to this node, keyed by box.
	StoreShare(ctx context.Context, box ContentID, share EncryptedShare) error

	// Reencrypt opens the held share and re-seals it for the recipient
	// public key. A failed open propagates ErrDecryptionFailure; the
	// plaintext share is never disclosed.
	Reencrypt(ctx context.Context, box ContentID, recipient NodePublicKey) (EncryptedShare, error)
}

// CustodianSet provides governance data for the fixed custodian set:
// which public key and endpoint each node has registered, and the
// release threshold in force.
type CustodianSet interface {
	// CustodianPublicKey returns the registered sealing key for a node.
	CustodianPublicKey(id NodeID) (NodePublicKey, error)

	// CustodianEndpoint returns the node's registered API endpoint.
	CustodianEndpoint(id NodeID) (string, error)

	// ReleaseThreshold returns the (threshold, total) release scheme.
	ReleaseThreshold() (k int, n int, err error)

	// RegisterCustodian records a node's public key and endpoint.
	RegisterCustodian(id NodeID, pubkey NodePublicKey, endpoint string) (*types.Transaction, error)
}

// Box describes one custody record: who owns the payload, where its
// replicas live, and whether its key was sharded across custodians.
type Box struct {
	// Owner is the uploader's wallet address.
	Owner ContractAddress `json:"owner"`

	// PayloadID is the content ID of the encrypted payload.
	PayloadID ContentID `json:"payload_id"`

	// BundleID is the content ID of the box's key-material bundle: the
	// per-custodian sealed shares for a sharded box, or the single
	// service-sealed key for a direct-custody box.
	BundleID ContentID `json:"bundle_id"`

	// StorageURIs locate the backends holding payload and bundle.
	StorageURIs []string `json:"storage_uris"`

	// Sharded reports whether the file key was split across custodians.
	Sharded bool `json:"sharded"`
}

// BoxRegistry is the onchain box-storage contract surface: box records,
// access grants, and the storage backends registered for replicas.
type BoxRegistry interface {
	// Box retrieves the record for a payload content ID.
	Box(id ContentID) (Box, error)

	// HasGrant checks whether the grantee may request the box key.
	// The owner always holds an implicit grant.
	HasGrant(id ContentID, grantee ContractAddress) (bool, error)

	// RegisterBox records a new box.
	RegisterBox(box Box) (*types.Transaction, error)

	// GrantAccess allows the grantee to request the box key.
	GrantAccess(id ContentID, grantee ContractAddress) (*types.Transaction, error)

	// RevokeAccess removes a grant.
	RevokeAccess(id ContentID, grantee ContractAddress) (*types.Transaction, error)

	// StorageBackends returns registered storage backend URIs.
	StorageBackends() ([]string, error)

	// AddStorageBackend registers a storage backend URI.
	AddStorageBackend(locationURI string) (*types.Transaction, error)

	// RemoveStorageBackend unregisters a storage backend URI.
	RemoveStorageBackend(locationURI string) (*types.Transaction, error)

	// BundleData retrieves a share bundle stored in the contract.
	BundleData(id ContentID) ([]byte, error)

	// AddBundleData stores a share bundle in the contract.
	AddBundleData(data []byte) (ContentID, *types.Transaction, error)

	// PayloadData retrieves an encrypted payload stored in the contract.
	PayloadData(id ContentID) ([]byte, error)

	// AddPayloadData stores an encrypted payload in the contract.
	AddPayloadData(data []byte) (ContentID, *types.Transaction, error)
}

// BoxRegistryFactory creates BoxRegistry instances.
type BoxRegistryFactory interface {
	// RegistryFor returns a registry client for the specified contract.
	RegistryFor(ContractAddress) (BoxRegistry, error)
}
