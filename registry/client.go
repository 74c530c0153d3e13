// Package registry provides clients for the on-chain box registry
// contract, which records box ownership, access grants, and the storage
// backends holding encrypted replicas.
package registry

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/key-custody-backend/bindings/boxregistry"
	"github.com/ruteri/key-custody-backend/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted without first setting transaction options.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// BoxRegistryClient implements the interfaces.BoxRegistry interface for
// interacting with a box registry contract deployed on a blockchain.
type BoxRegistryClient struct {
	contract *boxregistry.BoxRegistry
	client   bind.ContractBackend
	backend  bind.DeployBackend
	address  common.Address
	auth     *bind.TransactOpts
}

// NewBoxRegistryClient creates a new client for interacting with the box registry contract
// at the specified address. It requires a ContractBackend for reading from the blockchain
// and a DeployBackend for transaction operations.
func NewBoxRegistryClient(client bind.ContractBackend, backend bind.DeployBackend, address common.Address) (*BoxRegistryClient, error) {
	contract, err := boxregistry.NewBoxRegistry(address, client)
	if err != nil {
		return nil, err
	}

	return &BoxRegistryClient{
		contract: contract,
		client:   client,
		backend:  backend,
		address:  address,
	}, nil
}

// SetTransactOpts sets the transaction options required for functions that modify state.
// This must be called before using any methods that send transactions to the blockchain.
func (c *BoxRegistryClient) SetTransactOpts(auth *bind.TransactOpts) {
	c.auth = auth
}

// Box retrieves the record for a payload content ID.
// Returns ErrBoxNotFound if no box is registered under the ID.
func (c *BoxRegistryClient) Box(id interfaces.ContentID) (interfaces.Box, error) {
	opts := &bind.CallOpts{Context: context.Background()}

	record, err := c.contract.GetBox(opts, id)
	if err != nil {
		return interfaces.Box{}, err
	}

	// An unset record comes back zeroed.
	if record.Owner == (common.Address{}) {
		return interfaces.Box{}, interfaces.ErrBoxNotFound
	}

	return interfaces.Box{
		Owner:       interfaces.ContractAddress(record.Owner),
		PayloadID:   interfaces.ContentID(record.PayloadId),
		BundleID:    interfaces.ContentID(record.BundleId),
		StorageURIs: record.StorageUris,
		Sharded:     record.Sharded,
	}, nil
}

// HasGrant checks whether the grantee may request the box key.
// The owner always holds an implicit grant.
func (c *BoxRegistryClient) HasGrant(id interfaces.ContentID, grantee interfaces.ContractAddress) (bool, error) {
	opts := &bind.CallOpts{Context: context.Background()}

	record, err := c.contract.GetBox(opts, id)
	if err != nil {
		return false, err
	}
	if record.Owner == common.Address(grantee) {
		return true, nil
	}

	return c.contract.HasGrant(opts, id, common.Address(grantee))
}

// RegisterBox records a new box in the contract. The caller becomes the
// box owner.
// Returns the transaction and an error if the transaction could not be sent.
func (c *BoxRegistryClient) RegisterBox(box interfaces.Box) (*types.Transaction, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}

	tx, err := c.contract.RegisterBox(c.auth, box.PayloadID, box.BundleID, box.StorageURIs, box.Sharded)
	return tx, err
}

// GrantAccess allows the grantee to request the box key.
// Returns the transaction and an error if the transaction could not be sent.
func (c *BoxRegistryClient) GrantAccess(id interfaces.ContentID, grantee interfaces.ContractAddress) (*types.Transaction, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}

	tx, err := c.contract.GrantAccess(c.auth, id, common.Address(grantee))
	return tx, err
}

// RevokeAccess removes a grant.
// Returns the transaction and an error if the transaction could not be sent.
func (c *BoxRegistryClient) RevokeAccess(id interfaces.ContentID, grantee interfaces.ContractAddress) (*types.Transaction, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}

	tx, err := c.contract.RevokeAccess(c.auth, id, common.Address(grantee))
	return tx, err
}

// StorageBackends retrieves all storage backend URIs registered in the contract.
func (c *BoxRegistryClient) StorageBackends() ([]string, error) {
	opts := &bind.CallOpts{Context: context.Background()}

	return c.contract.AllStorageBackends(opts)
}

// AddStorageBackend adds a new storage backend URI to the registry.
// Returns the transaction and an error if the transaction could not be sent.
func (c *BoxRegistryClient) AddStorageBackend(locationURI string) (*types.Transaction, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}

	tx, err := c.contract.AddStorageBackend(c.auth, locationURI)
	return tx, err
}

// RemoveStorageBackend removes a storage backend URI from the registry.
// Returns the transaction and an error if the transaction could not be sent.
func (c *BoxRegistryClient) RemoveStorageBackend(locationURI string) (*types.Transaction, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}

	tx, err := c.contract.RemoveStorageBackend(c.auth, locationURI)
	return tx, err
}

// BundleData retrieves a share bundle stored in the contract.
func (c *BoxRegistryClient) BundleData(id interfaces.ContentID) ([]byte, error) {
	opts := &bind.CallOpts{Context: context.Background()}

	return c.contract.BundleData(opts, id)
}

// AddBundleData stores a share bundle in the contract and returns its
// content ID, computed locally with the same SHA-256 the contract uses.
// Returns the content ID, transaction, and an error if the transaction could not be sent.
func (c *BoxRegistryClient) AddBundleData(data []byte) (interfaces.ContentID, *types.Transaction, error) {
	if c.auth == nil {
		return interfaces.ContentID{}, nil, ErrNoTransactOpts
	}

	tx, err := c.contract.AddBundleData(c.auth, data)
	if err != nil {
		return interfaces.ContentID{}, nil, err
	}

	return interfaces.ComputeID(data), tx, nil
}

// PayloadData retrieves an encrypted payload stored in the contract.
func (c *BoxRegistryClient) PayloadData(id interfaces.ContentID) ([]byte, error) {
	opts := &bind.CallOpts{Context: context.Background()}

	return c.contract.PayloadData(opts, id)
}

// AddPayloadData stores an encrypted payload in the contract and returns its
// content ID, computed locally with the same SHA-256 the contract uses.
// Returns the content ID, transaction, and an error if the transaction could not be sent.
func (c *BoxRegistryClient) AddPayloadData(data []byte) (interfaces.ContentID, *types.Transaction, error) {
	if c.auth == nil {
		return interfaces.ContentID{}, nil, ErrNoTransactOpts
	}

	tx, err := c.contract.AddPayloadData(c.auth, data)
	if err != nil {
		return interfaces.ContentID{}, nil, err
	}

	return interfaces.ComputeID(data), tx, nil
}

// BoxRegistryFactory creates BoxRegistry instances for different contract addresses.
type BoxRegistryFactory struct {
	client  bind.ContractBackend
	backend bind.DeployBackend
	auth    *bind.TransactOpts
}

// NewBoxRegistryFactory creates a new factory for box registry clients.
// It requires a ContractBackend for reading from the blockchain and a DeployBackend for transactions.
func NewBoxRegistryFactory(client bind.ContractBackend, backend bind.DeployBackend) *BoxRegistryFactory {
	return &BoxRegistryFactory{client: client, backend: backend}
}

// SetTransactOpts installs transaction options on every client the
// factory creates from this point on.
func (f *BoxRegistryFactory) SetTransactOpts(auth *bind.TransactOpts) {
	f.auth = auth
}

// RegistryFor returns a BoxRegistry instance for the specified contract address.
func (f *BoxRegistryFactory) RegistryFor(address interfaces.ContractAddress) (interfaces.BoxRegistry, error) {
	// Convert interfaces.ContractAddress to common.Address
	commonAddr := common.Address(address)
	client, err := NewBoxRegistryClient(f.client, f.backend, commonAddr)
	if err != nil {
		return nil, err
	}

	if f.auth != nil {
		client.SetTransactOpts(f.auth)
	}
	return client, nil
}
