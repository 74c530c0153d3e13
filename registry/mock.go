package registry

import (
	"sync"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// grantKey identifies one access grant.
type grantKey struct {
	id      interfaces.ContentID
	grantee interfaces.ContractAddress
}

// MockBoxRegistryClient provides a simple in-memory implementation of the
// BoxRegistry interface for testing purposes without requiring a blockchain
// connection. It stores all registry data in memory and simulates
// blockchain operations.
type MockBoxRegistryClient struct {
	mutex            sync.RWMutex
	boxes            map[interfaces.ContentID]interfaces.Box
	grants           map[grantKey]bool
	bundles          map[interfaces.ContentID][]byte
	payloads         map[interfaces.ContentID][]byte
	storageBackends  []string
	allowTransacting bool
}

// NewMockBoxRegistryClient creates a new mock registry client with empty initial state.
// The client starts in a read-only state - call SetTransactOpts to enable transaction operations.
func NewMockBoxRegistryClient() *MockBoxRegistryClient {
	return &MockBoxRegistryClient{
		boxes:    make(map[interfaces.ContentID]interfaces.Box),
		grants:   make(map[grantKey]bool),
		bundles:  make(map[interfaces.ContentID][]byte),
		payloads: make(map[interfaces.ContentID][]byte),
	}
}

// SetTransactOpts enables transaction operations on the mock client.
// While the mock doesn't actually make blockchain transactions, this simulates
// the authorization flow by enabling write operations.
func (m *MockBoxRegistryClient) SetTransactOpts() {
	m.allowTransacting = true
}

// Box retrieves the record for a payload content ID.
// Returns ErrBoxNotFound if no box is registered under the ID.
func (m *MockBoxRegistryClient) Box(id interfaces.ContentID) (interfaces.Box, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	box, exists := m.boxes[id]
	if !exists {
		return interfaces.Box{}, interfaces.ErrBoxNotFound
	}
	return box, nil
}

// HasGrant checks whether the grantee may request the box key.
// The owner always holds an implicit grant.
func (m *MockBoxRegistryClient) HasGrant(id interfaces.ContentID, grantee interfaces.ContractAddress) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	box, exists := m.boxes[id]
	if !exists {
		return false, interfaces.ErrBoxNotFound
	}
	if box.Owner == grantee {
		return true, nil
	}

	return m.grants[grantKey{id, grantee}], nil
}

// RegisterBox records a new box. Unlike the on-chain contract, which
// takes the owner from the transaction sender, the mock uses box.Owner.
// Returns a simulated transaction and error if transactions are not allowed.
func (m *MockBoxRegistryClient) RegisterBox(box interfaces.Box) (*types.Transaction, error) {
	if !m.allowTransacting {
		return nil, ErrNoTransactOpts
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.boxes[box.PayloadID] = box
	return types.NewTx(&types.LegacyTx{}), nil
}

// GrantAccess allows the grantee to request the box key.
// Returns a simulated transaction and error if transactions are not allowed.
func (m *MockBoxRegistryClient) GrantAccess(id interfaces.ContentID, grantee interfaces.ContractAddress) (*types.Transaction, error) {
	if !m.allowTransacting {
		return nil, ErrNoTransactOpts
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.boxes[id]; !exists {
		return nil, interfaces.ErrBoxNotFound
	}

	m.grants[grantKey{id, grantee}] = true
	return types.NewTx(&types.LegacyTx{}), nil
}

// RevokeAccess removes a grant.
// Returns a simulated transaction and error if transactions are not allowed.
func (m *MockBoxRegistryClient) RevokeAccess(id interfaces.ContentID, grantee interfaces.ContractAddress) (*types.Transaction, error) {
	if !m.allowTransacting {
		return nil, ErrNoTransactOpts
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.grants, grantKey{id, grantee})
	return types.NewTx(&types.LegacyTx{}), nil
}

// StorageBackends returns all registered storage backends from the mock registry.
func (m *MockBoxRegistryClient) StorageBackends() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	// Return a copy to prevent modification of internal state
	backends := make([]string, len(m.storageBackends))
	copy(backends, m.storageBackends)

	return backends, nil
}

// AddStorageBackend adds a storage backend to the mock registry.
// Returns a simulated transaction and error if transactions are not allowed.
func (m *MockBoxRegistryClient) AddStorageBackend(locationURI string) (*types.Transaction, error) {
	if !m.allowTransacting {
		return nil, ErrNoTransactOpts
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Check for duplicates
	for _, existing := range m.storageBackends {
		if existing == locationURI {
			return types.NewTx(&types.LegacyTx{}), nil // Already exists, return empty TX
		}
	}

	m.storageBackends = append(m.storageBackends, locationURI)
	return types.NewTx(&types.LegacyTx{}), nil
}

// RemoveStorageBackend removes a storage backend from the mock registry.
// Returns a simulated transaction and error if transactions are not allowed.
func (m *MockBoxRegistryClient) RemoveStorageBackend(locationURI string) (*types.Transaction, error) {
	if !m.allowTransacting {
		return nil, ErrNoTransactOpts
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, backend := range m.storageBackends {
		if backend == locationURI {
			// Remove the backend by replacing with the last element and shrinking the slice
			m.storageBackends[i] = m.storageBackends[len(m.storageBackends)-1]
			m.storageBackends = m.storageBackends[:len(m.storageBackends)-1]
			break
		}
	}

	return types.NewTx(&types.LegacyTx{}), nil
}

// BundleData retrieves a share bundle from the mock registry.
func (m *MockBoxRegistryClient) BundleData(id interfaces.ContentID) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	data, exists := m.bundles[id]
	if !exists {
		return nil, interfaces.ErrContentNotFound
	}
	return data, nil
}

// AddBundleData stores a share bundle in the mock registry.
// Returns the content ID, a simulated transaction, and an error if
// transactions are not allowed.
func (m *MockBoxRegistryClient) AddBundleData(data []byte) (interfaces.ContentID, *types.Transaction, error) {
	if !m.allowTransacting {
		return interfaces.ContentID{}, nil, ErrNoTransactOpts
	}

	id := interfaces.ComputeID(data)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.bundles[id] = data
	return id, types.NewTx(&types.LegacyTx{}), nil
}

// PayloadData retrieves an encrypted payload from the mock registry.
func (m *MockBoxRegistryClient) PayloadData(id interfaces.ContentID) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	data, exists := m.payloads[id]
	if !exists {
		return nil, interfaces.ErrContentNotFound
	}
	return data, nil
}

// AddPayloadData stores an encrypted payload in the mock registry.
// Returns the content ID, a simulated transaction, and an error if
// transactions are not allowed.
func (m *MockBoxRegistryClient) AddPayloadData(data []byte) (interfaces.ContentID, *types.Transaction, error) {
	if !m.allowTransacting {
		return interfaces.ContentID{}, nil, ErrNoTransactOpts
	}

	id := interfaces.ComputeID(data)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.payloads[id] = data
	return id, types.NewTx(&types.LegacyTx{}), nil
}

// MockBoxRegistryFactory returns the same mock client for every contract
// address, letting tests seed state once and resolve it anywhere.
type MockBoxRegistryFactory struct {
	client *MockBoxRegistryClient
}

// NewMockBoxRegistryFactory creates a factory serving the given mock client.
func NewMockBoxRegistryFactory(client *MockBoxRegistryClient) *MockBoxRegistryFactory {
	return &MockBoxRegistryFactory{client: client}
}

// RegistryFor returns the shared mock client regardless of address.
func (f *MockBoxRegistryFactory) RegistryFor(address interfaces.ContractAddress) (interfaces.BoxRegistry, error) {
	return f.client, nil
}
