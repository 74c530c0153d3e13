package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/key-custody-backend/interfaces"
)

func testBox(owner byte) interfaces.Box {
	payloadID := interfaces.ComputeID([]byte{owner, 0x01})
	bundleID := interfaces.ComputeID([]byte{owner, 0x02})

	var ownerAddr interfaces.ContractAddress
	ownerAddr[19] = owner

	return interfaces.Box{
		Owner:       ownerAddr,
		PayloadID:   payloadID,
		BundleID:    bundleID,
		StorageURIs: []string{"memory://test"},
		Sharded:     true,
	}
}

// TestMockRegistry_BoxLifecycle tests box registration and retrieval
func TestMockRegistry_BoxLifecycle(t *testing.T) {
	client := NewMockBoxRegistryClient()
	box := testBox(0x01)

	// Transactions require opts to be set first.
	_, err := client.RegisterBox(box)
	require.ErrorIs(t, err, ErrNoTransactOpts)

	client.SetTransactOpts()
	tx, err := client.RegisterBox(box)
	require.NoError(t, err)
	require.NotNil(t, tx)

	stored, err := client.Box(box.PayloadID)
	require.NoError(t, err)
	assert.Equal(t, box, stored)

	// Unknown boxes report ErrBoxNotFound.
	_, err = client.Box(interfaces.ComputeID([]byte("unknown")))
	assert.ErrorIs(t, err, interfaces.ErrBoxNotFound)
}

// TestMockRegistry_Grants tests the grant lifecycle including the
// owner's implicit grant
func TestMockRegistry_Grants(t *testing.T) {
	client := NewMockBoxRegistryClient()
	client.SetTransactOpts()

	box := testBox(0x01)
	_, err := client.RegisterBox(box)
	require.NoError(t, err)

	var stranger interfaces.ContractAddress
	stranger[19] = 0x99

	// Owner holds an implicit grant, strangers do not.
	ok, err := client.HasGrant(box.PayloadID, box.Owner)
	require.NoError(t, err)
	assert.True(t, ok, "owner must hold an implicit grant")

	ok, err = client.HasGrant(box.PayloadID, stranger)
	require.NoError(t, err)
	assert.False(t, ok)

	// Grant, check, revoke, check again.
	_, err = client.GrantAccess(box.PayloadID, stranger)
	require.NoError(t, err)

	ok, err = client.HasGrant(box.PayloadID, stranger)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = client.RevokeAccess(box.PayloadID, stranger)
	require.NoError(t, err)

	ok, err = client.HasGrant(box.PayloadID, stranger)
	require.NoError(t, err)
	assert.False(t, ok)

	// Grants against unknown boxes are rejected.
	_, err = client.GrantAccess(interfaces.ComputeID([]byte("unknown")), stranger)
	assert.ErrorIs(t, err, interfaces.ErrBoxNotFound)
}

// TestMockRegistry_ContentData tests onchain bundle and payload storage
func TestMockRegistry_ContentData(t *testing.T) {
	client := NewMockBoxRegistryClient()
	client.SetTransactOpts()

	bundle := []byte(`{"shares":{}}`)
	id, tx, err := client.AddBundleData(bundle)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, interfaces.ComputeID(bundle), id)

	data, err := client.BundleData(id)
	require.NoError(t, err)
	assert.Equal(t, bundle, data)

	// Bundle and payload namespaces are independent.
	_, err = client.PayloadData(id)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	payload := []byte("encrypted payload")
	pid, _, err := client.AddPayloadData(payload)
	require.NoError(t, err)

	data, err = client.PayloadData(pid)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

// TestMockRegistry_StorageBackends tests backend URI registration
func TestMockRegistry_StorageBackends(t *testing.T) {
	client := NewMockBoxRegistryClient()
	client.SetTransactOpts()

	_, err := client.AddStorageBackend("file:///var/lib/custody")
	require.NoError(t, err)
	_, err = client.AddStorageBackend("ipfs://ipfs.example.com:5001")
	require.NoError(t, err)
	// Duplicates are ignored.
	_, err = client.AddStorageBackend("file:///var/lib/custody")
	require.NoError(t, err)

	backends, err := client.StorageBackends()
	require.NoError(t, err)
	assert.Len(t, backends, 2)

	_, err = client.RemoveStorageBackend("file:///var/lib/custody")
	require.NoError(t, err)

	backends, err = client.StorageBackends()
	require.NoError(t, err)
	assert.Equal(t, []string{"ipfs://ipfs.example.com:5001"}, backends)
}

// TestMockRegistryFactory tests that the factory shares one client
func TestMockRegistryFactory(t *testing.T) {
	client := NewMockBoxRegistryClient()
	client.SetTransactOpts()
	factory := NewMockBoxRegistryFactory(client)

	var addr interfaces.ContractAddress
	addr[19] = 0x42

	resolved, err := factory.RegistryFor(addr)
	require.NoError(t, err)

	box := testBox(0x07)
	_, err = client.RegisterBox(box)
	require.NoError(t, err)

	stored, err := resolved.Box(box.PayloadID)
	require.NoError(t, err)
	assert.Equal(t, box, stored, "factory must resolve to the seeded client")
}
