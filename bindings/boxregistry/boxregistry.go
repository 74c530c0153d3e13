// Package boxregistry binds the box registry contract for use with
// go-ethereum's bind package. The wrapper is maintained by hand against
// the contract ABI below rather than generated.
package boxregistry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BoxRegistryABI describes the contract functions the backend uses.
const BoxRegistryABI = `[
	{"type":"function","name":"getBox","stateMutability":"view","inputs":[{"name":"payloadId","type":"bytes32"}],"outputs":[{"name":"box","type":"tuple","components":[{"name":"owner","type":"address"},{"name":"payloadId","type":"bytes32"},{"name":"bundleId","type":"bytes32"},{"name":"storageUris","type":"string[]"},{"name":"sharded","type":"bool"}]}]},
	{"type":"function","name":"hasGrant","stateMutability":"view","inputs":[{"name":"payloadId","type":"bytes32"},{"name":"grantee","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"registerBox","stateMutability":"nonpayable","inputs":[{"name":"payloadId","type":"bytes32"},{"name":"bundleId","type":"bytes32"},{"name":"storageUris","type":"string[]"},{"name":"sharded","type":"bool"}],"outputs":[]},
	{"type":"function","name":"grantAccess","stateMutability":"nonpayable","inputs":[{"name":"payloadId","type":"bytes32"},{"name":"grantee","type":"address"}],"outputs":[]},
	{"type":"function","name":"revokeAccess","stateMutability":"nonpayable","inputs":[{"name":"payloadId","type":"bytes32"},{"name":"grantee","type":"address"}],"outputs":[]},
	{"type":"function","name":"allStorageBackends","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string[]"}]},
	{"type":"function","name":"addStorageBackend","stateMutability":"nonpayable","inputs":[{"name":"locationURI","type":"string"}],"outputs":[]},
	{"type":"function","name":"removeStorageBackend","stateMutability":"nonpayable","inputs":[{"name":"locationURI","type":"string"}],"outputs":[]},
	{"type":"function","name":"bundleData","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"","type":"bytes"}]},
	{"type":"function","name":"addBundleData","stateMutability":"nonpayable","inputs":[{"name":"data","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"payloadData","stateMutability":"view","inputs":[{"name":"id","type":"bytes32"}],"outputs":[{"name":"","type":"bytes"}]},
	{"type":"function","name":"addPayloadData","stateMutability":"nonpayable","inputs":[{"name":"data","type":"bytes"}],"outputs":[]}
]`

// BoxRecord mirrors the contract's box tuple.
type BoxRecord struct {
	Owner       common.Address
	PayloadId   [32]byte
	BundleId    [32]byte
	StorageUris []string
	Sharded     bool
}

// BoxRegistry is a bound instance of the box registry contract.
type BoxRegistry struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewBoxRegistry binds the contract at the given address.
func NewBoxRegistry(address common.Address, backend bind.ContractBackend) (*BoxRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(BoxRegistryABI))
	if err != nil {
		return nil, err
	}

	return &BoxRegistry{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// GetBox calls the getBox view function.
func (r *BoxRegistry) GetBox(opts *bind.CallOpts, payloadId [32]byte) (BoxRecord, error) {
	var out []interface{}
	err := r.contract.Call(opts, &out, "getBox", payloadId)
	if err != nil {
		return *new(BoxRecord), err
	}

	return *abi.ConvertType(out[0], new(BoxRecord)).(*BoxRecord), nil
}

// HasGrant calls the hasGrant view function.
func (r *BoxRegistry) HasGrant(opts *bind.CallOpts, payloadId [32]byte, grantee common.Address) (bool, error) {
	var out []interface{}
	err := r.contract.Call(opts, &out, "hasGrant", payloadId, grantee)
	if err != nil {
		return false, err
	}

	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// RegisterBox submits a registerBox transaction.
func (r *BoxRegistry) RegisterBox(opts *bind.TransactOpts, payloadId [32]byte, bundleId [32]byte, storageUris []string, sharded bool) (*types.Transaction, error) {
	return r.contract.Transact(opts, "registerBox", payloadId, bundleId, storageUris, sharded)
}

// GrantAccess submits a grantAccess transaction.
func (r *BoxRegistry) GrantAccess(opts *bind.TransactOpts, payloadId [32]byte, grantee common.Address) (*types.Transaction, error) {
	return r.contract.Transact(opts, "grantAccess", payloadId, grantee)
}

// RevokeAccess submits a revokeAccess transaction.
func (r *BoxRegistry) RevokeAccess(opts *bind.TransactOpts, payloadId [32]byte, grantee common.Address) (*types.Transaction, error) {
	return r.contract.Transact(opts, "revokeAccess", payloadId, grantee)
}

// AllStorageBackends calls the allStorageBackends view function.
func (r *BoxRegistry) AllStorageBackends(opts *bind.CallOpts) ([]string, error) {
	var out []interface{}
	err := r.contract.Call(opts, &out, "allStorageBackends")
	if err != nil {
		return nil, err
	}

	return *abi.ConvertType(out[0], new([]string)).(*[]string), nil
}

// AddStorageBackend submits an addStorageBackend transaction.
func (r *BoxRegistry) AddStorageBackend(opts *bind.TransactOpts, locationURI string) (*types.Transaction, error) {
	return r.contract.Transact(opts, "addStorageBackend", locationURI)
}

// RemoveStorageBackend submits a removeStorageBackend transaction.
func (r *BoxRegistry) RemoveStorageBackend(opts *bind.TransactOpts, locationURI string) (*types.Transaction, error) {
	return r.contract.Transact(opts, "removeStorageBackend", locationURI)
}

// BundleData calls the bundleData view function.
func (r *BoxRegistry) BundleData(opts *bind.CallOpts, id [32]byte) ([]byte, error) {
	var out []interface{}
	err := r.contract.Call(opts, &out, "bundleData", id)
	if err != nil {
		return nil, err
	}

	return *abi.ConvertType(out[0], new([]byte)).(*[]byte), nil
}

// AddBundleData submits an addBundleData transaction. The contract keys
// the entry by the SHA-256 hash of the data.
func (r *BoxRegistry) AddBundleData(opts *bind.TransactOpts, data []byte) (*types.Transaction, error) {
	return r.contract.Transact(opts, "addBundleData", data)
}

// PayloadData calls the payloadData view function.
func (r *BoxRegistry) PayloadData(opts *bind.CallOpts, id [32]byte) ([]byte, error) {
	var out []interface{}
	err := r.contract.Call(opts, &out, "payloadData", id)
	if err != nil {
		return nil, err
	}

	return *abi.ConvertType(out[0], new([]byte)).(*[]byte), nil
}

// AddPayloadData submits an addPayloadData transaction. The contract
// keys the entry by the SHA-256 hash of the data.
func (r *BoxRegistry) AddPayloadData(opts *bind.TransactOpts, data []byte) (*types.Transaction, error) {
	return r.contract.Transact(opts, "addPayloadData", data)
}
