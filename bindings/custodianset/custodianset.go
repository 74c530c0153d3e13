// Package custodianset binds the custodian governance contract for use
// with go-ethereum's bind package. The wrapper is maintained by hand
// against the contract ABI below rather than generated.
package custodianset

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CustodianSetABI describes the contract functions the backend uses.
const CustodianSetABI = `[
	{"type":"function","name":"custodianPublicKey","stateMutability":"view","inputs":[{"name":"nodeIndex","type":"uint8"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"custodianEndpoint","stateMutability":"view","inputs":[{"name":"nodeIndex","type":"uint8"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"releaseThreshold","stateMutability":"view","inputs":[],"outputs":[{"name":"threshold","type":"uint8"},{"name":"total","type":"uint8"}]},
	{"type":"function","name":"registerCustodian","stateMutability":"nonpayable","inputs":[{"name":"nodeIndex","type":"uint8"},{"name":"publicKey","type":"bytes32"},{"name":"endpoint","type":"string"}],"outputs":[]}
]`

// CustodianSet is a bound instance of the custodian governance contract.
type CustodianSet struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewCustodianSet binds the contract at the given address.
func NewCustodianSet(address common.Address, backend bind.ContractBackend) (*CustodianSet, error) {
	parsed, err := abi.JSON(strings.NewReader(CustodianSetABI))
	if err != nil {
		return nil, err
	}

	return &CustodianSet{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// CustodianPublicKey calls the custodianPublicKey view function.
func (c *CustodianSet) CustodianPublicKey(opts *bind.CallOpts, nodeIndex uint8) ([32]byte, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "custodianPublicKey", nodeIndex)
	if err != nil {
		return [32]byte{}, err
	}

	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// CustodianEndpoint calls the custodianEndpoint view function.
func (c *CustodianSet) CustodianEndpoint(opts *bind.CallOpts, nodeIndex uint8) (string, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "custodianEndpoint", nodeIndex)
	if err != nil {
		return "", err
	}

	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// ReleaseThreshold calls the releaseThreshold view function.
func (c *CustodianSet) ReleaseThreshold(opts *bind.CallOpts) (uint8, uint8, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "releaseThreshold")
	if err != nil {
		return 0, 0, err
	}

	threshold := *abi.ConvertType(out[0], new(uint8)).(*uint8)
	total := *abi.ConvertType(out[1], new(uint8)).(*uint8)
	return threshold, total, nil
}

// RegisterCustodian submits a registerCustodian transaction.
func (c *CustodianSet) RegisterCustodian(opts *bind.TransactOpts, nodeIndex uint8, publicKey [32]byte, endpoint string) (*types.Transaction, error) {
	return c.contract.Transact(opts, "registerCustodian", nodeIndex, publicKey, endpoint)
}
