// Package governance provides access to the custodian set: the fixed
// roster of custody nodes, their registered sealing keys and endpoints,
// and the release threshold in force.
package governance

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/key-custody-backend/bindings/custodianset"
	"github.com/ruteri/key-custody-backend/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted without first setting transaction options.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// CustodianSetClient implements the interfaces.CustodianSet interface
// backed by the custodian governance contract.
type CustodianSetClient struct {
	contract *custodianset.CustodianSet
	client   bind.ContractBackend
	backend  bind.DeployBackend
	address  common.Address
	auth     *bind.TransactOpts
}

// NewCustodianSetClient creates a new client for the custodian governance
// contract at the specified address.
func NewCustodianSetClient(client bind.ContractBackend, backend bind.DeployBackend, address common.Address) (*CustodianSetClient, error) {
	contract, err := custodianset.NewCustodianSet(address, client)
	if err != nil {
		return nil, err
	}

	return &CustodianSetClient{
		contract: contract,
		client:   client,
		backend:  backend,
		address:  address,
	}, nil
}

// SetTransactOpts sets the transaction options required for functions that modify state.
func (c *CustodianSetClient) SetTransactOpts(auth *bind.TransactOpts) {
	c.auth = auth
}

// CustodianPublicKey returns the registered sealing key for a node.
// An unregistered node reports ErrUnknownNode.
func (c *CustodianSetClient) CustodianPublicKey(id interfaces.NodeID) (interfaces.NodePublicKey, error) {
	if err := id.Validate(); err != nil {
		return interfaces.NodePublicKey{}, err
	}

	opts := &bind.CallOpts{Context: context.Background()}

	raw, err := c.contract.CustodianPublicKey(opts, uint8(id.Index()))
	if err != nil {
		return interfaces.NodePublicKey{}, err
	}

	key := interfaces.NodePublicKey(raw)
	if key.IsZero() {
		return interfaces.NodePublicKey{}, fmt.Errorf("%w: custodian %s has no registered key", interfaces.ErrUnknownNode, id)
	}

	return key, nil
}

// CustodianEndpoint returns the node's registered API endpoint.
// An unregistered node reports ErrUnknownNode.
func (c *CustodianSetClient) CustodianEndpoint(id interfaces.NodeID) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}

	opts := &bind.CallOpts{Context: context.Background()}

	endpoint, err := c.contract.CustodianEndpoint(opts, uint8(id.Index()))
	if err != nil {
		return "", err
	}

	if endpoint == "" {
		return "", fmt.Errorf("%w: custodian %s has no registered endpoint", interfaces.ErrUnknownNode, id)
	}

	return endpoint, nil
}

// ReleaseThreshold returns the (threshold, total) release scheme.
func (c *CustodianSetClient) ReleaseThreshold() (int, int, error) {
	opts := &bind.CallOpts{Context: context.Background()}

	threshold, total, err := c.contract.ReleaseThreshold(opts)
	if err != nil {
		return 0, 0, err
	}

	return int(threshold), int(total), nil
}

// RegisterCustodian records a node's public key and endpoint.
// Returns the transaction and an error if the transaction could not be sent.
func (c *CustodianSetClient) RegisterCustodian(id interfaces.NodeID, pubkey interfaces.NodePublicKey, endpoint string) (*types.Transaction, error) {
	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}

	tx, err := c.contract.RegisterCustodian(c.auth, uint8(id.Index()), pubkey, endpoint)
	return tx, err
}
