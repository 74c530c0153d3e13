package governance

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// custodianRecord is one registered node.
type custodianRecord struct {
	publicKey interfaces.NodePublicKey
	endpoint  string
}

// StaticCustodianSet implements the CustodianSet interface from in-memory
// state. It serves deployments configured with a fixed roster as well as
// tests that need governance without a chain.
type StaticCustodianSet struct {
	mu        sync.RWMutex
	threshold int
	total     int
	nodes     map[interfaces.NodeID]custodianRecord
}

// NewStaticCustodianSet creates a static custodian set with the given
// release scheme. Nodes are added through RegisterCustodian.
func NewStaticCustodianSet(threshold, total int) (*StaticCustodianSet, error) {
	if threshold < 2 || total < threshold {
		return nil, fmt.Errorf("%w: %d of %d", interfaces.ErrInvalidThreshold, threshold, total)
	}

	return &StaticCustodianSet{
		threshold: threshold,
		total:     total,
		nodes:     make(map[interfaces.NodeID]custodianRecord),
	}, nil
}

// CustodianPublicKey returns the registered sealing key for a node.
func (s *StaticCustodianSet) CustodianPublicKey(id interfaces.NodeID) (interfaces.NodePublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.nodes[id]
	if !exists {
		return interfaces.NodePublicKey{}, fmt.Errorf("%w: custodian %s has no registered key", interfaces.ErrUnknownNode, id)
	}
	return record.publicKey, nil
}

// CustodianEndpoint returns the node's registered API endpoint.
func (s *StaticCustodianSet) CustodianEndpoint(id interfaces.NodeID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.nodes[id]
	if !exists || record.endpoint == "" {
		return "", fmt.Errorf("%w: custodian %s has no registered endpoint", interfaces.ErrUnknownNode, id)
	}
	return record.endpoint, nil
}

// ReleaseThreshold returns the (threshold, total) release scheme.
func (s *StaticCustodianSet) ReleaseThreshold() (int, int, error) {
	return s.threshold, s.total, nil
}

// RegisterCustodian records a node's public key and endpoint, replacing
// any earlier registration for the same node.
func (s *StaticCustodianSet) RegisterCustodian(id interfaces.NodeID, pubkey interfaces.NodePublicKey, endpoint string) (*types.Transaction, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if pubkey.IsZero() {
		return nil, fmt.Errorf("refusing to register zero public key for custodian %s", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes[id] = custodianRecord{publicKey: pubkey, endpoint: endpoint}
	return types.NewTx(&types.LegacyTx{}), nil
}
