package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// OnchainBackend implements a storage backend using the Ethereum blockchain
// via a box registry contract. Only small objects such as share bundles
// belong here; payload blobs are better served by the other backends.
type OnchainBackend struct {
	registry     interfaces.BoxRegistry
	contractAddr interfaces.ContractAddress
	log          *slog.Logger
	locationURI  string
}

// NewOnchainBackend creates a new blockchain storage backend for a specific contract.
func NewOnchainBackend(registry interfaces.BoxRegistry, contractAddr interfaces.ContractAddress, log *slog.Logger) *OnchainBackend {
	return &OnchainBackend{
		registry:     registry,
		contractAddr: contractAddr,
		log:          log,
		locationURI:  fmt.Sprintf("onchain://%x", contractAddr),
	}
}

// Fetch retrieves data from the blockchain by its content identifier and type.
func (b *OnchainBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	var data []byte
	var err error

	switch contentType {
	case interfaces.ShareBundleType:
		data, err = b.registry.BundleData(id)
	case interfaces.PayloadType:
		data, err = b.registry.PayloadData(id)
	default:
		return nil, fmt.Errorf("unsupported content type: %v", contentType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch data from chain: %w", err)
	}

	if len(data) == 0 {
		return nil, interfaces.ErrContentNotFound
	}

	b.log.Debug("Fetched content from blockchain",
		slog.String("contentID", id.String()),
		slog.Int("size", len(data)))

	return data, nil
}

// Store saves data to the blockchain and returns its content identifier.
func (b *OnchainBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	// Generate content ID by hashing the data
	id := interfaces.ComputeID(data)

	var storedID interfaces.ContentID
	var tx *types.Transaction
	var err error

	switch contentType {
	case interfaces.ShareBundleType:
		storedID, tx, err = b.registry.AddBundleData(data)
	case interfaces.PayloadType:
		storedID, tx, err = b.registry.AddPayloadData(data)
	default:
		return id, fmt.Errorf("unsupported content type: %v", contentType)
	}

	if err != nil {
		return id, fmt.Errorf("failed to store data on chain: %w", err)
	}

	// Verify the ID matches what we calculated
	if !storedID.Equal(id) {
		b.log.Warn("Content ID mismatch",
			slog.String("expected", id.String()),
			slog.String("actual", storedID.String()))
	}

	b.log.Debug("Stored content on blockchain",
		slog.String("contentID", id.String()),
		slog.String("txHash", tx.Hash().Hex()))

	return id, nil
}

// Available checks if the blockchain backend is accessible.
func (b *OnchainBackend) Available(ctx context.Context) bool {
	// Try to call a simple view function to check availability
	backends, err := b.registry.StorageBackends()
	if err != nil {
		b.log.Debug("Blockchain backend unavailable", "err", err)
		return false
	}

	b.log.Debug("Blockchain backend available",
		slog.Int("registeredBackends", len(backends)))
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *OnchainBackend) Name() string {
	ethAddr := common.BytesToAddress(b.contractAddr[:])
	return fmt.Sprintf("onchain-%s", ethAddr.Hex()[:8])
}

// LocationURI returns the URI that identifies this storage backend.
func (b *OnchainBackend) LocationURI() string {
	return b.locationURI
}
