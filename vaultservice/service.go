package vaultservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ruteri/key-custody-backend/cryptoutils"
	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/ruteri/key-custody-backend/shamir"
)

// KeyVault orchestrates payload custody: it encrypts payloads under
// fresh file keys, shards the keys across the custodian set, persists
// ciphertext to storage backends, and runs the quorum release protocol
// when a grant holder requests key material.
//
// The vault never holds a file key beyond the call that creates or
// releases it. Sharded keys exist only as sealed custodian shares;
// direct-custody keys are stored sealed to the vault's own identity.
type KeyVault struct {
	log        *slog.Logger
	policy     *custody.ReleasePolicy
	custodians interfaces.CustodianSet
	nodes      map[interfaces.NodeID]interfaces.ShareCustodian
	registry   interfaces.BoxRegistry
	factory    interfaces.StorageBackendFactory
	storage    interfaces.StorageBackend
	locations  []string
	identity   *custody.Identity
}

// KeyVaultConfig collects the collaborators a KeyVault needs.
type KeyVaultConfig struct {
	// Log receives audit records for uploads, releases and denials.
	Log *slog.Logger

	// Policy is the quorum release scheme. Defaults to 2-of-3.
	Policy *custody.ReleasePolicy

	// Custodians resolves registered custodian public keys.
	Custodians interfaces.CustodianSet

	// Nodes are the transport clients for each custodian, in-process
	// nodes or HTTP clients alike.
	Nodes map[interfaces.NodeID]interfaces.ShareCustodian

	// Registry is the onchain box registry.
	Registry interfaces.BoxRegistry

	// StorageFactory resolves storage location URIs to backends.
	StorageFactory interfaces.StorageBackendFactory

	// StorageLocations are the replica targets for new uploads.
	StorageLocations []interfaces.StorageBackendLocation

	// Identity is the vault's own keypair, used to hold direct-custody
	// keys and to re-seal released material.
	Identity *custody.Identity
}

// NewKeyVault creates a key vault from its configuration.
func NewKeyVault(config *KeyVaultConfig) (*KeyVault, error) {
	if config.Custodians == nil {
		return nil, errors.New("key vault requires a custodian set")
	}
	if config.Registry == nil {
		return nil, errors.New("key vault requires a box registry")
	}
	if config.StorageFactory == nil || len(config.StorageLocations) == 0 {
		return nil, errors.New("key vault requires storage locations and a backend factory")
	}
	if config.Identity == nil {
		return nil, errors.New("key vault requires an identity")
	}

	log := config.Log
	if log == nil {
		log = slog.Default()
	}

	policy := config.Policy
	if policy == nil {
		policy = custody.DefaultReleasePolicy()
	}

	backend, err := config.StorageFactory.CreateMultiBackend(config.StorageLocations)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	locations := make([]string, 0, len(config.StorageLocations))
	for _, loc := range config.StorageLocations {
		locations = append(locations, loc.String())
	}

	return &KeyVault{
		log:        log,
		policy:     policy,
		custodians: config.Custodians,
		nodes:      config.Nodes,
		registry:   config.Registry,
		factory:    config.StorageFactory,
		storage:    backend,
		locations:  locations,
		identity:   config.Identity,
	}, nil
}

// Policy returns the release scheme in force.
func (v *KeyVault) Policy() *custody.ReleasePolicy {
	return v.policy
}

// UploadResult describes a completed upload.
type UploadResult struct {
	// BoxID keys the box record, equal to the payload content ID.
	BoxID interfaces.ContentID `json:"box_id"`

	// BundleID is the content ID of the stored key-material bundle.
	BundleID interfaces.ContentID `json:"bundle_id"`

	// StorageURIs locate the replicas holding payload and bundle.
	StorageURIs []string `json:"storage_uris"`

	// Sharded reports whether the file key was split across custodians.
	Sharded bool `json:"sharded"`
}

// UploadPayload encrypts a payload under a fresh file key and places it
// in custody. With sharding enabled the key is split threshold-of-total,
// each share sealed to its custodian's registered public key and
// delivered to the node; otherwise the whole key is sealed to the
// vault. Payload and bundle ciphertext are replicated to the configured
// storage backends and the box is registered for the owner.
//
// The plaintext payload, the file key and all plaintext shares are
// wiped before the call returns.
func (v *KeyVault) UploadPayload(ctx context.Context, plaintext []byte, owner interfaces.ContractAddress, sharded bool) (*UploadResult, error) {
	key, err := cryptoutils.NewFileEncryptionKey()
	if err != nil {
		return nil, err
	}
	defer wipeShare(key)

	blob, err := cryptoutils.EncryptPayload(plaintext, key)
	if err != nil {
		return nil, err
	}

	payloadID, err := v.storage.Store(ctx, blob, interfaces.PayloadType)
	if err != nil {
		return nil, fmt.Errorf("failed to store payload: %w", err)
	}

	sender, err := custody.NewEphemeralIdentity()
	if err != nil {
		return nil, err
	}

	bundle := &ShareBundle{
		PayloadID: payloadID,
		Threshold: v.policy.Threshold(),
		Total:     v.policy.Total(),
	}

	if sharded {
		bundle.Shares, err = v.shardFileKey(ctx, payloadID, key, sender)
		if err != nil {
			return nil, err
		}
	} else {
		sealed, err := sender.SealTo(v.identity.PublicKey(), key)
		if err != nil {
			return nil, err
		}
		bundle.Key = &sealed
	}

	bundleBytes, err := EncodeShareBundle(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to encode share bundle: %w", err)
	}

	bundleID, err := v.storage.Store(ctx, bundleBytes, interfaces.ShareBundleType)
	if err != nil {
		return nil, fmt.Errorf("failed to store share bundle: %w", err)
	}

	tx, err := v.registry.RegisterBox(interfaces.Box{
		Owner:       owner,
		PayloadID:   payloadID,
		BundleID:    bundleID,
		StorageURIs: v.locations,
		Sharded:     sharded,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register box: %w", err)
	}

	logArgs := []any{"box", payloadID.String(), "bundle", bundleID.String(), "owner", owner.String(), "sharded", sharded}
	if tx != nil {
		logArgs = append(logArgs, "tx", tx.Hash().Hex())
	}
	v.log.Info("uploaded box", logArgs...)

	return &UploadResult{
		BoxID:       payloadID,
		BundleID:    bundleID,
		StorageURIs: v.locations,
		Sharded:     sharded,
	}, nil
}

// shardFileKey splits the key across the custodian set and delivers
// each sealed share to its node. Every custodian must accept its share
// for the upload to succeed.
func (v *KeyVault) shardFileKey(ctx context.Context, boxID interfaces.ContentID, key interfaces.FileKey, sender *custody.Identity) (map[interfaces.NodeID]interfaces.EncryptedShare, error) {
	shares, err := shamir.Split(key, v.policy.Total(), v.policy.Threshold())
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, share := range shares {
			wipeShare(share)
		}
	}()

	sealed := make(map[interfaces.NodeID]interfaces.EncryptedShare, len(shares))
	for _, share := range shares {
		nodeID, err := interfaces.NodeIDFromIndex(int(share.XCoordinate()))
		if err != nil {
			return nil, err
		}

		pubkey, err := v.custodians.CustodianPublicKey(nodeID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve custodian %s: %w", nodeID, err)
		}

		enc, err := sender.SealTo(pubkey, share)
		if err != nil {
			return nil, err
		}
		sealed[nodeID] = enc

		node, ok := v.nodes[nodeID]
		if !ok {
			return nil, fmt.Errorf("%w: no client for custodian %s", interfaces.ErrUnknownNode, nodeID)
		}
		if err := node.StoreShare(ctx, boxID, enc); err != nil {
			return nil, fmt.Errorf("custodian %s rejected share: %w", nodeID, err)
		}

		v.log.Info("distributed share", "box", boxID.String(), "node", nodeID.String(), "index", int(share.XCoordinate()))
	}

	return sealed, nil
}

// ReleasedShare is one re-encrypted share disclosed by a release.
type ReleasedShare struct {
	// NodeID is the custodian that re-encrypted the share.
	NodeID interfaces.NodeID `json:"node_id"`

	// Index is the share's 1-based x-coordinate.
	Index int `json:"index"`

	// Share is the share sealed to the requester's public key.
	Share interfaces.EncryptedShare `json:"share"`
}

// KeyRelease is the material disclosed for one granted request. All
// share and key fields are sealed to the requester; nothing in a
// KeyRelease is plaintext.
type KeyRelease struct {
	// BoxID identifies the released box.
	BoxID interfaces.ContentID `json:"box_id"`

	// Record is the quorum decision behind this release.
	Record interfaces.ReleaseRecord `json:"record"`

	// Shares are the re-encrypted shares, threshold many, in quorum
	// mode.
	Shares []ReleasedShare `json:"shares,omitempty"`

	// Key is the whole file key sealed to the requester, in direct
	// mode.
	Key *interfaces.EncryptedShare `json:"key,omitempty"`
}

// RequestRelease runs the release protocol for a box on behalf of a
// requester identified by wallet address. The requester must hold a
// grant in the box registry. For a sharded box the release policy draws
// a fresh quorum and each selected custodian re-encrypts its share to
// the requester's public key; the withheld custodian is never
// contacted. For a direct-custody box the vault re-seals the stored key
// to the requester.
//
// Every decision is audit-logged: grant denials, the released and
// withheld indices, and custodian failures.
func (v *KeyVault) RequestRelease(ctx context.Context, boxID interfaces.ContentID, requester interfaces.ContractAddress, recipient interfaces.NodePublicKey) (*KeyRelease, error) {
	requestID := uuid.New().String()

	box, err := v.registry.Box(boxID)
	if err != nil {
		return nil, err
	}

	granted, err := v.registry.HasGrant(boxID, requester)
	if err != nil {
		return nil, fmt.Errorf("failed to check grant: %w", err)
	}
	if !granted {
		v.log.Warn("denied release", "request_id", requestID, "box", boxID.String(), "requester", requester.String())
		return nil, fmt.Errorf("%w: %s has no grant for box %s", interfaces.ErrAccessDenied, requester.String(), boxID.String())
	}

	if !box.Sharded {
		return v.releaseDirect(ctx, requestID, box, requester, recipient)
	}
	return v.releaseQuorum(ctx, requestID, box, requester, recipient)
}

// releaseQuorum draws a release quorum and collects re-encrypted shares
// from the selected custodians.
func (v *KeyVault) releaseQuorum(ctx context.Context, requestID string, box interfaces.Box, requester interfaces.ContractAddress, recipient interfaces.NodePublicKey) (*KeyRelease, error) {
	record, err := v.policy.Release(v.policy.Total())
	if err != nil {
		return nil, err
	}

	released := make([]ReleasedShare, 0, len(record.ReleasedIndices))
	for _, index := range record.ReleasedIndices {
		nodeID, err := interfaces.NodeIDFromIndex(index)
		if err != nil {
			return nil, err
		}

		node, ok := v.nodes[nodeID]
		if !ok {
			return nil, fmt.Errorf("%w: no client for custodian %s", interfaces.ErrNoQuorum, nodeID)
		}

		share, err := node.Reencrypt(ctx, box.PayloadID, recipient)
		if err != nil {
			v.log.Warn("custodian re-encrypt failed", "request_id", requestID, "box", box.PayloadID.String(), "node", nodeID.String(), "err", err)
			return nil, fmt.Errorf("%w: custodian %s: %v", interfaces.ErrNoQuorum, nodeID, err)
		}

		released = append(released, ReleasedShare{NodeID: nodeID, Index: index, Share: share})
		v.log.Info("released share", "request_id", requestID, "box", box.PayloadID.String(), "requester", requester.String(), "node", nodeID.String(), "index", index)
	}

	withheldNode, err := interfaces.NodeIDFromIndex(record.WithheldIndex)
	if err != nil {
		return nil, err
	}
	v.log.Info("withheld share", "request_id", requestID, "box", box.PayloadID.String(), "node", withheldNode.String(), "index", record.WithheldIndex)

	return &KeyRelease{BoxID: box.PayloadID, Record: record, Shares: released}, nil
}

// releaseDirect opens the vault-sealed key and re-seals it to the
// requester.
func (v *KeyVault) releaseDirect(ctx context.Context, requestID string, box interfaces.Box, requester interfaces.ContractAddress, recipient interfaces.NodePublicKey) (*KeyRelease, error) {
	bundle, err := v.fetchBundle(ctx, box)
	if err != nil {
		return nil, err
	}
	if bundle.Key == nil {
		return nil, fmt.Errorf("box %s is not sharded and its bundle holds no key", box.PayloadID.String())
	}

	key, err := v.identity.OpenFrom(bundle.Key.Sender, *bundle.Key)
	if err != nil {
		return nil, err
	}
	defer wipeShare(key)

	resealed, err := v.identity.SealTo(recipient, key)
	if err != nil {
		return nil, err
	}

	record, err := v.policy.Release(0)
	if err != nil {
		return nil, err
	}

	v.log.Info("released key directly", "request_id", requestID, "box", box.PayloadID.String(), "requester", requester.String())
	return &KeyRelease{BoxID: box.PayloadID, Record: record, Key: &resealed}, nil
}

// RedeliverShares pushes each sealed share from a box's stored bundle
// back to its custodian, for recovery after a node restart. Custodians
// that reject their share are reported but do not stop delivery to the
// rest.
func (v *KeyVault) RedeliverShares(ctx context.Context, boxID interfaces.ContentID) error {
	box, err := v.registry.Box(boxID)
	if err != nil {
		return err
	}
	if !box.Sharded {
		return fmt.Errorf("box %s has no custodian shares", boxID.String())
	}

	bundle, err := v.fetchBundle(ctx, box)
	if err != nil {
		return err
	}

	var errs []error
	for nodeID, share := range bundle.Shares {
		node, ok := v.nodes[nodeID]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: no client for custodian %s", interfaces.ErrUnknownNode, nodeID))
			continue
		}
		if err := node.StoreShare(ctx, boxID, share); err != nil {
			errs = append(errs, fmt.Errorf("custodian %s rejected share: %w", nodeID, err))
			continue
		}
		v.log.Info("redelivered share", "box", boxID.String(), "node", nodeID.String())
	}

	return errors.Join(errs...)
}

// BoxInfo returns the registry record for a box.
func (v *KeyVault) BoxInfo(ctx context.Context, boxID interfaces.ContentID) (interfaces.Box, error) {
	return v.registry.Box(boxID)
}

// FetchPayload retrieves a box's encrypted payload from its replicas.
// The blob stays ciphertext; decryption happens requester-side with the
// released file key.
func (v *KeyVault) FetchPayload(ctx context.Context, boxID interfaces.ContentID) ([]byte, error) {
	box, err := v.registry.Box(boxID)
	if err != nil {
		return nil, err
	}

	backend, err := v.backendFor(box)
	if err != nil {
		return nil, err
	}
	return backend.Fetch(ctx, box.PayloadID, interfaces.PayloadType)
}

// fetchBundle retrieves and decodes the key-material bundle for a box.
func (v *KeyVault) fetchBundle(ctx context.Context, box interfaces.Box) (*ShareBundle, error) {
	backend, err := v.backendFor(box)
	if err != nil {
		return nil, err
	}

	data, err := backend.Fetch(ctx, box.BundleID, interfaces.ShareBundleType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch share bundle: %w", err)
	}

	bundle, err := DecodeShareBundle(data)
	if err != nil {
		return nil, err
	}
	if !bundle.PayloadID.Equal(box.PayloadID) {
		return nil, fmt.Errorf("%w: bundle %s belongs to box %s", interfaces.ErrShareMismatch, box.BundleID.String(), bundle.PayloadID.String())
	}
	return bundle, nil
}

// backendFor resolves the storage replicas recorded in a box, falling
// back to the vault's configured backends for boxes without replica
// URIs.
func (v *KeyVault) backendFor(box interfaces.Box) (interfaces.StorageBackend, error) {
	if len(box.StorageURIs) == 0 {
		return v.storage, nil
	}

	locations := make([]interfaces.StorageBackendLocation, 0, len(box.StorageURIs))
	for _, uri := range box.StorageURIs {
		location, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			v.log.Warn("skipping invalid replica location", "box", box.PayloadID.String(), "uri", uri, "err", err)
			continue
		}
		locations = append(locations, location)
	}
	if len(locations) == 0 {
		return v.storage, nil
	}

	return v.factory.CreateMultiBackend(locations)
}
