// Package storage provides a content-addressed storage system with pluggable backends.
//
// The storage package offers a unified interface for storing and retrieving content
// identified by SHA-256 hash across multiple storage backends:
//
//   - File system storage for local deployments
//   - In-process memory storage for tests and single-node setups
//   - S3-compatible storage for cloud deployments
//   - IPFS storage for decentralized content
//   - On-chain storage using the box registry contract
//   - HTTP(S) read-only mirrors of encrypted content
//   - Vault storage using the KV v2 secrets engine
//
// All stored objects are ciphertext: encrypted payloads and encrypted
// share bundles. No backend ever sees plaintext file bytes or plaintext
// key shares.
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/custody/
//   - memory://uploads
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://ipfs.example.com:5001/
//   - onchain://0x1234567890abcdef1234567890abcdef12345678
//   - https://mirror.example.com/custody
//   - vault://vault.example.com:8200/secret/custody?token=...
//
// # Content Addressing
//
// Content is stored and retrieved using content addressing, where the content
// identifier is the SHA-256 hash of the data. The two content types,
// share bundles and payloads, are stored in separate namespaces.
//
// # On-Chain Storage
//
// The OnchainBackend stores content directly in the box registry contract.
// Share bundles are small and fit comfortably; payload blobs are better
// placed on one of the other backends with only their content ID recorded
// in the box.
//
// URI format: onchain://<contract-address>
//
// # Vault Storage
//
// The VaultBackend stores content in HashiCorp Vault's KV v2 engine
// under {mount}/data/{path}/{type}/{content_id}. Authentication uses a
// Vault token from the URI, optionally combined with a TLS client
// certificate installed on the factory via WithTLSAuth.
//
// # Usage Example
//
//	factory := storage.NewStorageBackendFactory(logger, registryFactory)
//
//	location, err := interfaces.NewStorageBackendLocation("file:///var/lib/custody/")
//	if err != nil {
//	    log.Fatalf("Bad storage URI: %v", err)
//	}
//	backend, err := factory.StorageBackendFor(location)
//	if err != nil {
//	    log.Fatalf("Failed to create backend: %v", err)
//	}
//
//	id, err := backend.Store(ctx, encryptedPayload, interfaces.PayloadType)
//
// # Multi-Backend Example
//
//	// Replicate across several locations, fetching from the first that
//	// has the content.
//	locations := []interfaces.StorageBackendLocation{fileLoc, ipfsLoc, onchainLoc}
//	multiBackend, err := factory.CreateMultiBackend(locations)
package storage
