// Package interfaces defines core interfaces and types for the key
// custody system, separating interface definitions from implementations.
//
// The package provides the contracts between components of the system:
//
// # Custody Interfaces
//
// ShareCustodian: The surface one custody node exposes to the key service.
// Shares arrive sealed to the node and leave re-sealed to a requester; the
// node's secret key never crosses this boundary.
//
// CustodianSet: Governance data for the fixed custodian set - registered
// public keys, API endpoints, and the release threshold in force.
//
// # Registry Interfaces
//
// BoxRegistry: The onchain box-storage contract surface - box records,
// access grants, and registered storage backend URIs.
//
// BoxRegistryFactory: Creates registry clients for contract addresses.
//
// # Storage Interfaces
//
// StorageBackend: Provides content-addressed storage for share bundles and
// encrypted payloads across multiple backend types (file, S3, IPFS,
// onchain, Vault, memory, HTTP).
//
// StorageBackendFactory: Creates storage backends from URI strings and
// manages multi-backend configurations for redundant storage.
//
// # Core Types
//
//   - NodeID: identifier within the fixed custodian set (alpha, beta,
//     gamma), mapped 1:1 to share x-coordinates
//   - Share: one Shamir share, x-coordinate at byte 0
//   - EncryptedShare: a share sealed to a recipient (24-byte nonce,
//     ciphertext, sender public key)
//   - FileKey: 32-byte symmetric key for the payload cipher
//   - NodePublicKey: a custodian's X25519 public key
//   - ReleaseRecord: one quorum release decision (released and withheld
//     share indices)
//   - FileKeyMaterial: key custody state for one box (direct key and/or
//     hex shares)
//   - ContentID: 32-byte SHA-256 hash for content addressing
//   - ContractAddress: 20-byte Ethereum address
//
// # Error Taxonomy
//
// Core failures are typed sentinels checked with errors.Is:
// ErrInvalidThreshold, ErrInsufficientShares, ErrShareMismatch,
// ErrDivisionByZero, ErrEncryptionFailure, ErrDecryptionFailure,
// ErrAuthenticationFailure. The core never retries and never substitutes
// placeholder values for failures.
//
// Storage operations return ErrContentNotFound, ErrBackendUnavailable,
// ErrInvalidLocationURI, or ErrReadOnlyBackend.
package interfaces
