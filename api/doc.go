/*
Package api defines the HTTP surface of the key custody system: the
shared wire types, the server configuration, and two handler
subpackages.

This package is organized into two main subpackages:

1. vaultapi - The key service: upload, box metadata, payload retrieval,
and the challenge-response release protocol

2. custodianapi - One custodian node: share delivery, share
re-encryption, and admin-authenticated identity provisioning

# System Components

The custody API system works with the following components:

  - KeyVault: Orchestrates payload encryption, key sharding and quorum
    release
  - CustodianNode: Holds one sealed share per box and re-encrypts on
    demand
  - BoxRegistry: Smart contract recording boxes, grants and storage
    backends
  - StorageBackend: Content-addressed storage for ciphertext and share
    bundles

# Wire Conventions

Binary values are JSON-encoded the same way everywhere: content IDs,
addresses and X25519 public keys as hex strings, nonces, ciphertexts
and seeds as base64. Sealed shares always travel with the sender's
public key so recipients can authenticate the box construction.

# Security Model

  - Release requests are authenticated by a wallet signature over a
    single-use challenge bound to the box being released
  - Custodians only accept shares sealed to their own key and never
    disclose plaintext share material
  - Provisioning endpoints require an ECDSA admin signature over the
    request path and body
  - Released key material is sealed to a requester-supplied X25519 key,
    never returned in plaintext

See the subpackages for detailed documentation on specific endpoints.
*/
package api
