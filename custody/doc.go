// Package custody implements the custodian-node side of threshold key
// custody: node identities, share encapsulation, proxy re-encryption,
// and the quorum release policy.
//
// # Node Identities
//
// Each custodian node (alpha, beta, gamma) holds one X25519 keypair for
// the process lifetime. Keypairs are either freshly random or derived
// deterministically from an operator-supplied seed, with two derivation
// modes:
//
//   - DeriveSHA256: a single SHA-256 pass over the seed, matching keys
//     already deployed from earlier provisioning
//   - DeriveHKDF: HKDF-SHA256 expansion with a per-node info string,
//     preferred for new deployments
//
// The secret key is exclusively owned by the Identity value: it is never
// serialized, logged, or returned, and every operation that needs it is
// a method on Identity. Public keys are safe to publish and are
// registered with the custodian-set governance contract.
//
// Uploaders and requesters participate with ephemeral identities that
// carry no node id. Only those may export their secret scalar for
// client-side persistence; custodian keys cannot leave their Identity.
//
// # Share Encapsulation
//
// Shares cross trust boundaries only in sealed form. SealTo and
// OpenFrom use NaCl box (X25519 key agreement, XSalsa20-Poly1305) with
// a fresh 24-byte nonce per seal; SealWithSharedSecret and
// OpenWithSharedSecret use NaCl secretbox for node-to-node or
// node-to-self encryption under an established 32-byte key. All opens
// are authenticated and fail closed: a tampered or mis-keyed share
// yields ErrDecryptionFailure and no plaintext.
//
// # Proxy Re-encryption
//
// Reencrypt lets a node pass its share to an authorized requester
// without either the plaintext share or the node secret key leaving
// custody: the node opens the share sealed to it, immediately re-seals
// it for the requester's public key, and wipes the intermediate
// plaintext. A failed open propagates ErrDecryptionFailure; there is no
// plaintext fallback.
//
// # Quorum Release
//
// ReleasePolicy decides which shares a release request discloses. For a
// fully sharded box it draws a fresh CSPRNG-backed permutation per
// request, releasing a threshold subset and withholding one node; for
// boxes stored without sharding it records a direct key release. The
// selection is never cached across requests.
//
// # Usage Example
//
//	identity, err := custody.IdentityFromSeed(interfaces.AlphaNode, seed, custody.DeriveSHA256)
//	if err != nil {
//	    log.Fatalf("Failed to derive node identity: %v", err)
//	}
//
//	// The uploader seals a share to the node,
//	sealed, err := uploader.SealTo(identity.PublicKey(), share)
//
//	// and the node later re-seals it for a requester.
//	released, err := identity.Reencrypt(sealed, requesterPub)
package custody
