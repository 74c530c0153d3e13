// Package cryptoutils provides the payload cipher and key material
// helpers used across the custody backend.
//
// # Payload Encryption
//
// Files are protected with AES-256-GCM under a random 32-byte file
// encryption key:
//
//	key, err := cryptoutils.NewFileEncryptionKey()
//	blob, err := cryptoutils.EncryptPayload(fileBytes, key)
//	fileBytes, err = cryptoutils.DecryptPayload(blob, key)
//
// The encrypted blob is a 12-byte random IV followed by the ciphertext
// and its authentication tag. Decryption authenticates before releasing
// any plaintext: a flipped bit anywhere in the blob, or the wrong key,
// yields interfaces.ErrAuthenticationFailure and no output.
//
// # Key Encoding
//
// File keys travel through APIs and manifests as 64 lowercase hex
// characters. FileKeyToHex and FileKeyFromHex convert between the raw
// and transit forms, with FileKeyFromHex rejecting malformed input.
//
// # Seed Protection
//
// Custodian daemons persist their identity seeds encrypted under a key
// derived from an operator passphrase. DeriveSeedProtectionKey runs
// Argon2id with fixed parameters so the derivation is reproducible
// across restarts while remaining expensive to brute force.
package cryptoutils
