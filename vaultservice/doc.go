// Package vaultservice orchestrates payload custody and threshold key
// release.
//
// The package ties the custody core together with its collaborators:
// payloads are encrypted under fresh file keys, the keys are split with
// Shamir's scheme and sealed to the custodian set, ciphertext is
// replicated to storage backends, and box records are registered in the
// onchain registry. When a grant holder requests key material, a quorum
// of custodians re-encrypts shares to the requester without any share
// ever appearing in plaintext outside its holder.
//
// The package includes these components:
//
// # KeyVault
//
// The service-side orchestrator. Uploading a payload generates a file
// key, encrypts the payload with AES-256-GCM, and places the key in
// custody in one of two modes: sharded, where the key is split 2-of-3
// and each share is sealed to a custodian's registered X25519 key, or
// direct, where the whole key is sealed to the vault's own identity.
// Either way the stored bundle and payload are ciphertext end to end.
//
// Releasing runs the quorum policy: a fresh CSPRNG permutation selects
// which custodians disclose and which one is withheld, the selected
// nodes re-encrypt their shares to the requester's public key, and
// every decision lands in the audit log. A box stored without sharding
// falls back to direct key release, re-sealed to the requester.
//
// # CustodianNode
//
// One share custodian. It keeps shares sealed to its node identity,
// keyed by box, and re-seals them for requesters on demand. A failed
// authentication during re-encryption propagates as a typed error; the
// node never discloses plaintext or substitutes placeholder material.
//
// # ReconstructionSession
//
// The requester-side collector. Re-encrypted shares are opened with the
// requester's identity as they arrive; once a threshold of distinct
// shares is on hand the file key is reconstructed and plaintext shares
// are wiped. The recovered key decrypts the payload blob locally.
//
// # ChallengeStore
//
// Wallet-signature authentication for release requests. The service
// issues a single-use nonce challenge bound to the requested box; the
// requester signs its digest with their wallet key, and the recovered
// address is checked against the box's grants.
//
// # Usage Example
//
//	vault, err := vaultservice.NewKeyVault(&vaultservice.KeyVaultConfig{
//	    Log:              logger,
//	    Custodians:       custodianSet,
//	    Nodes:            nodes,
//	    Registry:         registry,
//	    StorageFactory:   factory,
//	    StorageLocations: locations,
//	    Identity:         serviceIdentity,
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create key vault: %v", err)
//	}
//
//	// Place a payload in custody, sharded across the custodian set
//	result, err := vault.UploadPayload(ctx, payload, owner, true)
//
//	// Release key material to a grant holder
//	release, err := vault.RequestRelease(ctx, result.BoxID, requester, requesterPub)
//
//	// Requester side: open shares, reconstruct, decrypt
//	session, err := vaultservice.NewReconstructionSession(requesterIdentity, 2)
//	err = session.AddRelease(release)
//	blob, err := vault.FetchPayload(ctx, result.BoxID)
//	plaintext, err := session.Decrypt(blob)
package vaultservice
