package cryptoutils

import (
	"golang.org/x/crypto/argon2"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// seedProtectionSaltPrefix domain-separates seed protection keys from
// any other Argon2id use of the same operator passphrase.
var seedProtectionSaltPrefix = []byte("NODE-SEED-KEY-")

// DeriveSeedProtectionKey derives a symmetric sealing key from an
// operator passphrase using Argon2id. Custodian daemons use it to
// encrypt node seeds at rest, so the same passphrase and salt always
// yield the same key.
//
// Parameters:
//   - passphrase: The operator-supplied secret
//   - salt: A per-node salt, typically the node identifier bytes
//
// Returns:
//   - A 32-byte key usable with SealWithSharedSecret
func DeriveSeedProtectionKey(passphrase, salt []byte) interfaces.SharedSecret {
	fullSalt := append(append([]byte{}, seedProtectionSaltPrefix...), salt...)
	raw := argon2.IDKey(passphrase, fullSalt, 1, 64*1024, 4, 32)

	var key interfaces.SharedSecret
	copy(key[:], raw)
	return key
}
