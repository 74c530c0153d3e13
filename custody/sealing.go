package custody

import (
	"crypto/rand"
	"fmt"

	"github.com/ruteri/key-custody-backend/interfaces"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// SealTo encrypts plaintext for a recipient public key with this node
// as sender, using authenticated public-key encryption (NaCl box). A
// fresh random nonce is drawn per call and carried in the result along
// with this node's public key so the recipient knows what to open
// against.
func (n *Identity) SealTo(recipient interfaces.NodePublicKey, plaintext []byte) (interfaces.EncryptedShare, error) {
	var nonce [interfaces.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("%w: nonce generation: %v", interfaces.ErrEncryptionFailure, err)
	}

	recipientKey := [32]byte(recipient)
	sealed := box.Seal(nil, plaintext, &nonce, &recipientKey, n.secretKey)

	return interfaces.EncryptedShare{
		Nonce:      nonce,
		Ciphertext: sealed,
		Sender:     n.publicKey,
	}, nil
}

// OpenFrom authenticates and decrypts a share sealed to this node by
// the declared sender. It fails closed with ErrDecryptionFailure on any
// tamper or key mismatch; no partial plaintext is ever returned.
func (n *Identity) OpenFrom(sender interfaces.NodePublicKey, sealed interfaces.EncryptedShare) ([]byte, error) {
	senderKey := [32]byte(sender)
	plaintext, ok := box.Open(nil, sealed.Ciphertext, &sealed.Nonce, &senderKey, n.secretKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s could not open share from sender %s", interfaces.ErrDecryptionFailure, n.describe(), sender)
	}
	return plaintext, nil
}

// SealWithSharedSecret encrypts plaintext under a pre-shared 32-byte
// key (NaCl secretbox), for node-to-node or node-to-self encryption
// where a shared key is already established. The result carries no
// sender key.
func SealWithSharedSecret(plaintext []byte, key interfaces.SharedSecret) (interfaces.EncryptedShare, error) {
	var nonce [interfaces.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("%w: nonce generation: %v", interfaces.ErrEncryptionFailure, err)
	}

	secretKey := [32]byte(key)
	sealed := secretbox.Seal(nil, plaintext, &nonce, &secretKey)

	return interfaces.EncryptedShare{
		Nonce:      nonce,
		Ciphertext: sealed,
	}, nil
}

// OpenWithSharedSecret authenticates and decrypts a secretbox-sealed
// share. Fails closed with ErrDecryptionFailure.
func OpenWithSharedSecret(sealed interfaces.EncryptedShare, key interfaces.SharedSecret) ([]byte, error) {
	secretKey := [32]byte(key)
	plaintext, ok := secretbox.Open(nil, sealed.Ciphertext, &sealed.Nonce, &secretKey)
	if !ok {
		return nil, fmt.Errorf("%w: secretbox open failed", interfaces.ErrDecryptionFailure)
	}
	return plaintext, nil
}
