package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// PayloadIVSize is the GCM nonce length prepended to encrypted payloads.
const PayloadIVSize = 12

// EncryptPayload encrypts file bytes under a 32-byte key with
// AES-256-GCM. The output is iv (12 bytes) followed by the ciphertext
// with its authentication tag; a fresh random IV is drawn per call.
//
// Parameters:
//   - plaintext: The file bytes to protect
//   - key: The 32-byte file encryption key
//
// Returns:
//   - iv || ciphertext+tag
//   - ErrEncryptionFailure if the key is malformed or IV generation fails
func EncryptPayload(plaintext []byte, key interfaces.FileKey) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrEncryptionFailure, err)
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrEncryptionFailure, err)
	}
	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrEncryptionFailure, err)
	}

	iv := make([]byte, PayloadIVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("%w: failed to generate IV: %v", interfaces.ErrEncryptionFailure, err)
	}

	// Seal appends to the IV, producing the iv || ciphertext framing.
	return aesGCM.Seal(iv, iv, plaintext, nil), nil
}

// DecryptPayload authenticates and decrypts a blob produced by
// EncryptPayload. The first 12 bytes are the IV, the remainder the
// ciphertext and tag. A tag mismatch - tampered data or the wrong key -
// reports ErrAuthenticationFailure and never partial plaintext.
func DecryptPayload(blob []byte, key interfaces.FileKey) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrAuthenticationFailure, err)
	}
	if len(blob) < PayloadIVSize {
		return nil, fmt.Errorf("%w: blob shorter than IV", interfaces.ErrAuthenticationFailure)
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrAuthenticationFailure, err)
	}
	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrAuthenticationFailure, err)
	}

	iv := blob[:PayloadIVSize]
	ciphertext := blob[PayloadIVSize:]

	plaintext, err := aesGCM.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrAuthenticationFailure, err)
	}
	return plaintext, nil
}
