package cryptoutils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// NewFileEncryptionKey generates a fresh random 32-byte file encryption
// key suitable for EncryptPayload and for splitting into custody shares.
func NewFileEncryptionKey() (interfaces.FileKey, error) {
	key := make(interfaces.FileKey, interfaces.FileKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: failed to generate file key: %v", interfaces.ErrEncryptionFailure, err)
	}
	return key, nil
}

// FileKeyToHex encodes a file encryption key as 64 lowercase hex
// characters for transit and storage manifests.
func FileKeyToHex(key interfaces.FileKey) string {
	return hex.EncodeToString(key)
}

// FileKeyFromHex decodes a 64-character hex string back into a file
// encryption key, rejecting malformed or wrong-length input.
func FileKeyFromHex(encoded string) (interfaces.FileKey, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid file key encoding: %w", err)
	}
	key := interfaces.FileKey(raw)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return key, nil
}
