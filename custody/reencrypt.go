package custody

import (
	"fmt"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// Reencrypt opens a share sealed to this node and re-seals it for the
// recipient's public key, with this node's key as the sealing key. The
// plaintext share exists only inside this call and is wiped before
// returning; the node's secret key never leaves custody.
//
// The declared sender travels inside the sealed share. A failed open
// propagates ErrDecryptionFailure to the caller - the share is never
// passed through unencrypted and no placeholder is substituted.
//
// Parameters:
//   - sealed: A share sealed to this node, carrying its sender key
//   - recipient: The public key to re-seal the share for
//
// Returns:
//   - The share re-sealed for the recipient, sender set to this node
//   - ErrDecryptionFailure if authentication of the input fails
//   - ErrEncryptionFailure if re-sealing fails
func (n *Identity) Reencrypt(sealed interfaces.EncryptedShare, recipient interfaces.NodePublicKey) (interfaces.EncryptedShare, error) {
	if sealed.Sender.IsZero() {
		return interfaces.EncryptedShare{}, fmt.Errorf("%w: sealed share declares no sender", interfaces.ErrDecryptionFailure)
	}

	plaintext, err := n.OpenFrom(sealed.Sender, sealed)
	if err != nil {
		return interfaces.EncryptedShare{}, err
	}
	defer wipe(plaintext)

	resealed, err := n.SealTo(recipient, plaintext)
	if err != nil {
		return interfaces.EncryptedShare{}, err
	}
	return resealed, nil
}

// wipe zeroes a plaintext share buffer.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
