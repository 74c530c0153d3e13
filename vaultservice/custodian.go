package vaultservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/interfaces"
)

// CustodianNode is one share custodian. It holds re-encryption shares
// sealed to its node identity, keyed by box, and re-seals them for
// requesters on demand. The node's secret key stays inside the wrapped
// identity; shares are stored and returned only in sealed form.
type CustodianNode struct {
	identity *custody.Identity
	log      *slog.Logger

	mu     sync.RWMutex
	shares map[interfaces.ContentID]interfaces.EncryptedShare
}

// NewCustodianNode creates a custodian node around a node identity.
// Ephemeral identities are rejected: a custodian must be one of the
// fixed set so uploaders can address it through governance.
func NewCustodianNode(identity *custody.Identity, log *slog.Logger) (*CustodianNode, error) {
	if identity == nil {
		return nil, errors.New("custodian node requires an identity")
	}
	if err := identity.NodeID().Validate(); err != nil {
		return nil, fmt.Errorf("custodian node requires a node identity: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	return &CustodianNode{
		identity: identity,
		log:      log.With("node", identity.NodeID().String()),
		shares:   make(map[interfaces.ContentID]interfaces.EncryptedShare),
	}, nil
}

// NodeID returns the custodian's identifier within the fixed set.
func (c *CustodianNode) NodeID() interfaces.NodeID {
	return c.identity.NodeID()
}

// PublicKey returns the node's X25519 public key for sealing.
func (c *CustodianNode) PublicKey() interfaces.NodePublicKey {
	return c.identity.PublicKey()
}

// StoreShare accepts a share sealed to this node, keyed by box. Storing
// a share for a box that already has one replaces it, so uploads can be
// retried and shares redelivered after a restart. The share must open
// under this node's key: delivery of a share sealed elsewhere fails
// with ErrDecryptionFailure.
func (c *CustodianNode) StoreShare(ctx context.Context, box interfaces.ContentID, share interfaces.EncryptedShare) error {
	if share.Sender.IsZero() {
		return fmt.Errorf("%w: stored share declares no sender", interfaces.ErrDecryptionFailure)
	}
	if len(share.Ciphertext) == 0 {
		return fmt.Errorf("%w: stored share has no ciphertext", interfaces.ErrDecryptionFailure)
	}

	plaintext, err := c.identity.OpenFrom(share.Sender, share)
	if err != nil {
		c.log.Warn("rejected share not sealed to this node", "box", box.String(), "err", err)
		return err
	}
	wipeShare(plaintext)

	c.mu.Lock()
	c.shares[box] = share
	c.mu.Unlock()

	c.log.Info("stored share", "box", box.String(), "sender", share.Sender.String())
	return nil
}

// Reencrypt opens the held share for a box and re-seals it for the
// recipient public key. A failed open propagates ErrDecryptionFailure;
// the plaintext share is never disclosed and no placeholder is
// substituted.
func (c *CustodianNode) Reencrypt(ctx context.Context, box interfaces.ContentID, recipient interfaces.NodePublicKey) (interfaces.EncryptedShare, error) {
	c.mu.RLock()
	sealed, ok := c.shares[box]
	c.mu.RUnlock()

	if !ok {
		return interfaces.EncryptedShare{}, fmt.Errorf("%w: %s", interfaces.ErrShareNotFound, box.String())
	}

	resealed, err := c.identity.Reencrypt(sealed, recipient)
	if err != nil {
		c.log.Warn("re-encrypt failed", "box", box.String(), "recipient", recipient.String(), "err", err)
		return interfaces.EncryptedShare{}, err
	}

	c.log.Info("re-encrypted share", "box", box.String(), "recipient", recipient.String())
	return resealed, nil
}

// HasShare reports whether the node holds a share for the box.
func (c *CustodianNode) HasShare(box interfaces.ContentID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.shares[box]
	return ok
}

// SharesHeld returns the number of boxes this node holds shares for.
func (c *CustodianNode) SharesHeld() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.shares)
}

// DropShare removes the held share for a box, for custody rotation.
func (c *CustodianNode) DropShare(box interfaces.ContentID) {
	c.mu.Lock()
	delete(c.shares, box)
	c.mu.Unlock()
	c.log.Info("dropped share", "box", box.String())
}

// wipeShare zeroes a plaintext share buffer.
func wipeShare(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
