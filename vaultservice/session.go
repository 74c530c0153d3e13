package vaultservice

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ruteri/key-custody-backend/cryptoutils"
	"github.com/ruteri/key-custody-backend/custody"
	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/ruteri/key-custody-backend/shamir"
)

// ErrSessionIncomplete is returned when key material is requested from
// a session that has not yet collected a threshold of shares.
var ErrSessionIncomplete = errors.New("reconstruction session incomplete")

// ReconstructionSession collects released key material on the requester
// side. Re-encrypted shares are opened with the requester's identity as
// they arrive; once a threshold of them is on hand the file key is
// reconstructed and the plaintext shares are wiped. The session also
// accepts a directly released key for boxes that were never sharded.
type ReconstructionSession struct {
	mu        sync.Mutex
	identity  *custody.Identity
	threshold int
	shares    map[byte]interfaces.Share
	key       interfaces.FileKey
}

// NewReconstructionSession creates a session for a requester identity
// expecting the given reconstruction threshold.
func NewReconstructionSession(identity *custody.Identity, threshold int) (*ReconstructionSession, error) {
	if identity == nil {
		return nil, errors.New("reconstruction session requires an identity")
	}
	if threshold < 2 {
		return nil, fmt.Errorf("%w: reconstruction threshold %d", interfaces.ErrInvalidThreshold, threshold)
	}

	return &ReconstructionSession{
		identity:  identity,
		threshold: threshold,
		shares:    make(map[byte]interfaces.Share),
	}, nil
}

// AddShare opens a re-encrypted share with the session identity and
// files it under its x-coordinate. Submitting the same coordinate again
// replaces the earlier share. When a threshold of distinct shares is on
// hand the file key is reconstructed and the shares are wiped.
func (s *ReconstructionSession) AddShare(sealed interfaces.EncryptedShare) error {
	plaintext, err := s.identity.OpenFrom(sealed.Sender, sealed)
	if err != nil {
		return err
	}

	share := interfaces.Share(plaintext)
	if err := share.Validate(); err != nil {
		wipeShare(share)
		return fmt.Errorf("%w: %v", interfaces.ErrShareMismatch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		wipeShare(share)
		return nil
	}

	if previous, ok := s.shares[share.XCoordinate()]; ok {
		wipeShare(previous)
	}
	s.shares[share.XCoordinate()] = share

	return s.tryReconstruct()
}

// AddDirectKey opens a directly released key with the session identity.
func (s *ReconstructionSession) AddDirectKey(sealed interfaces.EncryptedShare) error {
	plaintext, err := s.identity.OpenFrom(sealed.Sender, sealed)
	if err != nil {
		return err
	}

	key := interfaces.FileKey(plaintext)
	if err := key.Validate(); err != nil {
		wipeShare(key)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setKey(key)
	return nil
}

// AddRelease files every piece of a KeyRelease, shares and direct key
// alike.
func (s *ReconstructionSession) AddRelease(release *KeyRelease) error {
	for _, released := range release.Shares {
		if err := s.AddShare(released.Share); err != nil {
			return err
		}
	}
	if release.Key != nil {
		if err := s.AddDirectKey(*release.Key); err != nil {
			return err
		}
	}
	return nil
}

// tryReconstruct combines the collected shares once a threshold of them
// is on hand. Collected shares are wiped after reconstruction. Callers
// must hold the session lock.
func (s *ReconstructionSession) tryReconstruct() error {
	if len(s.shares) < s.threshold {
		return nil
	}

	shares := make([]interfaces.Share, 0, len(s.shares))
	for _, share := range s.shares {
		shares = append(shares, share)
	}

	key, err := shamir.Reconstruct(shares)
	if err != nil {
		return fmt.Errorf("failed to reconstruct file key: %w", err)
	}

	if err := interfaces.FileKey(key).Validate(); err != nil {
		wipeShare(key)
		return fmt.Errorf("reconstructed key is malformed: %w", err)
	}

	s.setKey(key)
	return nil
}

// setKey installs the recovered key and wipes collected shares. Callers
// must hold the session lock.
func (s *ReconstructionSession) setKey(key interfaces.FileKey) {
	s.key = key
	for _, share := range s.shares {
		wipeShare(share)
	}
	s.shares = make(map[byte]interfaces.Share)
}

// Complete reports whether the file key has been recovered.
func (s *ReconstructionSession) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != nil
}

// SharesCollected returns the number of distinct shares on hand.
func (s *ReconstructionSession) SharesCollected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shares)
}

// FileKey returns the recovered file key, or ErrSessionIncomplete if
// too few shares have been collected.
func (s *ReconstructionSession) FileKey() (interfaces.FileKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key == nil {
		return nil, fmt.Errorf("%w: %d of %d shares collected", ErrSessionIncomplete, len(s.shares), s.threshold)
	}

	key := make(interfaces.FileKey, len(s.key))
	copy(key, s.key)
	return key, nil
}

// Material returns the session's custody state in wire form: the hex
// key once recovered, the hex shares collected so far otherwise.
func (s *ReconstructionSession) Material() interfaces.FileKeyMaterial {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return interfaces.FileKeyMaterial{EncryptionKey: cryptoutils.FileKeyToHex(s.key)}
	}

	material := interfaces.FileKeyMaterial{}
	for _, share := range s.shares {
		material.Shares = append(material.Shares, shamir.ShareToHex(share))
	}
	return material
}

// Decrypt opens a payload blob with the recovered file key.
func (s *ReconstructionSession) Decrypt(blob []byte) ([]byte, error) {
	key, err := s.FileKey()
	if err != nil {
		return nil, err
	}
	defer wipeShare(key)
	return cryptoutils.DecryptPayload(blob, key)
}

// Wipe zeroes all key material held by the session.
func (s *ReconstructionSession) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, share := range s.shares {
		wipeShare(share)
	}
	s.shares = make(map[byte]interfaces.Share)

	if s.key != nil {
		wipeShare(s.key)
		s.key = nil
	}
}
