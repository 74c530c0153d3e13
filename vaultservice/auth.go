package vaultservice

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/ruteri/key-custody-backend/interfaces"
)

// DefaultChallengeTTL bounds how long an issued release challenge stays
// redeemable.
const DefaultChallengeTTL = 5 * time.Minute

// ErrUnknownChallenge is returned when a challenge id is not on file,
// already redeemed, or expired.
var ErrUnknownChallenge = errors.New("unknown or expired challenge")

// ReleaseChallenge is a single-use nonce a requester signs with their
// wallet key to prove control of the requesting address.
type ReleaseChallenge struct {
	// ID identifies the challenge on redemption.
	ID uuid.UUID `json:"id"`

	// BoxID is the box the signed request applies to.
	BoxID interfaces.ContentID `json:"box_id"`

	// Nonce is the random challenge material.
	Nonce [32]byte `json:"-"`

	// IssuedAt is the challenge creation time.
	IssuedAt time.Time `json:"issued_at"`
}

// SigningHash returns the 32-byte digest the requester signs. The
// digest binds the box id together with the nonce, so a signature
// cannot be replayed against another box.
func (c *ReleaseChallenge) SigningHash() [32]byte {
	var digest [32]byte
	copy(digest[:], crypto.Keccak256([]byte("key-release:"), c.BoxID.Bytes(), c.Nonce[:]))
	return digest
}

// ChallengeStore issues and redeems release challenges. Challenges are
// single-use: any redemption attempt consumes the challenge whether or
// not the signature verifies.
type ChallengeStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	challenges map[uuid.UUID]*ReleaseChallenge
	now        func() time.Time
}

// NewChallengeStore creates a store with the given challenge lifetime.
// A non-positive ttl selects DefaultChallengeTTL.
func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &ChallengeStore{
		ttl:        ttl,
		challenges: make(map[uuid.UUID]*ReleaseChallenge),
		now:        time.Now,
	}
}

// Issue creates a challenge for a box release request.
func (s *ChallengeStore) Issue(boxID interfaces.ContentID) (*ReleaseChallenge, error) {
	challenge := &ReleaseChallenge{
		ID:    uuid.New(),
		BoxID: boxID,
	}
	if _, err := rand.Read(challenge.Nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate challenge nonce: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	challenge.IssuedAt = s.now()
	s.prune()
	s.challenges[challenge.ID] = challenge

	return challenge, nil
}

// Redeem consumes a challenge and recovers the wallet address that
// signed it. The challenge must have been issued for boxID; a valid
// signature redeemed against any other box is rejected. The signature
// is the 65-byte [R || S || V] form over SigningHash, as produced by
// go-ethereum's crypto.Sign.
func (s *ChallengeStore) Redeem(id uuid.UUID, boxID interfaces.ContentID, signature []byte) (interfaces.ContractAddress, error) {
	s.mu.Lock()
	challenge, ok := s.challenges[id]
	if ok {
		delete(s.challenges, id)
	}
	expired := ok && s.now().Sub(challenge.IssuedAt) > s.ttl
	s.mu.Unlock()

	if !ok || expired {
		return interfaces.ContractAddress{}, ErrUnknownChallenge
	}
	if challenge.BoxID != boxID {
		return interfaces.ContractAddress{}, fmt.Errorf("%w: challenge was issued for a different box", interfaces.ErrAccessDenied)
	}

	digest := challenge.SigningHash()
	pubkey, err := crypto.SigToPub(digest[:], signature)
	if err != nil {
		return interfaces.ContractAddress{}, fmt.Errorf("%w: signature not valid: %v", interfaces.ErrAccessDenied, err)
	}

	return interfaces.ContractAddress(crypto.PubkeyToAddress(*pubkey)), nil
}

// Pending returns the number of unredeemed challenges on file.
func (s *ChallengeStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// prune drops expired challenges. Callers must hold the store lock.
func (s *ChallengeStore) prune() {
	cutoff := s.now().Add(-s.ttl)
	for id, challenge := range s.challenges {
		if challenge.IssuedAt.Before(cutoff) {
			delete(s.challenges, id)
		}
	}
}
