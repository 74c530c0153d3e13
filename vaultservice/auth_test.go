package vaultservice

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// TestChallengeStore_RedeemRecoversSigner tests the signature round trip
func TestChallengeStore_RedeemRecoversSigner(t *testing.T) {
	store := NewChallengeStore(0)
	boxID := interfaces.ComputeID([]byte("payload"))

	wallet, err := crypto.GenerateKey()
	require.NoError(t, err, "should generate wallet key")
	expected := interfaces.ContractAddress(crypto.PubkeyToAddress(wallet.PublicKey))

	challenge, err := store.Issue(boxID)
	require.NoError(t, err, "should issue challenge")
	assert.Equal(t, boxID, challenge.BoxID, "challenge should bind the box")
	assert.Equal(t, 1, store.Pending(), "challenge should be on file")

	digest := challenge.SigningHash()
	signature, err := crypto.Sign(digest[:], wallet)
	require.NoError(t, err, "should sign challenge")

	recovered, err := store.Redeem(challenge.ID, boxID, signature)
	require.NoError(t, err, "redeem should succeed")
	assert.Equal(t, expected, recovered, "recovered address should match the signer")
	assert.Equal(t, 0, store.Pending(), "redeemed challenge should be consumed")
}

// TestChallengeStore_SingleUse tests that challenges cannot be replayed
func TestChallengeStore_SingleUse(t *testing.T) {
	store := NewChallengeStore(0)
	boxID := interfaces.ComputeID([]byte("payload"))

	wallet, err := crypto.GenerateKey()
	require.NoError(t, err, "should generate wallet key")

	challenge, err := store.Issue(boxID)
	require.NoError(t, err, "should issue challenge")

	digest := challenge.SigningHash()
	signature, err := crypto.Sign(digest[:], wallet)
	require.NoError(t, err, "should sign challenge")

	_, err = store.Redeem(challenge.ID, boxID, signature)
	require.NoError(t, err, "first redeem should succeed")

	_, err = store.Redeem(challenge.ID, boxID, signature)
	require.ErrorIs(t, err, ErrUnknownChallenge, "second redeem must fail")

	// A garbage signature still consumes the challenge.
	burned, err := store.Issue(boxID)
	require.NoError(t, err, "should issue challenge")

	_, err = store.Redeem(burned.ID, boxID, []byte("not a signature"))
	require.ErrorIs(t, err, interfaces.ErrAccessDenied, "garbage signature must be rejected")

	_, err = store.Redeem(burned.ID, boxID, signature)
	require.ErrorIs(t, err, ErrUnknownChallenge, "failed redeem must consume the challenge")
}

// TestChallengeStore_BoxBinding tests that a challenge cannot be
// redeemed against a box it was not issued for
func TestChallengeStore_BoxBinding(t *testing.T) {
	store := NewChallengeStore(0)
	issuedFor := interfaces.ComputeID([]byte("box-a"))
	other := interfaces.ComputeID([]byte("box-b"))

	wallet, err := crypto.GenerateKey()
	require.NoError(t, err, "should generate wallet key")

	challenge, err := store.Issue(issuedFor)
	require.NoError(t, err, "should issue challenge")

	digest := challenge.SigningHash()
	signature, err := crypto.Sign(digest[:], wallet)
	require.NoError(t, err, "should sign challenge")

	_, err = store.Redeem(challenge.ID, other, signature)
	require.ErrorIs(t, err, interfaces.ErrAccessDenied, "redeem against another box must fail")

	_, err = store.Redeem(challenge.ID, issuedFor, signature)
	require.ErrorIs(t, err, ErrUnknownChallenge, "mismatched redeem must consume the challenge")
}

// TestChallengeStore_Expiry tests challenge lifetime enforcement
func TestChallengeStore_Expiry(t *testing.T) {
	store := NewChallengeStore(time.Minute)

	current := time.Unix(1700000000, 0)
	store.now = func() time.Time { return current }

	boxID := interfaces.ComputeID([]byte("payload"))

	wallet, err := crypto.GenerateKey()
	require.NoError(t, err, "should generate wallet key")

	challenge, err := store.Issue(boxID)
	require.NoError(t, err, "should issue challenge")

	digest := challenge.SigningHash()
	signature, err := crypto.Sign(digest[:], wallet)
	require.NoError(t, err, "should sign challenge")

	current = current.Add(2 * time.Minute)
	_, err = store.Redeem(challenge.ID, boxID, signature)
	require.ErrorIs(t, err, ErrUnknownChallenge, "expired challenge must not redeem")

	// Issuing prunes stale entries.
	stale, err := store.Issue(interfaces.ComputeID([]byte("a")))
	require.NoError(t, err, "should issue challenge")
	_ = stale
	current = current.Add(2 * time.Minute)
	_, err = store.Issue(interfaces.ComputeID([]byte("b")))
	require.NoError(t, err, "should issue challenge")
	assert.Equal(t, 1, store.Pending(), "expired challenges should be pruned on issue")
}

// TestChallengeStore_UnknownID tests redemption of a never-issued id
func TestChallengeStore_UnknownID(t *testing.T) {
	store := NewChallengeStore(0)

	_, err := store.Redeem(uuid.New(), interfaces.ComputeID([]byte("payload")), []byte("signature"))
	require.ErrorIs(t, err, ErrUnknownChallenge, "unknown id must fail")
}

// TestReleaseChallenge_DigestBindsBox tests digest separation across boxes
func TestReleaseChallenge_DigestBindsBox(t *testing.T) {
	a := &ReleaseChallenge{BoxID: interfaces.ComputeID([]byte("box-a"))}
	b := &ReleaseChallenge{BoxID: interfaces.ComputeID([]byte("box-b"))}
	// Same nonce, different box.
	copy(a.Nonce[:], []byte("0123456789abcdef0123456789abcdef"))
	b.Nonce = a.Nonce

	assert.NotEqual(t, a.SigningHash(), b.SigningHash(), "digest must bind the box id")
}
