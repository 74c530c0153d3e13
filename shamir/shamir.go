package shamir

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ruteri/key-custody-backend/interfaces"
)

const (
	// MinThreshold is the smallest meaningful reconstruction threshold.
	MinThreshold = 2

	// MaxShares bounds the share count to the non-zero field elements.
	MaxShares = 255
)

// Split divides a secret into n shares such that any k of them suffice
// to reconstruct it, while fewer than k reveal nothing.
//
// For each byte of the secret a fresh degree-(k-1) polynomial is drawn
// with the secret byte as its constant term and cryptographically random
// higher coefficients, then evaluated at x = 1..n. Byte 0 of each share
// holds its x-coordinate; byte i+1 holds the evaluation for secret byte
// i, so every share is exactly one byte longer than the secret.
//
// Parameters:
//   - secret: The bytes to protect, typically a 32-byte file key
//   - n: The number of shares to produce
//   - k: The number of shares required to reconstruct
//
// Returns:
//   - n shares of length len(secret)+1
//   - ErrInvalidThreshold unless 2 <= k <= n <= 255
func Split(secret []byte, n, k int) ([]interfaces.Share, error) {
	if k < MinThreshold || k > n || n > MaxShares {
		return nil, fmt.Errorf("%w: threshold %d of %d", interfaces.ErrInvalidThreshold, k, n)
	}
	if len(secret) == 0 {
		return nil, errors.New("cannot split an empty secret")
	}

	shares := make([]interfaces.Share, n)
	for x := range shares {
		shares[x] = make(interfaces.Share, len(secret)+1)
		shares[x][0] = byte(x + 1)
	}

	// Coefficient 0 is the secret byte; the rest are drawn fresh per
	// byte position and discarded after evaluation.
	coefficients := make([]byte, k)
	defer wipe(coefficients)

	for i, secretByte := range secret {
		coefficients[0] = secretByte
		if _, err := rand.Read(coefficients[1:]); err != nil {
			return nil, fmt.Errorf("failed to draw polynomial coefficients: %w", err)
		}

		for x := 1; x <= n; x++ {
			shares[x-1][i+1] = evaluate(coefficients, byte(x))
		}
	}

	return shares, nil
}

// Reconstruct recovers the secret from a set of shares of one split.
//
// Each secret byte is the Lagrange interpolation of the corresponding
// share bytes at x=0. Supplying at least the split's threshold yields
// the original secret byte-for-byte; supplying fewer valid shares than
// the threshold yields garbage without error, which is inherent to the
// scheme. Shares from different splits are not detectable here beyond
// length and coordinate checks; callers group shares by box content ID.
//
// Parameters:
//   - shares: At least two equal-length shares with distinct x-coordinates
//
// Returns:
//   - The interpolated secret, one byte shorter than each share
//   - ErrInsufficientShares for fewer than two shares
//   - ErrShareMismatch for length or coordinate inconsistencies
func Reconstruct(shares []interfaces.Share) ([]byte, error) {
	if len(shares) < MinThreshold {
		return nil, fmt.Errorf("%w: have %d, need at least %d", interfaces.ErrInsufficientShares, len(shares), MinThreshold)
	}

	shareLen := len(shares[0])
	if shareLen < 2 {
		return nil, fmt.Errorf("%w: share of %d bytes", interfaces.ErrShareMismatch, shareLen)
	}

	seen := make(map[byte]bool, len(shares))
	for _, share := range shares {
		if len(share) != shareLen {
			return nil, fmt.Errorf("%w: share lengths differ", interfaces.ErrShareMismatch)
		}
		x := share.XCoordinate()
		if x == 0 {
			return nil, fmt.Errorf("%w: zero x-coordinate", interfaces.ErrShareMismatch)
		}
		if seen[x] {
			return nil, fmt.Errorf("%w: duplicate x-coordinate %d", interfaces.ErrShareMismatch, x)
		}
		seen[x] = true
	}

	secret := make([]byte, shareLen-1)
	for i := range secret {
		value, err := interpolateAtZero(shares, i+1)
		if err != nil {
			return nil, err
		}
		secret[i] = value
	}
	return secret, nil
}

// evaluate computes the polynomial at x using Horner's rule in GF(2^8).
// coefficients[0] is the constant term.
func evaluate(coefficients []byte, x byte) byte {
	result := coefficients[len(coefficients)-1]
	for i := len(coefficients) - 2; i >= 0; i-- {
		result = gfMul(result, x) ^ coefficients[i]
	}
	return result
}

// interpolateAtZero evaluates the Lagrange interpolation of the shares'
// byte at position pos at x=0. The basis value for share i is
// prod_{j != i} x_j / (x_i ^ x_j); subtraction is XOR in a field of
// characteristic 2.
func interpolateAtZero(shares []interfaces.Share, pos int) (byte, error) {
	var result byte
	for i, si := range shares {
		basis := byte(1)
		for j, sj := range shares {
			if i == j {
				continue
			}
			term, err := gfDiv(sj[0], si[0]^sj[0])
			if err != nil {
				return 0, err
			}
			basis = gfMul(basis, term)
		}
		result ^= gfMul(basis, si[pos])
	}
	return result, nil
}

// wipe zeroes a buffer holding polynomial coefficients.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
