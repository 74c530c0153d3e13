package interfaces

import "errors"

// Typed failures reported by the custody core. All core operations are
// deterministic pure functions; failures are returned synchronously and
// are never substituted with default or placeholder values.
var (
	// ErrInvalidThreshold is returned by the splitter when the requested
	// scheme violates 2 <= k <= n <= 255.
	ErrInvalidThreshold = errors.New("invalid threshold: need 2 <= threshold <= shares <= 255")

	// ErrInsufficientShares is returned when fewer than two shares are
	// supplied for reconstruction.
	ErrInsufficientShares = errors.New("insufficient shares for reconstruction")

	// ErrShareMismatch is returned when supplied shares cannot belong to
	// one split: duplicate x-coordinates or differing lengths.
	ErrShareMismatch = errors.New("shares do not form a consistent set")

	// ErrDivisionByZero signals a GF(256) division with a zero divisor.
	// Unreachable with valid, distinct share coordinates.
	ErrDivisionByZero = errors.New("division by zero in GF(256)")

	// ErrEncryptionFailure is returned when a sealing primitive fails.
	ErrEncryptionFailure = errors.New("share encryption failed")

	// ErrDecryptionFailure is returned on authenticated-decrypt failure:
	// tampered ciphertext or a key mismatch. No partial plaintext is
	// ever returned alongside it.
	ErrDecryptionFailure = errors.New("share decryption failed")

	// ErrAuthenticationFailure is returned by the payload cipher when
	// the GCM tag does not verify.
	ErrAuthenticationFailure = errors.New("payload authentication failed")
)

// Service-layer failures.
var (
	// ErrUnknownNode is returned for identifiers outside the fixed
	// custodian set.
	ErrUnknownNode = errors.New("unknown custodian node")

	// ErrShareNotFound is returned when a custodian holds no share for
	// the requested box.
	ErrShareNotFound = errors.New("no share held for box")

	// ErrAccessDenied is returned when the requester holds no grant for
	// the box.
	ErrAccessDenied = errors.New("access denied")

	// ErrNoQuorum is returned when too few custodians respond to
	// assemble a release quorum.
	ErrNoQuorum = errors.New("custodian quorum unavailable")

	// ErrBoxNotFound is returned when the registry has no record for
	// the requested content.
	ErrBoxNotFound = errors.New("box not registered")
)
