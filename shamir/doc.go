// Package shamir implements Shamir's Secret Sharing over GF(2^8) for
// splitting file encryption keys across custodian nodes.
//
// A secret is divided into n shares such that any k of them reconstruct
// it exactly while any k-1 reveal nothing. The custody system uses a
// 2-of-3 scheme: one share per custodian node, any two sufficient.
//
// # Field Arithmetic
//
// All arithmetic runs in GF(2^8) defined by the Rijndael polynomial
// x^8 + x^4 + x^3 + x + 1 (0x11b). Multiplication and division use
// exponentiation and discrete-log tables for generator 3, computed once
// at first use; addition and subtraction are bytewise XOR. The tables
// are immutable after initialization and safe for concurrent use.
//
// # Share Format
//
// A share is len(secret)+1 bytes. Byte 0 is the share's x-coordinate
// (1-indexed, unique per share); byte i+1 is the evaluation of secret
// byte i's polynomial at that coordinate. Shares are independent and
// interchangeable: reconstruction needs any k of them, in any order.
//
// The canonical transit encoding is lowercase hex (ShareToHex and
// HexToShare); shares embedded in JSON payloads always use it.
//
// # Splitting and Reconstruction
//
// Split draws a fresh random polynomial per secret byte with the secret
// byte as constant term, evaluating it by Horner's rule. Coefficients
// are wiped immediately after use and never persisted. Reconstruct
// performs Lagrange interpolation at x=0.
//
// Reconstruction with fewer shares than the split's threshold yields an
// incorrect secret without error - the scheme cannot detect it. Callers
// keep shares of one split grouped under their box content ID and must
// not mix shares across splits.
//
// # Usage Example
//
//	key := make([]byte, 32)
//	rand.Read(key)
//
//	shares, err := shamir.Split(key, 3, 2)
//	if err != nil {
//	    log.Fatalf("Failed to split key: %v", err)
//	}
//
//	// Any two shares recover the key.
//	recovered, err := shamir.Reconstruct(shares[:2])
//	if err != nil {
//	    log.Fatalf("Failed to reconstruct: %v", err)
//	}
package shamir
