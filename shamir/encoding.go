package shamir

import (
	"encoding/hex"
	"fmt"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// ShareToHex returns the canonical wire encoding of a share: lowercase
// hex, two characters per byte.
func ShareToHex(share interfaces.Share) string {
	return hex.EncodeToString(share)
}

// HexToShare decodes a hex-encoded share and validates its shape.
// Decoding is the inverse of ShareToHex: HexToShare(ShareToHex(s))
// always returns s.
func HexToShare(encoded string) (interfaces.Share, error) {
	decoded, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid share encoding: %w", err)
	}

	share := interfaces.Share(decoded)
	if err := share.Validate(); err != nil {
		return nil, fmt.Errorf("decoded share is malformed: %w", err)
	}
	return share, nil
}

// SharesToHex encodes a share set for transit.
func SharesToHex(shares []interfaces.Share) []string {
	encoded := make([]string, len(shares))
	for i, share := range shares {
		encoded[i] = ShareToHex(share)
	}
	return encoded
}

// SharesFromHex decodes a share set received over the wire.
func SharesFromHex(encoded []string) ([]interfaces.Share, error) {
	shares := make([]interfaces.Share, len(encoded))
	for i, e := range encoded {
		share, err := HexToShare(e)
		if err != nil {
			return nil, fmt.Errorf("share %d: %w", i, err)
		}
		shares[i] = share
	}
	return shares, nil
}
