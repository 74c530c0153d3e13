package vaultservice

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// ShareBundle is the stored key-material record for one box. For a
// sharded box it carries one sealed share per custodian; for a
// direct-custody box it carries the whole file key sealed to the key
// service. Every field is ciphertext or public metadata, so bundles can
// be replicated to untrusted storage backends.
type ShareBundle struct {
	// PayloadID identifies the box the bundle belongs to.
	PayloadID interfaces.ContentID `json:"payload_id"`

	// Threshold and Total describe the release scheme in force when the
	// bundle was created.
	Threshold int `json:"threshold"`
	Total     int `json:"total"`

	// Shares maps each custodian to its sealed share. Empty for
	// direct-custody bundles.
	Shares map[interfaces.NodeID]interfaces.EncryptedShare `json:"shares,omitempty"`

	// Key is the whole file key sealed to the key service, set only for
	// direct-custody bundles.
	Key *interfaces.EncryptedShare `json:"key,omitempty"`
}

// Sharded reports whether the bundle holds per-custodian shares.
func (b *ShareBundle) Sharded() bool {
	return len(b.Shares) > 0
}

// Validate checks the bundle holds exactly one kind of key material and
// that sharded bundles name only known custodians.
func (b *ShareBundle) Validate() error {
	if b.Sharded() == (b.Key != nil) {
		return errors.New("bundle must hold either custodian shares or a sealed key")
	}

	if b.Sharded() {
		if b.Threshold < 2 || b.Total < b.Threshold {
			return fmt.Errorf("%w: bundle declares %d of %d", interfaces.ErrInvalidThreshold, b.Threshold, b.Total)
		}
		if len(b.Shares) != b.Total {
			return fmt.Errorf("%w: bundle holds %d shares for a %d-node scheme", interfaces.ErrShareMismatch, len(b.Shares), b.Total)
		}
		for id := range b.Shares {
			if err := id.Validate(); err != nil {
				return err
			}
		}
	}

	return nil
}

// EncodeShareBundle serializes a bundle to its canonical JSON form.
func EncodeShareBundle(bundle *ShareBundle) ([]byte, error) {
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(bundle)
}

// DecodeShareBundle parses and validates a stored bundle.
func DecodeShareBundle(data []byte) (*ShareBundle, error) {
	var bundle ShareBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("malformed share bundle: %w", err)
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return &bundle, nil
}
