package custody

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"

	"github.com/ruteri/key-custody-backend/interfaces"
)

// ReleasePolicy selects which share indices to disclose per key-release
// request. Exactly one custodian is withheld per quorum release, so the
// scheme must satisfy total == threshold+1. Selection is re-randomized
// from a CSPRNG on every call and never cached.
type ReleasePolicy struct {
	threshold int
	total     int
}

// NewReleasePolicy creates a policy for a threshold-of-total scheme.
func NewReleasePolicy(threshold, total int) (*ReleasePolicy, error) {
	if threshold < 2 || total != threshold+1 || total > 255 {
		return nil, fmt.Errorf("%w: release policy %d of %d", interfaces.ErrInvalidThreshold, threshold, total)
	}
	return &ReleasePolicy{threshold: threshold, total: total}, nil
}

// DefaultReleasePolicy returns the 2-of-3 custodian scheme.
func DefaultReleasePolicy() *ReleasePolicy {
	return &ReleasePolicy{threshold: 2, total: 3}
}

// Threshold returns the number of shares disclosed per release.
func (p *ReleasePolicy) Threshold() int {
	return p.threshold
}

// Total returns the number of custodians in the scheme.
func (p *ReleasePolicy) Total() int {
	return p.total
}

// Release decides how key material is disclosed for one request, given
// how many shares are on file for the box.
//
// With a full complement of shares the policy draws a fresh uniform
// permutation, releases the first threshold indices, and withholds the
// last. With fewer shares on file than the scheme requires, the box was
// stored without sharding and the policy degrades to direct key
// release.
func (p *ReleasePolicy) Release(sharesOnFile int) (interfaces.ReleaseRecord, error) {
	if sharesOnFile < 0 || sharesOnFile > p.total {
		return interfaces.ReleaseRecord{}, fmt.Errorf("%w: %d shares on file for a %d-node scheme", interfaces.ErrShareMismatch, sharesOnFile, p.total)
	}

	if sharesOnFile < p.total {
		return interfaces.ReleaseRecord{
			Mode:      interfaces.ReleaseModeDirect,
			Threshold: p.threshold,
			Total:     sharesOnFile,
		}, nil
	}

	indices := make([]int, p.total)
	for i := range indices {
		indices[i] = i + 1
	}
	if err := shuffle(indices); err != nil {
		return interfaces.ReleaseRecord{}, err
	}

	released := append([]int(nil), indices[:p.threshold]...)
	sort.Ints(released)

	return interfaces.ReleaseRecord{
		Mode:            interfaces.ReleaseModeQuorum,
		ReleasedIndices: released,
		WithheldIndex:   indices[p.total-1],
		Threshold:       p.threshold,
		Total:           p.total,
	}, nil
}

// shuffle applies a uniform Fisher-Yates permutation driven by
// crypto/rand.
func shuffle(indices []int) error {
	for i := len(indices) - 1; i > 0; i-- {
		draw, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("failed to draw release permutation: %w", err)
		}
		j := int(draw.Int64())
		indices[i], indices[j] = indices[j], indices[i]
	}
	return nil
}
