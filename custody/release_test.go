package custody

import (
	"testing"

	"github.com/ruteri/key-custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReleasePolicy(t *testing.T) {
	policy, err := NewReleasePolicy(2, 3)
	require.NoError(t, err, "2-of-3 should be a valid scheme")
	assert.Equal(t, 2, policy.Threshold(), "Threshold should be 2")
	assert.Equal(t, 3, policy.Total(), "Total should be 3")

	_, err = NewReleasePolicy(1, 2)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold, "Threshold below 2 should be rejected")

	_, err = NewReleasePolicy(2, 4)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold, "Schemes withholding more than one node should be rejected")

	_, err = NewReleasePolicy(3, 2)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold, "Threshold above total should be rejected")
}

func TestRelease_Quorum(t *testing.T) {
	policy := DefaultReleasePolicy()

	record, err := policy.Release(3)
	require.NoError(t, err, "Release should succeed with a full complement")

	assert.Equal(t, interfaces.ReleaseModeQuorum, record.Mode, "Full complement should release a quorum")
	assert.Equal(t, 2, len(record.ReleasedIndices), "Exactly two shares should be released")
	assert.Equal(t, 2, record.Threshold, "Record should carry the threshold")
	assert.Equal(t, 3, record.Total, "Record should carry the total")

	// Released and withheld indices partition {1,2,3}.
	seen := map[int]bool{record.WithheldIndex: true}
	for _, index := range record.ReleasedIndices {
		assert.False(t, seen[index], "Indices should not repeat")
		seen[index] = true
	}
	assert.Equal(t, 3, len(seen), "Released plus withheld should cover all three nodes")
	for index := 1; index <= 3; index++ {
		assert.True(t, seen[index], "Index %d should appear in the record", index)
	}
}

func TestRelease_DirectFallback(t *testing.T) {
	policy := DefaultReleasePolicy()

	for _, sharesOnFile := range []int{0, 1, 2} {
		record, err := policy.Release(sharesOnFile)
		require.NoError(t, err, "Direct fallback should not error for %d shares", sharesOnFile)
		assert.Equal(t, interfaces.ReleaseModeDirect, record.Mode, "Fewer shares than the scheme should degrade to direct release")
		assert.Empty(t, record.ReleasedIndices, "Direct release discloses no share indices")
		assert.Zero(t, record.WithheldIndex, "Direct release withholds nothing")
	}

	// More shares than custodians is an invalid state, not a fallback.
	_, err := policy.Release(4)
	assert.ErrorIs(t, err, interfaces.ErrShareMismatch, "Shares exceeding the scheme should be rejected")
}

func TestRelease_WithholdingIsUniform(t *testing.T) {
	policy := DefaultReleasePolicy()

	const calls = 10000
	withheld := make(map[int]int, 3)
	for i := 0; i < calls; i++ {
		record, err := policy.Release(3)
		require.NoError(t, err, "Release should succeed")
		withheld[record.WithheldIndex]++
	}

	// Each node should be withheld roughly a third of the time. The
	// bounds sit far outside sampling noise for 10k draws but catch
	// any systematic bias.
	require.Equal(t, 3, len(withheld), "Every node should be withheld at least once")
	for index := 1; index <= 3; index++ {
		assert.Greater(t, withheld[index], calls/3-500, "Node %d withheld too rarely: %d of %d", index, withheld[index], calls)
		assert.Less(t, withheld[index], calls/3+500, "Node %d withheld too often: %d of %d", index, withheld[index], calls)
	}
}

func TestRelease_SelectionIsFresh(t *testing.T) {
	policy := DefaultReleasePolicy()

	// Consecutive releases must not always agree; with uniform draws
	// the chance of 50 identical selections is (1/3)^49.
	first, err := policy.Release(3)
	require.NoError(t, err, "Release should succeed")

	varied := false
	for i := 0; i < 50 && !varied; i++ {
		record, err := policy.Release(3)
		require.NoError(t, err, "Release should succeed")
		if record.WithheldIndex != first.WithheldIndex {
			varied = true
		}
	}
	assert.True(t, varied, "Selection should be re-randomized across requests")
}
