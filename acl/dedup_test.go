package acl

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFact(t *testing.T, conv, slot string, value any) *Envelope {
	t.Helper()
	env, err := NewFact(conv, slot, value)
	require.NoError(t, err)
	return env
}

func TestRecentFilterSuppressesRepeats(t *testing.T) {
	f := NewRecentFilter(8)
	env := mustFact(t, "conv-1", "place", "Rome")

	assert.False(t, f.IsDuplicate(env))
	f.Remember(env)
	assert.True(t, f.IsDuplicate(env))

	other := mustFact(t, "conv-1", "place", "Lisbon")
	assert.False(t, f.IsDuplicate(other))
}

func TestRecentFilterRememberIsIdempotent(t *testing.T) {
	f := NewRecentFilter(8)
	env := mustFact(t, "conv-1", "place", "Rome")

	f.Remember(env)
	f.Remember(env)
	assert.Equal(t, 1, f.Len())
}

func TestRecentFilterEvictsOldestAtCapacity(t *testing.T) {
	f := NewRecentFilter(4)
	first := mustFact(t, "conv-0", "place", "Rome")
	f.Remember(first)
	for i := 1; i < 4; i++ {
		f.Remember(mustFact(t, fmt.Sprintf("conv-%d", i), "place", "Rome"))
	}
	assert.True(t, f.IsDuplicate(first))

	f.Remember(mustFact(t, "conv-4", "place", "Rome"))
	assert.False(t, f.IsDuplicate(first), "oldest key should be forgotten")
	assert.Equal(t, 4, f.Len())
}

func TestRecentFilterDefaultCapacity(t *testing.T) {
	f := NewRecentFilter(0)
	for i := 0; i < DefaultRecentCapacity; i++ {
		f.Remember(mustFact(t, fmt.Sprintf("conv-%d", i), "place", "Rome"))
	}
	assert.Equal(t, DefaultRecentCapacity, f.Len())

	f.Remember(mustFact(t, "conv-overflow", "place", "Rome"))
	assert.Equal(t, DefaultRecentCapacity, f.Len())
	assert.False(t, f.IsDuplicate(mustFact(t, "conv-0", "place", "Rome")))
}
