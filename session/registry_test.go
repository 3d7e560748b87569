package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/identity"
)

func TestAddFindRemove(t *testing.T) {
	r := New()
	var creator identity.SignPublic
	creator[0] = 7

	s, err := r.Add([]byte("params"), creator, capability.Capability{})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	found, ok := r.Find(s.Identifier)
	require.True(t, ok)
	assert.Equal(t, s, found)

	removed, ok := r.Remove(s.Identifier)
	require.True(t, ok)
	assert.Equal(t, s, removed)
	assert.Equal(t, 0, r.Len())

	_, ok = r.Find(s.Identifier)
	assert.False(t, ok)
}

func TestRemoveIsOneShot(t *testing.T) {
	r := New()
	s, err := r.Add(nil, identity.SignPublic{}, capability.Capability{})
	require.NoError(t, err)

	_, ok := r.Remove(s.Identifier)
	require.True(t, ok)

	_, ok = r.Remove(s.Identifier)
	assert.False(t, ok, "a second Remove for the same id must fail")
}

func TestRemoveIsLinearizationPointUnderRace(t *testing.T) {
	r := New()
	s, err := r.Add(nil, identity.SignPublic{}, capability.Capability{})
	require.NoError(t, err)

	const racers = 16
	var wg sync.WaitGroup
	wins := make([]bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok := r.Remove(s.Identifier)
			wins[i] = ok
		}(i)
	}
	wg.Wait()

	count := 0
	for _, w := range wins {
		if w {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one racer should observe the removal")
}

func TestClear(t *testing.T) {
	r := New()
	for i := 0; i < 5; i++ {
		_, err := r.Add(nil, identity.SignPublic{}, capability.Capability{})
		require.NoError(t, err)
	}
	assert.Equal(t, 5, r.Len())
	r.Clear()
	assert.Equal(t, 0, r.Len())
}
