package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slot struct {
	id   uint64
	next Handle
}

func TestAcquireUntilExhausted(t *testing.T) {
	p := NewPool[slot](3)

	seen := map[Handle]bool{}
	for i := 0; i < 3; i++ {
		h, s, err := p.Acquire()
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.False(t, seen[h], "handle %d handed out twice", h)
		seen[h] = true
	}

	h, s, err := p.Acquire()
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, None, h)
	assert.Nil(t, s)
	assert.Equal(t, 3, p.Live())
}

func TestReleaseRecyclesSlot(t *testing.T) {
	p := NewPool[slot](1)

	h1, s1, err := p.Acquire()
	require.NoError(t, err)
	s1.id = 42

	p.Release(h1)
	assert.Equal(t, 1, p.Free())

	h2, s2, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	// Recycled slots are not zeroed; callers own field initialization.
	assert.Equal(t, uint64(42), s2.id)
}

func TestStableAddresses(t *testing.T) {
	p := NewPool[slot](8)

	h, s, err := p.Acquire()
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		_, _, err := p.Acquire()
		require.NoError(t, err)
	}
	assert.Same(t, s, p.At(h))
}

func TestResetZeroesAndRefills(t *testing.T) {
	p := NewPool[slot](4)

	h, s, err := p.Acquire()
	require.NoError(t, err)
	s.id = 7
	s.next = Handle(3)

	p.Reset()
	assert.Equal(t, 4, p.Free())
	assert.Equal(t, 0, p.Live())
	assert.Equal(t, uint64(0), p.At(h).id)
	assert.Equal(t, Handle(0), p.At(h).next)
}

func TestReleaseGuards(t *testing.T) {
	p := NewPool[slot](2)

	assert.Panics(t, func() { p.Release(Handle(99)) })

	// Releasing with a full free stack means the handle was never
	// acquired (or was released twice).
	assert.Panics(t, func() { p.Release(Handle(0)) })
}

func BenchmarkAcquireRelease(b *testing.B) {
	p := NewPool[slot](1024)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, _, _ := p.Acquire()
		p.Release(h)
	}
}
