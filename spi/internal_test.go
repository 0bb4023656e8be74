package spi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyTableReusesHoles(t *testing.T) {
	c1, c2, c3, c4 := &SelectorCore{}, &SelectorCore{}, &SelectorCore{}, &SelectorCore{}
	k1, k2, k3, k4 := &SelectionKey{core: c1}, &SelectionKey{core: c2}, &SelectionKey{core: c3}, &SelectionKey{core: c4}

	var tab keyTable
	tab.add(k1)
	tab.add(k2)
	tab.add(k3)
	require.Equal(t, 3, tab.len())
	assert.Same(t, k2, tab.find(c2))

	require.True(t, tab.remove(k2))
	assert.False(t, tab.remove(k2))
	assert.Nil(t, tab.find(c2))
	assert.Equal(t, 2, tab.len())

	tab.add(k4)
	assert.Equal(t, 3, len(tab.keys), "hole should be reused before growing")
	assert.Equal(t, []*SelectionKey{k1, k4, k3}, tab.snapshot())

	tab.add(k2)
	assert.Equal(t, 4, tab.len())
	assert.Equal(t, 6, cap(tab.keys))
}

func TestKeyTableHaveValid(t *testing.T) {
	core := &SelectorCore{}
	k := &SelectionKey{core: core}
	var tab keyTable
	assert.False(t, tab.haveValid())

	tab.add(k)
	assert.False(t, tab.haveValid())
	k.valid.Store(true)
	assert.True(t, tab.haveValid())
}

func TestCancelledSetOrderAndDedup(t *testing.T) {
	s := newCancelledSet()
	a, b, c := &SelectionKey{}, &SelectionKey{}, &SelectionKey{}

	assert.True(t, s.add(a))
	assert.True(t, s.add(b))
	assert.False(t, s.add(a))
	assert.True(t, s.add(c))
	assert.Equal(t, 3, s.len())
	assert.Equal(t, []*SelectionKey{a, b, c}, s.snapshot())

	assert.Equal(t, []*SelectionKey{a, b, c}, s.drain())
	assert.Zero(t, s.len())
	assert.Nil(t, s.drain())

	// a drained key may be queued again
	assert.True(t, s.add(a))
	assert.Equal(t, []*SelectionKey{a}, s.snapshot())
}
