package cache

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestLRU_BasicGetPut(t *testing.T) {
	c := New[string, int](3, 0, nil)

	c.Put("a", 1)
	c.Put("b", 2)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_Eviction(t *testing.T) {
	c := New[string, int](2, 0, nil)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts "a"

	_, ok := c.Get("a")
	assert.False(t, ok, "a should have been evicted")

	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestLRU_AccessPromotesEntry(t *testing.T) {
	c := New[string, int](2, 0, nil)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRU_UpdateExisting(t *testing.T) {
	c := New[string, string](2, 0, nil)

	c.Put("a", "A1")
	c.Put("a", "A2")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", v)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_TTL(t *testing.T) {
	clk := clockwork.NewFakeClock()
	c := New[string, int](4, time.Minute, clk)

	c.Put("a", 1)
	clk.Advance(30 * time.Second)
	c.Put("b", 2)

	_, ok := c.Get("a")
	assert.True(t, ok)

	clk.Advance(30 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "a expired at exactly one minute")
	_, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len(), "expired entry removed on access")

	c.Put("b", 3)
	clk.Advance(45 * time.Second)
	v, ok := c.Get("b")
	assert.True(t, ok, "re-putting resets expiry")
	assert.Equal(t, 3, v)
}

func TestLRU_MinimumCapacity(t *testing.T) {
	c := New[int, int](0, 0, nil)

	c.Put(1, 1)
	c.Put(2, 2)

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(2)
	assert.True(t, ok)
}
