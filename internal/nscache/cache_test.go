package nscache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUDiscipline(t *testing.T) {
	c := New(DefaultCapacity)

	for i := 0; i < 17; i++ {
		c.Insert(fmt.Sprintf("file%d", i), i)
		time.Sleep(time.Millisecond)
	}

	_, ok := c.Lookup("file0")
	assert.False(t, ok, "first-inserted entry should have been evicted")

	idx, ok := c.Lookup("file16")
	require.True(t, ok)
	assert.Equal(t, 16, idx)

	assert.LessOrEqual(t, c.Len(), DefaultCapacity)
}

func TestLookupRenewsEntry(t *testing.T) {
	c := New(2)
	c.Insert("a", 1)
	time.Sleep(time.Millisecond)
	c.Insert("b", 2)

	_, ok := c.Lookup("a")
	require.True(t, ok)
	time.Sleep(time.Millisecond)

	// "a" was just touched, so inserting "c" should evict "b", not "a".
	c.Insert("c", 3)

	_, ok = c.Lookup("a")
	assert.True(t, ok)
	_, ok = c.Lookup("b")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New(4)
	c.Insert("a", 1)
	c.Invalidate("a")

	_, ok := c.Lookup("a")
	assert.False(t, ok)
}

func TestInvalidateBySS(t *testing.T) {
	c := New(4)
	c.Insert("a", 1)
	c.Insert("b", 2)
	c.Insert("c", 1)

	c.InvalidateBySS(1)

	_, ok := c.Lookup("a")
	assert.False(t, ok)
	_, ok = c.Lookup("c")
	assert.False(t, ok)
	_, ok = c.Lookup("b")
	assert.True(t, ok)
}
