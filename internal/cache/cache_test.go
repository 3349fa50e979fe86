package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSet(t *testing.T) {
	c := New()

	_, ok := c.Get("jobs:technician")
	assert.False(t, ok)

	c.Set("jobs:technician", "payload")
	v, ok := c.Get("jobs:technician")
	assert.True(t, ok)
	assert.Equal(t, "payload", v)
}

func TestInvalidatePrefix(t *testing.T) {
	c := New()
	c.Set("jobs:technician", 1)
	c.Set("jobs:customer", 2)
	c.Set("customer:profile", 3)

	removed := c.InvalidatePrefix("jobs")
	assert.Equal(t, 2, removed)

	// Reads under the invalidated prefix must miss.
	_, ok := c.Get("jobs:technician")
	assert.False(t, ok)
	_, ok = c.Get("jobs:customer")
	assert.False(t, ok)

	// Unrelated prefixes survive.
	v, ok := c.Get("customer:profile")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestInvalidateThenRepopulate(t *testing.T) {
	c := New()
	c.Set("jobs:technician", "stale")
	c.InvalidatePrefix("jobs")

	// A value cached after the invalidation is served normally.
	c.Set("jobs:technician", "fresh")
	v, ok := c.Get("jobs:technician")
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestClear(t *testing.T) {
	c := New()
	c.Set("jobs:technician", 1)
	c.Set("customer:profile", 2)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("customer:profile")
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("jobs:%d", n)
			c.Set(key, n)
			c.Get(key)
			c.InvalidatePrefix("jobs")
		}(i)
	}
	wg.Wait()
}
