package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCache(t *testing.T) {
	c := NewMapCache(0)

	_, _, ok := c.Get("missing")
	assert.False(t, ok)

	in := []int{1, 4, 5, 0}
	c.Put("my name", in, 3)
	in[0] = 99

	ids, size, ok := c.Get("my name")
	require.True(t, ok)
	assert.Equal(t, []int{1, 4, 5, 0}, ids)
	assert.Equal(t, 3, size)

	ids[1] = 42
	again, _, _ := c.Get("my name")
	assert.Equal(t, 4, again[1])
	assert.Equal(t, 1, c.Size())
}

func TestMapCache_Limit(t *testing.T) {
	c := NewMapCache(2)
	c.Put("a", []int{1}, 1)
	c.Put("b", []int{2}, 1)
	c.Put("a", []int{3}, 1)
	c.Put("c", []int{4}, 1)

	assert.Equal(t, 2, c.Size())
	_, _, ok := c.Get("a")
	assert.False(t, ok)
	ids, _, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, []int{4}, ids)
}

func TestMapCache_Concurrent(t *testing.T) {
	c := NewMapCache(16)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("%d-%d", i, j%20)
				c.Put(key, []int{i, j}, 2)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 16)
}
