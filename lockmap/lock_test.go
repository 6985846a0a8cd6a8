package lockmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAcquireRelease(t *testing.T) {
	assert := assert.New(t)
	lmap := MkLockMap()

	lmap.Acquire(3)
	assert.True(lmap.IsHeld(3))
	assert.False(lmap.IsHeld(3 + NSHARD), "same shard, different key")
	assert.False(lmap.TryAcquire(3))
	assert.True(lmap.TryAcquire(3 + NSHARD))
	lmap.Release(3)
	lmap.Release(3 + NSHARD)
	assert.False(lmap.IsHeld(3))
	assert.Empty(lmap.shard(3).state, "idle keys are dropped")

	assert.Panics(func() { lmap.Release(3) })
}

func TestMutualExclusion(t *testing.T) {
	lmap := MkLockMap()
	counts := make([]int, 4)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				key := uint64(i % len(counts))
				lmap.Do(key, func() {
					counts[key]++
				})
			}
		}()
	}
	wg.Wait()
	for _, c := range counts {
		assert.Equal(t, 8*1000/len(counts), c)
	}
}
