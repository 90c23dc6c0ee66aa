package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterResumes(t *testing.T) {
	c := NewCounter(41)
	assert.Equal(t, uint64(42), c.Next())
	assert.Equal(t, uint64(43), c.Next())
	assert.Equal(t, uint64(43), c.Current())
}

func TestCounterConcurrentUnique(t *testing.T) {
	c := NewCounter(0)
	const workers, per = 8, 500

	var mu sync.Mutex
	seen := make(map[uint64]bool, workers*per)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, per)
			for j := 0; j < per; j++ {
				local = append(local, c.Next())
			}
			mu.Lock()
			for _, v := range local {
				seen[v] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*per)
	assert.Equal(t, uint64(workers*per), c.Current())
}
