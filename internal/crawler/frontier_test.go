package crawler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontierFIFO(t *testing.T) {
	t.Parallel()

	f := newFrontier()
	require.True(t, f.Push("a", 0))
	require.True(t, f.Push("b", 1))
	require.True(t, f.Push("c", 1))
	require.False(t, f.Push("a", 2))
	require.False(t, f.Push("", 0))

	assert.Equal(t, []CrawlTarget{{URL: "a", Depth: 0}, {URL: "b", Depth: 1}}, f.NextBatch(2))
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, []CrawlTarget{{URL: "c", Depth: 1}}, f.NextBatch(5))
	assert.Nil(t, f.NextBatch(1))
	assert.Nil(t, f.NextBatch(0))

	assert.True(t, f.Seen("b"))
	assert.False(t, f.Seen("z"))
	assert.Equal(t, []string{"a", "b", "c"}, f.Visited())
}

func TestFrontierConcurrentPushIsUnique(t *testing.T) {
	t.Parallel()

	f := newFrontier()
	const workers, urls = 16, 200
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range urls {
				if f.Push(fmt.Sprintf("https://ex.com/%d", i), 1) {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, urls, admitted.Load())
	require.Equal(t, urls, f.Len())

	seen := make(map[string]struct{})
	for {
		batch := f.NextBatch(7)
		if len(batch) == 0 {
			break
		}
		for _, target := range batch {
			_, dup := seen[target.URL]
			require.False(t, dup, target.URL)
			seen[target.URL] = struct{}{}
		}
	}
	require.Len(t, seen, urls)
}
